package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const FileName = "hazardline.yml"

// Config models hazardline.yml.
type Config struct {
	Store struct {
		Driver string `yaml:"driver"`
	} `yaml:"store"`
	Server struct {
		Addr                   string `yaml:"addr"`
		BasePath               string `yaml:"base_path"`
		JWTSecret              string `yaml:"jwt_secret"`
		AllowLegacyActorHeader bool   `yaml:"allow_legacy_actor_header"`
		DevLogin               bool   `yaml:"dev_login"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	RBAC struct {
		Roles map[string]RBACRole `yaml:"roles"`
		// Actors binds actor ids to roles; DefaultRole covers everyone else.
		Actors      map[string][]string `yaml:"actors"`
		DefaultRole string              `yaml:"default_role"`
	} `yaml:"rbac"`
	Notifications Notifications `yaml:"notifications"`
	Report        struct {
		PendingPlaceholder string `yaml:"pending_placeholder"`
	} `yaml:"report"`
}

type RBACRole struct {
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

type Notifications struct {
	Mailboxes struct {
		SafetyTeam  string `yaml:"safety_team"`
		LineManager string `yaml:"line_manager"`
		Executive   string `yaml:"executive"`
	} `yaml:"mailboxes"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
	Redis    RedisConfig     `yaml:"redis"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// RedisConfig enables the event stream mirror when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
}

const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Permission ids checked by the engine and the API.
const (
	PermHazardSubmit      = "hazard.submit"
	PermHazardRead        = "hazard.read"
	PermHazardDelete      = "hazard.delete"
	PermHazardAdvance     = "hazard.advance"
	PermHazardNavigate    = "hazard.navigate"
	PermHazardInvestigate = "hazard.investigate"
	PermPaceManage        = "pace.manage"
	PermPaceRespond       = "pace.respond"
	PermHazardApprove     = "hazard.approve"
	PermHazardPlan        = "hazard.plan"
	PermHazardImplement   = "hazard.implement"
	PermHazardPublish     = "hazard.publish"
	PermAttachmentManage  = "attachment.manage"
	PermEventsRead        = "events.read"
	PermAPIKeyManage      = "apikey.manage"

	// PermAll grants every permission.
	PermAll = "*"
)

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with hl init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional falls back to Default when the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	cfg, err := Load(workspace)
	if err == nil {
		return cfg, nil
	}
	if _, statErr := os.Stat(Path(workspace)); os.IsNotExist(statErr) {
		return Default(), nil
	}
	return nil, err
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("config.store.driver must be %s or %s", DriverSQLite, DriverMemory)
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if len(c.RBAC.Roles) == 0 {
		return fmt.Errorf("config.rbac.roles is required")
	}
	if _, ok := c.RBAC.Roles["owner"]; !ok {
		return fmt.Errorf("config.rbac.roles must include owner")
	}
	for roleID, role := range c.RBAC.Roles {
		if roleID == "" {
			return fmt.Errorf("config.rbac.roles contains empty role id")
		}
		for _, perm := range role.Permissions {
			if perm == "" {
				return fmt.Errorf("role %s has empty permission id", roleID)
			}
		}
	}
	for actor, roles := range c.RBAC.Actors {
		if actor == "" {
			return fmt.Errorf("config.rbac.actors contains empty actor id")
		}
		for _, roleID := range roles {
			if _, ok := c.RBAC.Roles[roleID]; !ok {
				return fmt.Errorf("actor %s references unknown role %s", actor, roleID)
			}
		}
	}
	if c.RBAC.DefaultRole != "" {
		if _, ok := c.RBAC.Roles[c.RBAC.DefaultRole]; !ok {
			return fmt.Errorf("config.rbac.default_role references unknown role %s", c.RBAC.DefaultRole)
		}
	}
	for i, hook := range c.Notifications.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.notifications.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.notifications.webhooks[%d].timeout_seconds must be >= 0", i)
		}
	}
	if c.Notifications.Redis.Addr != "" && c.Notifications.Redis.Stream == "" {
		return fmt.Errorf("config.notifications.redis.stream is required when addr is set")
	}
	return nil
}

// RolePermissions returns the sorted, de-duplicated permissions of roles.
// Unknown roles contribute nothing.
func (c *Config) RolePermissions(roles []string) []string {
	set := map[string]struct{}{}
	for _, r := range roles {
		role, ok := c.RBAC.Roles[r]
		if !ok {
			continue
		}
		for _, p := range role.Permissions {
			set[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ActorRoles returns the roles bound to actorID, or the default role.
func (c *Config) ActorRoles(actorID string) []string {
	if roles, ok := c.RBAC.Actors[actorID]; ok && len(roles) > 0 {
		return append([]string(nil), roles...)
	}
	if c.RBAC.DefaultRole != "" {
		return []string{c.RBAC.DefaultRole}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the parsed default template.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config template: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	// Sections present in data replace the defaults wholesale.
	cfg.RBAC.Roles = nil
	cfg.RBAC.Actors = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if cfg.RBAC.Roles == nil {
		cfg.RBAC.Roles = Default().RBAC.Roles
	}
	if cfg.RBAC.Actors == nil {
		cfg.RBAC.Actors = Default().RBAC.Actors
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `store:
  driver: sqlite

server:
  addr: 127.0.0.1:8090
  base_path: ""
  jwt_secret: ""
  allow_legacy_actor_header: true
  dev_login: false

log:
  level: info
  format: text

rbac:
  default_role: reporter
  actors:
    local-user: [owner]
  roles:
    owner:
      description: "Full control"
      permissions: ["*"]
    safety_manager:
      description: "Runs investigations and the corrective-action workflow"
      permissions:
        - hazard.submit
        - hazard.read
        - hazard.delete
        - hazard.advance
        - hazard.navigate
        - hazard.investigate
        - pace.manage
        - pace.respond
        - hazard.plan
        - hazard.publish
        - attachment.manage
        - events.read
    line_manager:
      description: "Approves corrective plans and drives implementation"
      permissions: [hazard.read, hazard.approve, hazard.advance, pace.manage, pace.respond, hazard.implement]
    executive:
      description: "Final approval of corrective plans"
      permissions: [hazard.read, hazard.approve]
    assignee:
      description: "PACE member answering for a hazard"
      permissions: [hazard.read, pace.respond, hazard.implement, attachment.manage]
    reporter:
      description: "Files hazard reports"
      permissions: [hazard.submit, hazard.read]

notifications:
  mailboxes:
    safety_team: safety@example.com
    line_manager: line-manager@example.com
    executive: executive@example.com
  webhooks: []
  redis:
    addr: ""
    stream: hazardline.events

report:
  pending_placeholder: "Pending response"
`
