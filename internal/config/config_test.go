package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultTemplateValidates(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault()))
	if err != nil {
		t.Fatalf("default template invalid: %v", err)
	}
	if cfg.Store.Driver != DriverSQLite {
		t.Fatalf("driver = %q", cfg.Store.Driver)
	}
	perms := cfg.RolePermissions(cfg.ActorRoles("someone"))
	if !contains(perms, PermHazardSubmit) || contains(perms, PermHazardNavigate) {
		t.Fatalf("reporter permissions unexpected: %v", perms)
	}
	if got := cfg.ActorRoles("local-user"); len(got) != 1 || got[0] != "owner" {
		t.Fatalf("local-user roles = %v", got)
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("store:\n  driver: memory\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Store.Driver != DriverMemory {
		t.Fatalf("driver = %q", cfg.Store.Driver)
	}
	if cfg.Notifications.Mailboxes.SafetyTeam == "" {
		t.Fatalf("mailboxes lost")
	}
	if _, ok := cfg.RBAC.Roles["safety_manager"]; !ok {
		t.Fatalf("default roles lost")
	}
}

func TestCustomRolesReplaceDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
rbac:
  roles:
    owner:
      permissions: ["*"]
    auditor:
      permissions: [hazard.read, events.read]
  actors:
    ana: [auditor]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, ok := cfg.RBAC.Roles["safety_manager"]; ok {
		t.Fatalf("custom roles should replace defaults")
	}
	if perms := cfg.RolePermissions(cfg.ActorRoles("ana")); len(perms) != 2 {
		t.Fatalf("auditor perms = %v", perms)
	}
}

func TestValidateErrors(t *testing.T) {
	cases := map[string]string{
		"driver":       "store:\n  driver: postgres\n",
		"owner":        "rbac:\n  roles:\n    viewer:\n      permissions: [hazard.read]\n",
		"unknown role": "rbac:\n  actors:\n    sam: [wizard]\n",
		"webhook url":  "notifications:\n  webhooks:\n    - events: [hazard.advanced]\n",
		"redis stream": "notifications:\n  redis:\n    addr: localhost:6379\n    stream: \"\"\n",
		"base path":    "server:\n  base_path: api\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := FromYAML([]byte(doc)); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "hl init") {
		t.Fatalf("expected missing config hint, got %v", err)
	}
	cfg, err := LoadOptional(dir)
	if err != nil || cfg == nil {
		t.Fatalf("LoadOptional: cfg=%v err=%v", cfg, err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("level = %q", cfg.Log.Level)
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
