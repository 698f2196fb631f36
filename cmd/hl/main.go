package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hazardline/internal/app"
	"hazardline/internal/config"
	"hazardline/internal/db"
	"hazardline/internal/engine/auth"
	"hazardline/internal/logging"
	"hazardline/internal/metrics"
)

var rootCmd = &cobra.Command{
	Use:   "hl",
	Short: "Hazardline CLI",
	Long: `Hazardline runs hazard reports through the corrective-action workflow.
- Hazard: a reported unsafe condition; it moves forward one stage at a time from Submitted to Closed.
- Phases: Investigation, Action Plan, Collection, Approvals and Resolution group the stages for progress views.
- PACE: Process Owner, Approver, Contributors and Executers assigned to a hazard's corrective action.
- Report: the corrective-action preview built from the investigation, PACE responses and the synthesized plan.
- Workspace: hazardline.yml plus the .hazardline directory holding the SQLite database.
- Event log: every change is recorded; view it with 'hl log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		// A missing .env is fine.
		_ = godotenv.Load(filepath.Join(workspace, ".env"))
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("HAZARDLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(hazardCmd())
	rootCmd.AddCommand(advanceCmd())
	rootCmd.AddCommand(navigateCmd())
	rootCmd.AddCommand(riskCmd())
	rootCmd.AddCommand(whysCmd())
	rootCmd.AddCommand(textCmds()...)
	rootCmd.AddCommand(paceCmd())
	rootCmd.AddCommand(respondCmd())
	rootCmd.AddCommand(decisionCmds()...)
	rootCmd.AddCommand(componentsCmd())
	rootCmd.AddCommand(attachCmd())
	rootCmd.AddCommand(detachCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(progressCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- helpers ---

func loadConfig() (*config.Config, error) {
	return config.LoadOptional(viper.GetString("workspace"))
}

func openApp(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*app.App, error) {
	level := cfg.Log.Level
	if v := viper.GetString("log-level"); v != "" {
		level = v
	}
	logger, err := logging.Setup(level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return nil, err
	}
	return app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		Config:    cfg,
		Logger:    logger,
		Metrics:   m,
	})
}

// withApp opens the workspace and resolves the acting user.
func withApp(ctx context.Context, fn func(context.Context, *app.App, auth.Actor) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	actorID := viper.GetString("actor-id")
	ctx = logging.WithFields(ctx, logging.Fields{ActorID: actorID})
	return fn(ctx, a, a.Engine.Auth.Resolve(actorID))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create hazardline.yml, the database and a .env with a JWT secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			envPath := filepath.Join(workspace, ".env")
			env, err := godotenv.Read(envPath)
			if err != nil {
				env = map[string]string{}
			}
			if env["HAZARDLINE_JWT_SECRET"] == "" {
				secret, err := randomSecret()
				if err != nil {
					return err
				}
				env["HAZARDLINE_JWT_SECRET"] = secret
			}
			if err := godotenv.Write(env, envPath); err != nil {
				return err
			}
			cfg, err := config.FromFile(path)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			if viper.GetBool("json") {
				return printJSON(map[string]string{"config": path, "env": envPath, "database": db.Path(workspace)})
			}
			fmt.Printf("Wrote %s and %s\nDatabase at %s\n", path, envPath, db.Path(workspace))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}
