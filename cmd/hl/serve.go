package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hazardline/internal/metrics"
	"hazardline/internal/report"
	"hazardline/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := openApp(ctx, cfg, metrics.New())
			if err != nil {
				return err
			}
			defer a.Close()

			authCfg := server.AuthConfig{
				JWTSecret:              cfg.Server.JWTSecret,
				AllowLegacyActorHeader: cfg.Server.AllowLegacyActorHeader,
				DevLogin:               cfg.Server.DevLogin,
				Logger:                 a.Logger,
			}
			if env := os.Getenv("HAZARDLINE_JWT_SECRET"); env != "" {
				authCfg.JWTSecret = env
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowLegacyActorHeader {
				return fmt.Errorf("HAZARDLINE_JWT_SECRET is required when the legacy actor header is disabled")
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			srvCfg := server.Config{
				Engine:   a.Engine,
				Catalog:  a.Catalog,
				Events:   a.Source,
				Metrics:  a.Metrics,
				Logger:   a.Logger,
				BasePath: basePath,
				Auth:     authCfg,
				Report:   report.Options{PendingPlaceholder: cfg.Report.PendingPlaceholder},
			}
			// A nil *repo.Repo must not become a non-nil KeyStore.
			if a.Keys != nil {
				srvCfg.Keys = a.Keys
			}
			handler, err := server.New(srvCfg)
			if err != nil {
				return err
			}

			dispatcher := server.NewWebhookDispatcher(a.Source, cfg.Notifications.Webhooks, a.Logger)
			go dispatcher.Run(ctx)

			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			a.Logger.InfoContext(ctx, "serving", "addr", addr, "base_path", basePath, "store", cfg.Store.Driver, "webhooks", len(cfg.Notifications.Webhooks))
			if !viper.GetBool("json") {
				fmt.Printf("Serving Hazardline API on http://%s (OpenAPI at /openapi.json, Swagger UI at /docs, metrics at /metrics)\n", addr)
			}
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.addr from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default: /v0)")
	return cmd
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
