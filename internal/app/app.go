// Package app opens a workspace and wires the store, event log and engine
// the CLI and server share.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"hazardline/internal/catalog"
	"hazardline/internal/config"
	"hazardline/internal/db"
	"hazardline/internal/engine"
	"hazardline/internal/events"
	"hazardline/internal/metrics"
	"hazardline/internal/migrate"
	"hazardline/internal/repo"
	"hazardline/internal/store"
	"hazardline/internal/store/memory"
)

type Options struct {
	Workspace string
	Config    *config.Config
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// App holds everything opened for one workspace. Keys is nil for the memory
// driver.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Store   store.HazardStore
	Events  events.Recorder
	Source  events.Source
	Keys    *repo.Repo
	Engine  engine.Engine
	Catalog catalog.Service

	conn      *sql.DB
	publisher events.Publisher
}

func Open(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		if cfg, err = config.LoadOptional(opts.Workspace); err != nil {
			return nil, err
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger, Metrics: opts.Metrics}

	var primary events.Recorder
	switch cfg.Store.Driver {
	case config.DriverMemory:
		mem := &events.Memory{}
		a.Store = memory.New()
		a.Source = mem
		primary = mem
	case config.DriverSQLite, "":
		conn, err := db.Open(db.Config{Workspace: opts.Workspace})
		if err != nil {
			return nil, err
		}
		version, err := migrate.Migrate(ctx, conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.DebugContext(ctx, "database ready", "path", db.Path(opts.Workspace), "schema_version", version)
		r := &repo.Repo{DB: conn}
		a.conn = conn
		a.Store = *r
		a.Source = *r
		a.Keys = r
		primary = events.Writer{Log: *r}
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	a.Events = primary
	if rc := cfg.Notifications.Redis; rc.Addr != "" {
		a.publisher = events.NewRedisPublisher(events.DialRedis(rc.Addr, rc.Password, rc.DB), rc.Stream, logger)
		a.Events = events.Fanout{Primary: primary, Followers: []events.Recorder{a.publisher}, Logger: logger}
	}

	a.Engine = engine.New(a.Store, a.Events, cfg)
	a.Engine.Logger = logger
	a.Engine.Metrics = a.Metrics
	a.Catalog = catalog.Service{Store: a.Store, Events: a.Events, Logger: logger}
	return a, nil
}

func (a *App) Close() error {
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.conn != nil {
		errs = append(errs, a.conn.Close())
	}
	return errors.Join(errs...)
}
