package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hazardline/internal/catalog"
	"hazardline/internal/config"
	"hazardline/internal/events"
	"hazardline/internal/logging"
	"hazardline/internal/stage"
)

func openWith(t *testing.T, driver string) *App {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Driver = driver
	a, err := Open(context.Background(), Options{Workspace: t.TempDir(), Config: cfg, Logger: logging.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestOpenDrivers(t *testing.T) {
	for _, driver := range []string{config.DriverMemory, config.DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			a := openWith(t, driver)
			actor := a.Engine.Auth.Resolve("local-user")

			h, err := a.Catalog.Submit(ctx, catalog.Input{Title: "Loose rail", Description: "Stairwell B", Severity: "Medium"}, actor.ID)
			require.NoError(t, err)
			h, err = a.Engine.Advance(ctx, h.ID, stage.SmInitialReview, actor)
			require.NoError(t, err)
			assert.Equal(t, stage.SmInitialReview, h.Stage)

			evts, err := a.Source.LatestEvents(ctx, events.Filter{EntityID: h.ID})
			require.NoError(t, err)
			require.Len(t, evts, 2)
			assert.Equal(t, events.TypeHazardAdvanced, evts[0].Type)
			assert.Equal(t, events.TypeHazardSubmitted, evts[1].Type)

			if driver == config.DriverSQLite {
				assert.NotNil(t, a.Keys)
			} else {
				assert.Nil(t, a.Keys)
			}
		})
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = "postgres"
	_, err := Open(context.Background(), Options{Workspace: t.TempDir(), Config: cfg, Logger: logging.Discard()})
	require.Error(t, err)
}

func TestOpenWithRedisMirrorsEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Store.Driver = config.DriverMemory
	cfg.Notifications.Redis.Addr = mr.Addr()
	a, err := Open(context.Background(), Options{Workspace: t.TempDir(), Config: cfg, Logger: logging.Discard()})
	require.NoError(t, err)
	_, ok := a.Events.(events.Fanout)
	assert.True(t, ok, "redis address should wrap the recorder in a fanout")

	ctx := context.Background()
	actor := a.Engine.Auth.Resolve("local-user")
	h, err := a.Catalog.Submit(ctx, catalog.Input{Title: "Loose rail", Description: "Stairwell B", Severity: "Medium"}, actor.ID)
	require.NoError(t, err)

	reader := events.DialRedis(mr.Addr(), "", 0)
	defer reader.Close()
	entries, err := reader.XRange(ctx, cfg.Notifications.Redis.Stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, events.TypeHazardSubmitted, entries[0].Values["event_type"])
	assert.Equal(t, h.ID, entries[0].Values["entity_id"])
	require.NoError(t, a.Close())
}
