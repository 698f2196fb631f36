package events

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hazardline/internal/domain"
	"hazardline/internal/logging"
)

const testStream = "hazardline.events"

func TestRedisPublisherAppendsToStream(t *testing.T) {
	mr := miniredis.RunT(t)
	client := DialRedis(mr.Addr(), "", 0)
	pub := NewRedisPublisher(client, testStream, logging.Discard())
	t.Cleanup(func() { _ = pub.Close() })
	ctx := context.Background()

	evt := domain.Event{
		ID:         7,
		TS:         "2024-01-01T00:00:00Z",
		Type:       TypeHazardAdvanced,
		EntityKind: EntityHazard,
		EntityID:   "HZ-010",
		ActorID:    "sam",
		Payload:    `{"from":"Submitted","to":"SmInitialReview"}`,
	}
	got, err := pub.Record(ctx, evt)
	require.NoError(t, err)
	assert.Equal(t, evt, got)

	entries, err := client.XRange(ctx, testStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	v := entries[0].Values
	assert.Equal(t, "7", v["event_id"])
	assert.Equal(t, TypeHazardAdvanced, v["event_type"])
	assert.Equal(t, EntityHazard, v["entity_kind"])
	assert.Equal(t, "HZ-010", v["entity_id"])
	assert.Equal(t, "sam", v["actor_id"])
	assert.Equal(t, evt.Payload, v["payload"])
}

func TestFanoutMirrorsStoredEventToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := DialRedis(mr.Addr(), "", 0)
	pub := NewRedisPublisher(client, testStream, logging.Discard())
	t.Cleanup(func() { _ = pub.Close() })
	ctx := context.Background()

	mem := &Memory{}
	fan := Fanout{Primary: mem, Followers: []Recorder{pub}, Logger: logging.Discard()}
	stored, err := fan.Record(ctx, domain.Event{Type: TypeHazardSubmitted, EntityKind: EntityHazard, EntityID: "HZ-001", ActorID: "john"})
	require.NoError(t, err)
	require.NotZero(t, stored.ID)

	entries, err := client.XRange(ctx, testStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, TypeHazardSubmitted, entries[0].Values["event_type"])
	assert.Equal(t, "HZ-001", entries[0].Values["entity_id"])
}

func TestFanoutSurvivesRedisOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := DialRedis(mr.Addr(), "", 0)
	pub := NewRedisPublisher(client, testStream, logging.Discard())
	t.Cleanup(func() { _ = pub.Close() })
	mr.Close()

	_, err := pub.Record(context.Background(), domain.Event{Type: TypeHazardSubmitted})
	require.Error(t, err)

	mem := &Memory{}
	fan := Fanout{Primary: mem, Followers: []Recorder{pub}, Logger: logging.Discard()}
	_, err = fan.Record(context.Background(), domain.Event{Type: TypeHazardSubmitted, EntityID: "HZ-001"})
	require.NoError(t, err)
	assert.Len(t, mem.Events(), 1)
}
