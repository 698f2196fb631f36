package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"hazardline/internal/domain"
)

// Publisher forwards recorded events to an external stream.
type Publisher interface {
	Recorder
	Close() error
}

type redisPublisher struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

// NewRedisPublisher appends every event to a Redis stream with XADD.
func NewRedisPublisher(client *redis.Client, stream string, logger *slog.Logger) Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisPublisher{
		client: client,
		stream: stream,
		logger: logger,
	}
}

// DialRedis opens a client for addr. It does not ping.
func DialRedis(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

func (p *redisPublisher) Record(ctx context.Context, e domain.Event) (domain.Event, error) {
	fields := map[string]any{
		"event_id":    e.ID,
		"ts":          e.TS,
		"event_type":  e.Type,
		"entity_kind": e.EntityKind,
		"entity_id":   e.EntityID,
		"actor_id":    e.ActorID,
		"payload":     e.Payload,
	}
	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: fields,
	}).Err(); err != nil {
		return domain.Event{}, fmt.Errorf("publish event: %w", err)
	}
	p.logger.DebugContext(ctx, "published event", "stream", p.stream, "event_id", e.ID, "event_type", e.Type, "hazard_id", e.EntityID)
	return e, nil
}

func (p *redisPublisher) Close() error {
	return p.client.Close()
}
