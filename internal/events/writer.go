// Package events records workflow events. The SQLite log is the source of
// truth; a Redis stream and in-memory log can follow it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"hazardline/internal/domain"
)

// Event types emitted by the workflow engine.
const (
	TypeHazardSubmitted  = "hazard.submitted"
	TypeHazardDeleted    = "hazard.deleted"
	TypeHazardAdvanced   = "hazard.advanced"
	TypeHazardNavigated  = "hazard.navigated"
	TypeHazardUpdated    = "hazard.updated"
	TypePaceUpdated      = "pace.updated"
	TypeResponseRecorded = "pace.response_recorded"
	TypeDecisionRecorded = "approval.decided"
)

const EntityHazard = "hazard"

type Payload map[string]any

// Recorder persists or forwards an event. Record returns the event as stored,
// with ID and TS filled in by whoever assigns them.
type Recorder interface {
	Record(ctx context.Context, e domain.Event) (domain.Event, error)
}

// New builds a hazard event with a JSON payload.
func New(evtType, hazardID, actorID string, payload Payload) (domain.Event, error) {
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.Event{}, fmt.Errorf("marshal event payload: %w", err)
	}
	return domain.Event{
		Type:       evtType,
		EntityKind: EntityHazard,
		EntityID:   hazardID,
		ActorID:    actorID,
		Payload:    string(data),
	}, nil
}

// Filter narrows an event listing.
type Filter struct {
	Type       string
	EntityKind string
	EntityID   string
	// Before returns only events with a smaller id (newest-first paging).
	Before int64
	Limit  int
}

// Source is the read side of the event log, used by the API and webhook
// dispatcher.
type Source interface {
	LatestEvents(ctx context.Context, f Filter) ([]domain.Event, error)
	EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error)
	LatestEventID(ctx context.Context) (int64, error)
}

// Log is the append side of the event table.
type Log interface {
	InsertEvent(ctx context.Context, e domain.Event) (int64, error)
}

// Writer appends events to a Log, stamping them with Now.
type Writer struct {
	Log Log
	Now func() time.Time
}

func (w Writer) Record(ctx context.Context, e domain.Event) (domain.Event, error) {
	if w.Now == nil {
		w.Now = time.Now
	}
	if e.TS == "" {
		e.TS = w.Now().UTC().Format(time.RFC3339)
	}
	if e.Payload == "" {
		e.Payload = "{}"
	}
	id, err := w.Log.InsertEvent(ctx, e)
	if err != nil {
		return domain.Event{}, err
	}
	e.ID = id
	return e, nil
}

// Memory keeps events in process, numbering them from 1. It backs the
// in-memory store driver and tests.
type Memory struct {
	Now func() time.Time

	mu     sync.Mutex
	events []domain.Event
}

func (m *Memory) Record(_ context.Context, e domain.Event) (domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.TS == "" {
		now := time.Now
		if m.Now != nil {
			now = m.Now
		}
		e.TS = now().UTC().Format(time.RFC3339)
	}
	e.ID = int64(len(m.events) + 1)
	m.events = append(m.events, e)
	return e, nil
}

// Events returns a copy of everything recorded so far, oldest first.
func (m *Memory) Events() []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Event(nil), m.events...)
}

func (m *Memory) LatestEvents(_ context.Context, f Filter) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	var res []domain.Event
	for i := len(m.events) - 1; i >= 0 && len(res) < limit; i-- {
		e := m.events[i]
		if f.Before > 0 && e.ID >= f.Before {
			continue
		}
		if (f.Type != "" && e.Type != f.Type) || (f.EntityKind != "" && e.EntityKind != f.EntityKind) || (f.EntityID != "" && e.EntityID != f.EntityID) {
			continue
		}
		res = append(res, e)
	}
	return res, nil
}

func (m *Memory) EventsAfter(_ context.Context, limit int, cursor int64) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	var res []domain.Event
	for _, e := range m.events {
		if e.ID > cursor && len(res) < limit {
			res = append(res, e)
		}
	}
	return res, nil
}

func (m *Memory) LatestEventID(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.events)), nil
}

// Fanout records to Primary, then forwards the stored event to each
// follower. Follower failures are logged and never fail the call.
type Fanout struct {
	Primary   Recorder
	Followers []Recorder
	Logger    *slog.Logger
}

func (f Fanout) Record(ctx context.Context, e domain.Event) (domain.Event, error) {
	stored, err := f.Primary.Record(ctx, e)
	if err != nil {
		return domain.Event{}, err
	}
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, follower := range f.Followers {
		if _, err := follower.Record(ctx, stored); err != nil {
			logger.WarnContext(ctx, "event follower failed", "event_id", stored.ID, "event_type", stored.Type, "error", err)
		}
	}
	return stored, nil
}
