// Package memory is an in-process HazardStore used by tests and by the
// server when no database is configured.
package memory

import (
	"context"
	"sync"

	"hazardline/internal/domain"
	"hazardline/internal/errclass"
	"hazardline/internal/store"
)

type Store struct {
	mu      sync.RWMutex
	hazards map[string]domain.Hazard
}

func New() *Store {
	return &Store{hazards: make(map[string]domain.Hazard)}
}

var _ store.HazardStore = (*Store)(nil)

func (s *Store) Create(_ context.Context, h domain.Hazard) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.ID == "" {
		ids := make([]string, 0, len(s.hazards))
		for id := range s.hazards {
			ids = append(ids, id)
		}
		h.ID = store.NextID(ids)
	}
	if _, exists := s.hazards[h.ID]; exists {
		return "", errclass.ErrConflict.WithMessagef("hazard %s already exists", h.ID)
	}
	h.Version = 1
	s.hazards[h.ID] = store.Clone(h)
	return h.ID, nil
}

func (s *Store) Get(_ context.Context, id string) (domain.Hazard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hazards[id]
	if !ok {
		return domain.Hazard{}, errclass.ErrNotFound.WithMessagef("hazard %s not found", id)
	}
	return store.Clone(h), nil
}

func (s *Store) Update(_ context.Context, id string, p store.Patch) (domain.Hazard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hazards[id]
	if !ok {
		return domain.Hazard{}, errclass.ErrNotFound.WithMessagef("hazard %s not found", id)
	}
	if err := p.CheckVersion(h); err != nil {
		return domain.Hazard{}, err
	}
	h = store.Clone(h)
	p.Apply(&h)
	h.Version++
	s.hazards[id] = h
	return store.Clone(h), nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hazards[id]; !ok {
		return errclass.ErrNotFound.WithMessagef("hazard %s not found", id)
	}
	delete(s.hazards, id)
	return nil
}

func (s *Store) List(_ context.Context, f store.Filter) ([]domain.Hazard, error) {
	afterTS, afterID, err := store.ParseCursor(f.Cursor)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	items := make([]domain.Hazard, 0, len(s.hazards))
	for _, h := range s.hazards {
		if f.Match(h) {
			items = append(items, store.Clone(h))
		}
	}
	s.mu.RUnlock()
	store.SortByCreated(items)
	if afterID != "" {
		start := len(items)
		for i, h := range items {
			if h.CreatedAt > afterTS || (h.CreatedAt == afterTS && h.ID > afterID) {
				start = i
				break
			}
		}
		items = items[start:]
	}
	if f.Limit > 0 && len(items) > f.Limit {
		items = items[:f.Limit]
	}
	return items, nil
}
