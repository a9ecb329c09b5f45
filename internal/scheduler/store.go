package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists triggers.
type Store interface {
	Get(ctx context.Context, key string) (*Trigger, error)
	List(ctx context.Context) ([]*Trigger, error)
	// Upsert inserts t or replaces the trigger with the same key.
	Upsert(ctx context.Context, t *Trigger) error
	// Advance records a firing. It only applies while the trigger's NextRunAt
	// still equals scheduled and reports whether it did.
	Advance(ctx context.Context, key string, scheduled, firedAt, next time.Time) (bool, error)
	Delete(ctx context.Context, key string) error
}

// MemoryStore is an in-process Store for tests and single-binary runs.
type MemoryStore struct {
	mu       sync.Mutex
	triggers map[string]*Trigger
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{triggers: make(map[string]*Trigger)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.triggers[key]
	if !ok {
		return nil, ErrTriggerNotFound
	}
	return clone(t), nil
}

func (s *MemoryStore) List(_ context.Context) ([]*Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Trigger, 0, len(s.triggers))
	for _, t := range s.triggers {
		out = append(out, clone(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) Upsert(_ context.Context, t *Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggers[t.Key] = clone(t)
	return nil
}

func (s *MemoryStore) Advance(_ context.Context, key string, scheduled, firedAt, next time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.triggers[key]
	if !ok {
		return false, ErrTriggerNotFound
	}
	if !t.NextRunAt.Equal(scheduled) {
		return false, nil
	}
	t.LastRunAt = &firedAt
	t.NextRunAt = next
	t.UpdatedAt = firedAt
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.triggers[key]; !ok {
		return ErrTriggerNotFound
	}
	delete(s.triggers, key)
	return nil
}

func clone(t *Trigger) *Trigger {
	c := *t
	if t.Data != nil {
		c.Data = append([]byte(nil), t.Data...)
	}
	if t.LastRunAt != nil {
		at := *t.LastRunAt
		c.LastRunAt = &at
	}
	return &c
}
