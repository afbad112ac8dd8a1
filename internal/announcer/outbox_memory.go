package announcer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	txcontext "flowgate/pkg/platform/tx"
)

// InMemoryOutbox is the outbox for tests and database-less runs. Appends
// made inside an in-memory store transaction become visible on commit.
type InMemoryOutbox struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*Entry
}

func NewInMemoryOutbox() *InMemoryOutbox {
	return &InMemoryOutbox{entries: make(map[uuid.UUID]*Entry)}
}

func (s *InMemoryOutbox) Append(ctx context.Context, entries ...*Entry) error {
	copies := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		cp := *e
		copies = append(copies, &cp)
	}
	apply := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, e := range copies {
			s.entries[e.ID] = e
		}
	}
	if !txcontext.OnCommit(ctx, apply) {
		apply()
	}
	return nil
}

func (s *InMemoryOutbox) Find(_ context.Context, ids []uuid.UUID) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entry, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.entries[id]; ok && !e.Published() {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemoryOutbox) Pending(_ context.Context, cutoff time.Time, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Entry
	for _, e := range s.entries {
		if !e.Published() && e.CreatedAt.Before(cutoff) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryOutbox) CountPending(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if !e.Published() {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryOutbox) MarkPublished(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		e.PublishedAt = &at
	}
	return nil
}

func (s *InMemoryOutbox) RecordAttempt(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		e.Attempts++
	}
	return nil
}

// All returns every entry, published or not, oldest first.
func (s *InMemoryOutbox) All() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
