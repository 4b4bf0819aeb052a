// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ManuGH/hlsrelay/internal/domain/session/lifecycle"
	"github.com/ManuGH/hlsrelay/internal/domain/session/model"
)

// MemoryStore is the in-process session registry.
// Values never escape: every read and write crosses a deep copy.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*model.Session),
		now:      time.Now,
	}
}

func (m *MemoryStore) Create(ctx context.Context, s *model.Session) error {
	if s == nil || s.ID == "" {
		return lifecycle.NewValidation("id", "empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return fmt.Errorf("%w: %s", lifecycle.ErrAlreadyExists, s.ID)
	}
	c := s.Clone()
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = m.now()
	}
	m.sessions[s.ID] = c
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, lifecycle.NewNotFound(id)
	}
	return s.Clone(), nil
}

// List returns a point-in-time snapshot ordered by (CreatedAt, ID).
func (m *MemoryStore) List(ctx context.Context) ([]*model.Session, error) {
	m.mu.RLock()
	out := make([]*model.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Update applies fn to a copy and commits it only when fn returns nil.
// The committed value is returned as a fresh copy.
func (m *MemoryStore) Update(ctx context.Context, id string, fn UpdateFunc) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[id]
	if !ok {
		return nil, lifecycle.NewNotFound(id)
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	// ID is the map key and cannot move.
	next.ID = id
	next.UpdatedAt = m.now()
	m.sessions[id] = next
	return next.Clone(), nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return lifecycle.NewNotFound(id)
	}
	delete(m.sessions, id)
	return nil
}

// Exists reports whether id is registered.
func (m *MemoryStore) Exists(id string) bool {
	m.mu.RLock()
	_, ok := m.sessions[id]
	m.mu.RUnlock()
	return ok
}

// CountByStatus returns the number of sessions per status.
func (m *MemoryStore) CountByStatus() map[model.Status]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[model.Status]int, len(model.AllStatuses))
	for _, s := range m.sessions {
		out[s.Status]++
	}
	return out
}
