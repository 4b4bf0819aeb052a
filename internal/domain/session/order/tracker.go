// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package order keeps the user-controlled display order of sessions.
package order

import (
	"sort"
	"sync"

	"github.com/ManuGH/hlsrelay/internal/domain/session/lifecycle"
	"github.com/ManuGH/hlsrelay/internal/domain/session/model"
)

// Tracker holds an ordered list of session ids.
type Tracker struct {
	mu  sync.Mutex
	ids []string
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Append adds id at the end unless it is already tracked.
func (t *Tracker) Append(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, cur := range t.ids {
		if cur == id {
			return
		}
	}
	t.ids = append(t.ids, id)
}

// Remove drops id. Unknown ids are ignored.
func (t *Tracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, cur := range t.ids {
		if cur == id {
			t.ids = append(t.ids[:i:i], t.ids[i+1:]...)
			return
		}
	}
}

// Reorder replaces the whole order. Every id must be non-empty, unique and
// accepted by exists; otherwise the previous order is kept.
// exists is evaluated under the tracker lock, so a concurrent Remove cannot
// interleave with validation.
func (t *Tracker) Reorder(ids []string, exists func(id string) bool) error {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			return lifecycle.NewValidation("ids", "empty id")
		}
		if _, dup := seen[id]; dup {
			return lifecycle.NewValidation("ids", "duplicate id "+id)
		}
		seen[id] = struct{}{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if exists != nil {
		for _, id := range ids {
			if !exists(id) {
				return lifecycle.NewValidation("ids", "unknown session "+id)
			}
		}
	}
	t.ids = append(make([]string, 0, len(ids)), ids...)
	return nil
}

// Snapshot returns a copy of the current order.
func (t *Tracker) Snapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.ids...)
}

// Materialize arranges sessions by the tracked order. Untracked sessions
// follow, sorted by (CreatedAt, ID).
func (t *Tracker) Materialize(sessions []*model.Session) []*model.Session {
	order := t.Snapshot()
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}

	out := make([]*model.Session, 0, len(sessions))
	var rest []*model.Session
	for _, s := range sessions {
		if _, ok := pos[s.ID]; ok {
			out = append(out, s)
		} else {
			rest = append(rest, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return pos[out[i].ID] < pos[out[j].ID] })
	sort.Slice(rest, func(i, j int) bool {
		if !rest[i].CreatedAt.Equal(rest[j].CreatedAt) {
			return rest[i].CreatedAt.Before(rest[j].CreatedAt)
		}
		return rest[i].ID < rest[j].ID
	})
	return append(out, rest...)
}
