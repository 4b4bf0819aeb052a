// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/ManuGH/hlsrelay/internal/domain/session/lifecycle"
	"github.com/ManuGH/hlsrelay/internal/domain/session/manager"
	"github.com/ManuGH/hlsrelay/internal/domain/session/model"
	"github.com/ManuGH/hlsrelay/internal/domain/session/order"
)

// fakeSessions is an in-memory stand-in for the supervisor.
type fakeSessions struct {
	mu       sync.Mutex
	root     string
	sessions map[string]*model.Session
	order    *order.Tracker
	nextID   int

	startErr    error
	lastOpts    model.Options
	lastRestart manager.RestartOptions
}

var _ Sessions = (*fakeSessions)(nil)

func newFakeSessions(root string) *fakeSessions {
	return &fakeSessions{
		root:     root,
		sessions: make(map[string]*model.Session),
		order:    order.NewTracker(),
	}
}

func (f *fakeSessions) Start(_ context.Context, locator string, opts model.Options) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if locator == "" {
		return nil, lifecycle.NewValidation("sourceLocator", "required")
	}
	if f.startErr != nil {
		return nil, f.startErr
	}
	id := opts.ID
	if id == "" {
		f.nextID++
		id = fmt.Sprintf("s%d", f.nextID)
	}
	if _, ok := f.sessions[id]; ok {
		return nil, fmt.Errorf("%w: %s", lifecycle.ErrAlreadyExists, id)
	}
	f.lastOpts = opts
	now := time.Date(2025, 1, 1, 0, 0, f.nextID, 0, time.UTC)
	sess := &model.Session{
		ID:            id,
		SourceLocator: locator,
		Status:        model.StatusStarting,
		IgnoreFailure: opts.IgnoreFailure,
		Credentials:   opts.Credentials,
		CreatedAt:     now,
		StartedAt:     now,
		Generation:    1,
	}
	f.sessions[id] = sess
	f.order.Append(id)
	return sess.Clone(), nil
}

func (f *fakeSessions) Restart(_ context.Context, id string, opts manager.RestartOptions) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[id]
	if !ok {
		return nil, lifecycle.NewNotFound(id)
	}
	f.lastRestart = opts
	if opts.IgnoreFailure != nil {
		sess.IgnoreFailure = *opts.IgnoreFailure
	}
	sess.Status = model.StatusStarting
	sess.Generation++
	return sess.Clone(), nil
}

func (f *fakeSessions) Stop(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[id]
	if !ok {
		return lifecycle.NewNotFound(id)
	}
	sess.Status = model.StatusStopped
	return nil
}

func (f *fakeSessions) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; !ok {
		return lifecycle.NewNotFound(id)
	}
	delete(f.sessions, id)
	f.order.Remove(id)
	return nil
}

func (f *fakeSessions) Reorder(_ context.Context, ids []string) error {
	return f.order.Reorder(ids, func(id string) bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		_, ok := f.sessions[id]
		return ok
	})
}

func (f *fakeSessions) List(_ context.Context) ([]model.SessionView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := make([]*model.Session, 0, len(f.sessions))
	for _, s := range f.sessions {
		all = append(all, s)
	}
	views := make([]model.SessionView, 0, len(all))
	for _, s := range f.order.Materialize(all) {
		views = append(views, model.NewView(s, time.Now(), 0))
	}
	return views, nil
}

func (f *fakeSessions) Get(_ context.Context, id string) (model.SessionView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return model.SessionView{}, lifecycle.NewNotFound(id)
	}
	return model.NewView(s, time.Now(), 0), nil
}

func (f *fakeSessions) WorkDir(id string) string {
	return filepath.Join(f.root, "sessions", id)
}

func (f *fakeSessions) setStatus(id string, st model.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[id].Status = st
}
