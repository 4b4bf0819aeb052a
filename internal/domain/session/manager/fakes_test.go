// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/hlsrelay/internal/domain/session/model"
	"github.com/ManuGH/hlsrelay/internal/domain/session/order"
	"github.com/ManuGH/hlsrelay/internal/domain/session/ports"
	"github.com/ManuGH/hlsrelay/internal/domain/session/store"
	"github.com/stretchr/testify/require"
)

type fakeWorker struct {
	mu           sync.Mutex
	events       chan ports.ExitEvent
	spawnErr     error
	terminateErr error
	spawns       []ports.SpawnSpec
	live         map[string]ports.WorkerHandle
	stats        map[string]*model.Stats
	maxLive      int
	violations   int
	nextPID      int

	// When set, Spawn signals spawnEntered and blocks until spawnGate closes.
	spawnEntered chan struct{}
	spawnGate    chan struct{}
}

func newFakeWorker() *fakeWorker {
	return &fakeWorker{
		events: make(chan ports.ExitEvent, 256),
		live:   make(map[string]ports.WorkerHandle),
		stats:  make(map[string]*model.Stats),
	}
}

func (f *fakeWorker) Spawn(_ context.Context, spec ports.SpawnSpec) (ports.WorkerHandle, error) {
	f.mu.Lock()
	entered, gate := f.spawnEntered, f.spawnGate
	f.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.spawns = append(f.spawns, spec)
	if f.spawnErr != nil {
		return ports.WorkerHandle{}, f.spawnErr
	}
	if _, ok := f.live[spec.SessionID]; ok {
		f.violations++
	}
	f.nextPID++
	h := ports.WorkerHandle{SessionID: spec.SessionID, Generation: spec.Generation, PID: f.nextPID, StartedAt: time.Now()}
	f.live[spec.SessionID] = h
	if len(f.live) > f.maxLive {
		f.maxLive = len(f.live)
	}
	return h, nil
}

func (f *fakeWorker) Terminate(_ context.Context, h ports.WorkerHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.terminateErr != nil {
		return f.terminateErr
	}
	cur, ok := f.live[h.SessionID]
	if ok && cur.Generation == h.Generation {
		delete(f.live, h.SessionID)
		delete(f.stats, h.SessionID)
		// A terminated process still reports its exit.
		f.events <- ports.ExitEvent{SessionID: h.SessionID, Generation: h.Generation, ExitCode: -1, At: time.Now()}
	}
	return nil
}

func (f *fakeWorker) PollStats(_ context.Context, id string) (*model.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.stats[id]
	if !ok {
		return nil, ports.ErrStatsNotFound
	}
	c := *st
	return &c, nil
}

func (f *fakeWorker) Events() <-chan ports.ExitEvent { return f.events }

func (f *fakeWorker) setStats(id string, st model.Stats) {
	f.mu.Lock()
	f.stats[id] = &st
	f.mu.Unlock()
}

// crash makes the live worker of id exit on its own.
func (f *fakeWorker) crash(id string, code int) {
	f.mu.Lock()
	h, ok := f.live[id]
	delete(f.live, id)
	delete(f.stats, id)
	f.mu.Unlock()
	if ok {
		f.events <- ports.ExitEvent{SessionID: id, Generation: h.Generation, ExitCode: code, Err: errors.New("input closed"), At: time.Now()}
	}
}

func (f *fakeWorker) liveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}

// holdSpawns makes the next spawns block until the returned gate is closed.
func (f *fakeWorker) holdSpawns() (entered <-chan struct{}, gate chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spawnEntered = make(chan struct{}, 1)
	f.spawnGate = make(chan struct{})
	return f.spawnEntered, f.spawnGate
}

func (f *fakeWorker) setSpawnErr(err error) {
	f.mu.Lock()
	f.spawnErr = err
	f.mu.Unlock()
}

type recordingHub struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recordingHub) Publish(ev model.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingHub) snapshot() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Event(nil), r.events...)
}

func (r *recordingHub) count(typ model.EventType) int {
	n := 0
	for _, ev := range r.snapshot() {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func (r *recordingHub) lastListing() (model.Event, bool) {
	evs := r.snapshot()
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Type == model.EventListing {
			return evs[i], true
		}
	}
	return model.Event{}, false
}

type fakeResolver struct {
	mu    sync.Mutex
	meta  map[string]model.DisplayMetadata
	calls int
}

func (f *fakeResolver) Resolve(_ context.Context, locator string) (*model.DisplayMetadata, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	m, ok := f.meta[locator]
	if !ok {
		return nil, false
	}
	return &m, true
}

type fixture struct {
	sup    *Supervisor
	worker *fakeWorker
	hub    *recordingHub
	store  *store.MemoryStore
	order  *order.Tracker
	root   string
}

func newFixture(t *testing.T, mutate ...func(*Config, *Deps)) *fixture {
	t.Helper()
	f := &fixture{
		worker: newFakeWorker(),
		hub:    &recordingHub{},
		store:  store.NewMemoryStore(),
		order:  order.NewTracker(),
		root:   t.TempDir(),
	}
	cfg := Config{
		HLSRoot:      f.root,
		RestartGrace: time.Second,
		StopTimeout:  time.Second,
		StartTimeout: time.Minute,
		PollInterval: 5 * time.Millisecond,
		PollTimeout:  50 * time.Millisecond,
	}
	deps := Deps{Worker: f.worker, Store: f.store, Order: f.order, Hub: f.hub}
	for _, m := range mutate {
		m(&cfg, &deps)
	}
	sup, err := NewSupervisor(cfg, deps)
	require.NoError(t, err)
	f.sup = sup
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, sup.Shutdown(ctx))
	})
	return f
}

func (f *fixture) status(t *testing.T, id string) model.Status {
	t.Helper()
	s, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return s.Status
}

func (f *fixture) waitStatus(t *testing.T, id string, want model.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		s, err := f.store.Get(context.Background(), id)
		return err == nil && s.Status == want
	}, 2*time.Second, 5*time.Millisecond, "session %s never reached %s", id, want)
}

func portsExit(id string, gen uint64, code int) ports.ExitEvent {
	return ports.ExitEvent{SessionID: id, Generation: gen, ExitCode: code, At: time.Now()}
}
