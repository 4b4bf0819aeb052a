// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ManuGH/hlsrelay/internal/domain/session/model"
	"github.com/ManuGH/hlsrelay/internal/domain/session/ports"
	"github.com/ManuGH/hlsrelay/internal/domain/session/store"
	"github.com/ManuGH/hlsrelay/internal/log"
	"github.com/ManuGH/hlsrelay/internal/metrics"
)

const (
	DefaultPollInterval = time.Second
	DefaultPollTimeout  = 800 * time.Millisecond

	pollErrorLogEvery = 30 * time.Second
)

var errInactive = errors.New("session no longer active")

// StatsSource is the part of the worker the poller needs.
type StatsSource interface {
	PollStats(ctx context.Context, sessionID string) (*model.Stats, error)
}

// poller runs one stats loop per active session.
type poller struct {
	source   StatsSource
	store    store.Store
	pub      Publisher
	onChange func(ctx context.Context)
	routines *sessionRegistry

	interval atomic.Int64
	timeout  time.Duration

	mu    sync.Mutex
	loops map[string]*pollLoop
}

type pollLoop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func newPoller(source StatsSource, st store.Store, pub Publisher, onChange func(context.Context), routines *sessionRegistry, interval, timeout time.Duration) *poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	p := &poller{
		source:   source,
		store:    st,
		pub:      pub,
		onChange: onChange,
		routines: routines,
		timeout:  timeout,
		loops:    make(map[string]*pollLoop),
	}
	p.interval.Store(int64(interval))
	return p
}

// SetInterval changes the cadence for loops started afterwards.
func (p *poller) SetInterval(d time.Duration) {
	if d > 0 {
		p.interval.Store(int64(d))
	}
}

// Start launches the loop for id. A live loop makes this a no-op.
func (p *poller) Start(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.loops[id]; ok {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &pollLoop{cancel: cancel, done: make(chan struct{})}
	interval := time.Duration(p.interval.Load())
	if !p.routines.Go(func() { p.run(ctx, id, l, interval) }) {
		cancel()
		return
	}
	p.loops[id] = l
	metrics.PollLoopsActive.Inc()
}

// Stop cancels the loop for id and waits for it to return.
func (p *poller) Stop(id string) {
	p.mu.Lock()
	l, ok := p.loops[id]
	if ok {
		delete(p.loops, id)
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	l.cancel()
	<-l.done
}

// StopAll stops every loop.
func (p *poller) StopAll() {
	p.mu.Lock()
	ids := make([]string, 0, len(p.loops))
	for id := range p.loops {
		ids = append(ids, id)
	}
	p.mu.Unlock()
	for _, id := range ids {
		p.Stop(id)
	}
}

// Active reports whether a loop is registered for id.
func (p *poller) Active(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.loops[id]
	return ok
}

func (p *poller) run(ctx context.Context, id string, l *pollLoop, interval time.Duration) {
	defer func() {
		p.mu.Lock()
		if p.loops[id] == l {
			delete(p.loops, id)
		}
		p.mu.Unlock()
		metrics.PollLoopsActive.Dec()
		close(l.done)
	}()

	logger := log.WithComponent("poller").With().Str(log.FieldSessionID, id).Logger()
	errLimiter := rate.NewLimiter(rate.Every(pollErrorLogEvery), 1)
	var loggedNotFound bool

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cur, err := p.store.Get(ctx, id)
		if err != nil || !cur.Status.IsActive() {
			return
		}

		pctx, cancel := context.WithTimeout(ctx, p.timeout)
		st, err := p.source.PollStats(pctx, id)
		cancel()

		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, ports.ErrStatsNotFound):
			metrics.RecordPoll("not_found")
			if !loggedNotFound {
				loggedNotFound = true
				logger.Debug().Str(log.FieldEvent, "poll.no_stats").Msg("worker has not reported progress yet")
			}
			continue
		case err != nil:
			metrics.RecordPoll("error")
			if errLimiter.Allow() {
				logger.Warn().Err(err).Str(log.FieldEvent, "poll.failed").Msg("stats poll failed")
			}
			continue
		case st == nil:
			metrics.RecordPoll("not_found")
			continue
		}

		snapshot := *st
		promoted := false
		_, err = p.store.Update(ctx, id, func(s *model.Session) error {
			if !s.Status.IsActive() {
				return errInactive
			}
			s.LastStats = &snapshot
			if s.Status == model.StatusStarting {
				s.Status = model.StatusRunning
				promoted = true
			}
			return nil
		})
		if err != nil {
			return
		}
		metrics.RecordPoll("ok")
		if ctx.Err() != nil {
			return
		}
		p.pub.Publish(model.NewStatsEvent(id, snapshot))
		if promoted {
			logger.Info().
				Str(log.FieldEvent, "session.running").
				Str(log.FieldOldState, string(model.StatusStarting)).
				Str(log.FieldNewState, string(model.StatusRunning)).
				Msg("first progress report")
			if p.onChange != nil {
				p.onChange(ctx)
			}
		}
	}
}

// StatsSourceFunc adapts a function to StatsSource.
type StatsSourceFunc func(ctx context.Context, sessionID string) (*model.Stats, error)

func (f StatsSourceFunc) PollStats(ctx context.Context, sessionID string) (*model.Stats, error) {
	return f(ctx, sessionID)
}
