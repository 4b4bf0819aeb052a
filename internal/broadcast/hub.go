// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package broadcast fans session events out to real-time observers.
package broadcast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/hlsrelay/internal/domain/session/model"
	"github.com/ManuGH/hlsrelay/internal/log"
	"github.com/ManuGH/hlsrelay/internal/metrics"
)

const (
	DefaultQueueSize    = 64
	DefaultWriteTimeout = 5 * time.Second
)

// Observer receives events. Send must honor ctx; Close releases the transport.
type Observer interface {
	Send(ctx context.Context, ev model.Event) error
	Close() error
}

// SnapshotFunc produces a full listing event for new or lagging observers.
type SnapshotFunc func(ctx context.Context) model.Event

// Options tune a Hub. Zero values pick defaults.
type Options struct {
	QueueSize    int
	WriteTimeout time.Duration
	Snapshot     SnapshotFunc
}

// Hub is a non-blocking publisher with one bounded queue per observer.
// A slow observer loses events, never blocks Publish, and is resynced with a
// fresh listing once its queue drains.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64
	closed bool

	snapshot     atomic.Pointer[SnapshotFunc]
	queueSize    int
	writeTimeout time.Duration
	logger       zerolog.Logger

	wg sync.WaitGroup
}

type subscriber struct {
	id     uint64
	obs    Observer
	ch     chan model.Event
	quit   chan struct{}
	done   chan struct{}
	lagged atomic.Bool
	once   sync.Once
}

func NewHub(opts Options) *Hub {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	h := &Hub{
		subs:         make(map[uint64]*subscriber),
		queueSize:    opts.QueueSize,
		writeTimeout: opts.WriteTimeout,
		logger:       log.WithComponent("hub"),
	}
	if opts.Snapshot != nil {
		h.SetSnapshot(opts.Snapshot)
	}
	return h
}

// SetSnapshot installs the listing source. It may be set after construction
// to break the wiring cycle with the publisher.
func (h *Hub) SetSnapshot(fn SnapshotFunc) {
	h.snapshot.Store(&fn)
}

func (h *Hub) listing(ctx context.Context) model.Event {
	if fn := h.snapshot.Load(); fn != nil && *fn != nil {
		return (*fn)(ctx)
	}
	return model.NewListingEvent(nil)
}

// Subscribe registers obs. It first receives a full listing.
// The returned func unsubscribes and waits for the writer to finish; it is idempotent.
func (h *Hub) Subscribe(obs Observer) (unsubscribe func()) {
	s := &subscriber{
		obs:  obs,
		ch:   make(chan model.Event, h.queueSize),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = obs.Close()
		close(s.done)
		return func() {}
	}
	h.nextID++
	s.id = h.nextID
	h.subs[s.id] = s
	h.wg.Add(1)
	h.mu.Unlock()
	metrics.HubSubscribers.Inc()

	go h.run(s)

	return func() {
		h.remove(s)
		<-s.done
	}
}

// Publish enqueues ev for every observer without blocking.
func (h *Hub) Publish(ev model.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	metrics.IncHubPublished(string(ev.Type))
	for _, s := range h.subs {
		select {
		case s.ch <- ev:
		default:
			if !s.lagged.Swap(true) {
				h.logger.Debug().
					Uint64("subscriber", s.id).
					Str("type", string(ev.Type)).
					Msg("observer queue full, dropping events until resync")
			}
			metrics.IncHubDrop(string(ev.Type), "queue_full")
		}
	}
}

// Subscribers returns the number of registered observers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close stops every writer and closes all observers. Publish becomes a no-op.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := make([]*subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		h.remove(s)
		_ = s.obs.Close()
	}
	h.wg.Wait()
}

func (h *Hub) remove(s *subscriber) {
	s.once.Do(func() {
		h.mu.Lock()
		delete(h.subs, s.id)
		h.mu.Unlock()
		close(s.quit)
		metrics.HubSubscribers.Dec()
	})
}

func (h *Hub) run(s *subscriber) {
	defer h.wg.Done()
	defer close(s.done)

	if err := h.deliver(s, h.listingFor()); err != nil {
		h.evict(s, err)
		return
	}
	for {
		select {
		case <-s.quit:
			return
		case ev := <-s.ch:
			if err := h.deliver(s, ev); err != nil {
				h.evict(s, err)
				return
			}
			if len(s.ch) == 0 && s.lagged.Swap(false) {
				if err := h.deliver(s, h.listingFor()); err != nil {
					h.evict(s, err)
					return
				}
			}
		}
	}
}

func (h *Hub) listingFor() model.Event {
	ctx, cancel := context.WithTimeout(context.Background(), h.writeTimeout)
	defer cancel()
	return h.listing(ctx)
}

func (h *Hub) deliver(s *subscriber, ev model.Event) error {
	select {
	case <-s.quit:
		return errUnsubscribed
	default:
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.writeTimeout)
	defer cancel()
	return s.obs.Send(ctx, ev)
}

var errUnsubscribed = errors.New("unsubscribed")

func (h *Hub) evict(s *subscriber, err error) {
	if errors.Is(err, errUnsubscribed) {
		return
	}
	reason := "send_failed"
	if errors.Is(err, context.DeadlineExceeded) {
		reason = "timeout"
	}
	h.logger.Info().
		Err(err).
		Uint64("subscriber", s.id).
		Str("reason", reason).
		Msg("dropping observer")
	metrics.IncHubEviction(reason)
	h.remove(s)
	_ = s.obs.Close()
}
