// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package watchdog parses ffmpeg -progress output and enforces start/stall timeouts.
package watchdog

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/hlsrelay/internal/domain/session/model"
	"github.com/ManuGH/hlsrelay/internal/metrics"
)

type State int

type clock interface {
	Now() time.Time
	NewTicker(d time.Duration) ticker
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

type realClock struct{}

func (realClock) Now() time.Time                   { return time.Now() }
func (realClock) NewTicker(d time.Duration) ticker { return &realTicker{time.NewTicker(d)} }

type realTicker struct {
	*time.Ticker
}

func (rt *realTicker) C() <-chan time.Time { return rt.Ticker.C }

const (
	StateStarting State = iota
	StateRunning
	StateStalled
	StateTimedOut
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStalled:
		return "stalled"
	case StateTimedOut:
		return "timed_out"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

const checkEvery = time.Second

// Watchdog accumulates ffmpeg progress blocks and trips when the worker
// makes no progress in time. A zero timeout disables that check.
type Watchdog struct {
	mu sync.Mutex

	startTimeout time.Duration
	stallTimeout time.Duration

	lastOutTime   int64
	lastTotalSize int64
	lastHeartbeat time.Time

	state       State
	hasProgress bool

	// pending collects keys until the next progress= line closes the block.
	pending model.Stats
	latest  *model.Stats

	completed     chan struct{}
	completedOnce sync.Once

	clock clock
}

// New creates a new watchdog with given timeouts.
func New(startTimeout, stallTimeout time.Duration) *Watchdog {
	return &Watchdog{
		startTimeout: startTimeout,
		stallTimeout: stallTimeout,
		completed:    make(chan struct{}),
		clock:        realClock{},
	}
}

// Run checks the timeouts until ctx ends or ffmpeg reports progress=end.
// It returns context.DeadlineExceeded when a timeout trips.
func (w *Watchdog) Run(ctx context.Context) error {
	w.mu.Lock()
	w.lastHeartbeat = w.clock.Now()
	w.mu.Unlock()

	t := w.clock.NewTicker(checkEvery)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.completed:
			return nil
		case <-t.C():
			if err := w.check(); err != nil {
				return err
			}
		}
	}
}

// ParseLine processes one key=value line of ffmpeg -progress output.
func (w *Watchdog) ParseLine(line string) {
	parts := strings.Split(strings.TrimSpace(line), "=")
	if len(parts) != 2 {
		return
	}
	key := strings.TrimSpace(parts[0])
	val := strings.TrimSpace(parts[1])

	w.mu.Lock()
	defer w.mu.Unlock()

	switch key {
	case "frame":
		w.pending.Frame = parseInt(val)
	case "fps":
		w.pending.FPS = parseFloat(val)
	case "bitrate":
		w.pending.BitrateKbps = parseFloat(strings.TrimSuffix(val, "kbits/s"))
	case "out_time_us", "out_time_ms":
		// Both keys carry microseconds.
		us := parseInt(val)
		if us > w.lastOutTime {
			w.lastOutTime = us
			w.recordHeartbeat()
		}
		w.pending.OutTimeMs = w.lastOutTime / 1000
	case "total_size":
		size := parseInt(val)
		if size > w.lastTotalSize {
			w.lastTotalSize = size
			w.recordHeartbeat()
		}
		w.pending.TotalSize = w.lastTotalSize
	case "speed":
		w.pending.Speed = parseFloat(strings.TrimSuffix(val, "x"))
	case "dup_frames":
		w.pending.DupFrames = parseInt(val)
	case "drop_frames":
		w.pending.DropFrames = parseInt(val)
	case "progress":
		snap := w.pending
		snap.Progress = val
		snap.UpdatedAt = w.clock.Now()
		w.latest = &snap
		if val == "end" {
			w.state = StateCompleted
			w.completedOnce.Do(func() { close(w.completed) })
		}
	}
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func (w *Watchdog) recordHeartbeat() {
	w.lastHeartbeat = w.clock.Now()
	if !w.hasProgress && (w.lastOutTime > 0 || w.lastTotalSize > 0) {
		w.hasProgress = true
		if w.state == StateStarting {
			w.state = StateRunning
		}
	}
}

func (w *Watchdog) check() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	elapsed := w.clock.Now().Sub(w.lastHeartbeat)
	switch w.state {
	case StateStarting:
		if w.startTimeout > 0 && elapsed > w.startTimeout {
			w.state = StateTimedOut
			metrics.IncWatchdogTrip(w.state.String())
			return context.DeadlineExceeded
		}
	case StateRunning:
		if w.stallTimeout > 0 && elapsed > w.stallTimeout {
			w.state = StateStalled
			metrics.IncWatchdogTrip(w.state.String())
			return context.DeadlineExceeded
		}
	}
	return nil
}

// State returns current watchdog state.
func (w *Watchdog) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Snapshot returns the last complete progress block.
func (w *Watchdog) Snapshot() (model.Stats, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.latest == nil {
		return model.Stats{}, false
	}
	return *w.latest, true
}
