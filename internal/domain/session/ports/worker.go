// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/hlsrelay/internal/domain/session/model"
)

// ErrStatsNotFound means the worker has not produced progress output yet.
var ErrStatsNotFound = errors.New("stats not found")

// SpawnSpec fully describes one worker invocation.
type SpawnSpec struct {
	SessionID     string
	Generation    uint64
	SourceLocator string
	IgnoreFailure bool
	Credentials   *model.Credentials
	// WorkDir receives the playlist and segments. It exists before Spawn is called.
	WorkDir string
}

// WorkerHandle identifies a running worker. It is opaque outside the adapter.
type WorkerHandle struct {
	SessionID  string
	Generation uint64
	PID        int
	StartedAt  time.Time
}

// ExitEvent reports that a worker process finished, for whatever reason.
type ExitEvent struct {
	SessionID  string
	Generation uint64
	ExitCode   int
	Err        error
	At         time.Time
}

// Worker launches and controls external transcoder processes.
type Worker interface {
	// Spawn starts a process and returns once it is running.
	Spawn(ctx context.Context, spec SpawnSpec) (WorkerHandle, error)
	// Terminate stops the process and waits for it to exit, bounded by ctx.
	Terminate(ctx context.Context, h WorkerHandle) error
	// PollStats returns the latest progress snapshot or ErrStatsNotFound.
	PollStats(ctx context.Context, sessionID string) (*model.Stats, error)
	// Events delivers one ExitEvent per spawned process.
	Events() <-chan ExitEvent
}

// Catalog resolves display metadata for a source locator.
type Catalog interface {
	FindByLocator(ctx context.Context, locator string) (*model.DisplayMetadata, bool, error)
}
