// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playlist

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/ManuGH/hlsrelay/internal/domain/session/model"
	"github.com/ManuGH/hlsrelay/internal/log"
	"github.com/ManuGH/hlsrelay/internal/metrics"
)

// Exporter is a hub observer that mirrors every listing into an M3U file.
type Exporter struct {
	path    string
	baseURL string
	group   string
	logger  zerolog.Logger

	mu   sync.Mutex
	last []byte
}

// NewExporter writes to path. baseURL prefixes the per-session playlist paths.
func NewExporter(path, baseURL, group string) *Exporter {
	return &Exporter{
		path:    path,
		baseURL: baseURL,
		group:   group,
		logger:  log.WithComponent("playlist"),
	}
}

// Send implements broadcast.Observer. Stats events are ignored.
func (e *Exporter) Send(ctx context.Context, ev model.Event) error {
	if ev.Type != model.EventListing {
		return nil
	}
	data := Render(ev.Sessions, e.baseURL, e.group)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last != nil && bytes.Equal(e.last, data) {
		return nil
	}
	if err := e.write(ctx, data); err != nil {
		metrics.IncPlaylistExport("error")
		// A failed write must not evict the exporter; the next listing retries.
		e.logger.Warn().Err(err).Str(log.FieldPath, e.path).Msg("playlist export failed")
		return nil
	}
	e.last = data
	metrics.IncPlaylistExport("ok")
	e.logger.Debug().
		Str(log.FieldEvent, "playlist.exported").
		Str(log.FieldPath, e.path).
		Int("entries", len(ev.Sessions)).
		Msg("playlist written")
	return nil
}

// Close implements broadcast.Observer.
func (e *Exporter) Close() error { return nil }

// write replaces the file atomically and durably.
func (e *Exporter) write(ctx context.Context, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(e.path), 0o750); err != nil {
		return fmt.Errorf("create playlist dir: %w", err)
	}
	pendingFile, err := renameio.NewPendingFile(e.path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending M3U file: %w", err)
	}
	defer func() {
		// Cleanup on error - renameio removes temp file if not committed
		if err := pendingFile.Cleanup(); err != nil {
			log.FromContext(ctx).Debug().Err(err).Msg("cleanup pending M3U file")
		}
	}()

	if _, err := pendingFile.Write(data); err != nil {
		return fmt.Errorf("write M3U data: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace M3U file: %w", err)
	}
	return nil
}
