// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"errors"
	"os"

	"github.com/ManuGH/hlsrelay/internal/domain/session/lifecycle"
	"github.com/ManuGH/hlsrelay/internal/domain/session/model"
	"github.com/ManuGH/hlsrelay/internal/domain/session/ports"
	"github.com/ManuGH/hlsrelay/internal/log"
	"github.com/ManuGH/hlsrelay/internal/metrics"
)

var errStaleExit = errors.New("stale exit event")

func (s *Supervisor) consumeExits() {
	events := s.worker.Events()
	for {
		select {
		case <-s.quit:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.handleExit(ev)
		}
	}
}

// handleExit applies an exit only to the generation that produced it while the
// session is still expected to run. Everything else is a stale or requested exit.
func (s *Supervisor) handleExit(ev ports.ExitEvent) {
	unlock := s.locks.Lock(ev.SessionID)
	defer unlock()

	ctx := context.Background()
	logger := s.logger.With().
		Str(log.FieldSessionID, ev.SessionID).
		Uint64(log.FieldGeneration, ev.Generation).
		Int(log.FieldExitCode, ev.ExitCode).
		Logger()

	crash := &lifecycle.WorkerCrash{SessionID: ev.SessionID, ExitCode: ev.ExitCode, Err: ev.Err}
	at := ev.At
	if at.IsZero() {
		at = s.now()
	}

	_, err := s.store.Update(ctx, ev.SessionID, func(sess *model.Session) error {
		if sess.Generation != ev.Generation || !sess.Status.IsActive() {
			return errStaleExit
		}
		sess.Status = model.StatusStopped
		sess.Exit = &model.ExitInfo{Code: ev.ExitCode, Reason: exitReason(ev), At: at}
		sess.LastError = crash.Error()
		return nil
	})
	if err != nil {
		metrics.RecordWorkerExit("stale")
		logger.Debug().Err(err).Msg("ignoring worker exit")
		return
	}

	s.takeHandleGen(ev.SessionID, ev.Generation)
	metrics.RecordWorkerExit("unexpected")
	logger.Warn().Err(crash).Str(log.FieldEvent, "session.worker_exited").Msg("worker exited unexpectedly")

	s.poller.Stop(ev.SessionID)
	dir := s.WorkDir(ev.SessionID)
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn().Err(err).Str(log.FieldWorkDir, dir).Msg("failed to clean working area")
	}
	s.publishListing(ctx)
}

func exitReason(ev ports.ExitEvent) string {
	if ev.Err != nil {
		return ev.Err.Error()
	}
	if ev.ExitCode == 0 {
		return "exited"
	}
	return "exited with non-zero status"
}
