// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/hlsrelay/internal/domain/session/lifecycle"
	"github.com/ManuGH/hlsrelay/internal/domain/session/model"
	"github.com/ManuGH/hlsrelay/internal/domain/session/order"
	"github.com/ManuGH/hlsrelay/internal/domain/session/ports"
	"github.com/ManuGH/hlsrelay/internal/domain/session/store"
	"github.com/ManuGH/hlsrelay/internal/log"
	"github.com/ManuGH/hlsrelay/internal/metrics"
	"github.com/ManuGH/hlsrelay/internal/telemetry"
)

const (
	DefaultRestartGrace = 5 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

// ErrShuttingDown is returned by mutating operations after Shutdown began.
var ErrShuttingDown = errors.New("supervisor shutting down")

// Publisher receives session events.
type Publisher interface {
	Publish(ev model.Event)
}

// Resolver decorates sessions with display metadata.
type Resolver interface {
	Resolve(ctx context.Context, locator string) (*model.DisplayMetadata, bool)
}

// Config tunes the Supervisor.
type Config struct {
	// HLSRoot holds one working area per session under sessions/<id>.
	HLSRoot      string
	RestartGrace time.Duration
	StopTimeout  time.Duration
	// StartTimeout marks sessions stuck in starting as stalled in views.
	StartTimeout time.Duration
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// Deps are the collaborators of a Supervisor.
type Deps struct {
	Worker   ports.Worker
	Store    store.Store
	Order    *order.Tracker
	Hub      Publisher
	Resolver Resolver
}

// RestartOptions override stored session options for one restart.
type RestartOptions struct {
	IgnoreFailure *bool
	Credentials   *model.Credentials
}

// Supervisor owns session identity, worker lifecycle and event fan-out.
type Supervisor struct {
	cfg      Config
	worker   ports.Worker
	store    store.Store
	order    *order.Tracker
	hub      Publisher
	resolver Resolver
	poller   *poller
	locks    *keyedMutex
	routines *sessionRegistry
	tracer   trace.Tracer
	logger   zerolog.Logger
	now      func() time.Time

	hmu     sync.Mutex
	handles map[string]ports.WorkerHandle

	// opMu is held shared by spawning operations and exclusively by Shutdown
	// while it closes admission.
	opMu sync.RWMutex

	quit     chan struct{}
	quitOnce sync.Once
}

// NewSupervisor wires the supervisor and starts its exit-event consumer.
func NewSupervisor(cfg Config, deps Deps) (*Supervisor, error) {
	if deps.Worker == nil || deps.Store == nil || deps.Hub == nil {
		return nil, errors.New("supervisor: worker, store and hub are required")
	}
	if cfg.HLSRoot == "" {
		return nil, errors.New("supervisor: HLSRoot must be set")
	}
	if cfg.RestartGrace <= 0 {
		cfg.RestartGrace = DefaultRestartGrace
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if deps.Order == nil {
		deps.Order = order.NewTracker()
	}

	s := &Supervisor{
		cfg:      cfg,
		worker:   deps.Worker,
		store:    deps.Store,
		order:    deps.Order,
		hub:      deps.Hub,
		resolver: deps.Resolver,
		locks:    newKeyedMutex(),
		routines: &sessionRegistry{},
		tracer:   telemetry.Tracer("hlsrelay/supervisor"),
		logger:   log.WithComponent("supervisor"),
		now:      time.Now,
		handles:  make(map[string]ports.WorkerHandle),
		quit:     make(chan struct{}),
	}
	s.poller = newPoller(deps.Worker, deps.Store, deps.Hub, s.publishListing, s.routines, cfg.PollInterval, cfg.PollTimeout)

	if !s.routines.Go(s.consumeExits) {
		return nil, errors.New("supervisor: failed to start exit consumer")
	}
	return s, nil
}

// WorkDir returns the working area of a session.
func (s *Supervisor) WorkDir(id string) string {
	return filepath.Join(s.cfg.HLSRoot, "sessions", id)
}

// SetPollInterval changes the poll cadence for loops started afterwards.
func (s *Supervisor) SetPollInterval(d time.Duration) {
	s.poller.SetInterval(d)
}

func (s *Supervisor) startSpan(ctx context.Context, op, id string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "session."+op, trace.WithAttributes(telemetry.SessionAttributes(id, op)...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func opResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, lifecycle.ErrNotFound):
		return "not_found"
	case errors.Is(err, lifecycle.ErrValidation), errors.Is(err, lifecycle.ErrAlreadyExists):
		return "rejected"
	case errors.Is(err, lifecycle.ErrSpawn):
		return "spawn_failed"
	default:
		return "error"
	}
}

func validateLocator(locator string) error {
	if strings.TrimSpace(locator) == "" {
		return lifecycle.NewValidation("sourceLocator", "required")
	}
	u, err := url.Parse(locator)
	if err != nil || u.Scheme == "" {
		return lifecycle.NewValidation("sourceLocator", "must be an absolute URL")
	}
	return nil
}

// Start spawns a worker for locator and registers a new session in starting.
// A failed spawn leaves neither a registry entry nor a working area.
func (s *Supervisor) Start(ctx context.Context, locator string, opts model.Options) (_ *model.Session, err error) {
	began := s.now()
	id := opts.ID
	if id == "" {
		id = model.NewSessionID()
	}
	ctx, span := s.startSpan(ctx, "start", id)
	defer func() {
		endSpan(span, err)
		metrics.RecordSessionOp("start", opResult(err), time.Since(began))
	}()

	release, err := s.admit()
	if err != nil {
		return nil, err
	}
	defer release()

	if err := validateLocator(locator); err != nil {
		return nil, err
	}
	if !model.IsSafeSessionID(id) {
		return nil, lifecycle.NewValidation("id", "must match [a-zA-Z0-9_-]+")
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	if _, err := s.store.Get(ctx, id); err == nil {
		return nil, fmt.Errorf("%w: %s", lifecycle.ErrAlreadyExists, id)
	}

	logger := s.logger.With().Str(log.FieldSessionID, id).Logger()
	dir := s.WorkDir(id)
	if err := resetDir(dir); err != nil {
		return nil, &lifecycle.SpawnError{SessionID: id, Err: fmt.Errorf("prepare working area: %w", err)}
	}

	const gen = 1
	h, err := s.worker.Spawn(ctx, ports.SpawnSpec{
		SessionID:     id,
		Generation:    gen,
		SourceLocator: locator,
		IgnoreFailure: opts.IgnoreFailure,
		Credentials:   opts.Credentials,
		WorkDir:       dir,
	})
	if err != nil {
		metrics.RecordWorkerSpawn("failed")
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			logger.Warn().Err(rmErr).Str(log.FieldWorkDir, dir).Msg("failed to remove working area after spawn failure")
		}
		logger.Error().Err(err).Str(log.FieldEvent, "session.spawn_failed").Msg("worker spawn failed")
		return nil, &lifecycle.SpawnError{SessionID: id, Err: err}
	}
	metrics.RecordWorkerSpawn("ok")

	now := s.now()
	sess := &model.Session{
		ID:            id,
		SourceLocator: locator,
		Status:        model.StatusStarting,
		IgnoreFailure: opts.IgnoreFailure,
		Credentials:   opts.Credentials,
		CreatedAt:     now,
		StartedAt:     now,
		Generation:    gen,
	}
	if err := s.store.Create(ctx, sess); err != nil {
		_ = s.worker.Terminate(context.Background(), h)
		_ = os.RemoveAll(dir)
		return nil, err
	}
	s.setHandle(id, h)
	s.order.Append(id)
	s.poller.Start(id)

	logger.Info().
		Str(log.FieldEvent, "session.started").
		Int(log.FieldPID, h.PID).
		Bool("ignore_failure", opts.IgnoreFailure).
		Msg("session started")

	s.publishListing(ctx)
	return s.store.Get(ctx, id)
}

// Restart replaces the worker of an existing session, keeping its id and locator.
// On spawn failure the session is left in error.
func (s *Supervisor) Restart(ctx context.Context, id string, opts RestartOptions) (_ *model.Session, err error) {
	began := s.now()
	ctx, span := s.startSpan(ctx, "restart", id)
	defer func() {
		endSpan(span, err)
		metrics.RecordSessionOp("restart", opResult(err), time.Since(began))
	}()

	release, err := s.admit()
	if err != nil {
		return nil, err
	}
	defer release()

	unlock := s.locks.Lock(id)
	defer unlock()

	cur, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With().Str(log.FieldSessionID, id).Logger()

	s.poller.Stop(id)
	if err := s.terminate(ctx, id, s.cfg.RestartGrace); err != nil {
		s.markError(ctx, id, fmt.Sprintf("terminate previous worker: %v", err))
		return nil, err
	}

	ignoreFailure := cur.IgnoreFailure
	if opts.IgnoreFailure != nil {
		ignoreFailure = *opts.IgnoreFailure
	}
	creds := cur.Credentials
	if opts.Credentials != nil {
		creds = opts.Credentials
	}
	gen := cur.Generation + 1
	dir := s.WorkDir(id)

	spawnErr := resetDir(dir)
	var h ports.WorkerHandle
	if spawnErr == nil {
		h, spawnErr = s.worker.Spawn(ctx, ports.SpawnSpec{
			SessionID:     id,
			Generation:    gen,
			SourceLocator: cur.SourceLocator,
			IgnoreFailure: ignoreFailure,
			Credentials:   creds,
			WorkDir:       dir,
		})
	}
	if spawnErr != nil {
		metrics.RecordWorkerSpawn("failed")
		_, _ = s.store.Update(ctx, id, func(sess *model.Session) error {
			sess.Status = model.StatusError
			sess.Generation = gen
			sess.IgnoreFailure = ignoreFailure
			sess.Credentials = creds
			sess.LastError = spawnErr.Error()
			return nil
		})
		logger.Error().Err(spawnErr).Str(log.FieldEvent, "session.restart_failed").Msg("worker respawn failed")
		s.publishListing(ctx)
		return nil, &lifecycle.SpawnError{SessionID: id, Err: spawnErr}
	}
	metrics.RecordWorkerSpawn("ok")

	now := s.now()
	updated, err := s.store.Update(ctx, id, func(sess *model.Session) error {
		sess.Status = model.StatusStarting
		sess.Generation = gen
		sess.IgnoreFailure = ignoreFailure
		sess.Credentials = creds
		sess.StartedAt = now
		sess.LastStats = nil
		sess.Exit = nil
		sess.LastError = ""
		return nil
	})
	if err != nil {
		_ = s.worker.Terminate(context.Background(), h)
		return nil, err
	}
	s.setHandle(id, h)
	s.poller.Start(id)

	logger.Info().
		Str(log.FieldEvent, "session.restarted").
		Uint64(log.FieldGeneration, gen).
		Int(log.FieldPID, h.PID).
		Msg("session restarted")

	s.publishListing(ctx)
	return updated, nil
}

// Stop terminates the worker and keeps the session and its artifacts.
// Stopping a stopped session succeeds without side effects.
func (s *Supervisor) Stop(ctx context.Context, id string) (err error) {
	began := s.now()
	ctx, span := s.startSpan(ctx, "stop", id)
	defer func() {
		endSpan(span, err)
		metrics.RecordSessionOp("stop", opResult(err), time.Since(began))
	}()

	unlock := s.locks.Lock(id)
	defer unlock()

	cur, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if cur.Status == model.StatusStopped {
		return nil
	}

	s.poller.Stop(id)
	if cur.Status.IsActive() {
		if _, err := s.store.Update(ctx, id, func(sess *model.Session) error {
			sess.Status = model.StatusStopping
			return nil
		}); err != nil {
			return err
		}
		s.publishListing(ctx)
	}

	if err := s.terminate(ctx, id, s.cfg.StopTimeout); err != nil {
		s.markError(ctx, id, fmt.Sprintf("terminate worker: %v", err))
		return err
	}

	if _, err := s.store.Update(ctx, id, func(sess *model.Session) error {
		sess.Status = model.StatusStopped
		return nil
	}); err != nil {
		return err
	}
	s.logger.Info().
		Str(log.FieldSessionID, id).
		Str(log.FieldEvent, "session.stopped").
		Str(log.FieldOldState, string(cur.Status)).
		Msg("session stopped")
	s.publishListing(ctx)
	return nil
}

// Delete force-stops the session and removes every trace of it.
func (s *Supervisor) Delete(ctx context.Context, id string) (err error) {
	began := s.now()
	ctx, span := s.startSpan(ctx, "delete", id)
	defer func() {
		endSpan(span, err)
		metrics.RecordSessionOp("delete", opResult(err), time.Since(began))
	}()

	unlock := s.locks.Lock(id)
	defer unlock()

	if _, err := s.store.Get(ctx, id); err != nil {
		return err
	}
	logger := s.logger.With().Str(log.FieldSessionID, id).Logger()

	s.poller.Stop(id)
	if err := s.terminate(ctx, id, s.cfg.StopTimeout); err != nil {
		logger.Error().Err(err).Msg("worker did not terminate cleanly, deleting anyway")
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.order.Remove(id)

	dir := s.WorkDir(id)
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn().Err(err).Str(log.FieldWorkDir, dir).Msg("failed to remove working area")
	}
	logger.Info().Str(log.FieldEvent, "session.deleted").Msg("session deleted")
	s.publishListing(ctx)
	return nil
}

// Reorder replaces the display order. Every id must name an existing session.
func (s *Supervisor) Reorder(ctx context.Context, ids []string) (err error) {
	began := s.now()
	defer func() { metrics.RecordSessionOp("reorder", opResult(err), time.Since(began)) }()

	exists := func(id string) bool {
		_, err := s.store.Get(ctx, id)
		return err == nil
	}
	if err := s.order.Reorder(ids, exists); err != nil {
		return err
	}
	s.publishListing(ctx)
	return nil
}

// Shutdown stops every worker and joins all supervisor goroutines.
// Sessions remain registered in stopped.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	// Wait for in-flight spawns so every live worker is in the snapshot below.
	s.opMu.Lock()
	s.routines.BeginClose()
	s.opMu.Unlock()

	s.poller.StopAll()

	s.hmu.Lock()
	ids := make([]string, 0, len(s.handles))
	for id := range s.handles {
		ids = append(ids, id)
	}
	s.hmu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, id := range ids {
		g.Go(func() error {
			unlock := s.locks.Lock(id)
			defer unlock()
			if err := s.terminate(gctx, id, s.cfg.StopTimeout); err != nil {
				return fmt.Errorf("terminate %s: %w", id, err)
			}
			_, _ = s.store.Update(gctx, id, func(sess *model.Session) error {
				if sess.Status.IsActive() || sess.Status == model.StatusStopping {
					sess.Status = model.StatusStopped
				}
				return nil
			})
			return nil
		})
	}
	termErr := g.Wait()

	s.quitOnce.Do(func() { close(s.quit) })
	if err := s.routines.CloseAndWait(ctx); err != nil {
		return errors.Join(termErr, err)
	}
	s.logger.Info().Int("workers", len(ids)).Msg("supervisor stopped")
	return termErr
}

// admit lets a spawning operation proceed unless Shutdown has begun.
// The returned release must be called once the operation finished.
func (s *Supervisor) admit() (release func(), err error) {
	s.opMu.RLock()
	if s.routines.Closing() {
		s.opMu.RUnlock()
		return nil, ErrShuttingDown
	}
	return s.opMu.RUnlock, nil
}

// terminate stops the current worker of id, if any, bounded by timeout.
func (s *Supervisor) terminate(ctx context.Context, id string, timeout time.Duration) error {
	h, ok := s.takeHandle(id)
	if !ok {
		return nil
	}
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := s.worker.Terminate(tctx, h); err != nil {
		return err
	}
	metrics.RecordWorkerExit("expected")
	return nil
}

func (s *Supervisor) markError(ctx context.Context, id, msg string) {
	_, _ = s.store.Update(ctx, id, func(sess *model.Session) error {
		sess.Status = model.StatusError
		sess.LastError = msg
		return nil
	})
	s.publishListing(ctx)
}

func (s *Supervisor) setHandle(id string, h ports.WorkerHandle) {
	s.hmu.Lock()
	s.handles[id] = h
	s.hmu.Unlock()
}

func (s *Supervisor) takeHandle(id string) (ports.WorkerHandle, bool) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	h, ok := s.handles[id]
	if ok {
		delete(s.handles, id)
	}
	return h, ok
}

// takeHandleGen removes the handle only if it belongs to generation gen.
func (s *Supervisor) takeHandleGen(id string, gen uint64) bool {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	h, ok := s.handles[id]
	if !ok || h.Generation != gen {
		return false
	}
	delete(s.handles, id)
	return true
}

func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}
