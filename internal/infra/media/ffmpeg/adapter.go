// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/hlsrelay/internal/domain/session/model"
	"github.com/ManuGH/hlsrelay/internal/domain/session/ports"
	"github.com/ManuGH/hlsrelay/internal/media/ffmpeg/watchdog"
	"github.com/ManuGH/hlsrelay/internal/procgroup"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	PlaylistName = "index.m3u8"
	segmentName  = "seg_%06d.ts"

	defaultSegmentSeconds    = 6
	defaultListSize          = 6
	defaultReconnectDelayMax = 5
	defaultKillGrace         = 2 * time.Second
	defaultKillTimeout       = 5 * time.Second
	defaultEventBuffer       = 64
	maxStderrLine            = 1 << 20
)

// ErrWorkerClosed is returned by Spawn after Close.
var ErrWorkerClosed = errors.New("ffmpeg worker closed")

// Config controls how ffmpeg is invoked.
type Config struct {
	BinPath           string
	SegmentSeconds    int
	ListSize          int
	ReconnectDelayMax int
	UserAgent         string
	VideoCodec        string
	AnalyzeDuration   string
	ProbeSize         string
	KillGrace         time.Duration
	KillTimeout       time.Duration
	StartTimeout      time.Duration
	StallTimeout      time.Duration
	// LogDir enables rotated per-session stderr logs when set.
	LogDir string
}

func (c Config) withDefaults() Config {
	if c.BinPath == "" {
		c.BinPath = "ffmpeg"
	}
	if c.SegmentSeconds <= 0 {
		c.SegmentSeconds = defaultSegmentSeconds
	}
	if c.ListSize <= 0 {
		c.ListSize = defaultListSize
	}
	if c.ReconnectDelayMax <= 0 {
		c.ReconnectDelayMax = defaultReconnectDelayMax
	}
	if c.VideoCodec == "" {
		c.VideoCodec = "copy"
	}
	if c.AnalyzeDuration == "" {
		c.AnalyzeDuration = "2000000" // 2s for fast live starts
	}
	if c.ProbeSize == "" {
		c.ProbeSize = "5M"
	}
	if c.KillGrace <= 0 {
		c.KillGrace = defaultKillGrace
	}
	if c.KillTimeout <= 0 {
		c.KillTimeout = defaultKillTimeout
	}
	return c
}

type proc struct {
	handle ports.WorkerHandle
	cmd    *exec.Cmd
	wd     *watchdog.Watchdog
	stats  *process.Process
	// done is closed once cmd.Wait has returned.
	done chan struct{}

	tripMu sync.Mutex
	trip   error
}

func (p *proc) setTrip(err error) {
	p.tripMu.Lock()
	p.trip = err
	p.tripMu.Unlock()
}

func (p *proc) tripErr() error {
	p.tripMu.Lock()
	defer p.tripMu.Unlock()
	return p.trip
}

// Worker runs one local ffmpeg process per session and implements ports.Worker.
type Worker struct {
	cfg    Config
	logger zerolog.Logger

	mu    sync.Mutex
	procs map[string]*proc

	events    chan ports.ExitEvent
	closing   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ ports.Worker = (*Worker)(nil)

// NewWorker creates a new worker adapter.
func NewWorker(cfg Config, logger zerolog.Logger) *Worker {
	return &Worker{
		cfg:     cfg.withDefaults(),
		logger:  logger,
		procs:   make(map[string]*proc),
		events:  make(chan ports.ExitEvent, defaultEventBuffer),
		closing: make(chan struct{}),
	}
}

// Events implements ports.Worker.
func (w *Worker) Events() <-chan ports.ExitEvent {
	return w.events
}

// Spawn implements ports.Worker.
func (w *Worker) Spawn(ctx context.Context, spec ports.SpawnSpec) (ports.WorkerHandle, error) {
	select {
	case <-w.closing:
		return ports.WorkerHandle{}, ErrWorkerClosed
	case <-ctx.Done():
		return ports.WorkerHandle{}, ctx.Err()
	default:
	}

	w.mu.Lock()
	_, running := w.procs[spec.SessionID]
	w.mu.Unlock()
	if running {
		return ports.WorkerHandle{}, fmt.Errorf("worker for session %s still running", spec.SessionID)
	}

	inputURL := injectCredentials(spec.SourceLocator, spec.Credentials)
	args := w.buildArgs(spec, inputURL)

	// The process outlives the request, so ctx is not bound to it.
	// #nosec G204 - BinPath is trusted from config; args are generated by buildArgs
	cmd := exec.Command(w.cfg.BinPath, args...)
	cmd.Dir = spec.WorkDir
	procgroup.Set(cmd)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return ports.WorkerHandle{}, fmt.Errorf("failed to pipe stderr: %w", err)
	}
	cmd.Stdout = nil

	if err := cmd.Start(); err != nil {
		return ports.WorkerHandle{}, fmt.Errorf("ffmpeg start failed: %w", err)
	}

	pid := cmd.Process.Pid
	p := &proc{
		handle: ports.WorkerHandle{
			SessionID:  spec.SessionID,
			Generation: spec.Generation,
			PID:        pid,
			StartedAt:  time.Now(),
		},
		cmd:  cmd,
		wd:   watchdog.New(w.cfg.StartTimeout, w.cfg.StallTimeout),
		done: make(chan struct{}),
	}
	if ps, err := process.NewProcessWithContext(ctx, int32(pid)); err == nil { // #nosec G115 - pids fit in int32
		p.stats = ps
	}

	w.mu.Lock()
	w.procs[spec.SessionID] = p
	w.mu.Unlock()

	w.wg.Add(1)
	go w.monitor(p, stderr)

	w.logger.Info().
		Str("event", "worker.spawned").
		Str("session_id", spec.SessionID).
		Uint64("generation", spec.Generation).
		Int("pid", pid).
		Str("source", sanitizeURLForLog(spec.SourceLocator)).
		Bool("ignore_failure", spec.IgnoreFailure).
		Msg("ffmpeg started")

	return p.handle, nil
}

func (w *Worker) monitor(p *proc, stderr io.ReadCloser) {
	defer w.wg.Done()
	sid := p.handle.SessionID

	sink := w.openLog(sid)

	wdCtx, wdCancel := context.WithCancel(context.Background())
	wdDone := make(chan struct{})
	go func() {
		defer close(wdDone)
		if err := p.wd.Run(wdCtx); err != nil {
			p.setTrip(fmt.Errorf("watchdog %s: %w", p.wd.State(), err))
			w.logger.Error().Err(err).
				Str("session_id", sid).
				Str("state", p.wd.State().String()).
				Msg("watchdog triggered process termination")
			if termErr := procgroup.Terminate(p.cmd, p.done, w.cfg.KillGrace, w.cfg.KillTimeout); termErr != nil {
				w.logger.Warn().Err(termErr).Str("session_id", sid).Msg("watchdog termination failed")
			}
		}
	}()

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStderrLine)
	for scanner.Scan() {
		line := scanner.Text()
		if isProgressLine(line) {
			p.wd.ParseLine(line)
			continue
		}
		if sink != nil {
			_, _ = io.WriteString(sink, line+"\n")
		}
	}
	if scanErr := scanner.Err(); scanErr != nil {
		w.logger.Warn().Err(scanErr).Str("session_id", sid).Msg("ffmpeg stderr scan error")
	}

	waitErr := p.cmd.Wait()

	w.mu.Lock()
	if cur, ok := w.procs[sid]; ok && cur == p {
		delete(w.procs, sid)
	}
	w.mu.Unlock()
	close(p.done)

	wdCancel()
	<-wdDone
	if sink != nil {
		_ = sink.Close()
	}

	ev := ports.ExitEvent{
		SessionID:  sid,
		Generation: p.handle.Generation,
		ExitCode:   exitCode(p.cmd),
		At:         time.Now(),
	}
	switch trip := p.tripErr(); {
	case trip != nil:
		ev.Err = trip
	case waitErr != nil:
		ev.Err = waitErr
	}

	w.logger.Debug().Err(ev.Err).
		Str("session_id", sid).
		Int("exit_code", ev.ExitCode).
		Msg("ffmpeg process exited")

	select {
	case w.events <- ev:
	case <-w.closing:
	}
}

func (w *Worker) openLog(sessionID string) io.WriteCloser {
	if w.cfg.LogDir == "" {
		return nil
	}
	return &lumberjack.Logger{
		Filename:   filepath.Join(w.cfg.LogDir, sessionID+".log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     7, // days
		Compress:   true,
	}
}

// Terminate implements ports.Worker. Unknown or already exited handles are a no-op.
func (w *Worker) Terminate(ctx context.Context, h ports.WorkerHandle) error {
	w.mu.Lock()
	p, ok := w.procs[h.SessionID]
	w.mu.Unlock()
	if !ok || p.handle.Generation != h.Generation {
		return nil
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- procgroup.Terminate(p.cmd, p.done, w.cfg.KillGrace, w.cfg.KillTimeout)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PollStats implements ports.Worker.
func (w *Worker) PollStats(ctx context.Context, sessionID string) (*model.Stats, error) {
	w.mu.Lock()
	p, ok := w.procs[sessionID]
	w.mu.Unlock()
	if !ok {
		return nil, ports.ErrStatsNotFound
	}
	st, ok := p.wd.Snapshot()
	if !ok {
		return nil, ports.ErrStatsNotFound
	}
	if p.stats != nil {
		if pct, err := p.stats.PercentWithContext(ctx, 0); err == nil {
			st.CPUPercent = pct
		}
		if mem, err := p.stats.MemoryInfoWithContext(ctx); err == nil && mem != nil {
			st.RSSBytes = mem.RSS
		}
	}
	return &st, nil
}

// Running returns the number of live processes.
func (w *Worker) Running() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.procs)
}

// Close terminates remaining processes and waits for their monitors.
func (w *Worker) Close() error {
	w.closeOnce.Do(func() { close(w.closing) })

	w.mu.Lock()
	live := make([]*proc, 0, len(w.procs))
	for _, p := range w.procs {
		live = append(live, p)
	}
	w.mu.Unlock()

	var errs []error
	for _, p := range live {
		if err := procgroup.Terminate(p.cmd, p.done, w.cfg.KillGrace, w.cfg.KillTimeout); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", p.handle.SessionID, err))
		}
	}
	w.wg.Wait()
	return errors.Join(errs...)
}

func (w *Worker) buildArgs(spec ports.SpawnSpec, inputURL string) []string {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "warning",
		"-nostats",
		"-progress", "pipe:2",
	}

	fflags := "+genpts+flush_packets"
	if spec.IgnoreFailure {
		fflags += "+discardcorrupt"
		args = append(args, "-err_detect", "ignore_err")
	} else {
		args = append(args, "-xerror")
	}
	args = append(args,
		"-fflags", fflags,
		"-analyzeduration", w.cfg.AnalyzeDuration,
		"-probesize", w.cfg.ProbeSize,
	)

	if isHTTPInput(inputURL) {
		args = append(args,
			"-reconnect", "1",
			"-reconnect_at_eof", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", strconv.Itoa(w.cfg.ReconnectDelayMax),
			"-reconnect_on_network_error", "1",
			"-reconnect_on_http_error", "4xx,5xx",
		)
		if w.cfg.UserAgent != "" {
			args = append(args, "-user_agent", w.cfg.UserAgent)
		}
	}

	args = append(args,
		"-i", inputURL,
		"-map", "0:v:0?",
		"-map", "0:a:0?",
		"-c:v", w.cfg.VideoCodec,
		"-c:a", "aac",
		"-f", "hls",
		"-hls_time", strconv.Itoa(w.cfg.SegmentSeconds),
		"-hls_list_size", strconv.Itoa(w.cfg.ListSize),
		"-hls_flags", "delete_segments+append_list+independent_segments+program_date_time",
		"-hls_segment_type", "mpegts",
		"-hls_segment_filename", filepath.Join(spec.WorkDir, segmentName),
		filepath.Join(spec.WorkDir, PlaylistName),
	)
	return args
}

func isHTTPInput(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// isProgressLine matches the key=value records written by -progress.
func isProgressLine(line string) bool {
	k, _, ok := strings.Cut(line, "=")
	return ok && k != "" && !strings.ContainsAny(k, " \t[")
}

func exitCode(cmd *exec.Cmd) int {
	if cmd.ProcessState == nil {
		return -1
	}
	return cmd.ProcessState.ExitCode()
}

func sanitizeURLForLog(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.User = nil
	return u.String()
}

func injectCredentials(locator string, creds *model.Credentials) string {
	if creds == nil || creds.Username == "" {
		return locator
	}
	u, err := url.Parse(locator)
	if err != nil || u.Host == "" {
		return locator
	}
	if creds.Password != "" {
		u.User = url.UserPassword(creds.Username, creds.Password)
	} else {
		u.User = url.User(creds.Username)
	}
	return u.String()
}
