// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon assembles the relay's components and manages their lifecycle.
package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/hlsrelay/internal/api"
	"github.com/ManuGH/hlsrelay/internal/api/middleware"
	"github.com/ManuGH/hlsrelay/internal/broadcast"
	"github.com/ManuGH/hlsrelay/internal/catalog"
	"github.com/ManuGH/hlsrelay/internal/config"
	sessionmgr "github.com/ManuGH/hlsrelay/internal/domain/session/manager"
	"github.com/ManuGH/hlsrelay/internal/domain/session/metadata"
	"github.com/ManuGH/hlsrelay/internal/domain/session/order"
	"github.com/ManuGH/hlsrelay/internal/domain/session/store"
	"github.com/ManuGH/hlsrelay/internal/health"
	"github.com/ManuGH/hlsrelay/internal/infra/media/ffmpeg"
	"github.com/ManuGH/hlsrelay/internal/log"
	"github.com/ManuGH/hlsrelay/internal/playlist"
	"github.com/ManuGH/hlsrelay/internal/telemetry"
)

// Runtime is the assembled relay. Manager owns its teardown.
type Runtime struct {
	Supervisor *sessionmgr.Supervisor
	Hub        *broadcast.Hub
	Catalog    *catalog.Service
	Health     *health.Manager
	API        *api.Server
	Manager    Manager

	logger zerolog.Logger
}

// Bootstrap builds every component from cfg and registers their shutdown
// hooks on a new Manager. Nothing is served until Manager.Start.
func Bootstrap(ctx context.Context, cfg config.AppConfig) (_ *Runtime, err error) {
	logger := log.WithComponent("daemon")

	// Collected cleanups run in reverse if assembly fails half way.
	var cleanups []func()
	defer func() {
		if err != nil {
			for i := len(cleanups) - 1; i >= 0; i-- {
				cleanups[i]()
			}
		}
	}()

	if err := os.MkdirAll(filepath.Join(cfg.HLS.Root, "sessions"), 0o755); err != nil {
		return nil, fmt.Errorf("create hls root: %w", err)
	}

	tracer, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	cleanups = append(cleanups, func() { _ = tracer.Shutdown(context.Background()) })

	kv, err := catalog.OpenKV(ctx, catalog.StoreConfig{
		Backend: cfg.Catalog.Backend,
		Path:    cfg.Catalog.Path,
		Redis: catalog.RedisConfig{
			Addr:      cfg.Catalog.Redis.Addr,
			Password:  cfg.Catalog.Redis.Password,
			DB:        cfg.Catalog.Redis.DB,
			KeyPrefix: cfg.Catalog.Redis.KeyPrefix,
		},
	}, log.WithComponent("catalog"))
	if err != nil {
		return nil, fmt.Errorf("open catalog store: %w", err)
	}
	cat := catalog.NewService(kv, catalog.Options{FetchTimeout: cfg.Catalog.FetchTimeout})
	cleanups = append(cleanups, func() { _ = cat.Close() })

	enricher := metadata.NewEnricher(cat, cfg.Enricher.MissTTL)
	cat.OnChange(enricher.Invalidate)
	cleanups = append(cleanups, enricher.Close)

	worker := ffmpeg.NewWorker(ffmpeg.Config{
		BinPath:           cfg.FFmpeg.Bin,
		SegmentSeconds:    cfg.HLS.SegmentSeconds,
		ListSize:          cfg.HLS.ListSize,
		ReconnectDelayMax: cfg.FFmpeg.ReconnectDelayMax,
		UserAgent:         cfg.FFmpeg.UserAgent,
		VideoCodec:        cfg.FFmpeg.VideoCodec,
		KillGrace:         cfg.FFmpeg.KillGrace,
		KillTimeout:       cfg.FFmpeg.KillTimeout,
		StartTimeout:      cfg.FFmpeg.StartTimeout,
		StallTimeout:      cfg.FFmpeg.StallTimeout,
		LogDir:            cfg.FFmpeg.LogDir,
	}, log.WithComponent("ffmpeg"))
	cleanups = append(cleanups, func() { _ = worker.Close() })

	hub := broadcast.NewHub(broadcast.Options{
		QueueSize:    cfg.Hub.QueueSize,
		WriteTimeout: cfg.Hub.WriteTimeout,
	})
	cleanups = append(cleanups, hub.Close)

	sup, err := sessionmgr.NewSupervisor(sessionmgr.Config{
		HLSRoot:      cfg.HLS.Root,
		RestartGrace: cfg.FFmpeg.RestartGrace,
		StopTimeout:  cfg.FFmpeg.KillGrace + cfg.FFmpeg.KillTimeout,
		StartTimeout: cfg.FFmpeg.StartTimeout,
		PollInterval: cfg.Poll.Interval,
		PollTimeout:  cfg.Poll.Timeout,
	}, sessionmgr.Deps{
		Worker:   worker,
		Store:    store.NewMemoryStore(),
		Order:    order.NewTracker(),
		Hub:      hub,
		Resolver: enricher,
	})
	if err != nil {
		return nil, fmt.Errorf("create supervisor: %w", err)
	}
	cleanups = append(cleanups, func() { _ = sup.Shutdown(context.Background()) })
	hub.SetSnapshot(sup.ListingEvent)

	var unsubscribeExport func()
	if cfg.Playlist.Path != "" {
		unsubscribeExport = hub.Subscribe(playlist.NewExporter(cfg.Playlist.Path, cfg.API.PublicURL, cfg.Playlist.Group))
	}

	hm := health.NewManager(cfg.Version)
	hm.RegisterChecker(health.NewBinaryChecker("ffmpeg", cfg.FFmpeg.Bin))
	hm.RegisterChecker(health.NewPingChecker("catalog", cat.Ping))
	hm.RegisterChecker(health.NewDirChecker("hls_root", cfg.HLS.Root))

	apiServer, err := api.New(api.Config{
		PublicURL:     cfg.API.PublicURL,
		PlaylistGroup: cfg.Playlist.Group,
		Stack: middleware.StackConfig{
			AllowedOrigins:        cfg.API.CORSOrigins,
			EnableSecurityHeaders: true,
			EnableMetrics:         cfg.Metrics.Enabled,
			TracingService:        tracingService(cfg),
			EnableLogging:         true,
			RateLimitEnabled:      cfg.API.RateLimit.Enabled,
			RequestsPerMinute:     cfg.API.RateLimit.RequestsPerMinute,
		},
	}, api.Deps{
		Sessions: sup,
		Catalog:  cat,
		Hub:      hub,
		Health:   hm,
	})
	if err != nil {
		return nil, fmt.Errorf("create api: %w", err)
	}

	mgr, err := NewManager(ServerConfigFrom(cfg), Deps{
		Logger:         logger,
		APIHandler:     apiServer,
		MetricsHandler: promhttp.Handler(),
	})
	if err != nil {
		return nil, err
	}

	// Hooks run in reverse: sessions stop first, the tracer flushes last.
	mgr.RegisterShutdownHook("telemetry", tracer.Shutdown)
	mgr.RegisterShutdownHook("catalog", func(context.Context) error { return cat.Close() })
	mgr.RegisterShutdownHook("enricher", func(context.Context) error {
		enricher.Close()
		return nil
	})
	mgr.RegisterShutdownHook("worker", func(context.Context) error { return worker.Close() })
	mgr.RegisterShutdownHook("hub", func(context.Context) error {
		hub.Close()
		return nil
	})
	if unsubscribeExport != nil {
		mgr.RegisterShutdownHook("playlist_export", func(context.Context) error {
			unsubscribeExport()
			return nil
		})
	}
	mgr.RegisterShutdownHook("supervisor", sup.Shutdown)

	logger.Info().
		Str(log.FieldEvent, "daemon.bootstrapped").
		Str("hls_root", cfg.HLS.Root).
		Str("catalog_backend", cfg.Catalog.Backend).
		Bool("playlist_export", cfg.Playlist.Path != "").
		Bool("tracing", cfg.Telemetry.Enabled).
		Msg("components assembled")

	return &Runtime{
		Supervisor: sup,
		Hub:        hub,
		Catalog:    cat,
		Health:     hm,
		API:        apiServer,
		Manager:    mgr,
		logger:     logger,
	}, nil
}

// ApplyConfig pushes hot-reloadable settings into running components.
// Listener and storage settings take effect after a restart.
func (r *Runtime) ApplyConfig(cfg config.AppConfig) {
	if err := log.SetLevel(cfg.LogLevel); err != nil {
		r.logger.Warn().Err(err).Str("level", cfg.LogLevel).Msg("ignoring invalid log level")
	}
	r.Supervisor.SetPollInterval(cfg.Poll.Interval)
	r.logger.Info().
		Str(log.FieldEvent, "config.applied").
		Str("log_level", cfg.LogLevel).
		Dur("poll_interval", cfg.Poll.Interval).
		Msg("applied reloaded configuration")
}

func tracingService(cfg config.AppConfig) string {
	if !cfg.Telemetry.Enabled {
		return ""
	}
	return cfg.Telemetry.ServiceName
}
