// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"path/filepath"
	"time"
)

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		DataDir:  "/var/lib/hlsrelay",
		LogLevel: "info",
		API: APIConfig{
			Listen:          ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 600,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Listen:  ":9090",
		},
		HLS: HLSConfig{
			SegmentSeconds: 6,
			ListSize:       6,
		},
		FFmpeg: FFmpegConfig{
			Bin:               "ffmpeg",
			KillGrace:         2 * time.Second,
			KillTimeout:       5 * time.Second,
			StartTimeout:      30 * time.Second,
			StallTimeout:      20 * time.Second,
			RestartGrace:      500 * time.Millisecond,
			ReconnectDelayMax: 5,
			UserAgent:         "VLC/3.0.21 LibVLC/3.0.21",
			VideoCodec:        "copy",
		},
		Poll: PollConfig{
			Interval: time.Second,
			Timeout:  800 * time.Millisecond,
		},
		Hub: HubConfig{
			QueueSize:    64,
			WriteTimeout: 5 * time.Second,
		},
		Catalog: CatalogConfig{
			Backend:      "badger",
			FetchTimeout: 30 * time.Second,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "hlsrelay:",
			},
		},
		Enricher: EnricherConfig{
			MissTTL: 5 * time.Minute,
		},
		Playlist: PlaylistConfig{
			Group: "hlsrelay",
		},
		Telemetry: TelemetryConfig{
			ServiceName:  "hlsrelay",
			Environment:  "production",
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}

// resolvePaths fills directory settings derived from DataDir.
func resolvePaths(cfg *AppConfig) {
	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.HLS.Root == "" {
		cfg.HLS.Root = filepath.Join(cfg.DataDir, "hls")
	}
	if cfg.Catalog.Path == "" && cfg.Catalog.Backend == "badger" {
		cfg.Catalog.Path = filepath.Join(cfg.DataDir, "catalog")
	}
}
