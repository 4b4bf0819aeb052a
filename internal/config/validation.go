// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"github.com/ManuGH/hlsrelay/internal/metrics"
	"github.com/ManuGH/hlsrelay/internal/validate"
)

// Validate checks a fully merged configuration. It does not touch the filesystem.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.NotEmpty("dataDir", cfg.DataDir)
	if _, err := validate.ParseLogLevel(cfg.LogLevel); err != nil {
		v.AddError("logLevel", validate.ErrInvalidLogLevel.Message, cfg.LogLevel)
	}

	v.ListenAddr("api.listen", cfg.API.Listen)
	v.NonNegativeDuration("api.readTimeout", cfg.API.ReadTimeout)
	v.NonNegativeDuration("api.writeTimeout", cfg.API.WriteTimeout)
	v.NonNegativeDuration("api.idleTimeout", cfg.API.IdleTimeout)
	v.PositiveDuration("api.shutdownTimeout", cfg.API.ShutdownTimeout)
	if cfg.API.RateLimit.Enabled {
		v.Positive("api.rateLimit.requestsPerMinute", cfg.API.RateLimit.RequestsPerMinute)
	}
	if cfg.API.PublicURL != "" {
		v.URL("api.publicUrl", cfg.API.PublicURL, []string{"http", "https"})
	}

	if cfg.Metrics.Enabled {
		v.ListenAddr("metrics.listen", cfg.Metrics.Listen)
	}

	v.NotEmpty("hls.root", cfg.HLS.Root)
	v.Range("hls.segmentSeconds", cfg.HLS.SegmentSeconds, 1, 60)
	v.Range("hls.listSize", cfg.HLS.ListSize, 1, 100)

	v.NotEmpty("ffmpeg.bin", cfg.FFmpeg.Bin)
	v.PositiveDuration("ffmpeg.killGrace", cfg.FFmpeg.KillGrace)
	v.PositiveDuration("ffmpeg.killTimeout", cfg.FFmpeg.KillTimeout)
	v.NonNegativeDuration("ffmpeg.startTimeout", cfg.FFmpeg.StartTimeout)
	v.NonNegativeDuration("ffmpeg.stallTimeout", cfg.FFmpeg.StallTimeout)
	v.NonNegativeDuration("ffmpeg.restartGrace", cfg.FFmpeg.RestartGrace)
	v.Range("ffmpeg.reconnectDelayMax", cfg.FFmpeg.ReconnectDelayMax, 1, 600)

	v.PositiveDuration("poll.interval", cfg.Poll.Interval)
	v.PositiveDuration("poll.timeout", cfg.Poll.Timeout)
	if cfg.Poll.Timeout > cfg.Poll.Interval {
		v.AddError("poll.timeout", "must not exceed poll.interval", cfg.Poll.Timeout)
	}

	v.Range("hub.queueSize", cfg.Hub.QueueSize, 1, 65536)
	v.PositiveDuration("hub.writeTimeout", cfg.Hub.WriteTimeout)

	v.OneOf("catalog.backend", cfg.Catalog.Backend, []string{"badger", "redis"})
	if cfg.Catalog.Backend == "redis" {
		v.NotEmpty("catalog.redis.addr", cfg.Catalog.Redis.Addr)
		v.Range("catalog.redis.db", cfg.Catalog.Redis.DB, 0, 15)
	}
	v.PositiveDuration("catalog.fetchTimeout", cfg.Catalog.FetchTimeout)

	v.PositiveDuration("enricher.missTTL", cfg.Enricher.MissTTL)

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.Ratio("telemetry.samplingRate", cfg.Telemetry.SamplingRate)
	}

	if !v.IsValid() {
		metrics.IncConfigValidationError()
	}
	return v.Err()
}

// ValidateRuntime checks directories the daemon must be able to write to.
func ValidateRuntime(cfg AppConfig) error {
	v := validate.New()
	v.WritableDirectory("dataDir", cfg.DataDir, false)
	v.WritableDirectory("hls.root", cfg.HLS.Root, false)
	if cfg.FFmpeg.LogDir != "" {
		v.WritableDirectory("ffmpeg.logDir", cfg.FFmpeg.LogDir, false)
	}
	return v.Err()
}
