// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"sort"
	"strings"
)

// mergeEnvConfig applies HLSRELAY_* overrides on top of defaults and file values.
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.DataDir = l.envString("HLSRELAY_DATA_DIR", cfg.DataDir)
	cfg.LogLevel = l.envString("HLSRELAY_LOG_LEVEL", cfg.LogLevel)

	// API
	cfg.API.Listen = l.envString("HLSRELAY_API_LISTEN", cfg.API.Listen)
	cfg.API.ReadTimeout = l.envDuration("HLSRELAY_API_READ_TIMEOUT", cfg.API.ReadTimeout)
	cfg.API.WriteTimeout = l.envDuration("HLSRELAY_API_WRITE_TIMEOUT", cfg.API.WriteTimeout)
	cfg.API.IdleTimeout = l.envDuration("HLSRELAY_API_IDLE_TIMEOUT", cfg.API.IdleTimeout)
	cfg.API.ShutdownTimeout = l.envDuration("HLSRELAY_API_SHUTDOWN_TIMEOUT", cfg.API.ShutdownTimeout)
	cfg.API.CORSOrigins = l.envList("HLSRELAY_API_CORS_ORIGINS", cfg.API.CORSOrigins)
	cfg.API.RateLimit.Enabled = l.envBool("HLSRELAY_API_RATE_LIMIT_ENABLED", cfg.API.RateLimit.Enabled)
	cfg.API.RateLimit.RequestsPerMinute = l.envInt("HLSRELAY_API_RATE_LIMIT_RPM", cfg.API.RateLimit.RequestsPerMinute)
	cfg.API.PublicURL = l.envString("HLSRELAY_API_PUBLIC_URL", cfg.API.PublicURL)

	// Metrics
	cfg.Metrics.Enabled = l.envBool("HLSRELAY_METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.Listen = l.envString("HLSRELAY_METRICS_LISTEN", cfg.Metrics.Listen)

	// HLS
	cfg.HLS.Root = l.envString("HLSRELAY_HLS_ROOT", cfg.HLS.Root)
	cfg.HLS.SegmentSeconds = l.envInt("HLSRELAY_HLS_SEGMENT_SECONDS", cfg.HLS.SegmentSeconds)
	cfg.HLS.ListSize = l.envInt("HLSRELAY_HLS_LIST_SIZE", cfg.HLS.ListSize)

	// FFmpeg
	cfg.FFmpeg.Bin = l.envString("HLSRELAY_FFMPEG_BIN", cfg.FFmpeg.Bin)
	cfg.FFmpeg.KillGrace = l.envDuration("HLSRELAY_FFMPEG_KILL_GRACE", cfg.FFmpeg.KillGrace)
	cfg.FFmpeg.KillTimeout = l.envDuration("HLSRELAY_FFMPEG_KILL_TIMEOUT", cfg.FFmpeg.KillTimeout)
	cfg.FFmpeg.StartTimeout = l.envDuration("HLSRELAY_FFMPEG_START_TIMEOUT", cfg.FFmpeg.StartTimeout)
	cfg.FFmpeg.StallTimeout = l.envDuration("HLSRELAY_FFMPEG_STALL_TIMEOUT", cfg.FFmpeg.StallTimeout)
	cfg.FFmpeg.RestartGrace = l.envDuration("HLSRELAY_FFMPEG_RESTART_GRACE", cfg.FFmpeg.RestartGrace)
	cfg.FFmpeg.ReconnectDelayMax = l.envInt("HLSRELAY_FFMPEG_RECONNECT_DELAY_MAX", cfg.FFmpeg.ReconnectDelayMax)
	cfg.FFmpeg.UserAgent = l.envString("HLSRELAY_FFMPEG_USER_AGENT", cfg.FFmpeg.UserAgent)
	cfg.FFmpeg.VideoCodec = l.envString("HLSRELAY_FFMPEG_VIDEO_CODEC", cfg.FFmpeg.VideoCodec)
	cfg.FFmpeg.LogDir = l.envString("HLSRELAY_FFMPEG_LOG_DIR", cfg.FFmpeg.LogDir)

	// Poll
	cfg.Poll.Interval = l.envDuration("HLSRELAY_POLL_INTERVAL", cfg.Poll.Interval)
	cfg.Poll.Timeout = l.envDuration("HLSRELAY_POLL_TIMEOUT", cfg.Poll.Timeout)

	// Hub
	cfg.Hub.QueueSize = l.envInt("HLSRELAY_HUB_QUEUE_SIZE", cfg.Hub.QueueSize)
	cfg.Hub.WriteTimeout = l.envDuration("HLSRELAY_HUB_WRITE_TIMEOUT", cfg.Hub.WriteTimeout)

	// Catalog
	cfg.Catalog.Backend = l.envString("HLSRELAY_CATALOG_BACKEND", cfg.Catalog.Backend)
	cfg.Catalog.Path = l.envString("HLSRELAY_CATALOG_PATH", cfg.Catalog.Path)
	cfg.Catalog.FetchTimeout = l.envDuration("HLSRELAY_CATALOG_FETCH_TIMEOUT", cfg.Catalog.FetchTimeout)
	cfg.Catalog.Redis.Addr = l.envString("HLSRELAY_REDIS_ADDR", cfg.Catalog.Redis.Addr)
	cfg.Catalog.Redis.Password = l.envString("HLSRELAY_REDIS_PASSWORD", cfg.Catalog.Redis.Password)
	cfg.Catalog.Redis.DB = l.envInt("HLSRELAY_REDIS_DB", cfg.Catalog.Redis.DB)
	cfg.Catalog.Redis.KeyPrefix = l.envString("HLSRELAY_REDIS_KEY_PREFIX", cfg.Catalog.Redis.KeyPrefix)

	cfg.Enricher.MissTTL = l.envDuration("HLSRELAY_ENRICHER_MISS_TTL", cfg.Enricher.MissTTL)

	cfg.Playlist.Path = l.envString("HLSRELAY_PLAYLIST_PATH", cfg.Playlist.Path)
	cfg.Playlist.Group = l.envString("HLSRELAY_PLAYLIST_GROUP", cfg.Playlist.Group)

	// Telemetry
	cfg.Telemetry.Enabled = l.envBool("HLSRELAY_TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.ServiceName = l.envString("HLSRELAY_TELEMETRY_SERVICE_NAME", cfg.Telemetry.ServiceName)
	cfg.Telemetry.Environment = l.envString("HLSRELAY_TELEMETRY_ENVIRONMENT", cfg.Telemetry.Environment)
	cfg.Telemetry.Exporter = l.envString("HLSRELAY_TELEMETRY_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("HLSRELAY_TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("HLSRELAY_TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}

// UnknownEnvKeys lists HLSRELAY_* variables that no setting consumed, usually typos.
func (l *Loader) UnknownEnvKeys() []string {
	var unknown []string
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		if _, ok := l.ConsumedEnvKeys[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown
}
