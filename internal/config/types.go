// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// AppConfig is the complete runtime configuration.
type AppConfig struct {
	Version string `yaml:"-"`

	DataDir  string `yaml:"dataDir"`
	LogLevel string `yaml:"logLevel"`

	API       APIConfig       `yaml:"api"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	HLS       HLSConfig       `yaml:"hls"`
	FFmpeg    FFmpegConfig    `yaml:"ffmpeg"`
	Poll      PollConfig      `yaml:"poll"`
	Hub       HubConfig       `yaml:"hub"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Enricher  EnricherConfig  `yaml:"enricher"`
	Playlist  PlaylistConfig  `yaml:"playlist"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type APIConfig struct {
	Listen          string          `yaml:"listen"`
	ReadTimeout     time.Duration   `yaml:"readTimeout"`
	WriteTimeout    time.Duration   `yaml:"writeTimeout"`
	IdleTimeout     time.Duration   `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration   `yaml:"shutdownTimeout"`
	CORSOrigins     []string        `yaml:"corsOrigins"`
	RateLimit       RateLimitConfig `yaml:"rateLimit"`
	// PublicURL prefixes links in the exported playlist. Empty keeps them relative.
	PublicURL string `yaml:"publicUrl"`
}

type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type HLSConfig struct {
	Root           string `yaml:"root"`
	SegmentSeconds int    `yaml:"segmentSeconds"`
	ListSize       int    `yaml:"listSize"`
}

type FFmpegConfig struct {
	Bin               string        `yaml:"bin"`
	KillGrace         time.Duration `yaml:"killGrace"`
	KillTimeout       time.Duration `yaml:"killTimeout"`
	StartTimeout      time.Duration `yaml:"startTimeout"`
	StallTimeout      time.Duration `yaml:"stallTimeout"`
	RestartGrace      time.Duration `yaml:"restartGrace"`
	ReconnectDelayMax int           `yaml:"reconnectDelayMax"`
	UserAgent         string        `yaml:"userAgent"`
	VideoCodec        string        `yaml:"videoCodec"`
	LogDir            string        `yaml:"logDir"`
}

type PollConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

type HubConfig struct {
	QueueSize    int           `yaml:"queueSize"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

type CatalogConfig struct {
	// Backend is "badger" or "redis".
	Backend      string        `yaml:"backend"`
	Path         string        `yaml:"path"`
	FetchTimeout time.Duration `yaml:"fetchTimeout"`
	Redis        RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"keyPrefix"`
}

type EnricherConfig struct {
	MissTTL time.Duration `yaml:"missTTL"`
}

type PlaylistConfig struct {
	// Path of the exported M3U. Empty disables the export file.
	Path  string `yaml:"path"`
	Group string `yaml:"group"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"serviceName"`
	Environment  string  `yaml:"environment"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}
