// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/hlsrelay/internal/config"
)

// Deps contains dependencies required by the daemon Manager.
type Deps struct {
	// Logger is the structured logger for the daemon
	Logger zerolog.Logger

	// APIHandler serves the control API, the HLS tree and the observer socket.
	APIHandler http.Handler

	// MetricsHandler is the HTTP handler for Prometheus metrics (if enabled)
	MetricsHandler http.Handler
}

// Validate checks if the dependencies are valid.
func (d *Deps) Validate() error {
	if d.Logger.GetLevel() == zerolog.Disabled {
		return ErrMissingLogger
	}
	if d.APIHandler == nil {
		return ErrMissingAPIHandler
	}
	return nil
}

// ServerConfig holds the listener settings of the daemon's HTTP servers.
type ServerConfig struct {
	ListenAddr      string
	MetricsAddr     string // empty disables the metrics listener
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxHeaderBytes  int
}

// ServerConfigFrom derives listener settings from the application config.
func ServerConfigFrom(cfg config.AppConfig) ServerConfig {
	sc := ServerConfig{
		ListenAddr:      cfg.API.Listen,
		ReadTimeout:     cfg.API.ReadTimeout,
		WriteTimeout:    cfg.API.WriteTimeout,
		IdleTimeout:     cfg.API.IdleTimeout,
		ShutdownTimeout: cfg.API.ShutdownTimeout,
		MaxHeaderBytes:  1 << 20,
	}
	if cfg.Metrics.Enabled {
		sc.MetricsAddr = cfg.Metrics.Listen
	}
	return sc
}
