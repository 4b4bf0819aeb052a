// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ManuGH/hlsrelay/internal/config"
	"github.com/ManuGH/hlsrelay/internal/daemon"
	"github.com/ManuGH/hlsrelay/internal/health"
	xglog "github.com/ManuGH/hlsrelay/internal/log"
	"github.com/ManuGH/hlsrelay/internal/version"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		os.Exit(runHealthcheckCLI(os.Args[2:]))
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Explicit --config wins; otherwise ${HLSRELAY_DATA_DIR}/config.yaml is used when present.
	explicitConfigPath := strings.TrimSpace(*configPath)
	effectiveConfigPath := explicitConfigPath
	if effectiveConfigPath == "" {
		dataDir := strings.TrimSpace(config.ParseString("HLSRELAY_DATA_DIR", config.Defaults().DataDir))
		autoPath := filepath.Join(dataDir, "config.yaml")
		if _, err := os.Stat(autoPath); err == nil {
			effectiveConfigPath = autoPath
		}
	}

	// Precedence: ENV > File > Defaults
	loader := config.NewLoader(effectiveConfigPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		xglog.Configure(xglog.Config{Level: "info", Version: version.Version})
		logger := xglog.WithComponent("daemon")
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}

	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: "hlsrelay",
		Version: cfg.Version,
	})
	logger := xglog.WithComponent("daemon")

	source := "env+defaults"
	switch {
	case explicitConfigPath != "":
		source = "file"
	case effectiveConfigPath != "":
		source = "file(auto)"
	}
	logger.Info().
		Str(xglog.FieldEvent, "config.loaded").
		Str("source", source).
		Str("path", effectiveConfigPath).
		Str("version", version.String()).
		Msg("loaded configuration")

	for _, key := range loader.UnknownEnvKeys() {
		logger.Warn().
			Str(xglog.FieldEvent, "config.unknown_env").
			Str("key", key).
			Msg("ignoring unknown HLSRELAY_ environment variable")
	}

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "startup.check_failed").
			Msg("Startup checks failed. Please verify configuration and permissions.")
	}

	rt, err := daemon.Bootstrap(ctx, cfg)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "daemon.bootstrap_failed").
			Msg("failed to assemble components")
	}

	holder := config.NewConfigHolder(cfg, loader, effectiveConfigPath)
	app := daemon.NewApp(logger, rt.Manager, holder, rt.ApplyConfig)
	if err := app.Run(ctx); err != nil {
		logger.Error().
			Err(err).
			Str(xglog.FieldEvent, "daemon.exit_error").
			Msg("daemon exited with error")
		os.Exit(1)
	}
	logger.Info().Str(xglog.FieldEvent, "daemon.exit").Msg("daemon stopped")
}
