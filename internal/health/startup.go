// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ManuGH/hlsrelay/internal/config"
	"github.com/ManuGH/hlsrelay/internal/log"
)

// PerformStartupChecks validates the environment and dependencies before starting the server.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	// 1. Writable directories (created when missing)
	if err := config.ValidateRuntime(cfg); err != nil {
		return fmt.Errorf("directory check failed: %w", err)
	}
	logger.Info().Str("data_dir", cfg.DataDir).Str("hls_root", cfg.HLS.Root).Msg("data directories are writable")

	// 2. Worker binary
	bin := strings.TrimSpace(cfg.FFmpeg.Bin)
	path, err := exec.LookPath(bin)
	if err != nil {
		return fmt.Errorf("ffmpeg binary not found (%s): %w", bin, err)
	}
	logger.Info().Str("ffmpeg", path).Msg("worker binary available")

	// 3. Durability hints
	tempDir := filepath.Clean(os.TempDir())
	dataDir := filepath.Clean(cfg.DataDir)
	if tempDir != "." && (dataDir == tempDir || strings.HasPrefix(dataDir, tempDir+string(filepath.Separator))) {
		logger.Warn().
			Str("data_dir", cfg.DataDir).
			Msg("data directory is under temp; the provider catalog may be lost on reboot")
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}
