// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"os"
	"os/exec"
)

// BinaryChecker reports whether an executable resolves on PATH.
type BinaryChecker struct {
	name string
	bin  string
	look func(string) (string, error)
}

// NewBinaryChecker creates a checker for an executable such as ffmpeg.
func NewBinaryChecker(name, bin string) *BinaryChecker {
	return &BinaryChecker{name: name, bin: bin, look: exec.LookPath}
}

func (c *BinaryChecker) Name() string { return c.name }

func (c *BinaryChecker) Check(_ context.Context) CheckResult {
	path, err := c.look(c.bin)
	if err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Error:   err.Error(),
			Message: c.bin,
		}
	}
	return CheckResult{Status: StatusHealthy, Message: path}
}

// PingChecker wraps a reachability probe such as a store ping.
type PingChecker struct {
	name string
	ping func(ctx context.Context) error
}

// NewPingChecker creates a checker that is unhealthy whenever ping fails.
func NewPingChecker(name string, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	if err := c.ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: "reachable"}
}

// DirChecker verifies that a directory exists and accepts new files.
type DirChecker struct {
	name string
	path string
}

// NewDirChecker creates a writable-directory checker.
func NewDirChecker(name, path string) *DirChecker {
	return &DirChecker{name: name, path: path}
}

func (c *DirChecker) Name() string { return c.name }

func (c *DirChecker) Check(_ context.Context) CheckResult {
	info, err := os.Stat(c.path)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: c.path}
	}
	if !info.IsDir() {
		return CheckResult{Status: StatusUnhealthy, Error: "expected directory", Message: c.path}
	}

	probe, err := os.CreateTemp(c.path, ".health-*")
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: "not writable"}
	}
	name := probe.Name()
	_ = probe.Close()
	if err := os.Remove(name); err != nil {
		return CheckResult{Status: StatusDegraded, Error: err.Error(), Message: "probe file left behind"}
	}
	return CheckResult{Status: StatusHealthy, Message: "writable"}
}
