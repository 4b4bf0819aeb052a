// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package procgroup

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/hlsrelay/internal/metrics"
)

// Terminate stops a process group: SIGTERM, wait up to grace, then SIGKILL and
// wait up to timeout. exited must be closed by whoever owns cmd.Wait once the
// process has been reaped; Terminate never calls Wait itself.
// It is safe to call on nil or unstarted commands.
func Terminate(cmd *exec.Cmd, exited <-chan struct{}, grace, timeout time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	select {
	case <-exited:
		metrics.IncProcWait("already_exited")
		return nil
	default:
	}

	metrics.IncProcTerminate("SIGTERM", signalResult(Kill(cmd, syscall.SIGTERM)))

	select {
	case <-exited:
		metrics.IncProcWait("graceful")
		return nil
	case <-time.After(grace):
	}

	metrics.IncProcTerminate("SIGKILL", signalResult(Kill(cmd, syscall.SIGKILL)))

	select {
	case <-exited:
		metrics.IncProcWait("forced")
		return nil
	case <-time.After(timeout):
		metrics.IncProcWait("kill_timeout")
		return ErrKillFailed
	}
}

func signalResult(err error) string {
	switch {
	case err == nil:
		return "sent"
	case errors.Is(err, os.ErrProcessDone), errors.Is(err, syscall.ESRCH):
		return "esrch"
	default:
		return "error"
	}
}
