// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup spawns worker processes as group leaders and reaps the whole tree.
package procgroup

import "errors"

var (
	// ErrKillFailed is returned when a process group survives SIGKILL past the timeout.
	ErrKillFailed = errors.New("kill operation failed")
)
