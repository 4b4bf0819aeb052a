// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lifecycle

import (
	"fmt"

	"github.com/ManuGH/hlsrelay/internal/domain/session/model"
)

// EventKind names what drives a status change.
type EventKind string

const (
	EvFirstStats    EventKind = "first_stats"
	EvStopRequested EventKind = "stop_requested"
	EvStopped       EventKind = "stopped"
	EvWorkerExited  EventKind = "worker_exited"
	EvRestart       EventKind = "restart"
	EvRestartFailed EventKind = "restart_failed"
)

// Transition is a single allowed edge in the status machine.
type Transition struct {
	From  model.Status
	To    model.Status
	Event EventKind
}

var transitionsTable = []Transition{
	{From: model.StatusStarting, To: model.StatusRunning, Event: EvFirstStats},

	{From: model.StatusStarting, To: model.StatusStopping, Event: EvStopRequested},
	{From: model.StatusRunning, To: model.StatusStopping, Event: EvStopRequested},
	{From: model.StatusStopping, To: model.StatusStopped, Event: EvStopped},
	// Stop on a session without a live worker.
	{From: model.StatusError, To: model.StatusStopped, Event: EvStopped},

	{From: model.StatusStarting, To: model.StatusStopped, Event: EvWorkerExited},
	{From: model.StatusRunning, To: model.StatusStopped, Event: EvWorkerExited},

	{From: model.StatusStarting, To: model.StatusStarting, Event: EvRestart},
	{From: model.StatusRunning, To: model.StatusStarting, Event: EvRestart},
	{From: model.StatusStopping, To: model.StatusStarting, Event: EvRestart},
	{From: model.StatusStopped, To: model.StatusStarting, Event: EvRestart},
	{From: model.StatusError, To: model.StatusStarting, Event: EvRestart},

	{From: model.StatusStarting, To: model.StatusError, Event: EvRestartFailed},
	{From: model.StatusRunning, To: model.StatusError, Event: EvRestartFailed},
	{From: model.StatusStopping, To: model.StatusError, Event: EvRestartFailed},
	{From: model.StatusStopped, To: model.StatusError, Event: EvRestartFailed},
	{From: model.StatusError, To: model.StatusError, Event: EvRestartFailed},
}

// TransitionFor returns the allowed transition for a given status+event.
func TransitionFor(from model.Status, ev EventKind) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev {
			return tr, true
		}
	}
	return Transition{}, false
}

// Next returns the target status or ErrIllegalState.
func Next(from model.Status, ev EventKind) (model.Status, error) {
	tr, ok := TransitionFor(from, ev)
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrIllegalState, ev, from)
	}
	return tr.To, nil
}
