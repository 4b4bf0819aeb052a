// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProcTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsrelay_proc_terminate_total",
		Help: "Signals sent to worker process groups by signal and result",
	}, []string{"signal", "result"})

	ProcWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsrelay_proc_wait_total",
		Help: "Worker process wait outcomes after termination",
	}, []string{"outcome"})

	WatchdogTripsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsrelay_watchdog_trips_total",
		Help: "Workers terminated by the progress watchdog by state",
	}, []string{"state"})
)

// IncProcTerminate records a termination signal attempt.
func IncProcTerminate(signal, result string) {
	ProcTerminateTotal.WithLabelValues(signal, result).Inc()
}

// IncProcWait records how a terminated process finished.
func IncProcWait(outcome string) {
	ProcWaitTotal.WithLabelValues(outcome).Inc()
}

// IncWatchdogTrip records a watchdog-triggered termination.
func IncWatchdogTrip(state string) {
	WatchdogTripsTotal.WithLabelValues(state).Inc()
}
