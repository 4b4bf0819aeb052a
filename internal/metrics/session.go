// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsByStatus tracks the current number of sessions per status.
	SessionsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hlsrelay_sessions",
		Help: "Current number of sessions by status",
	}, []string{"status"})

	// SessionOpsTotal counts supervisor operations by kind and result.
	SessionOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsrelay_session_operations_total",
		Help: "Total number of session operations by op and result",
	}, []string{"op", "result"})

	// SessionOpDuration observes how long supervisor operations take.
	SessionOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hlsrelay_session_operation_duration_seconds",
		Help:    "Duration of session operations (spawn and terminate waits included)",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"op"})

	// WorkerSpawnTotal counts worker spawn attempts by result.
	WorkerSpawnTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsrelay_worker_spawn_total",
		Help: "Total number of worker spawn attempts by result",
	}, []string{"result"})

	// WorkerExitTotal counts worker exit events by how they were handled.
	// kind: expected (stop requested), unexpected (crash), stale (old generation).
	WorkerExitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsrelay_worker_exit_total",
		Help: "Total number of worker exit events by kind",
	}, []string{"kind"})

	// PollTotal counts status poll outcomes.
	PollTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsrelay_poll_total",
		Help: "Total number of status polls by outcome",
	}, []string{"outcome"})

	// PollLoopsActive tracks the number of running poll loops.
	PollLoopsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hlsrelay_poll_loops_active",
		Help: "Current number of active per-session poll loops",
	})
)

// SetSessionCounts replaces the per-status gauge values.
// Statuses missing from counts are reset to zero.
func SetSessionCounts(statuses []string, counts map[string]int) {
	for _, s := range statuses {
		SessionsByStatus.WithLabelValues(s).Set(float64(counts[s]))
	}
}

// RecordSessionOp records the result and duration of a supervisor operation.
func RecordSessionOp(op, result string, d time.Duration) {
	SessionOpsTotal.WithLabelValues(op, result).Inc()
	SessionOpDuration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordWorkerSpawn increments the spawn counter.
// result: "ok" or "failed"
func RecordWorkerSpawn(result string) {
	WorkerSpawnTotal.WithLabelValues(result).Inc()
}

// RecordWorkerExit increments the exit counter for the given kind.
func RecordWorkerExit(kind string) {
	WorkerExitTotal.WithLabelValues(kind).Inc()
}

// RecordPoll increments the poll outcome counter.
// outcome: "ok", "not_found", "error"
func RecordPoll(outcome string) {
	PollTotal.WithLabelValues(outcome).Inc()
}
