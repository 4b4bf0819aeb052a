// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ManuGH/hlsrelay/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromhttpExposure(t *testing.T) {
	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSetSessionCounts_ResetsMissingStatuses(t *testing.T) {
	statuses := []string{"starting", "running", "stopped"}
	metrics.SetSessionCounts(statuses, map[string]int{"running": 3, "stopped": 1})
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.SessionsByStatus.WithLabelValues("running")))

	metrics.SetSessionCounts(statuses, map[string]int{"stopped": 2})
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.SessionsByStatus.WithLabelValues("running")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.SessionsByStatus.WithLabelValues("stopped")))
}

func TestRecordHelpers(t *testing.T) {
	before := testutil.ToFloat64(metrics.WorkerExitTotal.WithLabelValues("stale"))
	metrics.RecordWorkerExit("stale")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.WorkerExitTotal.WithLabelValues("stale")))

	before = testutil.ToFloat64(metrics.SessionOpsTotal.WithLabelValues("stop", "ok"))
	metrics.RecordSessionOp("stop", "ok", 20*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.SessionOpsTotal.WithLabelValues("stop", "ok")))

	before = testutil.ToFloat64(metrics.HubDroppedTotal.WithLabelValues("unknown", "unknown"))
	metrics.IncHubDrop("", "")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.HubDroppedTotal.WithLabelValues("unknown", "unknown")))
}
