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
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hlsrelay_http_request_duration_seconds",
		Help:    "HTTP request latencies in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	httpRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hlsrelay_http_requests_in_flight",
		Help: "Current number of HTTP requests being served",
	})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hlsrelay_http_response_size_bytes",
		Help:    "HTTP response sizes in bytes",
		Buckets: prometheus.ExponentialBuckets(100, 10, 8),
	}, []string{"method", "route"})

	wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hlsrelay_ws_connections",
		Help: "Current number of open websocket observers",
	})
)

// HTTPRequestStarted marks a request in flight and returns the matching done func.
func HTTPRequestStarted() (done func()) {
	httpRequestsInFlight.Inc()
	return httpRequestsInFlight.Dec
}

// ObserveHTTPRequest records one finished request. route must be a route pattern, never a raw path.
func ObserveHTTPRequest(method, route, status string, d time.Duration, bytes int) {
	httpRequestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
	if bytes > 0 {
		httpResponseSize.WithLabelValues(method, route).Observe(float64(bytes))
	}
}

// WSConnected tracks an open websocket and returns its close func.
func WSConnected() (closed func()) {
	wsConnections.Inc()
	return wsConnections.Dec
}
