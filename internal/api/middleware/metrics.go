// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ManuGH/hlsrelay/internal/metrics"
)

// Metrics records Prometheus metrics for HTTP requests.
// Requests that match no route are labelled "unmatched" to bound cardinality.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			done := metrics.HTTPRequestStarted()
			defer done()

			// Wrap response writer to capture status and size while preserving streaming interfaces
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				// Hijacked connections never write a status through the wrapper.
				status = http.StatusSwitchingProtocols
			}
			metrics.ObserveHTTPRequest(r.Method, routePattern(r), strconv.Itoa(status), time.Since(start), ww.BytesWritten())
		})
	}
}

// routePattern returns the matched chi pattern once routing has happened.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
