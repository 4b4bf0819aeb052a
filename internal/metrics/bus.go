// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HubDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsrelay_hub_dropped_total",
		Help: "Total number of broadcast events dropped by event type and reason",
	}, []string{"type", "reason"})

	HubPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsrelay_hub_published_total",
		Help: "Total number of broadcast events published by event type",
	}, []string{"type"})

	HubSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hlsrelay_hub_subscribers",
		Help: "Current number of subscribed observers",
	})

	HubEvictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsrelay_hub_evictions_total",
		Help: "Total number of observers dropped from the hub by reason",
	}, []string{"reason"})
)

// IncHubDrop records a dropped event for a subscriber queue.
func IncHubDrop(eventType, reason string) {
	if eventType == "" {
		eventType = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	HubDroppedTotal.WithLabelValues(eventType, reason).Inc()
}

// IncHubPublished records a published event.
func IncHubPublished(eventType string) {
	HubPublishedTotal.WithLabelValues(eventType).Inc()
}

// IncHubEviction records an observer removed after a failed delivery.
func IncHubEviction(reason string) {
	HubEvictionsTotal.WithLabelValues(reason).Inc()
}
