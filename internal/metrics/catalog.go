// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	catalogProviders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hlsrelay_catalog_providers",
		Help: "Number of configured playlist providers",
	})

	catalogChannels = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hlsrelay_catalog_channels",
		Help: "Number of channels per provider (last refresh)",
	}, []string{"provider"})

	catalogRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsrelay_catalog_refresh_total",
		Help: "Provider playlist refreshes by result",
	}, []string{"result"}) // result=success|fetch_error|store_error

	enricherLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsrelay_enricher_lookups_total",
		Help: "Metadata lookups by outcome",
	}, []string{"outcome"}) // outcome=hit|miss|cached_miss|error

	playlistExportTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsrelay_playlist_export_total",
		Help: "Playlist file exports by result",
	}, []string{"result"})

	// Operational metrics
	configValidationErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hlsrelay_config_validation_errors_total",
		Help: "Total number of configuration validation errors",
	})

	configReloadTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsrelay_config_reload_total",
		Help: "Configuration reload attempts by trigger and result",
	}, []string{"trigger", "result"})
)

func SetCatalogProviders(n int) { catalogProviders.Set(float64(n)) }

func RecordCatalogChannels(provider string, n int) {
	catalogChannels.WithLabelValues(provider).Set(float64(n))
}

func ForgetCatalogProvider(provider string) { catalogChannels.DeleteLabelValues(provider) }

func IncCatalogRefresh(result string) { catalogRefreshTotal.WithLabelValues(result).Inc() }

func IncEnricherLookup(outcome string) { enricherLookups.WithLabelValues(outcome).Inc() }

func IncPlaylistExport(result string) { playlistExportTotal.WithLabelValues(result).Inc() }

func IncConfigValidationError() { configValidationErrors.Inc() }

func IncConfigReload(trigger, result string) {
	configReloadTotal.WithLabelValues(trigger, result).Inc()
}
