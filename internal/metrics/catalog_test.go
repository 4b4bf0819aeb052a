// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCatalogGauges(t *testing.T) {
	SetCatalogProviders(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(catalogProviders))

	RecordCatalogChannels("p1", 42)
	assert.Equal(t, 42.0, testutil.ToFloat64(catalogChannels.WithLabelValues("p1")))

	ForgetCatalogProvider("p1")
	assert.Equal(t, 0, testutil.CollectAndCount(catalogChannels))
}

func TestCounterHelpers(t *testing.T) {
	before := testutil.ToFloat64(catalogRefreshTotal.WithLabelValues("success"))
	IncCatalogRefresh("success")
	assert.Equal(t, before+1, testutil.ToFloat64(catalogRefreshTotal.WithLabelValues("success")))

	before = testutil.ToFloat64(configReloadTotal.WithLabelValues("sighup", "ok"))
	IncConfigReload("sighup", "ok")
	assert.Equal(t, before+1, testutil.ToFloat64(configReloadTotal.WithLabelValues("sighup", "ok")))

	before = testutil.ToFloat64(playlistExportTotal.WithLabelValues("ok"))
	IncPlaylistExport("ok")
	assert.Equal(t, before+1, testutil.ToFloat64(playlistExportTotal.WithLabelValues("ok")))
}
