// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playlist

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/hlsrelay/internal/domain/session/model"
	"github.com/ManuGH/hlsrelay/internal/m3u"
)

func TestWriteM3UTable(t *testing.T) {
	tests := []struct {
		name   string
		items  []Item
		expect []string
	}{
		{
			name: "basic with logo and channel number",
			items: []Item{{
				Name: "ORF1 HD", TvgID: "orf1.at", Group: "AT", TvgLogo: "http://p/ORF1.png", URL: "http://h/hls/a/index.m3u8", TvgChNo: 1,
			}},
			expect: []string{
				"#EXTM3U",
				`tvg-id="orf1.at"`,
				`group-title="AT"`,
				`tvg-logo="http://p/ORF1.png"`,
				`tvg-chno="1"`,
				",ORF1 HD",
				"http://h/hls/a/index.m3u8",
			},
		},
		{
			name: "missing logo keeps stable tvg-id",
			items: []Item{{
				Name: "ORF2N HD", TvgID: "orf2n.at", Group: "AT", URL: "/hls/b/index.m3u8", TvgChNo: 2,
			}},
			expect: []string{
				`tvg-id="orf2n.at"`,
				`tvg-logo=""`,
				`tvg-chno="2"`,
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var b strings.Builder
			require.NoError(t, WriteM3U(&b, tc.items))
			out := b.String()
			for _, want := range tc.expect {
				assert.Contains(t, out, want)
			}
			assert.Equal(t, len(tc.items), strings.Count(out, "#EXTINF:"))
		})
	}
}

func TestWriteM3U_SanitizesBreakingCharacters(t *testing.T) {
	var b strings.Builder
	require.NoError(t, WriteM3U(&b, []Item{{
		Name:  "Line\nBreak",
		Group: `Quote"d`,
		URL:   "http://h/x\r\n#EXTINF:-1,injected",
	}}))

	parsed := m3u.Parse(b.String())
	require.Len(t, parsed, 1)
	assert.Equal(t, "Line Break", parsed[0].Name)
	assert.Equal(t, "Quote'd", parsed[0].Group)
	assert.Equal(t, 3, strings.Count(b.String(), "\n"), "one header, one EXTINF and one URL line")
}

func TestItemsFromViews_SkipsInactiveAndNumbersInOrder(t *testing.T) {
	views := []model.SessionView{
		{ID: "b", Status: model.StatusRunning, Name: "B", Logo: "http://l/b.png"},
		{ID: "x", Status: model.StatusStopped, Name: "X"},
		{ID: "a", Status: model.StatusStarting, Name: "A"},
		{ID: "e", Status: model.StatusError, Name: "E"},
	}
	items := ItemsFromViews(views, "http://relay:8080/", "Relay")
	require.Len(t, items, 2)
	assert.Equal(t, Item{Name: "B", TvgID: "b", TvgChNo: 1, TvgLogo: "http://l/b.png", Group: "Relay", URL: "http://relay:8080/hls/b/index.m3u8"}, items[0])
	assert.Equal(t, "a", items[1].TvgID)
	assert.Equal(t, 2, items[1].TvgChNo)
}
