// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package m3u

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Attributes(t *testing.T) {
	content := `#EXTM3U
#EXTINF:-1 tvg-chno="1" tvg-id="1:0:1:300:7:85:C00000:0:0:0:" tvg-logo="/logos/1.png?v=1" group-title="Last Scanned" tvg-name=".",.
http://10.10.55.64/web/stream.m3u?ref=1%3A0%3A1&name=.
`
	channels := Parse(content)
	require.Len(t, channels, 1)
	ch := channels[0]
	assert.Equal(t, "1:0:1:300:7:85:C00000:0:0:0:", ch.TvgID)
	assert.Equal(t, "Last Scanned", ch.Group)
	assert.Equal(t, "1", ch.Number)
	assert.Equal(t, ".", ch.Name)
	assert.Equal(t, "http://10.10.55.64/web/stream.m3u?ref=1%3A0%3A1&name=.", ch.URL)
}

func TestParse_CommaInsideAttribute(t *testing.T) {
	content := "#EXTM3U\r\n" +
		`#EXTINF:-1 tvg-logo="http://x/a,b.png" group-title="News, World",BBC World` + "\r\n" +
		"http://h/bbc\r\n"
	channels := Parse(content)
	require.Len(t, channels, 1)
	want := Channel{Name: "BBC World", Logo: "http://x/a,b.png", Group: "News, World", URL: "http://h/bbc"}
	if diff := cmp.Diff(want, channels[0]); diff != "" {
		t.Errorf("channel mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_FallbacksAndExtgrp(t *testing.T) {
	content := `#EXTM3U
#EXTINF:-1 tvg-name="From Attr",
#EXTGRP:Movies
http://h/one
http://h/bare
# comment
#EXTINF:-1,Dangling without url
`
	channels := Parse(content)
	want := []Channel{
		{Name: "From Attr", Group: "Movies", URL: "http://h/one"},
		{Name: "http://h/bare", URL: "http://h/bare"},
	}
	if diff := cmp.Diff(want, channels); diff != "" {
		t.Errorf("channels mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Empty(t *testing.T) {
	assert.Empty(t, Parse(""))
	assert.Empty(t, Parse("#EXTM3U\n"))
}
