// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/hlsrelay/internal/domain/session/model"
	"github.com/ManuGH/hlsrelay/internal/m3u"
)

const samplePlaylist = `#EXTM3U
#EXTINF:-1 tvg-id="one" tvg-logo="http://logos/one.png" group-title="News",Channel One
http://origin/one.ts
#EXTINF:-1,Channel Two
http://origin/two.ts
`

type playlistServer struct {
	*httptest.Server
	body   atomic.Value
	status atomic.Int32
}

func newPlaylistServer(t *testing.T, body string) *playlistServer {
	t.Helper()
	ps := &playlistServer{}
	ps.body.Store(body)
	ps.status.Store(http.StatusOK)
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(ps.status.Load()))
		_, _ = w.Write([]byte(ps.body.Load().(string)))
	}))
	t.Cleanup(ps.Close)
	return ps
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc := NewService(newBadger(t, ""), Options{})
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var tick atomic.Int64
	svc.now = func() time.Time { return base.Add(time.Duration(tick.Add(1)) * time.Second) }
	return svc
}

func TestService_ProviderCRUD(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	changes := 0
	svc.OnChange(func() { changes++ })

	p1, err := svc.CreateProvider(ctx, "First", "http://example.com/a.m3u")
	require.NoError(t, err)
	p2, err := svc.CreateProvider(ctx, "Second", "https://example.com/b.m3u")
	require.NoError(t, err)
	assert.NotEqual(t, p1.ID, p2.ID)

	list, err := svc.ListProviders(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "First", list[0].Name)

	got, err := svc.GetProvider(ctx, p2.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/b.m3u", got.PlaylistURL)

	require.NoError(t, svc.DeleteProvider(ctx, p1.ID))
	_, err = svc.GetProvider(ctx, p1.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.DeleteProvider(ctx, p1.ID), ErrNotFound)
	assert.Equal(t, 3, changes)
}

func TestService_CreateProviderValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	for _, tc := range []struct{ name, url string }{
		{"", "http://example.com/a.m3u"},
		{"x", ""},
		{"x", "/relative.m3u"},
		{"x", "ftp://example.com/a.m3u"},
	} {
		_, err := svc.CreateProvider(ctx, tc.name, tc.url)
		assert.ErrorIs(t, err, ErrInvalid, "%q %q", tc.name, tc.url)
	}
}

func TestService_RefreshAndFind(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	srv := newPlaylistServer(t, samplePlaylist)

	p, err := svc.CreateProvider(ctx, "Origin", srv.URL)
	require.NoError(t, err)

	_, found, err := svc.FindByLocator(ctx, "http://origin/one.ts")
	require.NoError(t, err)
	assert.False(t, found, "channels load only on refresh")

	refreshed, err := svc.Refresh(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, refreshed.ChannelCount)
	require.NotNil(t, refreshed.RefreshedAt)

	chans, err := svc.Channels(ctx, p.ID)
	require.NoError(t, err)
	want := []m3u.Channel{
		{Name: "Channel One", TvgID: "one", Logo: "http://logos/one.png", Group: "News", URL: "http://origin/one.ts"},
		{Name: "Channel Two", URL: "http://origin/two.ts"},
	}
	if diff := cmp.Diff(want, chans); diff != "" {
		t.Errorf("channels mismatch (-want +got):\n%s", diff)
	}

	meta, found, err := svc.FindByLocator(ctx, "http://origin/one.ts")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, model.DisplayMetadata{Name: "Channel One", Logo: "http://logos/one.png"}, *meta)

	_, found, err = svc.FindByLocator(ctx, "http://origin/none.ts")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, svc.DeleteProvider(ctx, p.ID))
	_, found, err = svc.FindByLocator(ctx, "http://origin/one.ts")
	require.NoError(t, err)
	assert.False(t, found, "index is rebuilt after a mutation")
}

func TestService_FirstProviderWins(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	first := newPlaylistServer(t, "#EXTINF:-1,From First\nhttp://origin/x.ts\n")
	second := newPlaylistServer(t, "#EXTINF:-1,From Second\nhttp://origin/x.ts\n")

	p1, err := svc.CreateProvider(ctx, "a", first.URL)
	require.NoError(t, err)
	p2, err := svc.CreateProvider(ctx, "b", second.URL)
	require.NoError(t, err)
	_, err = svc.Refresh(ctx, p2.ID)
	require.NoError(t, err)
	_, err = svc.Refresh(ctx, p1.ID)
	require.NoError(t, err)

	meta, found, err := svc.FindByLocator(ctx, "http://origin/x.ts")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "From First", meta.Name)
}

func TestService_RefreshFailureRecordsError(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	srv := newPlaylistServer(t, samplePlaylist)

	p, err := svc.CreateProvider(ctx, "Origin", srv.URL)
	require.NoError(t, err)
	_, err = svc.Refresh(ctx, p.ID)
	require.NoError(t, err)

	srv.status.Store(http.StatusBadGateway)
	_, err = svc.Refresh(ctx, p.ID)
	assert.ErrorIs(t, err, ErrFetch)

	got, err := svc.GetProvider(ctx, p.ID)
	require.NoError(t, err)
	assert.Contains(t, got.LastError, "502")
	assert.Equal(t, 2, got.ChannelCount, "previous channels are kept")

	_, err = svc.Refresh(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_ChannelsBeforeRefresh(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	p, err := svc.CreateProvider(ctx, "x", "http://example.com/a.m3u")
	require.NoError(t, err)

	chans, err := svc.Channels(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, chans)
	assert.NotNil(t, chans)

	_, err = svc.Channels(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_RedisBackend(t *testing.T) {
	ctx := context.Background()
	_, kv := setupMiniRedis(t)
	svc := NewService(kv, Options{})
	srv := newPlaylistServer(t, samplePlaylist)

	p, err := svc.CreateProvider(ctx, "Origin", srv.URL)
	require.NoError(t, err)
	_, err = svc.Refresh(ctx, p.ID)
	require.NoError(t, err)

	meta, found, err := svc.FindByLocator(ctx, "http://origin/two.ts")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Channel Two", meta.Name)
	require.NoError(t, svc.Ping(ctx))
}
