// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/hlsrelay/internal/broadcast"
	"github.com/ManuGH/hlsrelay/internal/domain/session/model"
)

type wireEvent struct {
	Type      string              `json:"type"`
	SessionID string              `json:"sessionId"`
	Stats     *model.Stats        `json:"stats"`
	Sessions  []model.SessionView `json:"sessions"`
}

func dialWS(t *testing.T, ts *testServer, header http.Header) (*websocket.Conn, *httptest.Server) {
	t.Helper()
	ts.hub.SetSnapshot(func(ctx context.Context) model.Event {
		views, _ := ts.sessions.List(ctx)
		return model.NewListingEvent(views)
	})
	srv := httptest.NewServer(ts.srv)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return conn, srv
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev wireEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestWS_ListingThenEvents(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ts := newTestServer(t)
	_, err := ts.sessions.Start(context.Background(), "http://x/live.ts", model.Options{ID: "live"})
	require.NoError(t, err)

	conn, srv := dialWS(t, ts, nil)

	first := readEvent(t, conn)
	assert.Equal(t, "listing", first.Type)
	require.Len(t, first.Sessions, 1)
	assert.Equal(t, "live", first.Sessions[0].ID)

	require.Eventually(t, func() bool { return ts.hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	ts.hub.Publish(model.NewStatsEvent("live", model.Stats{Frame: 42, FPS: 25}))

	ev := readEvent(t, conn)
	assert.Equal(t, "stats", ev.Type)
	assert.Equal(t, "live", ev.SessionID)
	require.NotNil(t, ev.Stats)
	assert.EqualValues(t, 42, ev.Stats.Frame)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return ts.hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
	srv.Close()
}

func TestWS_HubCloseDisconnectsClient(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ts := newTestServer(t)
	conn, srv := dialWS(t, ts, nil)
	defer func() { _ = conn.Close() }()

	assert.Equal(t, "listing", readEvent(t, conn).Type)
	ts.hub.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	srv.Close()
}

func TestWS_RejectsForeignOrigin(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.srv)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

var _ broadcast.Observer = (*wsObserver)(nil)
