// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/hlsrelay/internal/api/middleware"
	"github.com/ManuGH/hlsrelay/internal/broadcast"
	"github.com/ManuGH/hlsrelay/internal/catalog"
	"github.com/ManuGH/hlsrelay/internal/domain/session/lifecycle"
	"github.com/ManuGH/hlsrelay/internal/domain/session/manager"
	"github.com/ManuGH/hlsrelay/internal/domain/session/model"
	"github.com/ManuGH/hlsrelay/internal/health"
)

type testServer struct {
	srv      *Server
	sessions *fakeSessions
	hub      *broadcast.Hub
}

func newTestServer(t *testing.T, mutate ...func(*Config, *Deps)) *testServer {
	t.Helper()
	sessions := newFakeSessions(t.TempDir())
	hub := broadcast.NewHub(broadcast.Options{})
	t.Cleanup(hub.Close)

	cfg := Config{
		PlaylistGroup: "test",
		Stack: middleware.StackConfig{
			EnableMetrics:  true,
			EnableLogging:  true,
			TracingService: "hlsrelay-test",
		},
	}
	deps := Deps{Sessions: sessions, Hub: hub, Health: health.NewManager("test")}
	for _, m := range mutate {
		m(&cfg, &deps)
	}
	srv, err := New(cfg, deps)
	require.NoError(t, err)
	return &testServer{srv: srv, sessions: sessions, hub: hub}
}

func (ts *testServer) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Config{}, Deps{})
	require.Error(t, err)
}

func TestSessions_StartGetList(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/sessions", map[string]any{
		"sourceLocator": "http://example.com/live/one.ts",
		"ignoreFailure": true,
		"username":      "user",
		"password":      "secret",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	view := decode[model.SessionView](t, rec)
	assert.Equal(t, "s1", view.ID)
	assert.Equal(t, model.StatusStarting, view.Status)
	assert.Equal(t, "/hls/s1/index.m3u8", view.PlaylistURL)
	assert.Equal(t, "/api/sessions/s1", rec.Header().Get("Location"))
	assert.NotContains(t, rec.Body.String(), "secret")
	require.NotNil(t, ts.sessions.lastOpts.Credentials)
	assert.Equal(t, "user", ts.sessions.lastOpts.Credentials.Username)

	rec = ts.do(t, http.MethodPost, "/api/sessions", map[string]any{
		"id":            "custom",
		"sourceLocator": "http://example.com/live/two.ts",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Nil(t, ts.sessions.lastOpts.Credentials)

	rec = ts.do(t, http.MethodGet, "/api/sessions/custom", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "custom", decode[model.SessionView](t, rec).ID)

	rec = ts.do(t, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	views := decode[[]model.SessionView](t, rec)
	ids := make([]string, 0, len(views))
	for _, v := range views {
		ids = append(ids, v.ID)
	}
	if diff := cmp.Diff([]string{"s1", "custom"}, ids); diff != "" {
		t.Fatalf("listing order mismatch (-want +got):\n%s", diff)
	}
}

func TestSessions_EmptyListIsArray(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestSessions_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(ts *testServer)
		method string
		target string
		body   any
		status int
		code   string
	}{
		{
			name:   "unknown session",
			method: http.MethodGet, target: "/api/sessions/nope",
			status: http.StatusNotFound, code: CodeNotFound,
		},
		{
			name:   "missing locator",
			method: http.MethodPost, target: "/api/sessions", body: map[string]any{},
			status: http.StatusBadRequest, code: CodeInvalidInput,
		},
		{
			name:   "malformed json",
			method: http.MethodPost, target: "/api/sessions", body: "{not json",
			status: http.StatusBadRequest, code: CodeInvalidInput,
		},
		{
			name:   "unknown field",
			method: http.MethodPost, target: "/api/sessions", body: `{"sourceLocator":"http://x/y","bogus":1}`,
			status: http.StatusBadRequest, code: CodeInvalidInput,
		},
		{
			name: "spawn failure",
			setup: func(ts *testServer) {
				ts.sessions.startErr = &lifecycle.SpawnError{SessionID: "x", Err: errors.New("exec: not found")}
			},
			method: http.MethodPost, target: "/api/sessions", body: map[string]any{"sourceLocator": "http://x/y"},
			status: http.StatusBadGateway, code: CodeSpawnFailed,
		},
		{
			name:   "shutting down",
			setup:  func(ts *testServer) { ts.sessions.startErr = manager.ErrShuttingDown },
			method: http.MethodPost, target: "/api/sessions", body: map[string]any{"sourceLocator": "http://x/y"},
			status: http.StatusServiceUnavailable, code: CodeUnavailable,
		},
		{
			name:   "internal error is masked",
			setup:  func(ts *testServer) { ts.sessions.startErr = errors.New("disk on fire") },
			method: http.MethodPost, target: "/api/sessions", body: map[string]any{"sourceLocator": "http://x/y"},
			status: http.StatusInternalServerError, code: CodeInternal,
		},
		{
			name:   "unknown route",
			method: http.MethodGet, target: "/api/nothing",
			status: http.StatusNotFound, code: CodeNotFound,
		},
		{
			name:   "method not allowed",
			method: http.MethodPatch, target: "/api/sessions",
			status: http.StatusMethodNotAllowed, code: CodeInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			if tt.setup != nil {
				tt.setup(ts)
			}
			rec := ts.do(t, tt.method, tt.target, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			body := decode[ErrorBody](t, rec)
			assert.Equal(t, tt.code, body.Code)
			assert.NotEmpty(t, body.RequestID)
			assert.Equal(t, rec.Header().Get(middleware.HeaderRequestID), body.RequestID)
			assert.NotContains(t, body.Error, "disk on fire")
		})
	}
}

func TestSessions_DuplicateIDConflicts(t *testing.T) {
	ts := newTestServer(t)
	body := map[string]any{"id": "dup", "sourceLocator": "http://x/y"}
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/sessions", body).Code)

	rec := ts.do(t, http.MethodPost, "/api/sessions", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeConflict, decode[ErrorBody](t, rec).Code)
}

func TestSessions_StopRestartDelete(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/sessions", map[string]any{"sourceLocator": "http://x/y"}).Code)

	rec := ts.do(t, http.MethodPost, "/api/sessions/s1/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.StatusStopped, decode[model.SessionView](t, rec).Status)

	rec = ts.do(t, http.MethodPost, "/api/sessions/s1/restart", nil)
	require.Equal(t, http.StatusOK, rec.Code, "empty body is allowed")
	assert.Equal(t, model.StatusStarting, decode[model.SessionView](t, rec).Status)
	assert.Nil(t, ts.sessions.lastRestart.IgnoreFailure)
	assert.Nil(t, ts.sessions.lastRestart.Credentials)

	rec = ts.do(t, http.MethodPost, "/api/sessions/s1/restart", map[string]any{"ignoreFailure": true, "password": "pw"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[model.SessionView](t, rec).IgnoreFailure)
	require.NotNil(t, ts.sessions.lastRestart.Credentials)
	assert.Equal(t, "pw", ts.sessions.lastRestart.Credentials.Password)

	rec = ts.do(t, http.MethodDelete, "/api/sessions/s1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, "/api/sessions/s1", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/api/sessions/s1/stop", nil).Code)
}

func TestSessions_Reorder(t *testing.T) {
	ts := newTestServer(t)
	for i := 0; i < 3; i++ {
		rec := ts.do(t, http.MethodPost, "/api/sessions", map[string]any{"sourceLocator": fmt.Sprintf("http://x/%d", i)})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := ts.do(t, http.MethodPut, "/api/sessions/order", map[string]any{"ids": []string{"s3", "s1", "s2"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	views := decode[[]model.SessionView](t, rec)
	require.Len(t, views, 3)
	assert.Equal(t, "s3", views[0].ID)

	rec = ts.do(t, http.MethodPut, "/api/sessions/order", map[string]any{"ids": []string{"s1", "ghost"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/sessions/order", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaylist_ListsActiveSessions(t *testing.T) {
	ts := newTestServer(t, func(c *Config, _ *Deps) { c.PublicURL = "https://tv.example.com/" })
	for _, loc := range []string{"http://x/a", "http://x/b"} {
		require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/sessions", map[string]any{"sourceLocator": loc}).Code)
	}
	ts.sessions.setStatus("s2", model.StatusStopped)

	rec := ts.do(t, http.MethodGet, "/playlist.m3u", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ContentTypeM3U, rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "#EXTM3U\n"))
	assert.Contains(t, body, "https://tv.example.com/hls/s1/index.m3u8")
	assert.NotContains(t, body, "/hls/s2/")
	assert.Contains(t, body, `group-title="test"`)
}

func TestPlaylist_BaseURLFromRequest(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/sessions", map[string]any{"sourceLocator": "http://x/a"}).Code)

	req := httptest.NewRequest(http.MethodGet, "/playlist.m3u", nil)
	req.Host = "relay.lan:8080"
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	assert.Contains(t, rec.Body.String(), "https://relay.lan:8080/hls/s1/index.m3u8")
}

func TestHealthRoutes(t *testing.T) {
	ts := newTestServer(t, func(_ *Config, d *Deps) {
		d.Health.RegisterChecker(health.NewPingChecker("catalog", func(ctx context.Context) error {
			return errors.New("down")
		}))
	})
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, ts.do(t, http.MethodGet, "/readyz", nil).Code)
}

func TestRequestID_EchoedWhenSane(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.Header.Set(middleware.HeaderRequestID, "trace-abc-123")
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	assert.Equal(t, "trace-abc-123", rec.Header().Get(middleware.HeaderRequestID))

	req = httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.Header.Set(middleware.HeaderRequestID, "bad id\n")
	rec = httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	assert.NotEqual(t, "bad id\n", rec.Header().Get(middleware.HeaderRequestID))
	assert.NotEmpty(t, rec.Header().Get(middleware.HeaderRequestID))
}

func TestRateLimit_AppliesToAPIOnly(t *testing.T) {
	ts := newTestServer(t, func(c *Config, _ *Deps) {
		c.Stack.RateLimitEnabled = true
		c.Stack.RequestsPerMinute = 2
	})
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/sessions", nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/sessions", nil).Code)
	rec := ts.do(t, http.MethodGet, "/api/sessions", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/healthz", nil).Code)
	}
}

func TestCORS_Preflight(t *testing.T) {
	ts := newTestServer(t, func(c *Config, _ *Deps) {
		c.Stack.AllowedOrigins = []string{"https://ui.example.com"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/sessions", nil)
	req.Header.Set("Origin", "https://ui.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	assert.Equal(t, "https://ui.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestProvidersRoutesAbsentWithoutCatalog(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/providers", nil).Code)
}

var _ Catalog = (*catalog.Service)(nil)
