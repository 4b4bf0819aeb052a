// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/hlsrelay/internal/log"
)

func reserveListenAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func waitForListen(t *testing.T, addr string) {
	t.Helper()
	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond, "nothing listening on %s", addr)
}

func testServerConfig(listen string) ServerConfig {
	return ServerConfig{
		ListenAddr:      listen,
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		IdleTimeout:     10 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 2 * time.Second,
	}
}

func newTestManager(t *testing.T, sc ServerConfig, api, metrics http.Handler) Manager {
	t.Helper()
	mgr, err := NewManager(sc, Deps{Logger: log.WithComponent("test"), APIHandler: api, MetricsHandler: metrics})
	require.NoError(t, err)
	return mgr
}

// runManager starts mgr in the background and returns its cancel and result channel.
func runManager(mgr Manager) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Start(ctx) }()
	return cancel, done
}

func awaitStop(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancellation")
		return nil
	}
}

func TestNewManager_ValidatesDeps(t *testing.T) {
	tests := []struct {
		name string
		deps Deps
		want error
	}{
		{"valid", Deps{Logger: log.WithComponent("test"), APIHandler: http.NotFoundHandler()}, nil},
		{"disabled logger", Deps{Logger: zerolog.Nop(), APIHandler: http.NotFoundHandler()}, ErrMissingLogger},
		{"no api handler", Deps{Logger: log.WithComponent("test")}, ErrMissingAPIHandler},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr, err := NewManager(ServerConfig{ListenAddr: "127.0.0.1:0"}, tt.deps)
			if tt.want == nil {
				require.NoError(t, err)
				assert.NotNil(t, mgr)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestManager_ServesUntilCancelled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	addr := reserveListenAddr(t)
	api := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "relay")
	})
	mgr := newTestManager(t, testServerConfig(addr), api, nil)

	cancel, done := runManager(mgr)
	defer cancel()
	waitForListen(t, addr)

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + addr + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "relay", string(body))

	cancel()
	assert.NoError(t, awaitStop(t, done))
}

func TestManager_ShutdownTimesOutOnStuckRequest(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	inFlight := make(chan struct{})
	release := make(chan struct{})
	api := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		close(inFlight)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	sc := testServerConfig(reserveListenAddr(t))
	sc.ShutdownTimeout = 100 * time.Millisecond
	mgr := newTestManager(t, sc, api, nil)

	cancel, done := runManager(mgr)
	defer cancel()
	waitForListen(t, sc.ListenAddr)

	requestDone := make(chan struct{})
	go func() {
		defer close(requestDone)
		client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
		if resp, err := client.Get("http://" + sc.ListenAddr); err == nil {
			_ = resp.Body.Close()
		}
	}()

	select {
	case <-inFlight:
	case <-time.After(2 * time.Second):
		t.Fatal("request never reached the handler")
	}

	cancel()
	err := awaitStop(t, done)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	select {
	case <-requestDone:
	case <-time.After(2 * time.Second):
		t.Fatal("stuck request did not finish after release")
	}
}

func TestManager_ShutdownBeforeStart(t *testing.T) {
	mgr := newTestManager(t, testServerConfig("127.0.0.1:0"), http.NotFoundHandler(), nil)
	assert.ErrorIs(t, mgr.Shutdown(context.Background()), ErrManagerNotStarted)
}

func TestManager_ServesMetricsOnSeparateListener(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	sc := testServerConfig("127.0.0.1:0")
	sc.MetricsAddr = reserveListenAddr(t)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "# HELP hlsrelay_sessions_active\n")
	})
	mgr := newTestManager(t, sc, http.NotFoundHandler(), metrics)

	cancel, done := runManager(mgr)
	defer cancel()
	waitForListen(t, sc.MetricsAddr)

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + sc.MetricsAddr + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Contains(t, string(body), "hlsrelay_sessions_active")

	cancel()
	assert.NoError(t, awaitStop(t, done))
}

func TestManager_BindConflictFailsStart(t *testing.T) {
	occupied := httptest.NewServer(http.NotFoundHandler())
	defer occupied.Close()

	var hookRan bool
	mgr := newTestManager(t, testServerConfig(occupied.Listener.Addr().String()), http.NotFoundHandler(), nil)
	mgr.RegisterShutdownHook("supervisor", func(context.Context) error {
		hookRan = true
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := mgr.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API server")
	assert.True(t, hookRan, "components must be torn down when binding fails")
}

func TestManager_ShutdownHooksRunLIFO(t *testing.T) {
	mgr := newTestManager(t, testServerConfig("127.0.0.1:0"), http.NotFoundHandler(), nil)

	var order []string
	for _, name := range []string{"telemetry", "hub", "supervisor"} {
		mgr.RegisterShutdownHook(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}
	boom := errors.New("boom")
	mgr.RegisterShutdownHook("failing", func(context.Context) error { return boom })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := mgr.Start(ctx)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "hook failing")
	assert.Equal(t, []string{"supervisor", "hub", "telemetry"}, order)

	assert.NoError(t, mgr.Shutdown(context.Background()), "second shutdown is a no-op")
}

func TestManager_StartTwice(t *testing.T) {
	mgr := newTestManager(t, testServerConfig("127.0.0.1:0"), http.NotFoundHandler(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = mgr.Start(ctx)
	assert.ErrorIs(t, mgr.Start(ctx), ErrManagerStarted)
}
