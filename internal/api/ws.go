// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ManuGH/hlsrelay/internal/domain/session/model"
	"github.com/ManuGH/hlsrelay/internal/log"
	"github.com/ManuGH/hlsrelay/internal/metrics"
)

const (
	wsPongWait     = 60 * time.Second
	wsPingInterval = wsPongWait * 9 / 10
	wsControlWait  = 5 * time.Second
	wsMaxInbound   = 4096
)

// wsObserver delivers hub events to one websocket client as JSON text frames.
// The hub serializes Send calls; control frames may be written concurrently.
type wsObserver struct {
	conn      *websocket.Conn
	closeOnce sync.Once
}

func (o *wsObserver) Send(ctx context.Context, ev model.Event) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(wsControlWait)
	}
	if err := o.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return o.conn.WriteJSON(ev)
}

func (o *wsObserver) Close() error {
	var err error
	o.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
		_ = o.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsControlWait))
		err = o.conn.Close()
	})
	return err
}

func (s *Server) upgrader() *websocket.Upgrader {
	origins := s.cfg.Stack.AllowedOrigins
	return &websocket.Upgrader{
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || slices.Contains(origins, "*") || slices.Contains(origins, origin) {
				return true
			}
			u, err := url.Parse(origin)
			return err == nil && strings.EqualFold(u.Host, r.Host)
		},
	}
}

// handleWS subscribes the client to session events until either side goes away.
// The first frame is always a full listing.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "ws")

	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	closed := metrics.WSConnected()
	defer closed()

	obs := &wsObserver{conn: conn}
	unsubscribe := s.hub.Subscribe(obs)
	logger.Info().Str(log.FieldEvent, "ws.connected").Str("remote_addr", r.RemoteAddr).Msg("observer connected")

	conn.SetReadLimit(wsMaxInbound)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	stopPing := make(chan struct{})
	pingDone := make(chan struct{})
	go func() {
		defer close(pingDone)
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopPing:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsControlWait)); err != nil {
					return
				}
			}
		}
	}()

	// Inbound messages are ignored; reading drives pong and close handling.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	close(stopPing)
	<-pingDone
	unsubscribe()
	_ = obs.Close()
	logger.Info().Str(log.FieldEvent, "ws.disconnected").Str("remote_addr", r.RemoteAddr).Msg("observer disconnected")
}
