// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes sessions, providers, live events and HLS artifacts over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/hlsrelay/internal/api/middleware"
	"github.com/ManuGH/hlsrelay/internal/broadcast"
	"github.com/ManuGH/hlsrelay/internal/catalog"
	"github.com/ManuGH/hlsrelay/internal/domain/session/manager"
	"github.com/ManuGH/hlsrelay/internal/domain/session/model"
	"github.com/ManuGH/hlsrelay/internal/health"
	"github.com/ManuGH/hlsrelay/internal/m3u"
)

// Sessions is the session lifecycle surface the API drives.
type Sessions interface {
	Start(ctx context.Context, locator string, opts model.Options) (*model.Session, error)
	Restart(ctx context.Context, id string, opts manager.RestartOptions) (*model.Session, error)
	Stop(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	Reorder(ctx context.Context, ids []string) error
	List(ctx context.Context) ([]model.SessionView, error)
	Get(ctx context.Context, id string) (model.SessionView, error)
	WorkDir(id string) string
}

// Catalog is the provider management surface.
type Catalog interface {
	CreateProvider(ctx context.Context, name, playlistURL string) (*catalog.Provider, error)
	ListProviders(ctx context.Context) ([]catalog.Provider, error)
	GetProvider(ctx context.Context, id string) (*catalog.Provider, error)
	DeleteProvider(ctx context.Context, id string) error
	Refresh(ctx context.Context, id string) (*catalog.Provider, error)
	Channels(ctx context.Context, id string) ([]m3u.Channel, error)
}

// Subscriber registers live event observers.
type Subscriber interface {
	Subscribe(obs broadcast.Observer) (unsubscribe func())
}

// Config tunes the HTTP surface.
type Config struct {
	// PublicURL prefixes playlist entries; empty derives it from the request.
	PublicURL     string
	PlaylistGroup string
	// AllowedOrigins also governs websocket origin checks.
	Stack middleware.StackConfig
}

// Deps are the collaborators of a Server. Catalog and Health are optional.
type Deps struct {
	Sessions Sessions
	Catalog  Catalog
	Hub      Subscriber
	Health   *health.Manager
}

// Server routes HTTP requests to the supervisor, catalog and hub.
type Server struct {
	cfg      Config
	sessions Sessions
	catalog  Catalog
	hub      Subscriber
	health   *health.Manager
	router   chi.Router
}

// New builds the router. The returned Server is an http.Handler.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Sessions == nil || deps.Hub == nil {
		return nil, errors.New("api: sessions and hub are required")
	}
	s := &Server{
		cfg:      cfg,
		sessions: deps.Sessions,
		catalog:  deps.Catalog,
		hub:      deps.Hub,
		health:   deps.Health,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	// Rate limiting covers the control API only; players poll playlists and segments.
	stack := s.cfg.Stack
	limit := stack.RateLimitEnabled && stack.RequestsPerMinute > 0
	stack.RateLimitEnabled = false
	r := middleware.NewRouter(stack)

	if s.health != nil {
		r.Get("/healthz", s.health.ServeHealth)
		r.Get("/readyz", s.health.ServeReady)
	}

	r.Route("/api", func(r chi.Router) {
		if limit {
			r.Use(middleware.APIRateLimit(s.cfg.Stack.RequestsPerMinute))
		}
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Post("/", s.handleStartSession)
			r.Put("/order", s.handleReorder)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleDeleteSession)
				r.Post("/stop", s.handleStopSession)
				r.Post("/restart", s.handleRestartSession)
			})
		})
		if s.catalog != nil {
			r.Route("/providers", func(r chi.Router) {
				r.Get("/", s.handleListProviders)
				r.Post("/", s.handleCreateProvider)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetProvider)
					r.Delete("/", s.handleDeleteProvider)
					r.Post("/refresh", s.handleRefreshProvider)
					r.Get("/channels", s.handleProviderChannels)
				})
			})
		}
	})

	r.Get("/ws", s.handleWS)
	r.Get("/playlist.m3u", s.handlePlaylist)
	r.Get("/hls/{id}/*", s.handleHLS)
	r.Head("/hls/{id}/*", s.handleHLS)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrorBody(w, r, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeErrorBody(w, r, http.StatusMethodNotAllowed, CodeInvalidInput, "method not allowed")
	})
	return r
}
