// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/hlsrelay/internal/domain/session/lifecycle"
	"github.com/ManuGH/hlsrelay/internal/domain/session/manager"
	"github.com/ManuGH/hlsrelay/internal/domain/session/model"
	"github.com/ManuGH/hlsrelay/internal/log"
)

type startRequest struct {
	ID            string `json:"id,omitempty"`
	SourceLocator string `json:"sourceLocator"`
	IgnoreFailure bool   `json:"ignoreFailure"`
	Username      string `json:"username,omitempty"`
	Password      string `json:"password,omitempty"`
}

type restartRequest struct {
	IgnoreFailure *bool   `json:"ignoreFailure,omitempty"`
	Username      *string `json:"username,omitempty"`
	Password      *string `json:"password,omitempty"`
}

type reorderRequest struct {
	IDs []string `json:"ids"`
}

func credentialsFrom(username, password string) *model.Credentials {
	if username == "" && password == "" {
		return nil
	}
	return &model.Credentials{Username: username, Password: password}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	views, err := s.sessions.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, views)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	sess, err := s.sessions.Start(r.Context(), req.SourceLocator, model.Options{
		ID:            req.ID,
		IgnoreFailure: req.IgnoreFailure,
		Credentials:   credentialsFrom(req.Username, req.Password),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.sessions.Get(r.Context(), sess.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.FromContext(r.Context()).Info().
		Str(log.FieldEvent, "api.session_started").
		Str(log.FieldSessionID, sess.ID).
		Msg("session started via API")
	w.Header().Set("Location", "/api/sessions/"+sess.ID)
	writeJSON(w, r, http.StatusCreated, view)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.Stop(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.respondSession(w, r, id)
}

func (s *Server) handleRestartSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req restartRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}

	opts := manager.RestartOptions{IgnoreFailure: req.IgnoreFailure}
	if req.Username != nil || req.Password != nil {
		var user, pass string
		if req.Username != nil {
			user = *req.Username
		}
		if req.Password != nil {
			pass = *req.Password
		}
		// Explicit empty values clear stored credentials.
		opts.Credentials = &model.Credentials{Username: user, Password: pass}
	}

	if _, err := s.sessions.Restart(r.Context(), id, opts); err != nil {
		writeError(w, r, err)
		return
	}
	s.respondSession(w, r, id)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	if req.IDs == nil {
		writeError(w, r, lifecycle.NewValidation("ids", "required"))
		return
	}
	if err := s.sessions.Reorder(r.Context(), req.IDs); err != nil {
		writeError(w, r, err)
		return
	}
	s.handleListSessions(w, r)
}

func (s *Server) respondSession(w http.ResponseWriter, r *http.Request, id string) {
	view, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}
