// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/hlsrelay/internal/log"
)

type createProviderRequest struct {
	Name        string `json:"name"`
	PlaylistURL string `json:"playlistUrl"`
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := s.catalog.ListProviders(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, providers)
}

func (s *Server) handleCreateProvider(w http.ResponseWriter, r *http.Request) {
	var req createProviderRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.catalog.CreateProvider(r.Context(), req.Name, req.PlaylistURL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/providers/"+p.ID)
	writeJSON(w, r, http.StatusCreated, p)
}

func (s *Server) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	p, err := s.catalog.GetProvider(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

func (s *Server) handleDeleteProvider(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.DeleteProvider(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefreshProvider(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := s.catalog.Refresh(r.Context(), id)
	if err != nil {
		log.FromContext(r.Context()).Warn().
			Err(err).
			Str(log.FieldProviderID, id).
			Str(log.FieldEvent, "api.provider_refresh_failed").
			Msg("provider refresh failed")
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

func (s *Server) handleProviderChannels(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.catalog.GetProvider(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	channels, err := s.catalog.Channels(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, channels)
}
