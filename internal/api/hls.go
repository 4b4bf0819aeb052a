// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/hlsrelay/internal/domain/session/model"
	"github.com/ManuGH/hlsrelay/internal/fsutil"
	"github.com/ManuGH/hlsrelay/internal/log"
	"github.com/ManuGH/hlsrelay/internal/playlist"
)

const (
	ContentTypeHLSPlaylist = "application/vnd.apple.mpegurl"
	ContentTypeHLSSegment  = "video/mp2t"
	ContentTypeFMP4Segment = "video/mp4"
	ContentTypeM3U         = "audio/x-mpegurl"
)

// hlsContentType returns the content type for a servable artifact name.
func hlsContentType(name string) (string, bool) {
	switch strings.ToLower(path.Ext(name)) {
	case ".m3u8":
		return ContentTypeHLSPlaylist, true
	case ".ts":
		return ContentTypeHLSSegment, true
	case ".m4s", ".mp4":
		return ContentTypeFMP4Segment, true
	default:
		return "", false
	}
}

// handleHLS serves the working area of one session. Playlists are never cached;
// segments are immutable once listed.
func (s *Server) handleHLS(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rel := chi.URLParam(r, "*")
	contentType, ok := hlsContentType(rel)
	if !model.IsSafeSessionID(id) || !ok {
		writeErrorBody(w, r, http.StatusNotFound, CodeNotFound, "artifact not found")
		return
	}

	full, err := fsutil.ConfineRelPath(s.sessions.WorkDir(id), rel)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.FromContext(r.Context()).Warn().
				Err(err).
				Str(log.FieldSessionID, id).
				Str(log.FieldEvent, "hls.path_rejected").
				Msg("rejected artifact path")
		}
		writeErrorBody(w, r, http.StatusNotFound, CodeNotFound, "artifact not found")
		return
	}

	f, info, err := fsutil.OpenRegular(full)
	if err != nil {
		writeErrorBody(w, r, http.StatusNotFound, CodeNotFound, "artifact not found")
		return
	}
	defer func() { _ = f.Close() }()

	w.Header().Set("Content-Type", contentType)
	if contentType == ContentTypeHLSPlaylist {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	} else {
		w.Header().Set("Cache-Control", "public, max-age=60")
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// handlePlaylist renders the ordered active sessions as an M3U playlist.
func (s *Server) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	views, err := s.sessions.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	body := playlist.Render(views, s.baseURL(r), s.cfg.PlaylistGroup)

	w.Header().Set("Content-Type", ContentTypeM3U)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Disposition", `inline; filename="playlist.m3u"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// baseURL prefers the configured public URL and falls back to the request origin.
func (s *Server) baseURL(r *http.Request) string {
	if s.cfg.PublicURL != "" {
		return strings.TrimRight(s.cfg.PublicURL, "/")
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
