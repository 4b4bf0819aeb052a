// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"net/url"
	"path"
	"strings"
	"time"
)

// SessionView is the decorated, observer-facing projection of a Session.
type SessionView struct {
	ID            string    `json:"id"`
	SourceLocator string    `json:"sourceLocator"`
	Status        Status    `json:"status"`
	IgnoreFailure bool      `json:"ignoreFailure"`
	Name          string    `json:"name"`
	Logo          string    `json:"logo,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	StartedAt     time.Time `json:"startedAt"`
	PlaylistURL   string    `json:"playlistUrl"`
	Stats         *Stats    `json:"stats,omitempty"`
	Exit          *ExitInfo `json:"exit,omitempty"`
	Error         string    `json:"error,omitempty"`
	// Stalled marks a session that has been starting for longer than the start timeout.
	Stalled bool `json:"stalled"`
}

// NewView projects s for observers. startTimeout <= 0 disables the stalled flag.
func NewView(s *Session, now time.Time, startTimeout time.Duration) SessionView {
	v := SessionView{
		ID:            s.ID,
		SourceLocator: s.SourceLocator,
		Status:        s.Status,
		IgnoreFailure: s.IgnoreFailure,
		CreatedAt:     s.CreatedAt,
		StartedAt:     s.StartedAt,
		PlaylistURL:   PlaylistPath(s.ID),
		Error:         s.LastError,
	}
	if s.Metadata != nil && s.Metadata.Name != "" {
		v.Name = s.Metadata.Name
		v.Logo = s.Metadata.Logo
	} else {
		v.Name = FallbackName(s.SourceLocator)
	}
	if s.LastStats != nil {
		st := *s.LastStats
		v.Stats = &st
	}
	if s.Exit != nil {
		e := *s.Exit
		v.Exit = &e
	}
	if startTimeout > 0 && s.Status == StatusStarting && !s.StartedAt.IsZero() {
		v.Stalled = now.Sub(s.StartedAt) > startTimeout
	}
	return v
}

// PlaylistPath is the HTTP path of a session's live playlist.
func PlaylistPath(id string) string {
	return "/hls/" + id + "/index.m3u8"
}

// FallbackName derives a placeholder display name from a locator.
func FallbackName(locator string) string {
	u, err := url.Parse(locator)
	if err != nil || u.Host == "" {
		if locator == "" {
			return "Unnamed stream"
		}
		return locator
	}
	base := path.Base(strings.TrimSuffix(u.Path, "/"))
	if base == "." || base == "/" || base == "" {
		return u.Hostname()
	}
	return u.Hostname() + " " + base
}
