// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "encoding/json"

// EventType discriminates observer events.
type EventType string

const (
	EventStats   EventType = "stats"
	EventListing EventType = "listing"
)

// Event is delivered to real-time observers.
type Event struct {
	Type      EventType
	SessionID string
	Stats     *Stats
	Sessions  []SessionView
}

// NewStatsEvent builds a per-session statistics update.
func NewStatsEvent(id string, st Stats) Event {
	return Event{Type: EventStats, SessionID: id, Stats: &st}
}

// NewListingEvent builds a full ordered listing.
func NewListingEvent(sessions []SessionView) Event {
	if sessions == nil {
		sessions = []SessionView{}
	}
	return Event{Type: EventListing, Sessions: sessions}
}

type statsWire struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	Stats     *Stats    `json:"stats"`
}

type listingWire struct {
	Type     EventType     `json:"type"`
	Sessions []SessionView `json:"sessions"`
}

// MarshalJSON renders the wire shape for the event type.
// A listing always carries a sessions array, even when empty.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Type == EventStats {
		return json.Marshal(statsWire{Type: e.Type, SessionID: e.SessionID, Stats: e.Stats})
	}
	sessions := e.Sessions
	if sessions == nil {
		sessions = []SessionView{}
	}
	return json.Marshal(listingWire{Type: EventListing, Sessions: sessions})
}
