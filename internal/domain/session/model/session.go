// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "time"

// Status is the client-visible lifecycle of a session.
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{StatusStarting, StatusRunning, StatusStopping, StatusStopped, StatusError}

// IsActive reports whether a worker is expected to be alive in this status.
func (s Status) IsActive() bool {
	return s == StatusStarting || s == StatusRunning
}

// IsTerminal returns true if no worker runs and none is being stopped.
func (s Status) IsTerminal() bool {
	return s == StatusStopped || s == StatusError
}

// Credentials are injected into the worker input URL. They never leave the process.
type Credentials struct {
	Username string
	Password string
}

// Options parameterize a (re)start.
type Options struct {
	// ID requests a specific session id on Start. Empty allocates a new one.
	ID            string
	IgnoreFailure bool
	Credentials   *Credentials
}

// DisplayMetadata is the human-readable decoration resolved from the catalog.
type DisplayMetadata struct {
	Name string `json:"name"`
	Logo string `json:"logo,omitempty"`
}

// ExitInfo records an unexpected worker exit.
type ExitInfo struct {
	Code   int       `json:"code"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Session is one supervised transcoding task.
// Values handed out by the store are private copies; mutate only through Store.Update.
type Session struct {
	ID            string
	SourceLocator string
	Status        Status
	IgnoreFailure bool
	Credentials   *Credentials

	CreatedAt time.Time
	StartedAt time.Time
	UpdatedAt time.Time

	// Generation increments on every spawn. Worker exit events carry it.
	Generation uint64

	LastStats *Stats
	Metadata  *DisplayMetadata
	Exit      *ExitInfo
	LastError string
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Credentials != nil {
		c := *s.Credentials
		out.Credentials = &c
	}
	if s.LastStats != nil {
		st := *s.LastStats
		out.LastStats = &st
	}
	if s.Metadata != nil {
		m := *s.Metadata
		out.Metadata = &m
	}
	if s.Exit != nil {
		e := *s.Exit
		out.Exit = &e
	}
	return &out
}
