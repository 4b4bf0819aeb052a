// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"regexp"

	"github.com/google/uuid"
)

var sessionIDRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// maxSessionIDLen bounds ids supplied by callers; generated ids are 36 chars.
const maxSessionIDLen = 64

// IsSafeSessionID returns true if the ID is safe for filesystem paths and URLs.
func IsSafeSessionID(id string) bool {
	return len(id) <= maxSessionIDLen && sessionIDRe.MatchString(id)
}

// NewSessionID allocates a fresh random session id.
func NewSessionID() string {
	return uuid.NewString()
}
