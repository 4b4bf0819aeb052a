// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package store holds the authoritative set of sessions.
package store

import (
	"context"

	"github.com/ManuGH/hlsrelay/internal/domain/session/model"
)

// UpdateFunc mutates a private copy of a session. Returning an error discards the copy.
type UpdateFunc func(s *model.Session) error

// Store is the session registry contract.
type Store interface {
	Create(ctx context.Context, s *model.Session) error
	Get(ctx context.Context, id string) (*model.Session, error)
	List(ctx context.Context) ([]*model.Session, error)
	Update(ctx context.Context, id string, fn UpdateFunc) (*model.Session, error)
	Delete(ctx context.Context, id string) error
}
