// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrKeyNotFound is returned by KV.Get for absent keys.
var ErrKeyNotFound = errors.New("key not found")

// KV is the byte store behind the catalog.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	// List returns the values of all keys with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([][]byte, error)
	Ping(ctx context.Context) error
	Close() error
}

const (
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// StoreConfig selects and configures the KV backend.
type StoreConfig struct {
	Backend string
	// Path is the badger directory. Empty keeps the data in memory.
	Path  string
	Redis RedisConfig
}

// OpenKV creates a KV based on the backend configuration.
func OpenKV(ctx context.Context, cfg StoreConfig, logger zerolog.Logger) (KV, error) {
	switch cfg.Backend {
	case "", BackendBadger:
		return OpenBadger(cfg.Path)
	case BackendRedis:
		return NewRedis(ctx, cfg.Redis, logger)
	default:
		return nil, fmt.Errorf("unknown catalog backend: %s", cfg.Backend)
	}
}
