// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metadata resolves display names and logos for session sources.
package metadata

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ManuGH/hlsrelay/internal/cache"
	"github.com/ManuGH/hlsrelay/internal/domain/session/model"
	"github.com/ManuGH/hlsrelay/internal/domain/session/ports"
	"github.com/ManuGH/hlsrelay/internal/log"
	"github.com/ManuGH/hlsrelay/internal/metrics"
)

const DefaultMissTTL = 5 * time.Minute

// Enricher looks up locators in the catalog. Misses are remembered for a while.
type Enricher struct {
	catalog ports.Catalog
	misses  *cache.TTL[struct{}]
	missTTL time.Duration
	group   singleflight.Group
	logger  zerolog.Logger
}

type result struct {
	meta *model.DisplayMetadata
	ok   bool
}

// NewEnricher returns an enricher over catalog. A nil catalog resolves nothing.
func NewEnricher(catalog ports.Catalog, missTTL time.Duration) *Enricher {
	if missTTL <= 0 {
		missTTL = DefaultMissTTL
	}
	return &Enricher{
		catalog: catalog,
		misses:  cache.New[struct{}](missTTL),
		missTTL: missTTL,
		logger:  log.WithComponent("enricher"),
	}
}

// Resolve returns metadata for an exact locator match. Lookup failures count as misses.
func (e *Enricher) Resolve(ctx context.Context, locator string) (*model.DisplayMetadata, bool) {
	if e == nil || e.catalog == nil || locator == "" {
		return nil, false
	}
	if _, miss := e.misses.Get(locator); miss {
		metrics.IncEnricherLookup("cached_miss")
		return nil, false
	}

	v, _, _ := e.group.Do(locator, func() (any, error) {
		meta, ok, err := e.catalog.FindByLocator(ctx, locator)
		if err != nil {
			// Not cached: a transient catalog error should not hide a later hit.
			e.logger.Debug().Err(err).Str(log.FieldSource, locator).Msg("catalog lookup failed")
			metrics.IncEnricherLookup("error")
			return result{}, nil
		}
		if !ok || meta == nil {
			e.misses.Set(locator, struct{}{}, e.missTTL)
			metrics.IncEnricherLookup("miss")
			return result{}, nil
		}
		metrics.IncEnricherLookup("hit")
		m := *meta
		return result{meta: &m, ok: true}, nil
	})
	r := v.(result)
	if !r.ok {
		return nil, false
	}
	out := *r.meta
	return &out, true
}

// Invalidate forgets cached misses, e.g. after the catalog changed.
func (e *Enricher) Invalidate() {
	e.misses.Clear()
}

// Close releases the miss cache janitor.
func (e *Enricher) Close() {
	e.misses.Stop()
}
