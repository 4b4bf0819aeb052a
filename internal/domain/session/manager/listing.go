// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"

	"github.com/ManuGH/hlsrelay/internal/domain/session/model"
	"github.com/ManuGH/hlsrelay/internal/metrics"
)

var statusLabels = func() []string {
	out := make([]string, 0, len(model.AllStatuses))
	for _, st := range model.AllStatuses {
		out = append(out, string(st))
	}
	return out
}()

// List returns decorated sessions in display order.
func (s *Supervisor) List(ctx context.Context) ([]model.SessionView, error) {
	sessions, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	ordered := s.order.Materialize(sessions)

	now := s.now()
	counts := make(map[string]int, len(statusLabels))
	views := make([]model.SessionView, 0, len(ordered))
	for _, sess := range ordered {
		s.enrich(ctx, sess)
		counts[string(sess.Status)]++
		views = append(views, model.NewView(sess, now, s.cfg.StartTimeout))
	}
	metrics.SetSessionCounts(statusLabels, counts)
	return views, nil
}

// Get returns one decorated session.
func (s *Supervisor) Get(ctx context.Context, id string) (model.SessionView, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return model.SessionView{}, err
	}
	s.enrich(ctx, sess)
	return model.NewView(sess, s.now(), s.cfg.StartTimeout), nil
}

// ListingEvent builds a full listing event. It never fails; errors yield an empty listing.
func (s *Supervisor) ListingEvent(ctx context.Context) model.Event {
	views, err := s.List(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("listing failed")
	}
	return model.NewListingEvent(views)
}

func (s *Supervisor) publishListing(ctx context.Context) {
	s.hub.Publish(s.ListingEvent(ctx))
}

// enrich resolves metadata once per session and caches hits on the session.
func (s *Supervisor) enrich(ctx context.Context, sess *model.Session) {
	if s.resolver == nil || sess.Metadata != nil {
		return
	}
	meta, ok := s.resolver.Resolve(ctx, sess.SourceLocator)
	if !ok {
		return
	}
	sess.Metadata = meta
	_, _ = s.store.Update(ctx, sess.ID, func(cur *model.Session) error {
		if cur.Metadata == nil {
			m := *meta
			cur.Metadata = &m
		}
		return nil
	})
}
