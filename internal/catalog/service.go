// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package catalog stores playlist providers and resolves source locators to
// display metadata.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/codes"

	"github.com/ManuGH/hlsrelay/internal/domain/session/model"
	"github.com/ManuGH/hlsrelay/internal/domain/session/ports"
	"github.com/ManuGH/hlsrelay/internal/log"
	"github.com/ManuGH/hlsrelay/internal/m3u"
	"github.com/ManuGH/hlsrelay/internal/metrics"
	"github.com/ManuGH/hlsrelay/internal/telemetry"
)

var (
	ErrNotFound = errors.New("provider not found")
	ErrInvalid  = errors.New("invalid provider")
	ErrFetch    = errors.New("playlist fetch failed")
)

const (
	providerPrefix = "prov:"
	channelPrefix  = "chan:"

	DefaultFetchTimeout     = 30 * time.Second
	DefaultMaxPlaylistBytes = 32 << 20
)

// Provider is a remote M3U playlist whose channels decorate sessions.
type Provider struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	PlaylistURL  string     `json:"playlistUrl"`
	CreatedAt    time.Time  `json:"createdAt"`
	RefreshedAt  *time.Time `json:"refreshedAt,omitempty"`
	ChannelCount int        `json:"channelCount"`
	LastError    string     `json:"lastError,omitempty"`
}

// Options tune a Service.
type Options struct {
	HTTPClient       *http.Client
	FetchTimeout     time.Duration
	MaxPlaylistBytes int64
}

// Service manages providers and their cached channel lists.
type Service struct {
	kv       KV
	client   *http.Client
	maxBytes int64
	logger   zerolog.Logger
	now      func() time.Time

	// writeMu serializes mutations so the index is never rebuilt from a half-written state.
	writeMu sync.Mutex

	mu       sync.RWMutex
	index    map[string]model.DisplayMetadata
	onChange []func()
}

var _ ports.Catalog = (*Service)(nil)

// NewService returns a catalog over kv.
func NewService(kv KV, opts Options) *Service {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.MaxPlaylistBytes <= 0 {
		opts.MaxPlaylistBytes = DefaultMaxPlaylistBytes
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout:   opts.FetchTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Service{
		kv:       kv,
		client:   client,
		maxBytes: opts.MaxPlaylistBytes,
		logger:   log.WithComponent("catalog"),
		now:      time.Now,
	}
}

// OnChange registers fn to run after every mutation.
func (s *Service) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

func (s *Service) changed(ctx context.Context) {
	s.mu.Lock()
	s.index = nil
	listeners := append([]func(){}, s.onChange...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
	if provs, err := s.ListProviders(ctx); err == nil {
		metrics.SetCatalogProviders(len(provs))
	}
}

// Ping reports whether the backing store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.kv.Ping(ctx)
}

// Close closes the backing store.
func (s *Service) Close() error {
	return s.kv.Close()
}

// CreateProvider registers a playlist URL. Channels are loaded by Refresh.
func (s *Service) CreateProvider(ctx context.Context, name, playlistURL string) (*Provider, error) {
	name = strings.TrimSpace(name)
	playlistURL = strings.TrimSpace(playlistURL)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	u, err := url.Parse(playlistURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: playlistUrl must be an absolute http(s) URL", ErrInvalid)
	}

	p := &Provider{
		ID:          uuid.NewString(),
		Name:        name,
		PlaylistURL: u.String(),
		CreatedAt:   s.now().UTC(),
	}

	s.writeMu.Lock()
	err = s.putProvider(ctx, p)
	s.writeMu.Unlock()
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str(log.FieldEvent, "catalog.provider_created").
		Str(log.FieldProviderID, p.ID).
		Str("name", p.Name).
		Msg("provider created")
	s.changed(ctx)
	return p, nil
}

// ListProviders returns all providers ordered by creation time.
func (s *Service) ListProviders(ctx context.Context) ([]Provider, error) {
	raw, err := s.kv.List(ctx, providerPrefix)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	out := make([]Provider, 0, len(raw))
	for _, b := range raw {
		var p Provider
		if err := json.Unmarshal(b, &p); err != nil {
			s.logger.Warn().Err(err).Msg("skipping corrupt provider record")
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetProvider returns one provider or ErrNotFound.
func (s *Service) GetProvider(ctx context.Context, id string) (*Provider, error) {
	b, err := s.kv.Get(ctx, providerPrefix+id)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get provider: %w", err)
	}
	var p Provider
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("decode provider %s: %w", id, err)
	}
	return &p, nil
}

// DeleteProvider removes a provider and its channels.
func (s *Service) DeleteProvider(ctx context.Context, id string) error {
	s.writeMu.Lock()
	if _, err := s.GetProvider(ctx, id); err != nil {
		s.writeMu.Unlock()
		return err
	}
	err := s.kv.Delete(ctx, providerPrefix+id, channelPrefix+id)
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("delete provider: %w", err)
	}

	metrics.ForgetCatalogProvider(id)
	s.logger.Info().
		Str(log.FieldEvent, "catalog.provider_deleted").
		Str(log.FieldProviderID, id).
		Msg("provider deleted")
	s.changed(ctx)
	return nil
}

// Refresh downloads and parses the provider playlist and stores its channels.
func (s *Service) Refresh(ctx context.Context, id string) (*Provider, error) {
	ctx, span := telemetry.Tracer("hlsrelay/catalog").Start(ctx, "catalog.refresh")
	defer span.End()

	p, err := s.GetProvider(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	channels, fetchErr := s.fetch(ctx, p.PlaylistURL)
	p, err = s.commitRefresh(ctx, id, channels, fetchErr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(telemetry.CatalogAttributes(id, len(channels))...)
	s.logger.Info().
		Str(log.FieldEvent, "catalog.refreshed").
		Str(log.FieldProviderID, id).
		Int("channels", len(channels)).
		Msg("provider refreshed")
	s.changed(ctx)
	return p, nil
}

func (s *Service) commitRefresh(ctx context.Context, id string, channels []m3u.Channel, fetchErr error) (*Provider, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// Re-read: the provider may have been deleted during the fetch.
	p, err := s.GetProvider(ctx, id)
	if err != nil {
		return nil, err
	}

	if fetchErr != nil {
		metrics.IncCatalogRefresh("fetch_error")
		p.LastError = fetchErr.Error()
		if err := s.putProvider(ctx, p); err != nil {
			s.logger.Warn().Err(err).Str(log.FieldProviderID, id).Msg("failed to record refresh error")
		}
		return nil, fmt.Errorf("%w: %w", ErrFetch, fetchErr)
	}

	buf, err := json.Marshal(channels)
	if err != nil {
		return nil, fmt.Errorf("encode channels: %w", err)
	}
	if err := s.kv.Set(ctx, channelPrefix+id, buf); err != nil {
		metrics.IncCatalogRefresh("store_error")
		return nil, fmt.Errorf("store channels: %w", err)
	}
	now := s.now().UTC()
	p.RefreshedAt = &now
	p.ChannelCount = len(channels)
	p.LastError = ""
	if err := s.putProvider(ctx, p); err != nil {
		metrics.IncCatalogRefresh("store_error")
		return nil, err
	}

	metrics.IncCatalogRefresh("success")
	metrics.RecordCatalogChannels(id, len(channels))
	return p, nil
}

func (s *Service) fetch(ctx context.Context, rawURL string) ([]m3u.Channel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "audio/x-mpegurl, application/vnd.apple.mpegurl, */*")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	channels, err := m3u.ParseReader(io.LimitReader(resp.Body, s.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("parse playlist: %w", err)
	}
	if channels == nil {
		channels = []m3u.Channel{}
	}
	return channels, nil
}

// Channels returns the cached channel list of a provider.
func (s *Service) Channels(ctx context.Context, id string) ([]m3u.Channel, error) {
	if _, err := s.GetProvider(ctx, id); err != nil {
		return nil, err
	}
	b, err := s.kv.Get(ctx, channelPrefix+id)
	if errors.Is(err, ErrKeyNotFound) {
		return []m3u.Channel{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get channels: %w", err)
	}
	var out []m3u.Channel
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode channels %s: %w", id, err)
	}
	return out, nil
}

// FindByLocator returns metadata of the first channel whose URL equals locator.
// Providers are searched in creation order.
func (s *Service) FindByLocator(ctx context.Context, locator string) (*model.DisplayMetadata, bool, error) {
	s.mu.RLock()
	idx := s.index
	s.mu.RUnlock()

	if idx == nil {
		var err error
		if idx, err = s.buildIndex(ctx); err != nil {
			return nil, false, err
		}
	}

	meta, ok := idx[locator]
	if !ok {
		return nil, false, nil
	}
	return &meta, true, nil
}

func (s *Service) buildIndex(ctx context.Context) (map[string]model.DisplayMetadata, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	provs, err := s.ListProviders(ctx)
	if err != nil {
		return nil, err
	}
	idx := make(map[string]model.DisplayMetadata)
	for _, p := range provs {
		chans, err := s.Channels(ctx, p.ID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		for _, ch := range chans {
			if _, dup := idx[ch.URL]; dup || ch.URL == "" {
				continue
			}
			idx[ch.URL] = model.DisplayMetadata{Name: ch.Name, Logo: ch.Logo}
		}
	}

	s.mu.Lock()
	s.index = idx
	s.mu.Unlock()
	return idx, nil
}

func (s *Service) putProvider(ctx context.Context, p *Provider) error {
	buf, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode provider: %w", err)
	}
	if err := s.kv.Set(ctx, providerPrefix+p.ID, buf); err != nil {
		return fmt.Errorf("store provider: %w", err)
	}
	return nil
}
