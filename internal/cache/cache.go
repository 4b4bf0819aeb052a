// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package cache provides a small in-memory TTL cache.
package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats holds cache counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Sets        int64
	Evictions   int64
	CurrentSize int
}

type entry[V any] struct {
	value      V
	expiration time.Time
}

// TTL is a thread-safe map whose entries expire.
type TTL[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
	now     func() time.Time

	hits, misses, sets, evictions atomic.Int64

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a cache. A positive cleanupInterval starts a janitor goroutine
// that must be released with Stop.
func New[V any](cleanupInterval time.Duration) *TTL[V] {
	c := &TTL[V]{
		entries: make(map[string]entry[V]),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if cleanupInterval > 0 {
		c.wg.Add(1)
		go c.janitor(cleanupInterval)
	}
	return c
}

func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, found := c.entries[key]
	c.mu.RUnlock()
	if !found || c.now().After(e.expiration) {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	c.hits.Add(1)
	return e.value, true
}

func (c *TTL[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, expiration: c.now().Add(ttl)}
	c.mu.Unlock()
	c.sets.Add(1)
}

func (c *TTL[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *TTL[V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry[V])
	c.mu.Unlock()
}

func (c *TTL[V]) Stats() Stats {
	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()
	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Sets:        c.sets.Load(),
		Evictions:   c.evictions.Load(),
		CurrentSize: size,
	}
}

// deleteExpired returns the number of entries removed.
func (c *TTL[V]) deleteExpired() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if now.After(e.expiration) {
			delete(c.entries, k)
			n++
		}
	}
	c.evictions.Add(int64(n))
	return n
}

// Stop ends the janitor and waits for it. Safe to call more than once.
func (c *TTL[V]) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.wg.Wait()
}

func (c *TTL[V]) janitor(interval time.Duration) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.stop:
			return
		}
	}
}
