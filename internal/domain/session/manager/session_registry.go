// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"fmt"
	"sync"
)

// sessionRegistry tracks supervisor-owned goroutines and provides a bounded join on shutdown.
type sessionRegistry struct {
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// Go runs fn unless the registry is closing.
func (r *sessionRegistry) Go(fn func()) bool {
	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		return false
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		fn()
	}()

	return true
}

func (r *sessionRegistry) Closing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closing
}

// BeginClose stops admitting new goroutines without waiting for running ones.
func (r *sessionRegistry) BeginClose() {
	r.mu.Lock()
	r.closing = true
	r.mu.Unlock()
}

func (r *sessionRegistry) CloseAndWait(ctx context.Context) error {
	r.BeginClose()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("supervisor goroutine drain timeout: %w", ctx.Err())
	}
}
