// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package broadcast

import (
	"context"
	"sync"

	"github.com/ManuGH/hlsrelay/internal/domain/session/model"
)

// FuncObserver adapts a function into an Observer. Close is a no-op unless OnClose is set.
type FuncObserver struct {
	SendFunc func(ctx context.Context, ev model.Event) error
	OnClose  func()

	once sync.Once
}

func (f *FuncObserver) Send(ctx context.Context, ev model.Event) error {
	return f.SendFunc(ctx, ev)
}

func (f *FuncObserver) Close() error {
	f.once.Do(func() {
		if f.OnClose != nil {
			f.OnClose()
		}
	})
	return nil
}
