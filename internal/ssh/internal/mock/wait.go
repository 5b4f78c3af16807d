package mock

import (
	"context"
	"sync/atomic"
	"time"
)

func NewWaiter() Waiter {
	return Waiter{
		active: new(atomic.Int32),
	}
}

// Waiter is like a 'sync.WaitGroup', save that its wait accepts a
// 'context.Context' so a shutdown can be bounded by a deadline.
type Waiter struct {
	active *atomic.Int32
}

func (w Waiter) Add() {
	w.active.Add(1)
}

func (w Waiter) Done() {
	left := w.active.Add(-1)
	log.Debug("waiter done", "left", left)
}

func (w Waiter) WaitContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Millisecond):
			if w.active.Load() == 0 {
				return nil
			}
		}
	}
}
