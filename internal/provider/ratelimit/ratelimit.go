package ratelimit

import (
	"context"
	"sync"
	"time"

	"marketdash/internal/provider"
)

// MinInterval wraps a provider and enforces a minimum time between calls.
// Concurrent calls will wait until the interval has elapsed since the last call,
// or return early if the context is canceled.
type MinInterval struct {
	P        provider.QuoteProvider
	Interval time.Duration

	mu   sync.Mutex
	last time.Time
}

func (m *MinInterval) Name() string { return m.P.Name() }

func (m *MinInterval) Quote(ctx context.Context, symbol string) (provider.Quote, error) {
	if m.Interval > 0 {
		// Reserve the next slot under the lock so concurrent callers queue up.
		m.mu.Lock()
		slot := m.last.Add(m.Interval)
		now := time.Now()
		if slot.Before(now) {
			slot = now
		}
		m.last = slot
		m.mu.Unlock()

		if wait := time.Until(slot); wait > 0 {
			t := time.NewTimer(wait)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return provider.Quote{}, ctx.Err()
			case <-t.C:
			}
		}
	}
	return m.P.Quote(ctx, symbol)
}
