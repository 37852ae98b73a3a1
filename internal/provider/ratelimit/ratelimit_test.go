package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketdash/internal/provider"
)

type countingProvider struct {
	calls int
}

func (c *countingProvider) Name() string { return "counting" }

func (c *countingProvider) Quote(_ context.Context, symbol string) (provider.Quote, error) {
	c.calls++
	return provider.Quote{Symbol: symbol, CurrentPrice: 1}, nil
}

func TestTokenBucket_AllowRefills(t *testing.T) {
	t.Parallel()

	// Arrange: a bucket with a controllable clock
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tb := NewTokenBucket(1, 2)
	tb.now = func() time.Time { return now }
	tb.last = now

	// Act + Assert: the burst is spent, then one token per second comes back
	require.True(t, tb.Allow())
	require.True(t, tb.Allow())
	require.False(t, tb.Allow())

	now = now.Add(1500 * time.Millisecond)
	require.True(t, tb.Allow())
	require.False(t, tb.Allow())
}

func TestTokenBucket_WaitHonoursContext(t *testing.T) {
	t.Parallel()

	tb := NewTokenBucket(0.001, 1)
	require.NoError(t, tb.Wait(t.Context()))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, tb.Wait(ctx), context.DeadlineExceeded)
}

func TestTokenBucketProvider_FailsFastWhenEmpty(t *testing.T) {
	t.Parallel()

	inner := &countingProvider{}
	p := &TokenBucketProvider{P: inner, TB: NewTokenBucket(0.001, 1)}

	q, err := p.Quote(t.Context(), "AAPL")
	require.NoError(t, err)
	require.Equal(t, "AAPL", q.Symbol)

	_, err = p.Quote(t.Context(), "AAPL")
	require.ErrorIs(t, err, provider.ErrRateLimited)
	require.Equal(t, 1, inner.calls)
	require.Equal(t, "counting", p.Name())
}

func TestMinInterval_SpacesCalls(t *testing.T) {
	t.Parallel()

	inner := &countingProvider{}
	p := &MinInterval{P: inner, Interval: 30 * time.Millisecond}

	start := time.Now()
	for range 3 {
		_, err := p.Quote(t.Context(), "SPY")
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	require.Equal(t, 3, inner.calls)
}
