package cache

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketdash/internal/provider"
)

type stubProvider struct {
	calls int
	price float64
	err   error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Quote(_ context.Context, symbol string) (provider.Quote, error) {
	s.calls++
	if s.err != nil {
		return provider.Quote{}, s.err
	}
	return provider.Quote{Symbol: symbol, CurrentPrice: s.price}, nil
}

func TestProvider_ServesFromCacheWithinTTL(t *testing.T) {
	t.Parallel()

	// Arrange
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	stub := &stubProvider{price: 10}
	c := &Provider{P: stub, TTL: time.Minute, Now: func() time.Time { return now }}

	// Act
	first, err := c.Quote(t.Context(), "aapl")
	require.NoError(t, err)
	stub.price = 11
	second, err := c.Quote(t.Context(), "AAPL")
	require.NoError(t, err)

	// Assert: the second call is a hit on the normalized key
	require.Equal(t, 1, stub.calls)
	require.Equal(t, first, second)

	now = now.Add(2 * time.Minute)
	third, err := c.Quote(t.Context(), "AAPL")
	require.NoError(t, err)
	require.Equal(t, 2, stub.calls)
	require.InDelta(t, 11, third.CurrentPrice, 1e-9)
}

func TestProvider_StaleOnError(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	stub := &stubProvider{price: 10}
	c := &Provider{P: stub, TTL: time.Minute, StaleFor: 5 * time.Minute, Now: func() time.Time { return now }}

	_, err := c.Quote(t.Context(), "MSFT")
	require.NoError(t, err)

	// Expired but inside the stale window: serve the old quote
	stub.err = errors.New("boom")
	now = now.Add(3 * time.Minute)
	q, err := c.Quote(t.Context(), "MSFT")
	require.NoError(t, err)
	require.InDelta(t, 10, q.CurrentPrice, 1e-9)

	// Beyond the stale window: surface the error
	now = now.Add(10 * time.Minute)
	_, err = c.Quote(t.Context(), "MSFT")
	require.Error(t, err)
}

func TestProvider_EntitlementErrorIsNotMaskedByStale(t *testing.T) {
	t.Parallel()

	// Arrange: a cached quote inside its stale window
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	stub := &stubProvider{price: 10}
	c := &Provider{P: stub, TTL: time.Minute, StaleFor: 5 * time.Minute, Now: func() time.Time { return now }}
	_, err := c.Quote(t.Context(), "MSFT")
	require.NoError(t, err)

	// Act
	stub.err = provider.NewStatusError("stub", http.StatusForbidden, nil)
	now = now.Add(2 * time.Minute)
	_, err = c.Quote(t.Context(), "MSFT")

	// Assert
	require.True(t, provider.IsEntitlement(err))
}

func TestProvider_EvictsOverCapacity(t *testing.T) {
	t.Parallel()

	c := &Provider{P: &stubProvider{price: 1}, TTL: time.Minute, MaxItems: 2}
	for _, s := range []string{"A", "B", "C", "D"} {
		_, err := c.Quote(t.Context(), s)
		require.NoError(t, err)
	}
	require.LessOrEqual(t, c.Len(), 2)
}
