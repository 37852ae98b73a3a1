package cache

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemory_PutGetExpire(t *testing.T) {
	t.Parallel()

	// Arrange
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.Now = func() time.Time { return now }

	// Act
	require.NoError(t, m.Put(t.Context(), "k", []byte(`{"v":1}`), 5*time.Minute))
	got, ok, err := m.Get(t.Context(), "k")

	// Assert
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"v":1}`, string(got))

	now = now.Add(5*time.Minute + time.Second)
	_, ok, err = m.Get(t.Context(), "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemory_LastWriteWins(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	require.NoError(t, m.Put(t.Context(), "k", []byte(`1`), time.Minute))
	require.NoError(t, m.Put(t.Context(), "k", []byte(`2`), time.Minute))

	got, ok, _ := m.Get(t.Context(), "k")
	require.True(t, ok)
	require.Equal(t, "2", string(got))
}

type overview struct {
	Score int `json:"score"`
}

func TestFetch(t *testing.T) {
	t.Parallel()

	// Arrange
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.Now = func() time.Time { return now }
	calls := 0
	compute := func(context.Context) (overview, error) {
		calls++
		return overview{Score: 60 + calls}, nil
	}

	// Act
	first, err := Fetch(t.Context(), m, "overview", TTLMarketOverview, compute)
	require.NoError(t, err)
	second, err := Fetch(t.Context(), m, "overview", TTLMarketOverview, compute)
	require.NoError(t, err)

	// Assert
	require.Equal(t, 1, calls)
	require.Equal(t, first, second)

	now = now.Add(TTLMarketOverview)
	third, err := Fetch(t.Context(), m, "overview", TTLMarketOverview, compute)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, 62, third.Score)
}

func TestFetch_ErrorIsNotCached(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	boom := errors.New("upstream down")

	_, err := Fetch(t.Context(), m, "k", time.Minute, func(context.Context) (overview, error) {
		return overview{}, boom
	})
	require.ErrorIs(t, err, boom)

	_, ok, _ := m.Get(t.Context(), "k")
	require.False(t, ok)
}

type readOnlyStore struct {
	*Memory
}

func (readOnlyStore) Put(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

// Swaps the default logger, so it must not run in parallel.
func TestFetch_WriteErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	v, err := Fetch(t.Context(), readOnlyStore{NewMemory()}, "market_news_v1", TTLMarketNews, func(context.Context) (overview, error) {
		return overview{Score: 7}, nil
	})

	require.NoError(t, err)
	require.Equal(t, 7, v.Score)
	require.Contains(t, buf.String(), "cache write failed")
	require.Contains(t, buf.String(), "key=market_news_v1")
	require.Contains(t, buf.String(), "connection refused")
}

func TestFamily(t *testing.T) {
	t.Parallel()

	require.Equal(t, "market_impact_v1", Family("market_impact_v1:high:market"))
	require.Equal(t, "market_news_v1", Family("market_news_v1"))
}

func TestPostgres(t *testing.T) {
	url := os.Getenv("MARKETDASH_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("MARKETDASH_TEST_DATABASE_URL not set")
	}

	// Arrange
	pool, err := Connect(t.Context(), url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	p := NewPostgres(pool)
	require.NoError(t, p.EnsureSchema(t.Context()))
	now := time.Now()
	p.now = func() time.Time { return now }
	key := "test_" + now.Format(time.RFC3339Nano)

	// Act
	require.NoError(t, p.Put(t.Context(), key, []byte(`{"score":70}`), 5*time.Minute))
	got, ok, err := p.Get(t.Context(), key)

	// Assert
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"score":70}`, string(got))

	now = now.Add(6 * time.Minute)
	_, ok, err = p.Get(t.Context(), key)
	require.NoError(t, err)
	require.False(t, ok)
}
