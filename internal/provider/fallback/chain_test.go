package fallback_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketdash/internal/httpx"
	"marketdash/internal/provider"
	"marketdash/internal/provider/alphavantage"
	quotecache "marketdash/internal/provider/cache"
	"marketdash/internal/provider/fallback"
	"marketdash/internal/provider/finnhub"
	"marketdash/internal/provider/stooq"
	"marketdash/internal/provider/synthetic"
)

type fakeQuotes struct {
	name  string
	quote provider.Quote
	err   error
	calls atomic.Int32
}

func (f *fakeQuotes) Name() string { return f.name }

func (f *fakeQuotes) Quote(_ context.Context, symbol string) (provider.Quote, error) {
	f.calls.Add(1)
	if f.err != nil {
		return provider.Quote{}, f.err
	}
	q := f.quote
	q.Symbol = symbol
	return q, nil
}

type fakeHistory struct {
	name   string
	points []provider.HistoricalPoint
	err    error
}

func (f *fakeHistory) Name() string { return f.name }

func (f *fakeHistory) History(context.Context, string, provider.Interval) ([]provider.HistoricalPoint, error) {
	return f.points, f.err
}

type fakeInsider struct {
	records []provider.InsiderRecord
	err     error
	calls   atomic.Int32
}

func (f *fakeInsider) Name() string { return "fake-insider" }

func (f *fakeInsider) InsiderRecords(context.Context, string) ([]provider.InsiderRecord, error) {
	f.calls.Add(1)
	return f.records, f.err
}

func quiet() fallback.Option {
	return fallback.WithLogger(slog.New(slog.DiscardHandler))
}

func TestQuote_EndToEnd_OutOfRangeThenUnreachableThenKeyless(t *testing.T) {
	t.Parallel()

	// Arrange: A answers a placeholder $5 for MSFT
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"c":5,"d":0.1,"dp":2,"h":5.1,"l":4.9,"o":5,"pc":4.9,"t":1717430000}`))
	}))
	t.Cleanup(primary.Close)

	// B is unreachable
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	// C is keyless and valid
	keyless := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbols":[{"symbol":"MSFT","date":"2024-06-03","open":410,"high":416.5,"low":408,"close":413.2,"volume":1000}]}`))
	}))
	t.Cleanup(keyless.Close)

	fixed := time.Unix(1717430000, 0)
	c := stooq.New(keyless.URL, httpx.New(2*time.Second))
	c.Now = func() time.Time { return fixed }

	want, err := c.Quote(t.Context(), "MSFT")
	require.NoError(t, err)

	chain := fallback.New(provider.DefaultRanges(),
		quiet(),
		fallback.WithQuoteProviders(
			finnhub.New("key", finnhub.WithBaseURL(primary.URL)),
			alphavantage.New("key", alphavantage.WithBaseURL(deadURL)),
			c,
		),
	)

	// Act
	got := chain.Quote(t.Context(), "msft")

	// Assert
	require.Equal(t, want, got)
	require.Equal(t, stooq.Name, got.Source)
}

func TestQuote_RejectsOutOfRangeOnlyForTrackedSymbols(t *testing.T) {
	t.Parallel()

	cheap := &fakeQuotes{name: "cheap", quote: provider.Quote{CurrentPrice: 5}}
	next := &fakeQuotes{name: "next", quote: provider.Quote{CurrentPrice: 420}}
	chain := fallback.New(provider.DefaultRanges(), quiet(), fallback.WithQuoteProviders(cheap, next))

	tracked := chain.Quote(t.Context(), "MSFT")
	require.Equal(t, "next", tracked.Source)

	untracked := chain.Quote(t.Context(), "PENNY")
	require.Equal(t, "cheap", untracked.Source)
	require.InDelta(t, 5, untracked.CurrentPrice, 1e-9)
}

func TestQuote_AllFailReturnsSyntheticPositive(t *testing.T) {
	t.Parallel()

	// Arrange
	failing := []provider.QuoteProvider{
		&fakeQuotes{name: "a", err: errors.New("connection refused")},
		&fakeQuotes{name: "b", err: provider.ErrPaidFeature},
		&fakeQuotes{name: "c", quote: provider.Quote{CurrentPrice: 0}},
	}
	chain := fallback.New(provider.DefaultRanges(), quiet(), fallback.WithQuoteProviders(failing...))

	for _, sym := range []string{"AAPL", "UNKNOWN"} {
		// Act
		q := chain.Quote(t.Context(), sym)

		// Assert
		require.Equal(t, synthetic.Name, q.Source)
		require.Equal(t, sym, q.Symbol)
		require.Greater(t, q.CurrentPrice, 0.0)
	}
}

func TestQuote_EntitlementErrorsBackOff(t *testing.T) {
	t.Parallel()

	// Arrange
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	paid := &fakeQuotes{name: "paid", err: provider.NewStatusError("paid", http.StatusForbidden, nil)}
	flaky := &fakeQuotes{name: "flaky", err: provider.NewStatusError("flaky", http.StatusBadGateway, nil)}
	ok := &fakeQuotes{name: "ok", quote: provider.Quote{CurrentPrice: 42}}
	chain := fallback.New(nil,
		quiet(),
		fallback.WithClock(func() time.Time { return now }),
		fallback.WithBackoff(time.Hour),
		fallback.WithQuoteProviders(paid, flaky, ok),
	)

	// Act
	chain.Quote(t.Context(), "X")
	chain.Quote(t.Context(), "Y")

	// Assert: the entitlement failure is not retried, the transient one is
	require.Equal(t, int32(1), paid.calls.Load())
	require.Equal(t, int32(2), flaky.calls.Load())

	now = now.Add(61 * time.Minute)
	chain.Quote(t.Context(), "Z")
	require.Equal(t, int32(2), paid.calls.Load())
}

func TestQuote_EntitlementBehindQuoteCacheStillBacksOff(t *testing.T) {
	t.Parallel()

	// Arrange: the first provider answers once, then loses its entitlement
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	paid := &fakeQuotes{name: "paid", quote: provider.Quote{CurrentPrice: 10}}
	cached := &quotecache.Provider{P: paid, TTL: time.Minute, StaleFor: 5 * time.Minute, Now: clock}
	backup := &fakeQuotes{name: "backup", quote: provider.Quote{CurrentPrice: 42}}
	chain := fallback.New(nil, quiet(),
		fallback.WithClock(clock),
		fallback.WithBackoff(time.Hour),
		fallback.WithQuoteProviders(cached, backup),
	)
	require.Equal(t, "paid", chain.Quote(t.Context(), "X").Source)

	// Act
	paid.err = provider.NewStatusError("paid", http.StatusForbidden, nil)
	now = now.Add(2 * time.Minute)
	second := chain.Quote(t.Context(), "X")
	third := chain.Quote(t.Context(), "X")

	// Assert
	require.Equal(t, "backup", second.Source)
	require.Equal(t, "backup", third.Source)
	require.Equal(t, int32(2), paid.calls.Load())
}

func TestHistory_FirstNonEmptyWins(t *testing.T) {
	t.Parallel()

	series := []provider.HistoricalPoint{{Time: "2024-01-01", Close: 1}}
	chain := fallback.New(nil, quiet(), fallback.WithHistoryProviders(
		&fakeHistory{name: "err", err: errors.New("boom")},
		&fakeHistory{name: "empty"},
		&fakeHistory{name: "good", points: series},
	))

	require.Equal(t, series, chain.History(t.Context(), "AAPL", provider.Weekly))
}

func TestHistory_ExhaustionIsEmptyNotSynthetic(t *testing.T) {
	t.Parallel()

	chain := fallback.New(provider.DefaultRanges(), quiet(), fallback.WithHistoryProviders(
		&fakeHistory{name: "err", err: provider.ErrPaidFeature},
		&fakeHistory{name: "empty", points: []provider.HistoricalPoint{}},
	))

	got := chain.History(t.Context(), "AAPL", provider.Daily)
	require.NotNil(t, got)
	require.Empty(t, got)

	require.Empty(t, fallback.New(nil, quiet()).History(t.Context(), "AAPL", provider.Monthly))
}

func TestInsider(t *testing.T) {
	t.Parallel()

	price := 250.0
	shares := 1200.0
	src := &fakeInsider{records: []provider.InsiderRecord{
		{Name: "COOK__TIMOTHY", Share: &shares, TransactionDate: "2024-05-01", TransactionPrice: &price},
	}}
	chain := fallback.New(nil, quiet(),
		fallback.WithQuoteProviders(&fakeQuotes{name: "q", quote: provider.Quote{CurrentPrice: 230}}),
		fallback.WithInsiderSource(src),
	)

	got := chain.Insider(t.Context(), "aapl")

	require.Len(t, got, 1)
	require.Equal(t, "COOK TIMOTHY", got[0].Name)
	require.InDelta(t, 250, got[0].TransactionPrice, 1e-9)
	require.Equal(t, "2024-05-03", got[0].FilingDate)
}

func TestInsider_FallsBackToSynthetic(t *testing.T) {
	t.Parallel()

	src := &fakeInsider{err: provider.ErrPaidFeature}
	chain := fallback.New(nil, quiet(),
		fallback.WithQuoteProviders(&fakeQuotes{name: "q", quote: provider.Quote{CurrentPrice: 100}}),
		fallback.WithInsiderSource(src),
	)

	first := chain.Insider(t.Context(), "AAPL")
	second := chain.Insider(t.Context(), "AAPL")

	require.GreaterOrEqual(t, len(first), 6)
	require.Equal(t, first, second)
	require.Equal(t, int32(1), src.calls.Load())
}

func TestProfileAndSearchDefaults(t *testing.T) {
	t.Parallel()

	chain := fallback.New(nil, quiet())

	p := chain.Profile(t.Context(), "tsla")
	require.Equal(t, "TSLA", p.Name)
	require.Equal(t, "TSLA", p.Ticker)

	require.NotNil(t, chain.Search(t.Context(), "apple"))
	require.Empty(t, chain.Search(t.Context(), "apple"))
}

func TestIndices_PreservesOrder(t *testing.T) {
	t.Parallel()

	chain := fallback.New(nil, quiet(),
		fallback.WithQuoteProviders(&fakeQuotes{name: "q", quote: provider.Quote{CurrentPrice: 500}}),
	)

	got := chain.Indices(t.Context())

	require.Len(t, got, 3)
	for i, sym := range fallback.IndexSymbols {
		require.Equal(t, sym, got[i].Symbol)
	}
}

type fakeNews struct {
	from, to string
	err      error
}

func (f *fakeNews) CompanyNews(_ context.Context, symbol, from, to string) ([]provider.NewsArticle, error) {
	f.from, f.to = from, to
	if f.err != nil {
		return nil, f.err
	}
	return []provider.NewsArticle{{Headline: "h", Related: symbol}}, nil
}

func TestCompanyNews(t *testing.T) {
	t.Parallel()

	// Arrange
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	src := &fakeNews{}
	chain := fallback.New(nil, quiet(),
		fallback.WithCompanyNews(src),
		fallback.WithClock(func() time.Time { return now }),
	)

	// Act
	news := chain.CompanyNews(t.Context(), "aapl", 0)

	// Assert: the default lookback is 30 days
	require.Len(t, news, 1)
	require.Equal(t, "AAPL", news[0].Related)
	require.Equal(t, "2024-05-04", src.from)
	require.Equal(t, "2024-06-03", src.to)

	src.err = provider.ErrNoData
	require.Empty(t, chain.CompanyNews(t.Context(), "AAPL", 7))
	require.Equal(t, "2024-05-27", src.from)

	require.NotNil(t, fallback.New(nil, quiet()).CompanyNews(t.Context(), "AAPL", 7))
}

type fakeFundamentals struct {
	metricCalls atomic.Int32
	targetCalls atomic.Int32
}

func (f *fakeFundamentals) Name() string { return "fundamentals" }

func (f *fakeFundamentals) BasicFinancials(context.Context, string) (provider.BasicFinancials, error) {
	f.metricCalls.Add(1)
	beta := 1.2
	return provider.BasicFinancials{Beta: &beta}, nil
}

func (f *fakeFundamentals) Recommendations(context.Context, string) ([]provider.Recommendation, error) {
	return nil, provider.ErrNoData
}

func (f *fakeFundamentals) PriceTarget(context.Context, string) (provider.PriceTarget, error) {
	f.targetCalls.Add(1)
	return provider.PriceTarget{}, provider.NewStatusError("fundamentals", http.StatusForbidden, nil)
}

func (f *fakeFundamentals) Earnings(context.Context, string) ([]provider.Earnings, error) {
	out := make([]provider.Earnings, 6)
	for i := range out {
		out[i].Period = fmt.Sprintf("2024-q%d", 6-i)
	}
	return out, nil
}

func TestFundamentals_SectionsFailIndependently(t *testing.T) {
	t.Parallel()

	// Arrange
	src := &fakeFundamentals{}
	chain := fallback.New(nil, quiet(), fallback.WithFundamentals(src), fallback.WithBackoff(time.Hour))

	// Act
	first := chain.Fundamentals(t.Context(), "msft")
	second := chain.Fundamentals(t.Context(), "MSFT")

	// Assert
	require.Equal(t, "MSFT", first.Symbol)
	require.NotNil(t, first.Metrics)
	require.InDelta(t, 1.2, *first.Metrics.Beta, 1e-9)
	require.Nil(t, first.PriceTarget)
	require.NotNil(t, first.Recommendations)
	require.Empty(t, first.Recommendations)
	require.Len(t, first.Earnings, fallback.MaxEarnings)
	require.Equal(t, "2024-q6", first.Earnings[0].Period)

	// the paid-only section backs off, the free ones keep being called
	require.Equal(t, int32(1), src.targetCalls.Load())
	require.Equal(t, int32(2), src.metricCalls.Load())
	require.Equal(t, first, second)
}

func TestFundamentals_WithoutSource(t *testing.T) {
	t.Parallel()

	f := fallback.New(nil, quiet()).Fundamentals(t.Context(), "aapl")

	require.Equal(t, "AAPL", f.Symbol)
	require.Nil(t, f.Metrics)
	require.NotNil(t, f.Earnings)
}
