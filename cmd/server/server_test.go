package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"marketdash/internal/cache"
	"marketdash/internal/dashboard"
	"marketdash/internal/paper"
	"marketdash/internal/provider"
	"marketdash/internal/provider/fallback"
	"marketdash/internal/quiz"
	"marketdash/internal/store"
)

type stubQuotes struct{}

func (stubQuotes) Name() string { return "stub" }

func (stubQuotes) Quote(_ context.Context, symbol string) (provider.Quote, error) {
	return provider.Quote{CurrentPrice: 250, Change: 2.5, ChangePercent: 1}, nil
}

type stubNews struct{}

func (stubNews) MarketNews(_ context.Context, category string) ([]provider.NewsArticle, error) {
	return []provider.NewsArticle{{
		Category: category,
		Datetime: 1700000000,
		Headline: "Fed signals rate cut as tariff talks resume",
		Source:   "wire-" + category,
		URL:      "https://example.com/" + category,
	}}, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	chain := fallback.New(provider.Ranges{}, fallback.WithQuoteProviders(stubQuotes{}), fallback.WithLogger(log))
	h := &api{
		chain:     chain,
		dash:      dashboard.New(cache.NewMemory(), chain, dashboard.WithNews(stubNews{}), dashboard.WithLogger(log)),
		book:      paper.NewBook(db, chain),
		quiz:      quiz.NewTracker(db, quiz.Catalog()),
		watchlist: db.Watchlist(),
		crypto:    db.CryptoWatchlist(),
		log:       log,
	}
	srv := httptest.NewServer(h.routes())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, srv.URL+path, rd)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

func TestHealthAndCORS(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp, body := do(t, srv, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", string(body))

	resp, _ = do(t, srv, http.MethodOptions, "/api/quote/AAPL", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestQuoteRoutes(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	// Act
	resp, body := do(t, srv, http.MethodGet, "/api/quote/aapl", "")

	// Assert
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var q provider.Quote
	require.NoError(t, json.Unmarshal(body, &q))
	require.Equal(t, "AAPL", q.Symbol)
	require.Equal(t, "stub", q.Source)
	require.InDelta(t, 250, q.CurrentPrice, 1e-9)

	resp, _ = do(t, srv, http.MethodGet, "/api/quotes", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, srv, http.MethodGet, "/api/history/AAPL?interval=weekly", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `[]`, string(body))

	resp, _ = do(t, srv, http.MethodGet, "/api/search", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDashboardRoutes(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp, body := do(t, srv, http.MethodGet, "/api/market-news?limit=2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var news []provider.NewsArticle
	require.NoError(t, json.Unmarshal(body, &news))
	require.Len(t, news, 2)

	resp, body = do(t, srv, http.MethodGet, "/api/market-overview", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), `"sentimentScore"`)

	resp, body = do(t, srv, http.MethodGet, "/api/indices", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), `"sp500"`)

	resp, body = do(t, srv, http.MethodGet, "/api/movers", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var movers dashboard.Movers
	require.NoError(t, json.Unmarshal(body, &movers))
	require.Len(t, movers.Gainers, 5)
	require.Len(t, movers.Losers, 5)

	resp, body = do(t, srv, http.MethodGet, "/api/crypto-news?limit=5", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &news))
	require.Len(t, news, 1)
	require.Equal(t, "crypto", news[0].Category)

	resp, body = do(t, srv, http.MethodGet, "/api/fundamentals/msft", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var f provider.Fundamentals
	require.NoError(t, json.Unmarshal(body, &f))
	require.Equal(t, "MSFT", f.Symbol)
	require.Nil(t, f.Metrics)

	resp, _ = do(t, srv, http.MethodGet, "/api/market-impact?category=%3Cscript%3E&level=bogus", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWatchlistRoutes(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp, _ := do(t, srv, http.MethodPost, "/api/watchlist/u1", `{"symbol":"nvda"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = do(t, srv, http.MethodPost, "/api/watchlist/u1", `{}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, body := do(t, srv, http.MethodGet, "/api/watchlist/u1", "")
	var items []store.WatchlistItem
	require.NoError(t, json.Unmarshal(body, &items))
	require.Len(t, items, 1)
	require.Equal(t, "NVDA", items[0].Symbol)

	_, body = do(t, srv, http.MethodGet, "/api/crypto-watchlist/u1", "")
	require.JSONEq(t, `[]`, string(body))

	resp, _ = do(t, srv, http.MethodDelete, "/api/watchlist/u1/NVDA", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, body = do(t, srv, http.MethodGet, "/api/watchlist/u1", "")
	require.JSONEq(t, `[]`, string(body))
}

func TestPaperRoutes(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	// Arrange + Act: a market order filled at the stub price
	resp, body := do(t, srv, http.MethodPost, "/api/paper/u1/positions", `{"symbol":"aapl","side":"long","qty":2}`)

	// Assert
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var s paper.Summary
	require.NoError(t, json.Unmarshal(body, &s))
	require.InDelta(t, paper.StartingBalance-500, s.Balance, 1e-9)
	require.Len(t, s.Positions, 1)
	require.Equal(t, "AAPL", s.Positions[0].Symbol)

	resp, _ = do(t, srv, http.MethodPost, "/api/paper/u1/positions", `{"symbol":"AAPL","side":"LONG","qty":-1,"price":10}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodDelete, "/api/paper/u1/positions/missing", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = do(t, srv, http.MethodDelete, "/api/paper/u1/positions/"+s.Positions[0].ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &s))
	require.InDelta(t, paper.StartingBalance, s.Balance, 1e-9)
	require.Empty(t, s.Positions)
}

func TestQuizRoutes(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp, _ := do(t, srv, http.MethodPost, "/api/quiz/u1/answer", `{"value":1}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodPost, "/api/quiz/u1/start", `{"value":0}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body := do(t, srv, http.MethodPost, "/api/quiz/u1/answer", `{"value":1}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var p quiz.Progress
	require.NoError(t, json.Unmarshal(body, &p))
	require.Equal(t, 1, p.Score)
	require.True(t, p.ShowExplanation)

	resp, _ = do(t, srv, http.MethodPost, "/api/quiz/u1/skip", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, body = do(t, srv, http.MethodGet, "/api/quiz/u1", "")
	require.NoError(t, json.Unmarshal(body, &p))
	require.Equal(t, 1, p.Score)
}

func TestGzipAndMetrics(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/api/quote/MSFT", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := srv.Client().Transport.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
	zr, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	var q provider.Quote
	require.NoError(t, json.NewDecoder(zr).Decode(&q))
	require.Equal(t, "MSFT", q.Symbol)

	_, body := do(t, srv, http.MethodGet, "/debug/vars", "")
	require.Contains(t, string(body), "api_requests")
}

func TestGzip_SkipsBodilessResponses(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp, _ := do(t, srv, http.MethodPost, "/api/watchlist/u2", `{"symbol":"amd"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Act
	req, err := http.NewRequestWithContext(t.Context(), http.MethodDelete, srv.URL+"/api/watchlist/u2/AMD", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err = srv.Client().Transport.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	// Assert
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Empty(t, resp.Header.Get("Content-Encoding"))
	require.Empty(t, body)
}

func TestRecoverPanic(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := &api{log: log}
	h := a.recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}
