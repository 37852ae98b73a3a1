// Package app assembles providers, caches and services from a Config. Both
// binaries build their object graph through it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"marketdash/internal/cache"
	"marketdash/internal/config"
	"marketdash/internal/dashboard"
	"marketdash/internal/httpx"
	"marketdash/internal/provider"
	"marketdash/internal/provider/alphavantage"
	quotecache "marketdash/internal/provider/cache"
	"marketdash/internal/provider/coingecko"
	"marketdash/internal/provider/fallback"
	"marketdash/internal/provider/finnhub"
	"marketdash/internal/provider/fmp"
	"marketdash/internal/provider/ratelimit"
	"marketdash/internal/provider/stooq"
	"marketdash/internal/provider/yahoo"
)

// Providers holds the upstream clients. AlphaVantage and Yahoo are nil
// when disabled.
type Providers struct {
	Finnhub      *finnhub.Client
	AlphaVantage *alphavantage.Client
	Stooq        *stooq.Provider
	Yahoo        *yahoo.Provider
	FMP          *fmp.Client
	CoinGecko    *coingecko.Provider
}

func NewProviders(cfg config.Config) Providers {
	timeout := cfg.RequestTimeout()
	httpClient := httpx.New(timeout)
	pc := cfg.Providers

	fhOpts := []finnhub.Option{finnhub.WithBaseURL(pc.Finnhub.BaseURL), finnhub.WithTimeout(timeout)}
	if pc.Finnhub.MaxRequestsPerMinute > 0 {
		burst := pc.Finnhub.Burst
		if burst <= 0 {
			burst = 1
		}
		rate := float64(pc.Finnhub.MaxRequestsPerMinute) / 60.0
		fhOpts = append(fhOpts, finnhub.WithLimiter(ratelimit.NewTokenBucket(rate, burst)))
	}

	p := Providers{
		Finnhub:   finnhub.New(pc.Finnhub.APIKey, fhOpts...),
		Stooq:     stooq.New(pc.Stooq.BaseURL, httpClient),
		FMP:       fmp.New(pc.FMP.APIKey, pc.FMP.BaseURL, timeout),
		CoinGecko: coingecko.New(pc.CoinGecko.BaseURL, pc.CoinGecko.APIKey, httpClient),
	}
	if pc.AlphaVantage.Enabled && pc.AlphaVantage.APIKey != "" {
		avOpts := []alphavantage.Option{alphavantage.WithHTTPClient(httpClient.HTTP)}
		if pc.AlphaVantage.BaseURL != "" {
			avOpts = append(avOpts, alphavantage.WithBaseURL(pc.AlphaVantage.BaseURL))
		}
		p.AlphaVantage = alphavantage.New(pc.AlphaVantage.APIKey, avOpts...)
	}
	if pc.Yahoo.Enabled {
		p.Yahoo = yahoo.New()
	}
	return p
}

// guard applies the upstream's local rate limit and then the shared per-symbol
// quote cache. A token bucket fails fast so the chain can move on; a minimum
// interval queues callers instead.
func guard(q provider.QuoteProvider, up config.Upstream, pc config.Providers) provider.QuoteProvider {
	if up.MaxRequestsPerMinute > 0 {
		rate := float64(up.MaxRequestsPerMinute) / 60.0
		q = &ratelimit.TokenBucketProvider{P: q, TB: ratelimit.NewTokenBucket(rate, up.Burst)}
	} else if up.MinRequestIntervalSec > 0 {
		q = &ratelimit.MinInterval{P: q, Interval: time.Duration(up.MinRequestIntervalSec) * time.Second}
	}
	if ttl := pc.QuoteCacheTTL(); ttl > 0 {
		q = &quotecache.Provider{P: q, TTL: ttl, StaleFor: pc.QuoteStale(), MaxItems: pc.QuoteCacheItems}
	}
	return q
}

// Chain builds the fallback chain: finnhub, alphavantage, stooq, yahoo, then
// the synthetic generator.
func (p Providers) Chain(cfg config.Config, log *slog.Logger) *fallback.Chain {
	pc := cfg.Providers

	// Finnhub is already limited inside its client.
	fh := pc.Finnhub
	fh.MaxRequestsPerMinute, fh.MinRequestIntervalSec = 0, 0

	var quotes []provider.QuoteProvider
	var histories []provider.HistoryProvider
	if pc.Finnhub.Enabled {
		quotes = append(quotes, guard(p.Finnhub, fh, pc))
		histories = append(histories, p.Finnhub)
	}
	if p.AlphaVantage != nil {
		quotes = append(quotes, guard(p.AlphaVantage, pc.AlphaVantage, pc))
		histories = append(histories, p.AlphaVantage)
	}
	if pc.Stooq.Enabled {
		quotes = append(quotes, guard(p.Stooq, pc.Stooq, pc))
	}
	if p.Yahoo != nil {
		quotes = append(quotes, guard(p.Yahoo, pc.Yahoo, pc))
		histories = append(histories, p.Yahoo)
	}

	opts := []fallback.Option{
		fallback.WithQuoteProviders(quotes...),
		fallback.WithHistoryProviders(histories...),
		fallback.WithLogger(log),
		fallback.WithBackoff(pc.Backoff()),
	}
	if pc.Finnhub.Enabled {
		opts = append(opts,
			fallback.WithInsiderSource(p.Finnhub),
			fallback.WithProfileProvider(p.Finnhub),
			fallback.WithSearcher(p.Finnhub),
			fallback.WithCompanyNews(p.Finnhub),
			fallback.WithFundamentals(p.Finnhub),
		)
	}
	return fallback.New(cfg.Validation.Ranges, opts...)
}

// OpenCache returns the configured cache gate backend and a func releasing it.
func OpenCache(ctx context.Context, cfg config.Config) (cache.Store, func(), error) {
	if cfg.Cache.Backend != config.CachePostgres {
		return cache.NewMemory(), func() {}, nil
	}
	pool, err := cache.Connect(ctx, cfg.Cache.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("cache: %w", err)
	}
	pg := cache.NewPostgres(pool)
	if err := pg.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pg, pool.Close, nil
}

// Dashboard wires the aggregate service on top of chain.
func (p Providers) Dashboard(store cache.Store, chain *fallback.Chain, cfg config.Config, log *slog.Logger) *dashboard.Service {
	opts := []dashboard.Option{
		dashboard.WithLogger(log),
		dashboard.WithSynthetic(chain.Synthetic()),
	}
	if cfg.Providers.FMP.Enabled {
		opts = append(opts, dashboard.WithBatchQuoter(p.FMP))
	}
	if cfg.Providers.Finnhub.Enabled {
		opts = append(opts, dashboard.WithNews(p.Finnhub))
	}
	if cfg.Providers.CoinGecko.Enabled {
		opts = append(opts, dashboard.WithCrypto(p.CoinGecko))
	}
	return dashboard.New(store, chain, opts...)
}
