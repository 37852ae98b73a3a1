// Package fallback resolves market data by trying providers in priority order.
//
// Quotes always resolve: when every real provider fails the chain synthesizes
// a plausible quote. History never synthesizes and returns an empty series
// instead, so charts can show that data is unavailable.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"marketdash/internal/format"
	"marketdash/internal/provider"
	"marketdash/internal/provider/synthetic"
	"marketdash/internal/telemetry"
)

// DefaultBackoff is how long a provider is skipped after it reports that an
// operation needs a paid plan.
const DefaultBackoff = time.Hour

// IndexSymbols are the ETFs standing in for the major US indices.
var IndexSymbols = []string{"SPY", "QQQ", "DIA"}

const (
	kindQuote   = "quote"
	kindHistory = "history"
	kindInsider = "insider"
	kindProfile = "profile"
	kindSearch  = "search"
	kindNews    = "company-news"

	kindMetrics         = "metrics"
	kindRecommendations = "recommendations"
	kindPriceTarget     = "price-target"
	kindEarnings        = "earnings"
)

// MaxEarnings is how many recent quarters Fundamentals keeps.
const MaxEarnings = 4

// DefaultNewsDays is the company news lookback used when none is given.
const DefaultNewsDays = 30

// Searcher looks up symbols by free text.
type Searcher interface {
	Search(ctx context.Context, query string) ([]provider.SymbolMatch, error)
}

// Chain is safe for concurrent use.
type Chain struct {
	quotes    []provider.QuoteProvider
	histories []provider.HistoryProvider
	insider   provider.InsiderSource
	profiles  provider.ProfileProvider
	searcher  Searcher
	news      provider.CompanyNewsSource
	funds     provider.FundamentalsSource

	ranges  provider.Ranges
	synth   *synthetic.Generator
	backoff time.Duration
	log     *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	blocked map[string]time.Time // kind/provider -> skip until
}

type Option func(*Chain)

// WithQuoteProviders sets the quote steps in priority order.
func WithQuoteProviders(ps ...provider.QuoteProvider) Option {
	return func(c *Chain) { c.quotes = append(c.quotes, ps...) }
}

// WithHistoryProviders sets the history steps in priority order.
func WithHistoryProviders(ps ...provider.HistoryProvider) Option {
	return func(c *Chain) { c.histories = append(c.histories, ps...) }
}

func WithInsiderSource(s provider.InsiderSource) Option {
	return func(c *Chain) { c.insider = s }
}

func WithProfileProvider(p provider.ProfileProvider) Option {
	return func(c *Chain) { c.profiles = p }
}

func WithSearcher(s Searcher) Option {
	return func(c *Chain) { c.searcher = s }
}

func WithCompanyNews(n provider.CompanyNewsSource) Option {
	return func(c *Chain) { c.news = n }
}

func WithFundamentals(f provider.FundamentalsSource) Option {
	return func(c *Chain) { c.funds = f }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Chain) {
		if l != nil {
			c.log = l
		}
	}
}

// WithBackoff overrides DefaultBackoff. Zero disables skipping.
func WithBackoff(d time.Duration) Option {
	return func(c *Chain) { c.backoff = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *Chain) {
		if now != nil {
			c.now = now
		}
	}
}

// New builds a chain validating prices against ranges.
func New(ranges provider.Ranges, opts ...Option) *Chain {
	if ranges == nil {
		ranges = provider.Ranges{}
	}
	c := &Chain{
		ranges:  ranges,
		backoff: DefaultBackoff,
		log:     slog.Default(),
		now:     time.Now,
		blocked: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.synth = synthetic.New(ranges)
	c.synth.Now = c.now
	return c
}

// Synthetic exposes the terminal generator, e.g. for crypto fallbacks.
func (c *Chain) Synthetic() *synthetic.Generator { return c.synth }

// Ranges returns the validation table in use.
func (c *Chain) Ranges() provider.Ranges { return c.ranges }

func nameOf(v any) string {
	if n, ok := v.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", v)
}

func (c *Chain) skip(kind, name string) bool {
	if c.backoff <= 0 {
		return false
	}
	key := kind + "/" + name
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.blocked[key]
	if !ok {
		return false
	}
	if c.now().Before(until) {
		return true
	}
	delete(c.blocked, key)
	return false
}

// record logs a failed step and starts a backoff window on entitlement errors.
func (c *Chain) record(kind, name, symbol string, err error) {
	outcome := telemetry.OutcomeError
	switch {
	case provider.IsEntitlement(err):
		outcome = telemetry.OutcomeEntitled
		if c.backoff > 0 {
			c.mu.Lock()
			c.blocked[kind+"/"+name] = c.now().Add(c.backoff)
			c.mu.Unlock()
		}
	case errors.Is(err, provider.ErrOutOfRange):
		outcome = telemetry.OutcomeRejected
	}
	telemetry.ProviderAttempt(kind, name, outcome)
	c.log.Debug("provider step failed",
		slog.String("kind", kind),
		slog.String("provider", name),
		slog.String("symbol", symbol),
		slog.Any("err", err),
	)
}

// Quote resolves a quote and never fails. The returned quote's Source names
// the step that produced it.
func (c *Chain) Quote(ctx context.Context, symbol string) provider.Quote {
	symbol = provider.NormalizeSymbol(symbol)

	for _, p := range c.quotes {
		name := p.Name()
		if c.skip(kindQuote, name) {
			telemetry.ProviderAttempt(kindQuote, name, telemetry.OutcomeSkipped)
			continue
		}

		q, err := p.Quote(ctx, symbol)
		if err == nil && q.CurrentPrice == 0 {
			err = fmt.Errorf("%s quote %s: %w", name, symbol, provider.ErrNoData)
		}
		if err == nil {
			err = c.ranges.Check(symbol, q.CurrentPrice)
		}
		if err != nil {
			c.record(kindQuote, name, symbol, err)
			continue
		}

		telemetry.ProviderAttempt(kindQuote, name, telemetry.OutcomeOK)
		if q.Source == "" {
			q.Source = name
		}
		if q.Symbol == "" {
			q.Symbol = symbol
		}
		return q
	}

	telemetry.ProviderAttempt(kindQuote, synthetic.Name, telemetry.OutcomeExhausted)
	c.log.Warn("all quote providers failed, synthesizing", slog.String("symbol", symbol))
	q, _ := c.synth.Quote(ctx, symbol)
	return q
}

// Quotes resolves several symbols concurrently, preserving input order.
func (c *Chain) Quotes(ctx context.Context, symbols []string) []provider.Quote {
	out := make([]provider.Quote, len(symbols))
	var g errgroup.Group
	g.SetLimit(4)
	for i, s := range symbols {
		g.Go(func() error {
			out[i] = c.Quote(ctx, s)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Indices resolves IndexSymbols concurrently.
func (c *Chain) Indices(ctx context.Context) []provider.Quote {
	return c.Quotes(ctx, IndexSymbols)
}

// History returns the first non-empty series. When no provider has data the
// result is an empty, non-nil slice.
func (c *Chain) History(ctx context.Context, symbol string, interval provider.Interval) []provider.HistoricalPoint {
	symbol = provider.NormalizeSymbol(symbol)

	for _, p := range c.histories {
		name := p.Name()
		if c.skip(kindHistory, name) {
			telemetry.ProviderAttempt(kindHistory, name, telemetry.OutcomeSkipped)
			continue
		}
		points, err := p.History(ctx, symbol, interval)
		if err == nil && len(points) == 0 {
			err = fmt.Errorf("%s history %s: %w", name, symbol, provider.ErrNoData)
		}
		if err != nil {
			c.record(kindHistory, name, symbol, err)
			continue
		}
		telemetry.ProviderAttempt(kindHistory, name, telemetry.OutcomeOK)
		return points
	}

	telemetry.ProviderAttempt(kindHistory, "none", telemetry.OutcomeExhausted)
	c.log.Warn("no historical data available",
		slog.String("symbol", symbol),
		slog.String("interval", string(interval)),
	)
	return []provider.HistoricalPoint{}
}

// Insider returns cleaned insider trades, or synthetic ones priced around
// the resolved quote when the source has nothing.
func (c *Chain) Insider(ctx context.Context, symbol string) []provider.InsiderTransaction {
	symbol = provider.NormalizeSymbol(symbol)
	ref := c.Quote(ctx, symbol).CurrentPrice

	if c.insider != nil {
		name := nameOf(c.insider)
		if c.skip(kindInsider, name) {
			telemetry.ProviderAttempt(kindInsider, name, telemetry.OutcomeSkipped)
		} else {
			records, err := c.insider.InsiderRecords(ctx, symbol)
			if err == nil && len(records) == 0 {
				err = fmt.Errorf("%s insider %s: %w", name, symbol, provider.ErrNoData)
			}
			if err == nil {
				telemetry.ProviderAttempt(kindInsider, name, telemetry.OutcomeOK)
				return provider.CleanInsider(records, ref, c.now())
			}
			c.record(kindInsider, name, symbol, err)
		}
	}

	telemetry.ProviderAttempt(kindInsider, synthetic.Name, telemetry.OutcomeExhausted)
	return c.synth.Insider(symbol, ref)
}

// Profile returns the company profile, or a minimal one named after the symbol.
func (c *Chain) Profile(ctx context.Context, symbol string) provider.CompanyProfile {
	symbol = provider.NormalizeSymbol(symbol)
	minimal := provider.CompanyProfile{Name: symbol, Ticker: symbol}
	if c.profiles == nil {
		return minimal
	}

	name := nameOf(c.profiles)
	if c.skip(kindProfile, name) {
		return minimal
	}
	p, err := c.profiles.CompanyProfile(ctx, symbol)
	if err != nil {
		c.record(kindProfile, name, symbol, err)
		return minimal
	}
	if p.Name == "" {
		p.Name = symbol
	}
	if p.Ticker == "" {
		p.Ticker = symbol
	}
	return p
}

// Search never fails; upstream errors yield no matches.
func (c *Chain) Search(ctx context.Context, query string) []provider.SymbolMatch {
	if c.searcher == nil || query == "" {
		return []provider.SymbolMatch{}
	}
	name := nameOf(c.searcher)
	matches, err := c.searcher.Search(ctx, query)
	if err != nil {
		c.record(kindSearch, name, query, err)
		return []provider.SymbolMatch{}
	}
	if matches == nil {
		matches = []provider.SymbolMatch{}
	}
	return matches
}

// CompanyNews lists articles about symbol from the last days days. It never
// fails; upstream errors yield no articles.
func (c *Chain) CompanyNews(ctx context.Context, symbol string, days int) []provider.NewsArticle {
	symbol = provider.NormalizeSymbol(symbol)
	if c.news == nil {
		return []provider.NewsArticle{}
	}
	if days <= 0 {
		days = DefaultNewsDays
	}
	name := nameOf(c.news)
	if c.skip(kindNews, name) {
		return []provider.NewsArticle{}
	}
	from, to := format.DateRange(days, c.now())
	news, err := c.news.CompanyNews(ctx, symbol, from, to)
	if err != nil {
		c.record(kindNews, name, symbol, err)
		return []provider.NewsArticle{}
	}
	return news
}

// Fundamentals gathers ratios, analyst ratings, the price target and recent
// earnings concurrently. It never fails: each section backs off on its own,
// so a paid-only section does not block the free ones.
func (c *Chain) Fundamentals(ctx context.Context, symbol string) provider.Fundamentals {
	symbol = provider.NormalizeSymbol(symbol)
	out := provider.Fundamentals{
		Symbol:          symbol,
		Recommendations: []provider.Recommendation{},
		Earnings:        []provider.Earnings{},
	}
	if c.funds == nil {
		return out
	}
	name := nameOf(c.funds)

	var g errgroup.Group
	g.Go(func() error {
		c.section(kindMetrics, name, symbol, func() error {
			m, err := c.funds.BasicFinancials(ctx, symbol)
			if err == nil {
				out.Metrics = &m
			}
			return err
		})
		return nil
	})
	g.Go(func() error {
		c.section(kindRecommendations, name, symbol, func() error {
			recs, err := c.funds.Recommendations(ctx, symbol)
			if err == nil {
				out.Recommendations = recs
			}
			return err
		})
		return nil
	})
	g.Go(func() error {
		c.section(kindPriceTarget, name, symbol, func() error {
			pt, err := c.funds.PriceTarget(ctx, symbol)
			if err == nil {
				out.PriceTarget = &pt
			}
			return err
		})
		return nil
	})
	g.Go(func() error {
		c.section(kindEarnings, name, symbol, func() error {
			earnings, err := c.funds.Earnings(ctx, symbol)
			if err == nil {
				out.Earnings = earnings[:min(len(earnings), MaxEarnings)]
			}
			return err
		})
		return nil
	})
	_ = g.Wait()
	return out
}

// section runs one single-provider lookup under the backoff and metrics rules.
func (c *Chain) section(kind, name, symbol string, fetch func() error) {
	if c.skip(kind, name) {
		telemetry.ProviderAttempt(kind, name, telemetry.OutcomeSkipped)
		return
	}
	if err := fetch(); err != nil {
		c.record(kind, name, symbol, err)
		return
	}
	telemetry.ProviderAttempt(kind, name, telemetry.OutcomeOK)
}
