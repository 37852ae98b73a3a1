// Package dashboard computes the shared, non-personalized aggregates served
// to every client. Each aggregate goes through the cache gate.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"marketdash/internal/cache"
	"marketdash/internal/insight"
	"marketdash/internal/provider"
	"marketdash/internal/provider/coingecko"
	"marketdash/internal/provider/fmp"
	"marketdash/internal/provider/synthetic"
)

// Cache keys, versioned so payload shape changes do not read stale rows.
const (
	keyMarketOverview   = "market_overview_v1"
	keyMarketNews       = "market_news_v1"
	keyGeopoliticalNews = "geopolitical_news_v1"
	keyMarketImpact     = "market_impact_v1"
	keyCryptoOverview   = "crypto_overview_v1"
	keyMarketSentiment  = "market_sentiment_v1"
	keyCryptoNews       = "crypto_news_v1"
	keyMovers           = "movers_v1"
)

// OverviewBasket is the fixed ticker basket scored by MarketOverview.
var OverviewBasket = []string{"AAPL", "MSFT", "NVDA", "TSLA", "GOOGL", "AMZN", "META", "AMD", "PLTR", "COIN"}

// NewsCategories are fetched and merged for the curated feed.
var NewsCategories = []string{"general", "forex", "crypto"}

const (
	maxNewsPerSource = 6
	maxNews          = 50
	maxCryptoNews    = 20
	maxImpactStories = 12
	volatilitySymbol = "VIX"
)

// QuoteResolver resolves quotes without failing.
type QuoteResolver interface {
	Quote(ctx context.Context, symbol string) provider.Quote
	Quotes(ctx context.Context, symbols []string) []provider.Quote
	// Indices returns SPY, QQQ and DIA in that order.
	Indices(ctx context.Context) []provider.Quote
}

// NewsSource lists articles for a news category.
type NewsSource interface {
	MarketNews(ctx context.Context, category string) ([]provider.NewsArticle, error)
}

// BatchQuoter fetches a basket in one upstream call.
type BatchQuoter interface {
	Configured() bool
	Quotes(ctx context.Context, symbols []string) ([]fmp.BatchQuote, error)
}

// CryptoQuoter fetches crypto pairs in one upstream call.
type CryptoQuoter interface {
	Quotes(ctx context.Context, coins []coingecko.Coin) (map[string]provider.CryptoQuote, error)
}

// ErrNoNews is returned when every news category failed.
var ErrNoNews = errors.New("no news available")

type Service struct {
	store    cache.Store
	quotes   QuoteResolver
	news     NewsSource
	batch    BatchQuoter
	crypto   CryptoQuoter
	fallback *synthetic.Generator
	log      *slog.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithNews(n NewsSource) Option { return func(s *Service) { s.news = n } }

func WithBatchQuoter(b BatchQuoter) Option { return func(s *Service) { s.batch = b } }

func WithCrypto(c CryptoQuoter) Option { return func(s *Service) { s.crypto = c } }

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSynthetic sets the generator used for coins CoinGecko did not return.
func WithSynthetic(g *synthetic.Generator) Option {
	return func(s *Service) { s.fallback = g }
}

func New(store cache.Store, quotes QuoteResolver, opts ...Option) *Service {
	s := &Service{
		store:  store,
		quotes: quotes,
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fallback == nil {
		s.fallback = synthetic.New(nil)
	}
	return s
}

func (s *Service) stamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

// MarketOverview scores OverviewBasket. With a batch quoter configured its
// failures are returned; without one the basket is resolved through the
// fallback chain and never fails.
func (s *Service) MarketOverview(ctx context.Context) (insight.Overview, error) {
	return cache.Fetch(ctx, s.store, keyMarketOverview, cache.TTLMarketOverview, func(ctx context.Context) (insight.Overview, error) {
		var tickers []insight.OverviewTicker
		if s.batch != nil && s.batch.Configured() {
			rows, err := s.batch.Quotes(ctx, OverviewBasket)
			if err != nil {
				return insight.Overview{}, err
			}
			for _, r := range rows {
				tickers = append(tickers, insight.OverviewTicker{
					Symbol:            r.Symbol,
					Name:              r.Name,
					Price:             r.Price,
					Change:            r.Change,
					ChangesPercentage: r.ChangesPercentage,
					MarketCap:         r.MarketCap,
					Volume:            r.Volume,
				})
			}
		} else {
			for _, q := range s.quotes.Quotes(ctx, OverviewBasket) {
				tickers = append(tickers, insight.OverviewTicker{
					Symbol:            q.Symbol,
					Name:              q.Symbol,
					Price:             q.CurrentPrice,
					Change:            q.Change,
					ChangesPercentage: q.ChangePercent,
				})
			}
		}
		return insight.BuildOverview(tickers, s.now()), nil
	})
}

// MarketNews returns the curated feed capped at limit (at most 50).
func (s *Service) MarketNews(ctx context.Context, limit int) ([]provider.NewsArticle, error) {
	news, err := cache.Fetch(ctx, s.store, keyMarketNews, cache.TTLMarketNews, s.curatedNews)
	if err != nil {
		return nil, err
	}
	return capNews(news, limit, maxNews), nil
}

func (s *Service) curatedNews(ctx context.Context) ([]provider.NewsArticle, error) {
	if s.news == nil {
		return nil, ErrNoNews
	}

	results := make([][]provider.NewsArticle, len(NewsCategories))
	failed := make([]bool, len(NewsCategories))
	g, gctx := errgroup.WithContext(ctx)
	for i, category := range NewsCategories {
		g.Go(func() error {
			articles, err := s.news.MarketNews(gctx, category)
			if err != nil {
				failed[i] = true
				s.log.Debug("news category failed", slog.String("category", category), slog.Any("err", err))
				return nil
			}
			results[i] = articles
			return nil
		})
	}
	_ = g.Wait()

	allFailed := true
	var merged []provider.NewsArticle
	for i := range NewsCategories {
		if !failed[i] {
			allFailed = false
		}
		merged = append(merged, results[i]...)
	}
	if allFailed {
		return nil, ErrNoNews
	}
	return Curate(merged), nil
}

// Curate sorts newest first, drops duplicate URLs, keeps at most 6 articles
// per source and 50 overall. Only accepted articles claim their URL.
func Curate(articles []provider.NewsArticle) []provider.NewsArticle {
	sorted := make([]provider.NewsArticle, len(articles))
	copy(sorted, articles)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Datetime > sorted[j].Datetime })

	seen := make(map[string]struct{}, len(sorted))
	perSource := make(map[string]int)
	out := make([]provider.NewsArticle, 0, min(len(sorted), maxNews))
	for _, a := range sorted {
		if len(out) == maxNews {
			break
		}
		if _, dup := seen[a.URL]; dup {
			continue
		}
		if perSource[a.Source] >= maxNewsPerSource {
			continue
		}
		seen[a.URL] = struct{}{}
		perSource[a.Source]++
		out = append(out, a)
	}
	return out
}

// capNews keeps the first limit articles; a limit outside (0, ceiling] means ceiling.
func capNews(news []provider.NewsArticle, limit, ceiling int) []provider.NewsArticle {
	if limit <= 0 || limit > ceiling {
		limit = ceiling
	}
	if len(news) > limit {
		return news[:limit]
	}
	return news
}

// GeopoliticalNews is the curated feed filtered by the geopolitical keywords.
func (s *Service) GeopoliticalNews(ctx context.Context, limit int) ([]provider.NewsArticle, error) {
	geo, err := cache.Fetch(ctx, s.store, keyGeopoliticalNews, cache.TTLGeopoliticalNews, func(ctx context.Context) ([]provider.NewsArticle, error) {
		news, err := s.MarketNews(ctx, maxNews)
		if err != nil {
			return nil, err
		}
		geo, _ := insight.SplitGeopolitical(news)
		return geo, nil
	})
	if err != nil {
		return nil, err
	}
	return capNews(geo, limit, maxNews), nil
}

// MarketImpact is the impact report plus its timestamp.
type MarketImpact struct {
	insight.ImpactReport
	LastUpdated string `json:"lastUpdated"`
}

// Article categories for MarketImpact.
const (
	CategoryMarket       = "market"
	CategoryGeopolitical = "geopolitical"
)

// ParseCategory maps a user supplied category to CategoryMarket,
// CategoryGeopolitical or "" (all articles).
func ParseCategory(s string) string {
	switch c := strings.ToLower(strings.TrimSpace(s)); c {
	case CategoryMarket, CategoryGeopolitical:
		return c
	default:
		return ""
	}
}

// MarketImpact runs the major headlines through the impact rules. level and
// category narrow the report when they name a known level or category;
// anything else reports on everything.
func (s *Service) MarketImpact(ctx context.Context, level insight.Level, category string) (MarketImpact, error) {
	level = insight.ParseLevel(string(level))
	category = ParseCategory(category)
	key := keyMarketImpact + ":" + string(level) + ":" + category
	return cache.Fetch(ctx, s.store, key, cache.TTLMarketImpact, func(ctx context.Context) (MarketImpact, error) {
		news, err := s.MarketNews(ctx, maxNews)
		if err != nil {
			return MarketImpact{}, err
		}
		geo, market := insight.SplitGeopolitical(news)
		switch category {
		case CategoryGeopolitical:
			news = geo
		case CategoryMarket:
			news = market
		}
		selected := insight.SelectMajor(news, maxImpactStories)
		return MarketImpact{
			ImpactReport: insight.BuildReport(selected, level),
			LastUpdated:  s.stamp(),
		}, nil
	})
}

// CryptoCoin is a crypto pair in the overview.
type CryptoCoin struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change24h"`
	MarketCap float64 `json:"marketCap"`
	Volume    float64 `json:"volume,omitempty"`
	High24h   float64 `json:"high24h,omitempty"`
	Low24h    float64 `json:"low24h,omitempty"`
	Source    string  `json:"source,omitempty"`
}

type CryptoOverview struct {
	TotalMarketCap     float64      `json:"totalMarketCap"`
	MarketCapChange24h float64      `json:"marketCapChange24h"`
	GainersCount       int          `json:"gainersCount"`
	LosersCount        int          `json:"losersCount"`
	TopGainers         []CryptoCoin `json:"topGainers"`
	TopLosers          []CryptoCoin `json:"topLosers"`
	TopCryptos         []CryptoCoin `json:"topCryptos"`
	LastUpdated        string       `json:"lastUpdated"`
}

const cryptoMovers = 3

// CryptoOverview quotes every tracked coin in one call. Coins missing from
// the answer, or all of them when the call fails, are synthesized.
func (s *Service) CryptoOverview(ctx context.Context) (CryptoOverview, error) {
	return cache.Fetch(ctx, s.store, keyCryptoOverview, cache.TTLCryptoOverview, func(ctx context.Context) (CryptoOverview, error) {
		var live map[string]provider.CryptoQuote
		if s.crypto != nil {
			var err error
			live, err = s.crypto.Quotes(ctx, coingecko.Coins)
			if err != nil {
				s.log.Warn("crypto quotes failed, using reference prices", slog.Any("err", err))
			}
		}

		coins := make([]CryptoCoin, 0, len(coingecko.Coins))
		for _, c := range coingecko.Coins {
			q, ok := live[c.Symbol]
			if !ok {
				q = s.fallback.Crypto(c)
			}
			coins = append(coins, CryptoCoin{
				Symbol:    q.Symbol,
				Name:      q.Name,
				Price:     q.Price,
				Change24h: q.ChangePercent,
				MarketCap: q.MarketCap,
				Volume:    q.Volume24h,
				High24h:   q.High24h,
				Low24h:    q.Low24h,
				Source:    q.Source,
			})
		}
		return summarizeCrypto(coins, s.stamp()), nil
	})
}

func summarizeCrypto(coins []CryptoCoin, stamp string) CryptoOverview {
	o := CryptoOverview{TopCryptos: coins, LastUpdated: stamp}

	var weighted float64
	for _, c := range coins {
		o.TotalMarketCap += c.MarketCap
		weighted += c.MarketCap * c.Change24h
		switch {
		case c.Change24h > 0:
			o.GainersCount++
		case c.Change24h < 0:
			o.LosersCount++
		}
	}
	if o.TotalMarketCap > 0 {
		o.MarketCapChange24h = provider.Round2(weighted / o.TotalMarketCap)
	}

	byChange := make([]CryptoCoin, len(coins))
	copy(byChange, coins)
	sort.SliceStable(byChange, func(i, j int) bool { return byChange[i].Change24h > byChange[j].Change24h })

	o.TopGainers = []CryptoCoin{}
	o.TopLosers = []CryptoCoin{}
	for _, c := range byChange {
		if c.Change24h > 0 && len(o.TopGainers) < cryptoMovers {
			o.TopGainers = append(o.TopGainers, c)
		}
	}
	for i := len(byChange) - 1; i >= 0; i-- {
		if c := byChange[i]; c.Change24h < 0 && len(o.TopLosers) < cryptoMovers {
			o.TopLosers = append(o.TopLosers, c)
		}
	}
	return o
}

// Indices resolves SPY, QQQ and DIA.
type Indices struct {
	SP500  provider.Quote `json:"sp500"`
	Nasdaq provider.Quote `json:"nasdaq"`
	Dow    provider.Quote `json:"dow"`
}

func (s *Service) Indices(ctx context.Context) Indices {
	q := s.quotes.Indices(ctx)
	if len(q) < 3 {
		q = append(q, make([]provider.Quote, 3-len(q))...)
	}
	return Indices{SP500: q[0], Nasdaq: q[1], Dow: q[2]}
}

// MarketSentiment scores the index moves, penalized by the VIX level when a
// real VIX quote is available.
func (s *Service) MarketSentiment(ctx context.Context) (insight.MarketSentiment, error) {
	return cache.Fetch(ctx, s.store, keyMarketSentiment, cache.TTLMarketSentiment, func(ctx context.Context) (insight.MarketSentiment, error) {
		var (
			idx Indices
			vix provider.Quote
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			idx = s.Indices(gctx)
			return nil
		})
		g.Go(func() error {
			vix = s.quotes.Quote(gctx, volatilitySymbol)
			return nil
		})
		_ = g.Wait()

		var level *float64
		if vix.Source != synthetic.Name && vix.CurrentPrice > 0 {
			v := vix.CurrentPrice
			level = &v
		}
		return insight.ScoreSentiment(idx.SP500, idx.Nasdaq, idx.Dow, level), nil
	})
}

// CryptoNews is the crypto news category, newest first as delivered, tagged
// "crypto" and capped at limit (at most 20).
func (s *Service) CryptoNews(ctx context.Context, limit int) ([]provider.NewsArticle, error) {
	news, err := cache.Fetch(ctx, s.store, keyCryptoNews, cache.TTLCryptoNews, func(ctx context.Context) ([]provider.NewsArticle, error) {
		if s.news == nil {
			return nil, ErrNoNews
		}
		articles, err := s.news.MarketNews(ctx, "crypto")
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoNews, err)
		}
		if len(articles) == 0 {
			return nil, ErrNoNews
		}
		out := make([]provider.NewsArticle, 0, min(len(articles), maxCryptoNews))
		for _, a := range articles[:min(len(articles), maxCryptoNews)] {
			a.Category = "crypto"
			out = append(out, a)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return capNews(news, limit, maxCryptoNews), nil
}

// Listing is a basket member and its display name.
type Listing struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// MoversBasket is the fixed set ranked by Movers.
var MoversBasket = []Listing{
	{Symbol: "NVDA", Name: "NVIDIA"},
	{Symbol: "TSLA", Name: "Tesla"},
	{Symbol: "AAPL", Name: "Apple"},
	{Symbol: "META", Name: "Meta"},
	{Symbol: "GOOGL", Name: "Google"},
	{Symbol: "MSFT", Name: "Microsoft"},
	{Symbol: "AMD", Name: "AMD"},
	{Symbol: "AMZN", Name: "Amazon"},
	{Symbol: "NFLX", Name: "Netflix"},
	{Symbol: "DIS", Name: "Disney"},
}

const moversPerSide = 5

type Mover struct {
	Listing
	Quote provider.Quote `json:"quote"`
}

type Movers struct {
	Gainers     []Mover `json:"gainers"`
	Losers      []Mover `json:"losers"`
	LastUpdated string  `json:"lastUpdated"`
}

// Movers ranks MoversBasket by change percent: the five best are the
// gainers, the five worst (worst first) the losers. Quotes resolve through
// the fallback chain, so it never fails on upstream errors.
func (s *Service) Movers(ctx context.Context) (Movers, error) {
	return cache.Fetch(ctx, s.store, keyMovers, cache.TTLMovers, func(ctx context.Context) (Movers, error) {
		symbols := make([]string, len(MoversBasket))
		for i, l := range MoversBasket {
			symbols[i] = l.Symbol
		}
		quotes := s.quotes.Quotes(ctx, symbols)

		ranked := make([]Mover, 0, len(quotes))
		for i, q := range quotes {
			if i >= len(MoversBasket) || q.CurrentPrice <= 0 {
				continue
			}
			ranked = append(ranked, Mover{Listing: MoversBasket[i], Quote: q})
		}
		return rankMovers(ranked, s.stamp()), nil
	})
}

func rankMovers(ranked []Mover, stamp string) Movers {
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Quote.ChangePercent > ranked[j].Quote.ChangePercent
	})

	n := min(len(ranked), moversPerSide)
	m := Movers{
		Gainers:     append([]Mover{}, ranked[:n]...),
		Losers:      make([]Mover, 0, n),
		LastUpdated: stamp,
	}
	for i := len(ranked) - 1; i >= len(ranked)-n; i-- {
		m.Losers = append(m.Losers, ranked[i])
	}
	return m
}
