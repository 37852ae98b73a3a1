package finnhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"marketdash/internal/provider"
)

const (
	// Name identifies the provider in quotes, logs and metrics.
	Name = "finnhub"

	defaultBaseURL = "https://finnhub.io/api/v1"
)

// Limiter gates outbound requests.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Client talks to the Finnhub REST API.
type Client struct {
	client *resty.Client
	apiKey string
	now    func() time.Time
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.client.SetBaseURL(strings.TrimRight(baseURL, "/"))
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.SetTimeout(d)
		}
	}
}

// WithLimiter makes every request wait on l first. Finnhub's free plan
// allows 60 calls per minute across all endpoints.
func WithLimiter(l Limiter) Option {
	return func(c *Client) {
		if l == nil {
			return
		}
		c.client.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			return l.Wait(r.Context())
		})
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a Finnhub client. An empty key is allowed; every call then fails
// locally with ErrNoData, which the fallback chain treats like any other failure.
func New(apiKey string, opts ...Option) *Client {
	client := resty.New()
	client.SetBaseURL(defaultBaseURL)
	client.SetTimeout(10 * time.Second)
	client.SetHeader("Accept", "application/json")

	c := &Client{client: client, apiKey: strings.TrimSpace(apiKey), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return Name }

// errorBody is the shape Finnhub uses for in-band errors on a 200.
type errorBody struct {
	Error string `json:"error"`
}

// get performs a GET on path and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	if c.apiKey == "" {
		return fmt.Errorf("%s: api key not configured: %w", Name, provider.ErrNoData)
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetQueryParam("token", c.apiKey).
		Get(path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", Name, path, err)
	}

	body := resp.Body()
	if resp.StatusCode() != http.StatusOK {
		return provider.NewStatusError(Name, resp.StatusCode(), body)
	}

	if trimmed := strings.TrimSpace(string(body)); strings.HasPrefix(trimmed, "{") {
		var eb errorBody
		if json.Unmarshal(body, &eb) == nil && eb.Error != "" {
			msg := strings.ToLower(eb.Error)
			if strings.Contains(msg, "access") || strings.Contains(msg, "premium") {
				return fmt.Errorf("%s %s: %s: %w", Name, path, eb.Error, provider.ErrPaidFeature)
			}
			return fmt.Errorf("%s %s: %s", Name, path, eb.Error)
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s %s: decoding response: %w", Name, path, err)
	}
	return nil
}

type quoteResponse struct {
	C  *float64 `json:"c"`
	D  *float64 `json:"d"`
	DP *float64 `json:"dp"`
	H  float64  `json:"h"`
	L  float64  `json:"l"`
	O  float64  `json:"o"`
	PC float64  `json:"pc"`
	T  int64    `json:"t"`
}

// Quote fetches /quote. A zero or missing current price counts as no data.
func (c *Client) Quote(ctx context.Context, symbol string) (provider.Quote, error) {
	symbol = provider.NormalizeSymbol(symbol)

	var r quoteResponse
	if err := c.get(ctx, "/quote", map[string]string{"symbol": symbol}, &r); err != nil {
		return provider.Quote{}, err
	}
	if r.C == nil || *r.C == 0 {
		return provider.Quote{}, fmt.Errorf("%s quote %s: %w", Name, symbol, provider.ErrNoData)
	}

	q := provider.Quote{
		Symbol:        symbol,
		CurrentPrice:  *r.C,
		High:          r.H,
		Low:           r.L,
		Open:          r.O,
		PreviousClose: r.PC,
		Timestamp:     r.T,
		Source:        Name,
	}
	if r.D != nil {
		q.Change = *r.D
	} else if r.PC != 0 {
		q.Change = q.CurrentPrice - r.PC
	}
	if r.DP != nil {
		q.ChangePercent = *r.DP
	} else if r.PC != 0 {
		q.ChangePercent = q.Change / r.PC * 100
	}
	if q.Timestamp == 0 {
		q.Timestamp = c.now().Unix()
	}
	return q, nil
}

type candleResponse struct {
	S string    `json:"s"`
	T []int64   `json:"t"`
	O []float64 `json:"o"`
	H []float64 `json:"h"`
	L []float64 `json:"l"`
	C []float64 `json:"c"`
	V []float64 `json:"v"`
}

var resolutions = map[provider.Interval]string{
	provider.Daily:   "D",
	provider.Weekly:  "W",
	provider.Monthly: "M",
}

// History fetches /stock/candle at the native resolution for the interval.
func (c *Client) History(ctx context.Context, symbol string, interval provider.Interval) ([]provider.HistoricalPoint, error) {
	symbol = provider.NormalizeSymbol(symbol)
	to := c.now()
	from := to.Add(-interval.Lookback())

	var r candleResponse
	err := c.get(ctx, "/stock/candle", map[string]string{
		"symbol":     symbol,
		"resolution": resolutions[interval],
		"from":       fmt.Sprint(from.Unix()),
		"to":         fmt.Sprint(to.Unix()),
	}, &r)
	if err != nil {
		return nil, err
	}
	if r.S != "ok" || len(r.T) == 0 {
		return nil, fmt.Errorf("%s candles %s: status %q: %w", Name, symbol, r.S, provider.ErrNoData)
	}

	n := len(r.T)
	if len(r.O) < n || len(r.H) < n || len(r.L) < n || len(r.C) < n {
		return nil, errors.New(Name + " candles: ragged arrays")
	}

	out := make([]provider.HistoricalPoint, 0, n)
	for i, ts := range r.T {
		p := provider.HistoricalPoint{
			Time:  provider.DateString(time.Unix(ts, 0)),
			Open:  r.O[i],
			High:  r.H[i],
			Low:   r.L[i],
			Close: r.C[i],
		}
		if i < len(r.V) {
			p.Volume = r.V[i]
		}
		out = append(out, p)
	}
	return out, nil
}

type insiderResponse struct {
	Data []struct {
		Name             string   `json:"name"`
		Share            *float64 `json:"share"`
		Change           *float64 `json:"change"`
		FilingDate       string   `json:"filingDate"`
		TransactionDate  string   `json:"transactionDate"`
		TransactionCode  string   `json:"transactionCode"`
		TransactionPrice *float64 `json:"transactionPrice"`
	} `json:"data"`
}

// InsiderRecords fetches /stock/insider-transactions.
func (c *Client) InsiderRecords(ctx context.Context, symbol string) ([]provider.InsiderRecord, error) {
	symbol = provider.NormalizeSymbol(symbol)

	var r insiderResponse
	if err := c.get(ctx, "/stock/insider-transactions", map[string]string{"symbol": symbol}, &r); err != nil {
		return nil, err
	}
	if len(r.Data) == 0 {
		return nil, fmt.Errorf("%s insider %s: %w", Name, symbol, provider.ErrNoData)
	}

	out := make([]provider.InsiderRecord, 0, len(r.Data))
	for _, d := range r.Data {
		out = append(out, provider.InsiderRecord{
			Name:             d.Name,
			Share:            d.Share,
			Change:           d.Change,
			FilingDate:       d.FilingDate,
			TransactionDate:  d.TransactionDate,
			TransactionCode:  d.TransactionCode,
			TransactionPrice: d.TransactionPrice,
		})
	}
	return out, nil
}

// CompanyProfile fetches /stock/profile2.
func (c *Client) CompanyProfile(ctx context.Context, symbol string) (provider.CompanyProfile, error) {
	symbol = provider.NormalizeSymbol(symbol)

	var p provider.CompanyProfile
	if err := c.get(ctx, "/stock/profile2", map[string]string{"symbol": symbol}, &p); err != nil {
		return provider.CompanyProfile{}, err
	}
	if p.Name == "" {
		return provider.CompanyProfile{}, fmt.Errorf("%s profile %s: %w", Name, symbol, provider.ErrNoData)
	}
	return p, nil
}

// Search fetches /search.
func (c *Client) Search(ctx context.Context, query string) ([]provider.SymbolMatch, error) {
	var r struct {
		Result []provider.SymbolMatch `json:"result"`
	}
	if err := c.get(ctx, "/search", map[string]string{"q": query}, &r); err != nil {
		return nil, err
	}
	if r.Result == nil {
		r.Result = []provider.SymbolMatch{}
	}
	return r.Result, nil
}
