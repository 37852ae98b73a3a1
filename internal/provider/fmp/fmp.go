package fmp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"marketdash/internal/provider"
)

const (
	// Name identifies the provider in quotes, logs and metrics.
	Name = "fmp"

	defaultBaseURL = "https://financialmodelingprep.com"
)

// BatchQuote is one row of the /api/v3/quote batch answer.
type BatchQuote struct {
	Symbol            string  `json:"symbol"`
	Name              string  `json:"name"`
	Price             float64 `json:"price"`
	Change            float64 `json:"change"`
	ChangesPercentage float64 `json:"changesPercentage"`
	DayHigh           float64 `json:"dayHigh"`
	DayLow            float64 `json:"dayLow"`
	Open              float64 `json:"open"`
	PreviousClose     float64 `json:"previousClose"`
	MarketCap         float64 `json:"marketCap"`
	Volume            float64 `json:"volume"`
	Timestamp         int64   `json:"timestamp"`
}

// Client talks to Financial Modeling Prep.
type Client struct {
	client *resty.Client
	apiKey string
}

// New creates a client. baseURL may be empty.
func New(apiKey, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{client: client, apiKey: strings.TrimSpace(apiKey)}
}

func (c *Client) Name() string { return Name }

// Configured reports whether an API key is set.
func (c *Client) Configured() bool { return c.apiKey != "" }

// Quotes fetches all symbols in a single request.
func (c *Client) Quotes(ctx context.Context, symbols []string) ([]BatchQuote, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%s: api key not configured: %w", Name, provider.ErrNoData)
	}
	if len(symbols) == 0 {
		return nil, nil
	}

	normalized := make([]string, 0, len(symbols))
	for _, s := range symbols {
		normalized = append(normalized, provider.NormalizeSymbol(s))
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetRawPathParam("symbols", strings.Join(normalized, ",")).
		SetQueryParam("apikey", c.apiKey).
		Get("/api/v3/quote/{symbols}")
	if err != nil {
		return nil, fmt.Errorf("%s quote: %w", Name, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, provider.NewStatusError(Name, resp.StatusCode(), resp.Body())
	}

	var out []BatchQuote
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		// Entitlement and key errors come back as an object with "Error Message".
		var eb struct {
			ErrorMessage string `json:"Error Message"`
		}
		if json.Unmarshal(resp.Body(), &eb) == nil && eb.ErrorMessage != "" {
			if strings.Contains(strings.ToLower(eb.ErrorMessage), "subscription") {
				return nil, fmt.Errorf("%s quote: %s: %w", Name, eb.ErrorMessage, provider.ErrPaidFeature)
			}
			return nil, fmt.Errorf("%s quote: %s", Name, eb.ErrorMessage)
		}
		return nil, fmt.Errorf("%s quote: decoding response: %w", Name, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s quote: %w", Name, provider.ErrNoData)
	}
	return out, nil
}

// Quote satisfies provider.QuoteProvider through the batch endpoint.
func (c *Client) Quote(ctx context.Context, symbol string) (provider.Quote, error) {
	rows, err := c.Quotes(ctx, []string{symbol})
	if err != nil {
		return provider.Quote{}, err
	}
	r := rows[0]
	if r.Price == 0 {
		return provider.Quote{}, fmt.Errorf("%s quote %s: %w", Name, r.Symbol, provider.ErrNoData)
	}
	return provider.Quote{
		Symbol:        r.Symbol,
		CurrentPrice:  r.Price,
		Change:        r.Change,
		ChangePercent: r.ChangesPercentage,
		High:          r.DayHigh,
		Low:           r.DayLow,
		Open:          r.Open,
		PreviousClose: r.PreviousClose,
		Timestamp:     r.Timestamp,
		Source:        Name,
	}, nil
}
