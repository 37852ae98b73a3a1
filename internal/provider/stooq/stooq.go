package stooq

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"marketdash/internal/httpx"
	"marketdash/internal/provider"
)

const (
	// Name identifies the provider in quotes, logs and metrics.
	Name = "stooq"

	DefaultEndpoint = "https://stooq.pl/q/l/"
)

// Provider reads the keyless stooq "last quote" endpoint.
type Provider struct {
	Endpoint string
	Client   *httpx.Client
	Now      func() time.Time
}

func New(endpoint string, client *httpx.Client) *Provider {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if client == nil {
		client = httpx.New(8 * time.Second)
	}
	return &Provider{Endpoint: endpoint, Client: client, Now: time.Now}
}

func (p *Provider) Name() string { return Name }

// number accepts a JSON number or a numeric string; anything else (stooq
// answers "N/D" for unknown tickers) decodes to NaN.
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*n = number(math.NaN())
		return nil
	}
	*n = number(f)
	return nil
}

func (n number) valid() bool {
	f := float64(n)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

type row struct {
	Symbol string `json:"symbol"`
	Open   number `json:"open"`
	High   number `json:"high"`
	Low    number `json:"low"`
	Close  number `json:"close"`
}

// candidates lists the tickers tried for a symbol: the bare ticker, then the
// US listing suffix.
func candidates(symbol string) []string {
	s := strings.ToLower(strings.TrimSpace(symbol))
	if strings.Contains(s, ".") {
		return []string{s}
	}
	return []string{s, s + ".us"}
}

// Quote tries each candidate ticker and returns the first row with a usable
// close. Change is measured against the session open since the endpoint has
// no previous close.
func (p *Provider) Quote(ctx context.Context, symbol string) (provider.Quote, error) {
	symbol = provider.NormalizeSymbol(symbol)

	var errs []error
	for _, ticker := range candidates(symbol) {
		r, err := p.fetch(ctx, ticker)
		if err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if !r.Close.valid() {
			errs = append(errs, fmt.Errorf("%s %s: %w", Name, ticker, provider.ErrNoData))
			continue
		}
		return toQuote(symbol, r, p.now()), nil
	}
	return provider.Quote{}, errors.Join(errs...)
}

func (p *Provider) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func toQuote(symbol string, r row, now time.Time) provider.Quote {
	closePrice := float64(r.Close)
	q := provider.Quote{
		Symbol:        symbol,
		CurrentPrice:  closePrice,
		High:          closePrice,
		Low:           closePrice,
		Open:          closePrice,
		PreviousClose: closePrice,
		Timestamp:     now.Unix(),
		Source:        Name,
	}
	if r.Open.valid() {
		open := float64(r.Open)
		q.Open = open
		q.PreviousClose = open
		q.Change = closePrice - open
		if open != 0 {
			q.ChangePercent = q.Change / open * 100
		}
	}
	if r.High.valid() {
		q.High = float64(r.High)
	}
	if r.Low.valid() {
		q.Low = float64(r.Low)
	}
	return q
}

func (p *Provider) fetch(ctx context.Context, ticker string) (row, error) {
	u, err := url.Parse(p.Endpoint)
	if err != nil {
		return row{}, fmt.Errorf("parsing endpoint: %w", err)
	}
	// The bare "h" flag asks for a header row; url.Values cannot express a
	// valueless key, so it is appended by hand.
	q := url.Values{}
	q.Set("s", ticker)
	q.Set("f", "sd2t2ohlcv")
	q.Set("e", "json")
	u.RawQuery = q.Encode() + "&h"

	var raw json.RawMessage
	if err := p.Client.GetJSON(ctx, Name, u.String(), nil, &raw); err != nil {
		return row{}, err
	}

	var rows []row
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return row{}, fmt.Errorf("decoding %s rows: %w", Name, err)
		}
	} else {
		var wrapped struct {
			Symbols []row `json:"symbols"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return row{}, fmt.Errorf("decoding %s rows: %w", Name, err)
		}
		rows = wrapped.Symbols
	}
	if len(rows) == 0 {
		return row{}, fmt.Errorf("%s %s: %w", Name, ticker, provider.ErrNoData)
	}
	return rows[0], nil
}
