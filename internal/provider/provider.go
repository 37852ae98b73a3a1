package provider

import (
	"context"
	"strings"
	"time"
)

// Quote is the normalized price snapshot returned by every quote provider.
type Quote struct {
	Symbol        string  `json:"symbol"`
	CurrentPrice  float64 `json:"currentPrice"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Open          float64 `json:"open"`
	PreviousClose float64 `json:"previousClose"`
	// Timestamp is unix seconds of the observation.
	Timestamp int64  `json:"timestamp"`
	Source    string `json:"source"`
}

// HistoricalPoint is one OHLCV bar. Time is the bar date formatted as YYYY-MM-DD.
type HistoricalPoint struct {
	Time   string  `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// InsiderTransaction is a single reported insider trade.
type InsiderTransaction struct {
	Name             string  `json:"name"`
	Share            float64 `json:"share"`
	Change           float64 `json:"change"`
	FilingDate       string  `json:"filingDate"`
	TransactionDate  string  `json:"transactionDate"`
	TransactionCode  string  `json:"transactionCode"`
	TransactionPrice float64 `json:"transactionPrice"`
}

type CompanyProfile struct {
	Country              string  `json:"country"`
	Currency             string  `json:"currency"`
	Exchange             string  `json:"exchange"`
	IPO                  string  `json:"ipo"`
	MarketCapitalization float64 `json:"marketCapitalization"`
	Name                 string  `json:"name"`
	Phone                string  `json:"phone"`
	ShareOutstanding     float64 `json:"shareOutstanding"`
	Ticker               string  `json:"ticker"`
	WebURL               string  `json:"weburl"`
	Logo                 string  `json:"logo"`
	Industry             string  `json:"finnhubIndustry"`
}

type NewsArticle struct {
	Category string `json:"category"`
	Datetime int64  `json:"datetime"`
	Headline string `json:"headline"`
	ID       int64  `json:"id"`
	Image    string `json:"image"`
	Related  string `json:"related"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

type SymbolMatch struct {
	Description   string `json:"description"`
	DisplaySymbol string `json:"displaySymbol"`
	Symbol        string `json:"symbol"`
	Type          string `json:"type"`
}

// CryptoQuote is a 24h snapshot for a crypto pair such as BTC-USD.
type CryptoQuote struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	// MarketCap is expressed in millions of USD.
	MarketCap float64 `json:"marketCap"`
	Volume24h float64 `json:"volume24h"`
	High24h   float64 `json:"high24h"`
	Low24h    float64 `json:"low24h"`
	Source    string  `json:"source"`
}

// Interval selects the bar size of a historical series.
type Interval string

const (
	Daily   Interval = "daily"
	Weekly  Interval = "weekly"
	Monthly Interval = "monthly"
)

// ParseInterval maps a user supplied interval to an Interval, defaulting to Daily.
func ParseInterval(s string) Interval {
	switch Interval(strings.ToLower(strings.TrimSpace(s))) {
	case Weekly:
		return Weekly
	case Monthly:
		return Monthly
	default:
		return Daily
	}
}

// Lookback is how far back a series for the interval reaches.
func (i Interval) Lookback() time.Duration {
	switch i {
	case Weekly:
		return 365 * 24 * time.Hour
	case Monthly:
		return 730 * 24 * time.Hour
	default:
		return 100 * 24 * time.Hour
	}
}

// QuoteProvider fetches a live quote for one symbol.
type QuoteProvider interface {
	Name() string
	Quote(ctx context.Context, symbol string) (Quote, error)
}

// HistoryProvider fetches an ascending OHLCV series at the requested interval.
type HistoryProvider interface {
	Name() string
	History(ctx context.Context, symbol string, interval Interval) ([]HistoricalPoint, error)
}

type ProfileProvider interface {
	CompanyProfile(ctx context.Context, symbol string) (CompanyProfile, error)
}

// NormalizeSymbol upper-cases and trims a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// DateString formats t as YYYY-MM-DD in UTC.
func DateString(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// InsiderRecord is an insider trade as reported upstream, before cleaning.
// Nil numeric fields were absent in the payload.
type InsiderRecord struct {
	Name             string
	Share            *float64
	Change           *float64
	FilingDate       string
	TransactionDate  string
	TransactionCode  string
	TransactionPrice *float64
}

// InsiderSource returns raw insider records for a symbol.
type InsiderSource interface {
	InsiderRecords(ctx context.Context, symbol string) ([]InsiderRecord, error)
}

// CompanyNewsSource lists articles about one company published between two
// YYYY-MM-DD dates.
type CompanyNewsSource interface {
	CompanyNews(ctx context.Context, symbol, from, to string) ([]NewsArticle, error)
}
