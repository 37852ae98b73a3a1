package paper

import (
	"context"
	"fmt"
	"time"

	"marketdash/internal/provider"
	"marketdash/internal/store"
)

const recordName = "paper_trading"

// QuoteResolver resolves a quote without failing.
type QuoteResolver interface {
	Quote(ctx context.Context, symbol string) provider.Quote
}

// Book loads, mutates and saves ledgers per user.
type Book struct {
	records store.Records
	quotes  QuoteResolver
	now     func() time.Time
}

func NewBook(records store.Records, quotes QuoteResolver) *Book {
	return &Book{records: records, quotes: quotes, now: time.Now}
}

// Summary is a ledger with its derived figures.
type Summary struct {
	Ledger
	Equity      float64        `json:"equity"`
	TotalPnL    float64        `json:"totalPnL"`
	Exposure    float64        `json:"exposure"`
	BuyingPower float64        `json:"buyingPower"`
	Open        []PositionView `json:"open"`
}

type PositionView struct {
	Position
	PnL        float64 `json:"pnl"`
	PnLPercent float64 `json:"pnlPercent"`
}

func Summarize(l Ledger) Summary {
	s := Summary{
		Ledger:      l,
		Equity:      l.Equity(),
		TotalPnL:    l.TotalPnL(),
		Exposure:    l.Exposure(),
		BuyingPower: l.BuyingPower(),
		Open:        make([]PositionView, 0, len(l.Positions)),
	}
	for _, p := range l.Positions {
		s.Open = append(s.Open, PositionView{Position: p, PnL: p.PnL(), PnLPercent: p.PnLPercent()})
	}
	return s
}

// Load returns the user's ledger, or a fresh one.
func (b *Book) Load(ctx context.Context, user string) (Ledger, error) {
	l := NewLedger()
	if _, err := b.records.Load(ctx, store.Key(user, recordName), &l); err != nil {
		return Ledger{}, err
	}
	if l.Positions == nil {
		l.Positions = []Position{}
	}
	if l.EquityHistory == nil {
		l.EquityHistory = []EquityPoint{}
	}
	return l, nil
}

func (b *Book) Save(ctx context.Context, user string, l Ledger) error {
	return b.records.Save(ctx, store.Key(user, recordName), l)
}

// Order opens a position. A zero price is a market order filled at the
// resolved quote.
type Order struct {
	Symbol string  `json:"symbol"`
	Side   Side    `json:"side"`
	Qty    float64 `json:"qty"`
	Price  float64 `json:"price"`
}

func (b *Book) Open(ctx context.Context, user string, o Order) (Summary, error) {
	l, err := b.Load(ctx, user)
	if err != nil {
		return Summary{}, err
	}
	if o.Price == 0 && o.Symbol != "" {
		o.Price = b.quotes.Quote(ctx, o.Symbol).CurrentPrice
	}
	if _, err := l.Open(o.Symbol, o.Side, o.Qty, o.Price); err != nil {
		return Summary{}, err
	}
	l.Mark(nil, b.now())
	if err := b.Save(ctx, user, l); err != nil {
		return Summary{}, fmt.Errorf("save ledger: %w", err)
	}
	return Summarize(l), nil
}

func (b *Book) Close(ctx context.Context, user, id string) (Summary, error) {
	l, err := b.Load(ctx, user)
	if err != nil {
		return Summary{}, err
	}
	if _, err := l.Close(id); err != nil {
		return Summary{}, err
	}
	l.Mark(nil, b.now())
	if err := b.Save(ctx, user, l); err != nil {
		return Summary{}, fmt.Errorf("save ledger: %w", err)
	}
	return Summarize(l), nil
}

// Refresh marks every held symbol to its current quote.
func (b *Book) Refresh(ctx context.Context, user string) (Summary, error) {
	l, err := b.Load(ctx, user)
	if err != nil {
		return Summary{}, err
	}
	if len(l.Positions) == 0 {
		return Summarize(l), nil
	}
	prices := make(map[string]float64)
	for _, sym := range l.Symbols() {
		prices[sym] = b.quotes.Quote(ctx, sym).CurrentPrice
	}
	l.Mark(prices, b.now())
	if err := b.Save(ctx, user, l); err != nil {
		return Summary{}, fmt.Errorf("save ledger: %w", err)
	}
	return Summarize(l), nil
}

// Replace overwrites the stored ledger, e.g. when a client syncs local state.
func (b *Book) Replace(ctx context.Context, user string, l Ledger) (Summary, error) {
	if l.Balance < 0 {
		return Summary{}, fmt.Errorf("%w: negative balance", ErrInvalidOrder)
	}
	if l.Positions == nil {
		l.Positions = []Position{}
	}
	if l.EquityHistory == nil {
		l.EquityHistory = []EquityPoint{}
	}
	if err := b.Save(ctx, user, l); err != nil {
		return Summary{}, fmt.Errorf("save ledger: %w", err)
	}
	return Summarize(l), nil
}
