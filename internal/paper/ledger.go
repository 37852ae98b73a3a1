// Package paper simulates a cash account with long and short positions.
package paper

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StartingBalance is the cash a new ledger opens with.
const StartingBalance = 100000

const maxEquityPoints = 60

type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

var (
	ErrInvalidOrder      = errors.New("invalid order")
	ErrInsufficientFunds = errors.New("not enough cash for this order")
	ErrPositionNotFound  = errors.New("position not found")
)

type Position struct {
	ID     string  `json:"id"`
	Symbol string  `json:"symbol"`
	Side   Side    `json:"side"`
	Qty    float64 `json:"qty"`
	Price  float64 `json:"price"`
	Last   float64 `json:"last"`
}

// EquityPoint is an equity sample; T is unix milliseconds.
type EquityPoint struct {
	T int64   `json:"t"`
	V float64 `json:"v"`
}

// Ledger is the persisted account state.
type Ledger struct {
	Balance       float64       `json:"balance"`
	Positions     []Position    `json:"positions"`
	EquityHistory []EquityPoint `json:"equityHistory"`
}

func NewLedger() Ledger {
	return Ledger{Balance: StartingBalance, Positions: []Position{}, EquityHistory: []EquityPoint{}}
}

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func (p Position) last() decimal.Decimal {
	if p.Last > 0 {
		return d(p.Last)
	}
	return d(p.Price)
}

// value is what the position contributes to equity. A short is worth its
// entry cost plus the gain from a falling price.
func (p Position) value() decimal.Decimal {
	qty, last := d(p.Qty), p.last()
	if p.Side == Short {
		return qty.Mul(d(p.Price).Mul(decimal.NewFromInt(2)).Sub(last))
	}
	return qty.Mul(last)
}

func (p Position) pnl() decimal.Decimal {
	diff := p.last().Sub(d(p.Price))
	if p.Side == Short {
		diff = diff.Neg()
	}
	return diff.Mul(d(p.Qty))
}

// PnL is the open profit or loss of the position.
func (p Position) PnL() float64 { return p.pnl().InexactFloat64() }

// PnLPercent is PnL relative to the entry cost.
func (p Position) PnLPercent() float64 {
	cost := d(p.Price).Mul(d(p.Qty))
	if cost.IsZero() {
		return 0
	}
	return p.pnl().Div(cost).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// Equity is cash plus every position's value.
func (l Ledger) Equity() float64 {
	total := d(l.Balance)
	for _, p := range l.Positions {
		total = total.Add(p.value())
	}
	return total.InexactFloat64()
}

func (l Ledger) TotalPnL() float64 {
	total := decimal.Zero
	for _, p := range l.Positions {
		total = total.Add(p.pnl())
	}
	return total.InexactFloat64()
}

// Exposure is the market value of all positions at their last price.
func (l Ledger) Exposure() float64 {
	total := decimal.Zero
	for _, p := range l.Positions {
		total = total.Add(d(p.Qty).Mul(p.last()))
	}
	return total.InexactFloat64()
}

func (l Ledger) BuyingPower() float64 {
	return d(l.Balance).Mul(decimal.NewFromInt(2)).InexactFloat64()
}

// Open debits qty*price for either side and records the position.
func (l *Ledger) Open(symbol string, side Side, qty, price float64) (Position, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	switch {
	case symbol == "":
		return Position{}, fmt.Errorf("%w: symbol required", ErrInvalidOrder)
	case side != Long && side != Short:
		return Position{}, fmt.Errorf("%w: side must be LONG or SHORT", ErrInvalidOrder)
	case qty <= 0:
		return Position{}, fmt.Errorf("%w: quantity must be greater than 0", ErrInvalidOrder)
	case price <= 0:
		return Position{}, fmt.Errorf("%w: price must be greater than 0", ErrInvalidOrder)
	}

	cost := d(qty).Mul(d(price))
	balance := d(l.Balance)
	if cost.GreaterThan(balance) {
		return Position{}, ErrInsufficientFunds
	}

	pos := Position{ID: uuid.NewString(), Symbol: symbol, Side: side, Qty: qty, Price: price, Last: price}
	l.Balance = balance.Sub(cost).InexactFloat64()
	l.Positions = append(l.Positions, pos)
	return pos, nil
}

// Close removes the position and credits its value. It returns the credit.
func (l *Ledger) Close(id string) (float64, error) {
	for i, p := range l.Positions {
		if p.ID != id {
			continue
		}
		proceeds := p.value()
		l.Balance = d(l.Balance).Add(proceeds).InexactFloat64()
		l.Positions = append(l.Positions[:i:i], l.Positions[i+1:]...)
		return proceeds.InexactFloat64(), nil
	}
	return 0, ErrPositionNotFound
}

// Mark updates last prices from prices (missing or non-positive entries are
// ignored) and samples equity. Consecutive equal samples are collapsed and
// only the last 60 are kept.
func (l *Ledger) Mark(prices map[string]float64, now time.Time) {
	for i := range l.Positions {
		if px, ok := prices[l.Positions[i].Symbol]; ok && px > 0 {
			l.Positions[i].Last = px
		}
	}

	point := EquityPoint{T: now.UnixMilli(), V: l.Equity()}
	if n := len(l.EquityHistory); n > 0 && l.EquityHistory[n-1].V == point.V {
		return
	}
	l.EquityHistory = append(l.EquityHistory, point)
	if len(l.EquityHistory) > maxEquityPoints {
		l.EquityHistory = l.EquityHistory[len(l.EquityHistory)-maxEquityPoints:]
	}
}

// Symbols lists the distinct symbols held.
func (l Ledger) Symbols() []string {
	seen := make(map[string]struct{}, len(l.Positions))
	var out []string
	for _, p := range l.Positions {
		if _, ok := seen[p.Symbol]; ok {
			continue
		}
		seen[p.Symbol] = struct{}{}
		out = append(out, p.Symbol)
	}
	return out
}
