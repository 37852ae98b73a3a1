package provider

import (
	"fmt"
	"math"
)

// Range is an inclusive plausible price band for a symbol.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Ranges maps upper-case symbols to their plausible price band.
type Ranges map[string]Range

// DefaultRanges is the reference table for heavily traded tickers.
func DefaultRanges() Ranges {
	return Ranges{
		"NVDA":  {Min: 100, Max: 250},
		"AAPL":  {Min: 200, Max: 350},
		"TSLA":  {Min: 150, Max: 550},
		"MSFT":  {Min: 300, Max: 600},
		"META":  {Min: 400, Max: 800},
		"GOOGL": {Min: 100, Max: 400},
		"AMZN":  {Min: 150, Max: 350},
		"AMD":   {Min: 100, Max: 300},
		"NFLX":  {Min: 80, Max: 200},
		"DIS":   {Min: 80, Max: 150},
	}
}

// Lookup returns the band for symbol, if any.
func (r Ranges) Lookup(symbol string) (Range, bool) {
	rg, ok := r[NormalizeSymbol(symbol)]
	return rg, ok
}

// Check rejects a price that is not a finite non-negative number, or that
// falls outside the symbol's band. Symbols without a band only get the first check.
func (r Ranges) Check(symbol string, price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return fmt.Errorf("%s: %w: %v", symbol, ErrOutOfRange, price)
	}
	rg, ok := r.Lookup(symbol)
	if !ok {
		return nil
	}
	if price < rg.Min || price > rg.Max {
		return fmt.Errorf("%s: %w: %.2f not in [%.2f, %.2f]", symbol, ErrOutOfRange, price, rg.Min, rg.Max)
	}
	return nil
}
