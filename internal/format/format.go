// Package format renders prices, magnitudes and percentages for display.
package format

import (
	"math"
	"strconv"
	"time"

	"github.com/Rhymond/go-money"
)

// Price renders a USD amount with two decimals and thousands separators, e.g. "$1,234.50".
func Price(p float64) string {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		p = 0
	}
	return money.New(int64(math.Round(p*100)), money.USD).Display()
}

// Number renders a magnitude with a B, M or K suffix and two decimals.
// Values below one thousand, including negatives, get no suffix.
func Number(n float64) string {
	switch {
	case n >= 1e9:
		return fixed2(n/1e9) + "B"
	case n >= 1e6:
		return fixed2(n/1e6) + "M"
	case n >= 1e3:
		return fixed2(n/1e3) + "K"
	default:
		return fixed2(n)
	}
}

// Percentage renders a signed percentage; non-negative values get a leading "+".
func Percentage(n float64) string {
	sign := ""
	if n >= 0 {
		sign = "+"
	}
	return sign + fixed2(n) + "%"
}

// DateRange returns the YYYY-MM-DD bounds of the last days days ending at now.
func DateRange(days int, now time.Time) (from, to string) {
	now = now.UTC()
	return now.AddDate(0, 0, -days).Format(time.DateOnly), now.Format(time.DateOnly)
}

func fixed2(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
