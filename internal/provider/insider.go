package provider

import (
	"math"
	"sort"
	"strings"
	"time"
)

const (
	maxInsiderShares  = 1_000_000
	maxInsiderResults = 20
)

// CleanInsider normalizes raw insider records against a reference price
// (the current quote, or 0 when unknown). Records are returned newest first,
// at most 20 of them.
func CleanInsider(records []InsiderRecord, refPrice float64, now time.Time) []InsiderTransaction {
	out := make([]InsiderTransaction, 0, len(records))
	for _, r := range records {
		txn, ok := parseDate(r.TransactionDate)
		if !ok {
			txn = now
		}
		filing, ok := parseDate(r.FilingDate)
		if !ok {
			filing = txn.AddDate(0, 0, 2)
		}

		change := 0.0
		switch {
		case r.Change != nil:
			change = *r.Change
		case r.Share != nil:
			change = *r.Share
		}
		if math.IsNaN(change) || math.IsInf(change, 0) {
			change = 0
		}
		share := math.Abs(change)
		if r.Share != nil {
			share = math.Abs(*r.Share)
		}

		code := strings.ToUpper(strings.TrimSpace(r.TransactionCode))
		if code == "" {
			code = "S"
			if change >= 0 {
				code = "P"
			}
		}

		out = append(out, InsiderTransaction{
			Name:             cleanName(r.Name),
			Share:            min(share, maxInsiderShares),
			Change:           change,
			FilingDate:       DateString(filing),
			TransactionDate:  DateString(txn),
			TransactionCode:  code,
			TransactionPrice: Round2(boundedPrice(r.TransactionPrice, refPrice)),
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].TransactionDate > out[j].TransactionDate })
	if len(out) > maxInsiderResults {
		out = out[:maxInsiderResults]
	}
	return out
}

// boundedPrice keeps a reported price only when it is plausible next to ref.
func boundedPrice(raw *float64, ref float64) float64 {
	p := 0.0
	if raw != nil && !math.IsNaN(*raw) && !math.IsInf(*raw, 0) {
		p = *raw
	}
	if ref <= 0 {
		if p > 0 && p < 50000 {
			return p
		}
		return 0
	}
	if p > 0 && p < ref*5 {
		return p
	}
	return ref
}

func cleanName(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "Unknown"
	}
	return s
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Round2 rounds to cents.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
