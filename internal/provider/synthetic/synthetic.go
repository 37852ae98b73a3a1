// Package synthetic produces plausible stand-in market data when every real
// provider has failed. Output is deterministic per symbol and calendar day so
// repeated polls render the same figures.
package synthetic

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"marketdash/internal/provider"
	"marketdash/internal/provider/coingecko"
)

// Name is recorded as the Source of generated quotes.
const Name = "synthetic"

var insiderTitles = []string{
	"CEO", "CFO", "COO", "Director", "VP Engineering", "VP Sales", "Board Member", "President",
}

// Generator is the terminal step of the fallback chain. It never fails.
type Generator struct {
	Ranges provider.Ranges
	Now    func() time.Time
}

func New(ranges provider.Ranges) *Generator {
	return &Generator{Ranges: ranges, Now: time.Now}
}

func (g *Generator) Name() string { return Name }

func (g *Generator) now() time.Time {
	if g.Now == nil {
		return time.Now()
	}
	return g.Now()
}

// rng seeds a generator from the symbol, a salt and the UTC day.
func rng(symbol, salt string, day time.Time) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(salt))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(provider.DateString(day)))
	seed := h.Sum64()
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Quote always succeeds. Tracked symbols get a base inside their range.
func (g *Generator) Quote(_ context.Context, symbol string) (provider.Quote, error) {
	symbol = provider.NormalizeSymbol(symbol)
	now := g.now()
	r := rng(symbol, "quote", now)

	base := 100 + r.Float64()*400
	if rg, ok := g.Ranges.Lookup(symbol); ok && rg.Max > rg.Min {
		base = rg.Min + r.Float64()*(rg.Max-rg.Min)
	}
	change := r.Float64()*10 - 5

	// The percentage is taken against the current price, not the previous close.
	return provider.Quote{
		Symbol:        symbol,
		CurrentPrice:  provider.Round2(base),
		Change:        provider.Round2(change),
		ChangePercent: provider.Round2(change / base * 100),
		High:          provider.Round2(base + math.Abs(change)/2),
		Low:           provider.Round2(base - math.Abs(change)/2),
		Open:          provider.Round2(base - change*0.3),
		PreviousClose: provider.Round2(base - change),
		Timestamp:     now.Unix(),
		Source:        Name,
	}, nil
}

// Insider generates 6 to 10 trades, newest first. Trades fall 3 to 62 days
// back and are filed 1 to 3 days later, so no filing is dated in the future.
// About 55% are purchases of 500 to 15499 shares, priced at 90% to 105% of
// refPrice.
func (g *Generator) Insider(symbol string, refPrice float64) []provider.InsiderTransaction {
	symbol = provider.NormalizeSymbol(symbol)
	now := g.now()
	r := rng(symbol, "insider", now)
	if refPrice <= 0 {
		refPrice = 100 + r.Float64()*400
	}

	n := 6 + r.IntN(5)
	out := make([]provider.InsiderTransaction, 0, n)
	for range n {
		title := insiderTitles[r.IntN(len(insiderTitles))]
		shares := float64(500 + r.IntN(15_000))
		code, change := "S", -shares
		if r.Float64() > 0.45 {
			code, change = "P", shares
		}
		price := max(1, refPrice*(0.9+r.Float64()*0.15))
		txn := now.AddDate(0, 0, -(3 + r.IntN(60)))
		filed := txn.AddDate(0, 0, 1+r.IntN(3))
		out = append(out, provider.InsiderTransaction{
			Name:             title,
			Share:            shares,
			Change:           change,
			FilingDate:       provider.DateString(filed),
			TransactionDate:  provider.DateString(txn),
			TransactionCode:  code,
			TransactionPrice: provider.Round2(price),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TransactionDate > out[j].TransactionDate })
	return out
}

// Crypto derives a quote from the coin's reference price.
func (g *Generator) Crypto(coin coingecko.Coin) provider.CryptoQuote {
	r := rng(coin.Symbol, "crypto", g.now())
	pct := r.Float64()*10 - 5
	price := coin.BasePrice * (1 + pct/100)
	return provider.CryptoQuote{
		Symbol:        coin.Symbol,
		Name:          coin.Name,
		Price:         price,
		Change:        price - coin.BasePrice,
		ChangePercent: provider.Round2(pct),
		MarketCap:     coin.MarketCap,
		Volume24h:     coin.MarketCap * 1_000_000 * (0.02 + r.Float64()*0.03),
		High24h:       price * 1.02,
		Low24h:        price * 0.98,
		Source:        Name,
	}
}
