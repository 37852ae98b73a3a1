package insight

import (
	"math"
	"time"

	"marketdash/internal/provider"
)

// OverviewTicker is one basket member of the market overview.
type OverviewTicker struct {
	Symbol            string  `json:"symbol"`
	Name              string  `json:"name"`
	Price             float64 `json:"price"`
	Change            float64 `json:"change"`
	ChangesPercentage float64 `json:"changesPercentage"`
	MarketCap         float64 `json:"marketCap"`
	Volume            float64 `json:"volume"`
}

type Overview struct {
	SentimentScore int              `json:"sentimentScore"`
	BullishPct     float64          `json:"bullishPct"`
	BearishPct     float64          `json:"bearishPct"`
	FearGreed      int              `json:"fearGreed"`
	Tickers        []OverviewTicker `json:"tickers"`
	LastUpdated    string           `json:"lastUpdated"`
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// jsRound rounds half up like Math.round, so -2.5 becomes -2.
func jsRound(v float64) float64 {
	return math.Floor(v + 0.5)
}

// BuildOverview scores a basket. An empty basket scores neutral.
func BuildOverview(tickers []OverviewTicker, now time.Time) Overview {
	o := Overview{
		SentimentScore: 50,
		FearGreed:      50,
		Tickers:        tickers,
		LastUpdated:    now.UTC().Format(time.RFC3339),
	}
	if o.Tickers == nil {
		o.Tickers = []OverviewTicker{}
	}
	if len(tickers) == 0 {
		return o
	}

	var bull, bear int
	var total float64
	for _, t := range tickers {
		switch {
		case t.ChangesPercentage > 0:
			bull++
		case t.ChangesPercentage < 0:
			bear++
		}
		total += t.ChangesPercentage
	}
	n := float64(len(tickers))
	bullPct := float64(bull) / n
	bearPct := float64(bear) / n
	avg := total / n

	o.SentimentScore = int(clamp(jsRound(50+avg*5+float64(bull-bear)*2), 0, 100))
	o.BullishPct = jsRound(bullPct*100) / 100
	o.BearishPct = jsRound(bearPct*100) / 100
	o.FearGreed = int(clamp(jsRound(50+(bullPct-bearPct)*50), 0, 100))
	return o
}

// Sentiment labels.
const (
	SentimentVeryBullish = "very-bullish"
	SentimentBullish     = "bullish"
	SentimentNeutral     = "neutral"
	SentimentBearish     = "bearish"
	SentimentVeryBearish = "very-bearish"
)

type MarketSentiment struct {
	Overall        string   `json:"overall"`
	Score          int      `json:"score"`
	Bullish        int      `json:"bullish"`
	Bearish        int      `json:"bearish"`
	FearGreedIndex int      `json:"fearGreedIndex"`
	VIX            *float64 `json:"vix,omitempty"`
}

// index weights for SPY, QQQ and DIA.
const (
	weightSPY = 0.5
	weightQQQ = 0.35
	weightDIA = 0.15
)

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// ScoreSentiment weighs index moves and penalizes an elevated VIX. vix may be
// nil when no volatility quote is available.
func ScoreSentiment(spy, qqq, dia provider.Quote, vix *float64) MarketSentiment {
	avg := finiteOrZero(spy.ChangePercent)*weightSPY +
		finiteOrZero(qqq.ChangePercent)*weightQQQ +
		finiteOrZero(dia.ChangePercent)*weightDIA

	penalty := 0.0
	if vix != nil && *vix > 0 && !math.IsInf(*vix, 0) {
		penalty = clamp((*vix-15)*0.6, -10, 10)
	}

	score := clamp(50+avg*6-penalty, 0, 100)
	bullish := clamp(50+avg*5-penalty, 0, 100)

	return MarketSentiment{
		Overall:        label(score),
		Score:          int(jsRound(score)),
		Bullish:        int(jsRound(bullish)),
		Bearish:        int(jsRound(100 - bullish)),
		FearGreedIndex: int(jsRound(score)),
		VIX:            vix,
	}
}

func label(score float64) string {
	switch {
	case score >= 70:
		return SentimentVeryBullish
	case score >= 55:
		return SentimentBullish
	case score <= 30:
		return SentimentVeryBearish
	case score <= 45:
		return SentimentBearish
	default:
		return SentimentNeutral
	}
}
