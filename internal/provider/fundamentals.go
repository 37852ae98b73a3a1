package provider

import "context"

// BasicFinancials is the headline subset of a company's metric snapshot.
// Nil fields were not reported.
type BasicFinancials struct {
	WeekHigh52        *float64 `json:"52WeekHigh,omitempty"`
	WeekLow52         *float64 `json:"52WeekLow,omitempty"`
	Beta              *float64 `json:"beta,omitempty"`
	PE                *float64 `json:"peBasicExclExtraTTM,omitempty"`
	EPS               *float64 `json:"epsBasicExclExtraItemsTTM,omitempty"`
	ROE               *float64 `json:"roeTTM,omitempty"`
	ROA               *float64 `json:"roaTTM,omitempty"`
	BookValuePerShare *float64 `json:"bookValuePerShareAnnual,omitempty"`
	DividendYield     *float64 `json:"dividendYieldIndicatedAnnual,omitempty"`
}

// Recommendation is the analyst rating tally for one period (YYYY-MM-DD).
type Recommendation struct {
	Period     string `json:"period"`
	StrongBuy  int    `json:"strongBuy"`
	Buy        int    `json:"buy"`
	Hold       int    `json:"hold"`
	Sell       int    `json:"sell"`
	StrongSell int    `json:"strongSell"`
}

// Analysts is the number of ratings in the period.
func (r Recommendation) Analysts() int {
	return r.StrongBuy + r.Buy + r.Hold + r.Sell + r.StrongSell
}

type PriceTarget struct {
	TargetHigh   float64 `json:"targetHigh"`
	TargetLow    float64 `json:"targetLow"`
	TargetMean   float64 `json:"targetMean"`
	TargetMedian float64 `json:"targetMedian"`
	LastUpdated  string  `json:"lastUpdated"`
}

// Earnings is one reported quarter. Nil values were not reported.
type Earnings struct {
	Period          string   `json:"period"`
	Actual          *float64 `json:"actual"`
	Estimate        *float64 `json:"estimate"`
	Surprise        *float64 `json:"surprise"`
	SurprisePercent *float64 `json:"surprisePercent"`
}

// Fundamentals groups ratios, analyst views and recent earnings for a symbol.
// Sections the upstream could not supply are nil or empty.
type Fundamentals struct {
	Symbol          string           `json:"symbol"`
	Metrics         *BasicFinancials `json:"metrics"`
	Recommendations []Recommendation `json:"recommendations"`
	PriceTarget     *PriceTarget     `json:"priceTarget"`
	Earnings        []Earnings       `json:"earnings"`
}

// FundamentalsSource supplies each section of Fundamentals separately, newest
// period first for the list sections.
type FundamentalsSource interface {
	BasicFinancials(ctx context.Context, symbol string) (BasicFinancials, error)
	Recommendations(ctx context.Context, symbol string) ([]Recommendation, error)
	PriceTarget(ctx context.Context, symbol string) (PriceTarget, error)
	Earnings(ctx context.Context, symbol string) ([]Earnings, error)
}
