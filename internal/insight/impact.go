// Package insight holds keyword heuristics over news and quotes. None of it
// is predictive; the rules only tag headlines for display.
package insight

import (
	"fmt"
	"strings"

	"marketdash/internal/provider"
)

type Level string

const (
	LevelHigh     Level = "HIGH"
	LevelModerate Level = "MODERATE"
	LevelLow      Level = "LOW"
)

type Tilt string

const (
	Bullish Tilt = "Bullish"
	Bearish Tilt = "Bearish"
	Mixed   Tilt = "Mixed"
)

// Impact is the rule engine's reading of one article.
type Impact struct {
	News       provider.NewsArticle `json:"news"`
	Level      Level                `json:"level"`
	Tilt       Tilt                 `json:"tilt"`
	Timeframe  string               `json:"timeframe"`
	Confidence int                  `json:"confidence"`
	Rationale  string               `json:"rationale"`
	Drivers    []string             `json:"drivers"`
	Sectors    []string             `json:"sectors"`
	Tickers    []string             `json:"tickers"`
	Summary    string               `json:"summary"`
}

// orderedSet keeps first-insertion order.
type orderedSet struct {
	items []string
	seen  map[string]struct{}
}

func (s *orderedSet) add(vs ...string) {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	for _, v := range vs {
		if _, ok := s.seen[v]; ok {
			continue
		}
		s.seen[v] = struct{}{}
		s.items = append(s.items, v)
	}
}

func (s *orderedSet) list() []string {
	if s.items == nil {
		return []string{}
	}
	return s.items
}

func containsAny(text string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

var tickerRules = []struct {
	ticker string
	words  []string
}{
	{"BTC", []string{"btc", "bitcoin"}},
	{"ETH", []string{"eth", "ethereum"}},
	{"NVDA", []string{"nvidia", "nvda"}},
	{"TSLA", []string{"tesla", "tsla"}},
	{"AAPL", []string{"apple", "aapl"}},
	{"MSFT", []string{"microsoft", "msft"}},
	{"AMZN", []string{"amazon", "amzn"}},
	{"GOOGL", []string{"google", "googl"}},
	{"META", []string{"meta"}},
	{"XLE", []string{"oil", "energy"}},
}

// DeriveImpact applies the keyword rules to headline and summary. Rules are
// evaluated in order and later rules may override level, tilt and timeframe.
func DeriveImpact(article provider.NewsArticle) Impact {
	text := strings.ToLower(article.Headline + " " + article.Summary)

	var sectors, drivers, tickers orderedSet
	level := LevelModerate
	tilt := Mixed
	confidence := 70
	timeframe := "Medium-term (3-9 months)"

	if containsAny(text, "earnings beat", "raises guidance", "record revenue") {
		level, tilt = LevelHigh, Bullish
		drivers.add("Earnings momentum", "Forward guidance")
	}
	if containsAny(text, "miss", "cuts guidance", "downgrade", "weak demand") {
		level, tilt = LevelHigh, Bearish
		drivers.add("Guidance risk", "Demand softness")
		confidence = 75
	}
	if containsAny(text, "inflation", "cpi", "ppi", "price pressure") {
		level = LevelModerate
		drivers.add("Pricing power", "Input costs")
		sectors.add("Staples", "Discretionary", "Materials", "Energy")
	}
	if containsAny(text, "rate cut", "dovish", "lower rates", "yield falling") {
		level, tilt = LevelHigh, Bullish
		drivers.add("Cost of capital", "Liquidity tailwind")
		sectors.add("Growth Tech", "REITs", "High beta")
		timeframe = "Medium-term (6-12 months)"
		confidence = 82
	}
	if containsAny(text, "rate hike", "hawkish", "higher rates", "yield rising") {
		level, tilt = LevelHigh, Bearish
		drivers.add("Discount rate shock", "Credit tightening")
		sectors.add("Financials", "Banks", "Value")
		timeframe = "Short-term (1-3 months)"
		confidence = 82
	}
	if containsAny(text, "oil", "opec", "crude", "gasoline") {
		sectors.add("Energy", "Airlines", "Logistics")
		drivers.add("Commodity swing")
		if level == LevelLow {
			level = LevelModerate
		}
	}
	if containsAny(text, "chip", "semiconductor", "gpu", "foundry", "tsmc", "nvidia", "ai") {
		sectors.add("Semiconductors", "AI Infra", "Cloud")
		drivers.add("AI capex", "Supply chain")
		if tilt == Mixed {
			tilt = Bullish
		}
		confidence = max(confidence, 80)
	}
	if containsAny(text, "geopolitic", "sanction", "tariff", "war", "conflict", "border") {
		level, tilt = LevelHigh, Mixed
		drivers.add("Policy risk", "Supply chain")
		confidence = max(confidence, 78)
	}
	if containsAny(text, "etf approval", "etf flows", "spot etf", "crypto") {
		sectors.add("Digital Assets", "Exchanges", "Custody")
		drivers.add("Capital inflows")
		if tilt == Mixed {
			tilt = Bullish
		}
		confidence = max(confidence, 76)
	}
	if containsAny(text, "job", "employment", "unemployment", "labor market") {
		drivers.add("Labor strength")
		sectors.add("Retail", "Financials")
		timeframe = "Short-term (1-2 months)"
	}
	if containsAny(text, "recall", "regulator", "investigation", "probe") {
		level, tilt = LevelHigh, Bearish
		drivers.add("Headline risk")
		confidence = max(confidence, 80)
	}
	if containsAny(text, "ipo", "acquisition", "merger") {
		drivers.add("Deal activity")
		if tilt == Mixed {
			tilt = Bullish
		}
		if level == LevelLow {
			level = LevelModerate
		}
	}

	for _, r := range tickerRules {
		if containsAny(text, r.words...) {
			tickers.add(r.ticker)
		}
	}

	if len(drivers.items) == 0 {
		drivers.add("Macro sentiment", "Positioning shift")
	}
	if len(sectors.items) == 0 {
		sectors.add("Broad Market")
	}

	top := drivers.items
	if len(top) > 3 {
		top = top[:3]
	}
	watch := sectors.items
	if len(watch) > 2 {
		watch = watch[:2]
	}
	tickerList := tickers.list()
	if len(tickerList) > 6 {
		tickerList = tickerList[:6]
	}

	return Impact{
		News:       article,
		Level:      level,
		Tilt:       tilt,
		Timeframe:  timeframe,
		Confidence: confidence,
		Rationale: fmt.Sprintf("Key drivers: %s. Watch %s for follow-through.",
			strings.Join(top, " · "), strings.Join(sectors.items, ", ")),
		Drivers: drivers.list(),
		Sectors: sectors.list(),
		Tickers: tickerList,
		Summary: fmt.Sprintf("%s tone with %s in focus. Expect %s impact %s. Watch %s for reaction.",
			tilt, drivers.items[0], strings.ToLower(string(level)), strings.ToLower(timeframe),
			strings.Join(watch, " & ")),
	}
}

// ImpactReport groups impacts by level.
type ImpactReport struct {
	ImpactNews map[Level][]Impact `json:"impactNews"`
	Summary    ImpactSummary      `json:"summary"`
}

type ImpactSummary struct {
	TotalArticles  int      `json:"totalArticles"`
	HighImpact     int      `json:"highImpact"`
	ModerateImpact int      `json:"moderateImpact"`
	LowImpact      int      `json:"lowImpact"`
	TopSectors     []string `json:"topSectors"`
	TopTickers     []string `json:"topTickers"`
}

// BuildReport derives an impact per article and collects level counts, the
// first 6 distinct sectors and the first 8 distinct tickers. A non-empty
// level keeps only stories of that level.
func BuildReport(articles []provider.NewsArticle, level Level) ImpactReport {
	report := ImpactReport{
		ImpactNews: map[Level][]Impact{
			LevelHigh:     {},
			LevelModerate: {},
			LevelLow:      {},
		},
	}
	var sectors, tickers orderedSet
	for _, a := range articles {
		imp := DeriveImpact(a)
		if level != "" && imp.Level != level {
			continue
		}
		report.ImpactNews[imp.Level] = append(report.ImpactNews[imp.Level], imp)
		sectors.add(imp.Sectors...)
		tickers.add(imp.Tickers...)
	}

	report.Summary = ImpactSummary{
		HighImpact:     len(report.ImpactNews[LevelHigh]),
		ModerateImpact: len(report.ImpactNews[LevelModerate]),
		LowImpact:      len(report.ImpactNews[LevelLow]),
		TopSectors:     firstN(sectors.list(), 6),
		TopTickers:     firstN(tickers.list(), 8),
	}
	report.Summary.TotalArticles = report.Summary.HighImpact + report.Summary.ModerateImpact + report.Summary.LowImpact
	return report
}

// ParseLevel accepts HIGH, MODERATE or LOW in any case; anything else is "".
func ParseLevel(s string) Level {
	switch l := Level(strings.ToUpper(strings.TrimSpace(s))); l {
	case LevelHigh, LevelModerate, LevelLow:
		return l
	default:
		return ""
	}
}

// Major catalysts used to pick which headlines go into an impact report.
var majorKeywords = []string{
	"fed", "federal reserve", "rate cut", "rate hike", "dovish", "hawkish", "yields",
	"inflation", "cpi", "ppi", "tariff", "trade war", "sanction", "geopolitic", "opec",
	"oil price", "energy shock", "jobs report", "nonfarm", "unemployment", "labor market",
	"strike", "fiscal", "spending bill", "deficit", "shutdown",
}

// IsMajor reports whether an article mentions a market-moving catalyst.
func IsMajor(a provider.NewsArticle) bool {
	return containsAny(strings.ToLower(a.Headline+" "+a.Summary), majorKeywords...)
}

// SelectMajor keeps the major articles, or all articles when none are major,
// capped at limit.
func SelectMajor(articles []provider.NewsArticle, limit int) []provider.NewsArticle {
	out := make([]provider.NewsArticle, 0, limit)
	for _, a := range articles {
		if IsMajor(a) {
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		out = append(out, articles...)
	}
	return firstN(out, limit)
}

func firstN[T any](s []T, n int) []T {
	if n >= 0 && len(s) > n {
		return s[:n]
	}
	return s
}
