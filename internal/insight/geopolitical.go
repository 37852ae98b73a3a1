package insight

import (
	"strings"

	"marketdash/internal/provider"
)

var geopoliticalKeywords = []string{
	"china", "russia", "ukraine", "war", "conflict", "sanctions",
	"tariff", "trade war", "nato", "europe", "middle east",
	"israel", "iran", "taiwan", "geopolitical", "election",
	"biden", "trump", "congress", "senate", "policy",
	"brexit", "eu", "diplomacy", "treaty", "military",
	"north korea", "south china sea", "embargo", "allies",
}

// IsGeopolitical matches headline and summary against the keyword list.
// Matching is by substring, so "eu" also hits words like "reuters".
func IsGeopolitical(a provider.NewsArticle) bool {
	return containsAny(strings.ToLower(a.Headline+" "+a.Summary), geopoliticalKeywords...)
}

// SplitGeopolitical partitions articles, preserving order.
func SplitGeopolitical(articles []provider.NewsArticle) (geo, market []provider.NewsArticle) {
	geo = make([]provider.NewsArticle, 0)
	market = make([]provider.NewsArticle, 0, len(articles))
	for _, a := range articles {
		if IsGeopolitical(a) {
			geo = append(geo, a)
		} else {
			market = append(market, a)
		}
	}
	return geo, market
}
