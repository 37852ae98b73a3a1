package finnhub

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"marketdash/internal/provider"
)

type newsItem struct {
	Category    string `json:"category"`
	Datetime    int64  `json:"datetime"`
	Headline    string `json:"headline"`
	ID          int64  `json:"id"`
	Image       string `json:"image"`
	Related     string `json:"related"`
	Source      string `json:"source"`
	Summary     string `json:"summary"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// MarketNews fetches /news for a category (general, forex, crypto, merger).
// Items without a URL are dropped; category, headline and summary fall back
// to their alternates.
func (c *Client) MarketNews(ctx context.Context, category string) ([]provider.NewsArticle, error) {
	var items []newsItem
	if err := c.get(ctx, "/news", map[string]string{"category": category}, &items); err != nil {
		return nil, err
	}

	out := make([]provider.NewsArticle, 0, len(items))
	for _, it := range items {
		if it.URL == "" {
			continue
		}
		a := provider.NewsArticle{
			Category: it.Category,
			Datetime: it.Datetime,
			Headline: firstNonEmpty(it.Headline, it.Title, "Market update"),
			ID:       it.ID,
			Image:    it.Image,
			Related:  it.Related,
			Source:   firstNonEmpty(it.Source, "News"),
			Summary:  StripHTML(firstNonEmpty(it.Summary, it.Description)),
			URL:      it.URL,
		}
		if a.Category == "" {
			a.Category = category
		}
		out = append(out, a)
	}
	return out, nil
}

const maxCompanyNews = 10

// CompanyNews fetches /company-news for symbol between from and to
// (YYYY-MM-DD). At most 10 articles are returned, tagged with the symbol.
func (c *Client) CompanyNews(ctx context.Context, symbol, from, to string) ([]provider.NewsArticle, error) {
	symbol = provider.NormalizeSymbol(symbol)
	var items []newsItem
	params := map[string]string{"symbol": symbol, "from": from, "to": to}
	if err := c.get(ctx, "/company-news", params, &items); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%s company news %s: %w", Name, symbol, provider.ErrNoData)
	}

	out := make([]provider.NewsArticle, 0, min(len(items), maxCompanyNews))
	for _, it := range items {
		if len(out) == maxCompanyNews {
			break
		}
		out = append(out, provider.NewsArticle{
			Category: firstNonEmpty(it.Category, "company"),
			Datetime: it.Datetime,
			Headline: firstNonEmpty(it.Headline, it.Title, "Company update"),
			ID:       it.ID,
			Image:    it.Image,
			Related:  symbol,
			Source:   firstNonEmpty(it.Source, "News"),
			Summary:  StripHTML(firstNonEmpty(it.Summary, it.Description)),
			URL:      it.URL,
		})
	}
	return out, nil
}

// StripHTML returns the visible text of an HTML fragment with whitespace collapsed.
// Plain text passes through unchanged apart from whitespace.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
