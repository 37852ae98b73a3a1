package finnhub

import (
	"context"
	"fmt"

	"marketdash/internal/provider"
)

// BasicFinancials fetches /stock/metric?metric=all and keeps the headline ratios.
func (c *Client) BasicFinancials(ctx context.Context, symbol string) (provider.BasicFinancials, error) {
	symbol = provider.NormalizeSymbol(symbol)

	var r struct {
		Metric *provider.BasicFinancials `json:"metric"`
	}
	if err := c.get(ctx, "/stock/metric", map[string]string{"symbol": symbol, "metric": "all"}, &r); err != nil {
		return provider.BasicFinancials{}, err
	}
	if r.Metric == nil || *r.Metric == (provider.BasicFinancials{}) {
		return provider.BasicFinancials{}, fmt.Errorf("%s metrics %s: %w", Name, symbol, provider.ErrNoData)
	}
	return *r.Metric, nil
}

// Recommendations fetches /stock/recommendation, newest period first.
func (c *Client) Recommendations(ctx context.Context, symbol string) ([]provider.Recommendation, error) {
	symbol = provider.NormalizeSymbol(symbol)

	var out []provider.Recommendation
	if err := c.get(ctx, "/stock/recommendation", map[string]string{"symbol": symbol}, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s recommendations %s: %w", Name, symbol, provider.ErrNoData)
	}
	return out, nil
}

// PriceTarget fetches /stock/price-target. Finnhub answers with zero targets
// for uncovered symbols.
func (c *Client) PriceTarget(ctx context.Context, symbol string) (provider.PriceTarget, error) {
	symbol = provider.NormalizeSymbol(symbol)

	var pt provider.PriceTarget
	if err := c.get(ctx, "/stock/price-target", map[string]string{"symbol": symbol}, &pt); err != nil {
		return provider.PriceTarget{}, err
	}
	if pt.TargetHigh == 0 && pt.TargetMean == 0 && pt.TargetMedian == 0 {
		return provider.PriceTarget{}, fmt.Errorf("%s price target %s: %w", Name, symbol, provider.ErrNoData)
	}
	return pt, nil
}

// Earnings fetches /stock/earnings, newest quarter first.
func (c *Client) Earnings(ctx context.Context, symbol string) ([]provider.Earnings, error) {
	symbol = provider.NormalizeSymbol(symbol)

	var out []provider.Earnings
	if err := c.get(ctx, "/stock/earnings", map[string]string{"symbol": symbol}, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s earnings %s: %w", Name, symbol, provider.ErrNoData)
	}
	return out, nil
}
