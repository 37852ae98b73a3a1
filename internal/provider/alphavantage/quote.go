package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"marketdash/internal/provider"
)

// Quote fetches GLOBAL_QUOTE for a symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (provider.Quote, error) {
	symbol = provider.NormalizeSymbol(symbol)

	body, err := c.call(ctx, map[string]string{"function": "GLOBAL_QUOTE", "symbol": symbol})
	if err != nil {
		return provider.Quote{}, err
	}

	// {
	//   "Global Quote": {
	//     "01. symbol": "IBM",
	//     "02. open": "168.2000",
	//     "03. high": "169.7500",
	//     "04. low": "167.2500",
	//     "05. price": "169.3000",
	//     "08. previous close": "167.9100",
	//     "09. change": "1.3900",
	//     "10. change percent": "0.8278%"
	//   }
	// }
	var fields map[string]string
	if raw, ok := body["Global Quote"]; ok {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return provider.Quote{}, fmt.Errorf("decoding global quote: %w", err)
		}
	}
	if fields["05. price"] == "" {
		return provider.Quote{}, fmt.Errorf("%s quote %s: %w", Name, symbol, provider.ErrNoData)
	}

	var q = provider.Quote{Symbol: symbol, Source: Name, Timestamp: time.Now().Unix()}
	for key, dst := range map[string]*float64{
		"05. price":          &q.CurrentPrice,
		"08. previous close": &q.PreviousClose,
		"09. change":         &q.Change,
		"10. change percent": &q.ChangePercent,
		"03. high":           &q.High,
		"04. low":            &q.Low,
		"02. open":           &q.Open,
	} {
		v, err := parseNumber(fields, key)
		if err != nil {
			return provider.Quote{}, fmt.Errorf("%s quote %s: %w", Name, symbol, err)
		}
		*dst = v
	}
	if q.CurrentPrice == 0 {
		return provider.Quote{}, fmt.Errorf("%s quote %s: %w", Name, symbol, provider.ErrNoData)
	}
	return q, nil
}
