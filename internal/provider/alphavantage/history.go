package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"marketdash/internal/aggregate"
	"marketdash/internal/provider"
)

// History fetches TIME_SERIES_DAILY_ADJUSTED, keeps the trailing daily points
// and rolls them up to the requested interval.
func (c *Client) History(ctx context.Context, symbol string, interval provider.Interval) ([]provider.HistoricalPoint, error) {
	symbol = provider.NormalizeSymbol(symbol)

	body, err := c.call(ctx, map[string]string{
		"function":   "TIME_SERIES_DAILY_ADJUSTED",
		"symbol":     symbol,
		"outputsize": "compact",
	})
	if err != nil {
		return nil, err
	}

	raw, ok := body["Time Series (Daily)"]
	if !ok {
		return nil, fmt.Errorf("%s series %s: %w", Name, symbol, provider.ErrNoData)
	}
	var series map[string]map[string]string
	if err := json.Unmarshal(raw, &series); err != nil {
		return nil, fmt.Errorf("decoding daily series: %w", err)
	}

	points := make([]provider.HistoricalPoint, 0, len(series))
	for date, fields := range series {
		open, errOpen := parseNumber(fields, "1. open")
		closePrice, errClose := parseNumber(fields, "4. close")
		if errOpen != nil || errClose != nil || math.IsNaN(open) || math.IsNaN(closePrice) {
			continue
		}
		high, _ := parseNumber(fields, "2. high")
		low, _ := parseNumber(fields, "3. low")
		volume, _ := parseNumber(fields, "6. volume")
		points = append(points, provider.HistoricalPoint{
			Time:   date,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: math.Trunc(volume),
		})
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%s series %s: %w", Name, symbol, provider.ErrNoData)
	}

	points = aggregate.SortAscending(points, c.seriesLimit)
	return aggregate.Bars(points, interval), nil
}
