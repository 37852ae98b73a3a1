// Package yahoo adapts the unofficial Yahoo Finance endpoints through finance-go.
// The endpoints are unauthenticated and frequently change shape, so the step is
// opt-in and sits late in the fallback chain.
package yahoo

import (
	"context"
	"fmt"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"

	"marketdash/internal/aggregate"
	"marketdash/internal/provider"
)

// Name identifies the provider in quotes, logs and metrics.
const Name = "yahoo"

// BarIter is the iterator returned by chart.Get.
type BarIter interface {
	Next() bool
	Bar() *finance.ChartBar
	Err() error
}

type Provider struct {
	getQuote func(symbol string) (*finance.Quote, error)
	getChart func(params *chart.Params) BarIter
	now      func() time.Time
}

func New() *Provider {
	return &Provider{
		getQuote: quote.Get,
		getChart: func(p *chart.Params) BarIter { return chart.Get(p) },
		now:      time.Now,
	}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Quote(ctx context.Context, symbol string) (provider.Quote, error) {
	if err := ctx.Err(); err != nil {
		return provider.Quote{}, err
	}
	symbol = provider.NormalizeSymbol(symbol)

	q, err := p.getQuote(symbol)
	if err != nil {
		return provider.Quote{}, fmt.Errorf("%s quote %s: %w", Name, symbol, err)
	}
	if q == nil || q.RegularMarketPrice == 0 {
		return provider.Quote{}, fmt.Errorf("%s quote %s: %w", Name, symbol, provider.ErrNoData)
	}

	ts := int64(q.RegularMarketTime)
	if ts == 0 {
		ts = p.now().Unix()
	}
	return provider.Quote{
		Symbol:        symbol,
		CurrentPrice:  q.RegularMarketPrice,
		Change:        q.RegularMarketChange,
		ChangePercent: q.RegularMarketChangePercent,
		High:          q.RegularMarketDayHigh,
		Low:           q.RegularMarketDayLow,
		Open:          q.RegularMarketOpen,
		PreviousClose: q.RegularMarketPreviousClose,
		Timestamp:     ts,
		Source:        Name,
	}, nil
}

// History reads a daily chart over the interval's lookback and rolls it up.
func (p *Provider) History(ctx context.Context, symbol string, interval provider.Interval) ([]provider.HistoricalPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = provider.NormalizeSymbol(symbol)

	end := p.now()
	start := end.Add(-interval.Lookback())
	iter := p.getChart(&chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	})

	var points []provider.HistoricalPoint
	for iter.Next() {
		bar := iter.Bar()
		if bar == nil {
			continue
		}
		open, _ := bar.Open.Float64()
		high, _ := bar.High.Float64()
		low, _ := bar.Low.Float64()
		closePrice, _ := bar.Close.Float64()
		points = append(points, provider.HistoricalPoint{
			Time:   provider.DateString(time.Unix(int64(bar.Timestamp), 0)),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: float64(bar.Volume),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%s chart %s: %w", Name, symbol, err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%s chart %s: %w", Name, symbol, provider.ErrNoData)
	}

	return aggregate.Bars(aggregate.SortAscending(points, 0), interval), nil
}
