package aggregate

import (
	"sort"
	"time"

	"marketdash/internal/provider"
)

// BucketKey returns the bucket date (YYYY-MM-DD) a bar date falls into.
// Weekly buckets start on Monday, monthly buckets on the first of the month.
// Daily returns the date unchanged.
func BucketKey(date time.Time, interval provider.Interval) string {
	d := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	switch interval {
	case provider.Weekly:
		// time.Weekday is 0 for Sunday; shift so Monday is offset 0.
		offset := (int(d.Weekday()) + 6) % 7
		return d.AddDate(0, 0, -offset).Format(time.DateOnly)
	case provider.Monthly:
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC).Format(time.DateOnly)
	default:
		return d.Format(time.DateOnly)
	}
}

// Bars rolls an ascending daily series up into weekly or monthly OHLCV bars.
//
// Within a bucket the first bar's open is kept, high and low are the running
// extremes, the last bar seen sets close, and volume is summed. Bars with an
// unparseable date are dropped. Output is ascending by bucket date.
// Daily input is returned as is.
func Bars(points []provider.HistoricalPoint, interval provider.Interval) []provider.HistoricalPoint {
	if interval != provider.Weekly && interval != provider.Monthly {
		return points
	}

	buckets := make(map[string]*provider.HistoricalPoint, len(points)/4+1)
	for _, p := range points {
		date, err := time.Parse(time.DateOnly, p.Time)
		if err != nil {
			continue
		}
		key := BucketKey(date, interval)

		existing, ok := buckets[key]
		if !ok {
			bar := p
			bar.Time = key
			buckets[key] = &bar
			continue
		}
		existing.High = max(existing.High, p.High)
		existing.Low = min(existing.Low, p.Low)
		existing.Close = p.Close
		existing.Volume += p.Volume
	}

	out := make([]provider.HistoricalPoint, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// SortAscending orders a series by date and keeps at most the last limit
// points. A non-positive limit keeps everything.
func SortAscending(points []provider.HistoricalPoint, limit int) []provider.HistoricalPoint {
	sort.SliceStable(points, func(i, j int) bool { return points[i].Time < points[j].Time })
	if limit > 0 && len(points) > limit {
		points = points[len(points)-limit:]
	}
	return points
}
