// Package normalize converts raw provider payloads into the common row schema.
package normalize

import (
	"fmt"
	"time"

	"trendsync/internal/trends"
)

// Normalizer maps provider date buckets to UTC calendar days and provider
// score units to the numeric interest scale.
type Normalizer struct{}

// New creates a Normalizer.
func New() *Normalizer {
	return &Normalizer{}
}

// Normalize converts one raw observation into rows keyed by the pair it was
// fetched for. A payload missing a date or score field is malformed; the
// whole pair fails rather than loading a truncated series.
func (Normalizer) Normalize(key trends.FetchKey, raw trends.RawObservation) ([]trends.Row, error) {
	rows := make([]trends.Row, 0, len(raw.Points))
	for i, p := range raw.Points {
		if p.Date == "" {
			return nil, fmt.Errorf("point %d for %s: missing date: %w", i, key, trends.ErrMalformedResponse)
		}
		if p.Value == nil {
			return nil, fmt.Errorf("point %d for %s: missing value: %w", i, key, trends.ErrMalformedResponse)
		}
		day, err := parseBucket(p.Date)
		if err != nil {
			return nil, fmt.Errorf("point %d for %s: %v: %w", i, key, err, trends.ErrMalformedResponse)
		}
		rows = append(rows, trends.Row{
			Market:  key.Market,
			Keyword: key.Keyword,
			Date:    day,
			Score:   *p.Value,
		})
	}
	return rows, nil
}

// parseBucket accepts either a calendar day or a full RFC 3339 timestamp
// (sub-daily provider buckets) and reduces it to a UTC midnight.
func parseBucket(raw string) (time.Time, error) {
	if day, err := time.ParseInLocation(trends.DateLayout, raw, time.UTC); err == nil {
		return day, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date bucket %q", raw)
	}
	ts = ts.UTC()
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC), nil
}
