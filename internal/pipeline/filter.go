package pipeline

import (
	"time"

	"trendsync/internal/trends"
)

// FilterComplete drops rows inside the trailing exclusion window: the source
// revises its most recent days as samples arrive, so those rows are
// provisional. A row dated exactly asOf - exclusionDays is excluded; only
// strictly older rows survive.
func FilterComplete(rows []trends.Row, asOf time.Time, exclusionDays int) []trends.Row {
	cutoff := startOfDay(asOf).AddDate(0, 0, -exclusionDays)
	out := make([]trends.Row, 0, len(rows))
	for _, row := range rows {
		if row.Date.Before(cutoff) {
			out = append(out, row)
		}
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
