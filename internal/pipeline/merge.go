package pipeline

import (
	"sort"

	"trendsync/internal/trends"
)

// Merge unions normalized row batches into one dataset deduplicated by
// (market, keyword, date), last write wins. Batches from disjoint pairs
// should never conflict; retried fetches can. The result is sorted by
// (keyword, market, date) so downstream logs and loads are reproducible.
func Merge(batches [][]trends.Row) []trends.Row {
	var total int
	for _, b := range batches {
		total += len(b)
	}

	out := make([]trends.Row, 0, total)
	index := make(map[trends.RowKey]int, total)
	for _, batch := range batches {
		for _, row := range batch {
			key := row.Key()
			if pos, ok := index[key]; ok {
				out[pos] = row
				continue
			}
			index[key] = len(out)
			out = append(out, row)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Keyword != b.Keyword {
			return a.Keyword < b.Keyword
		}
		if a.Market != b.Market {
			return a.Market < b.Market
		}
		return a.Date.Before(b.Date)
	})
	return out
}
