package pipeline

import (
	"trendsync/internal/trends"
)

// Dedupe returns the rows whose keys are absent from the existing-key
// snapshot. The snapshot is read once per run and never mutated here.
func Dedupe(rows []trends.Row, existing map[trends.RowKey]struct{}) []trends.Row {
	if len(rows) == 0 {
		return nil
	}
	out := make([]trends.Row, 0, len(rows))
	for _, row := range rows {
		if _, ok := existing[row.Key()]; ok {
			continue
		}
		out = append(out, row)
	}
	return out
}
