package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trendsync/internal/trends"
)

func day(d int) time.Time {
	return time.Date(2026, 8, d, 0, 0, 0, 0, time.UTC)
}

func row(keyword, market string, d int, score float64) trends.Row {
	return trends.Row{Market: market, Keyword: keyword, Date: day(d), Score: score}
}

func TestMergeCollapsesDuplicateKeys(t *testing.T) {
	t.Parallel()

	merged := Merge([][]trends.Row{
		{row("a", "SG", 1, 10), row("a", "SG", 2, 20)},
		{row("a", "SG", 1, 99)}, // retried fetch, same key, newer score
	})

	require.Len(t, merged, 2)
	require.Equal(t, 99.0, merged[0].Score) // last write wins
	require.Equal(t, day(1), merged[0].Date)
}

func TestMergeSortsDeterministically(t *testing.T) {
	t.Parallel()

	merged := Merge([][]trends.Row{
		{row("b", "SG", 2, 1)},
		{row("a", "HK", 1, 2), row("a", "HK", 3, 3)},
		{row("a", "SG", 1, 4)},
	})

	want := []trends.RowKey{
		{Market: "HK", Keyword: "a", Date: "2026-08-01"},
		{Market: "HK", Keyword: "a", Date: "2026-08-03"},
		{Market: "SG", Keyword: "a", Date: "2026-08-01"},
		{Market: "SG", Keyword: "b", Date: "2026-08-02"},
	}
	got := make([]trends.RowKey, len(merged))
	for i, r := range merged {
		got[i] = r.Key()
	}
	require.Equal(t, want, got)
}

func TestMergeEmptyInput(t *testing.T) {
	t.Parallel()

	require.Empty(t, Merge(nil))
	require.Empty(t, Merge([][]trends.Row{{}, {}}))
}
