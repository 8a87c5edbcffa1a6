package trends

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRowKeyNormalizesDate(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+8", 8*3600)
	row := Row{
		Market:  "SG",
		Keyword: "pepperstone",
		Date:    time.Date(2026, 8, 20, 8, 0, 0, 0, loc),
		Score:   42,
	}

	key := row.Key()
	require.Equal(t, "SG", key.Market)
	require.Equal(t, "pepperstone", key.Keyword)
	require.Equal(t, "2026-08-20", key.Date)
}

func TestFetchKeyString(t *testing.T) {
	t.Parallel()

	key := FetchKey{Keyword: "ic markets", Market: "HK"}
	require.Equal(t, "ic markets/HK", key.String())
}

func TestThrottledErrorMatchesSentinel(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("call source: %w", &ThrottledError{RetryAfter: 5 * time.Second})
	require.ErrorIs(t, err, ErrThrottled)

	var thr *ThrottledError
	require.True(t, errors.As(err, &thr))
	require.Equal(t, 5*time.Second, thr.RetryAfter)

	require.NotErrorIs(t, err, ErrPermanent)
}
