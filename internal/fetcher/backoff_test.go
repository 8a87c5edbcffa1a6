package fetcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffGrowsAndStaysBounded(t *testing.T) {
	t.Parallel()

	b := NewBackoff(100*time.Millisecond, time.Second)

	for attempt := 0; attempt < 8; attempt++ {
		exp := 100 * time.Millisecond << attempt
		if exp > time.Second {
			exp = time.Second
		}
		for i := 0; i < 20; i++ {
			d := b.Delay(attempt)
			require.GreaterOrEqual(t, d, exp/2, "attempt %d", attempt)
			require.LessOrEqual(t, d, exp, "attempt %d", attempt)
		}
	}
}

func TestBackoffDefaults(t *testing.T) {
	t.Parallel()

	b := NewBackoff(0, 0)
	d := b.Delay(0)
	require.GreaterOrEqual(t, d, 500*time.Millisecond)
	require.LessOrEqual(t, d, time.Second)
}
