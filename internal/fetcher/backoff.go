package fetcher

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// Backoff computes jittered exponential delays between retry attempts.
type Backoff struct {
	base time.Duration
	max  time.Duration
}

// NewBackoff builds a backoff schedule with sane bounded defaults.
func NewBackoff(base, max time.Duration) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	return &Backoff{base: base, max: max}
}

// Delay returns the wait duration before retry number attempt (0-based).
// Half the delay is deterministic, half is random jitter.
func (b *Backoff) Delay(attempt int) time.Duration {
	delay := float64(b.base) * math.Pow(2, float64(attempt))
	if delay > float64(b.max) {
		delay = float64(b.max)
	}
	jitter := randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
