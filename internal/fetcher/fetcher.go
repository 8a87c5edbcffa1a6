// Package fetcher issues rate-limited, retrying requests against the
// search-interest source. The rate budget is provider-wide, so one Fetcher
// with one limiter serves every keyword/market pair, and calls are strictly
// serialized.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"trendsync/internal/metrics"
	"trendsync/internal/trends"
)

// Config controls the rate budget and the retry schedule.
type Config struct {
	MinInterval time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// Fetcher wraps a SourceClient with the global minimum inter-request delay
// and bounded jittered backoff on throttled/transient failures.
type Fetcher struct {
	client      trends.SourceClient
	limiter     *rate.Limiter
	backoff     *Backoff
	maxAttempts int
	logger      *zap.Logger
}

// New constructs a Fetcher. The limiter releases one token per MinInterval
// with burst 1, which serializes calls at the configured pace.
func New(client trends.SourceClient, cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.MinInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 4
	}
	return &Fetcher{
		client:      client,
		limiter:     rate.NewLimiter(rate.Every(interval), 1),
		backoff:     NewBackoff(cfg.BackoffBase, cfg.BackoffMax),
		maxAttempts: attempts,
		logger:      logger,
	}
}

// Fetch retrieves the raw observation for one pair, consuming one unit of
// the shared rate budget per attempt. Permanent and malformed errors return
// immediately; throttled and transient errors retry until the attempt budget
// runs out.
func (f *Fetcher) Fetch(ctx context.Context, key trends.FetchKey, window trends.DateRange) (trends.RawObservation, error) {
	var lastErr error
	for attempt := 0; attempt < f.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := f.waitBackoff(ctx, lastErr, attempt-1); err != nil {
				return trends.RawObservation{}, err
			}
		}

		start := time.Now()
		if err := f.limiter.Wait(ctx); err != nil {
			return trends.RawObservation{}, fmt.Errorf("rate limit wait: %w", err)
		}
		if waited := time.Since(start); waited > time.Millisecond {
			metrics.ObserveRateLimitDelay(waited)
		}

		obs, err := f.client.FetchInterest(ctx, key, window)
		if err == nil {
			metrics.ObserveFetchAttempt("ok")
			return obs, nil
		}
		lastErr = err

		switch {
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return trends.RawObservation{}, err
		case errors.Is(err, trends.ErrPermanent) || errors.Is(err, trends.ErrMalformedResponse):
			metrics.ObserveFetchAttempt("permanent")
			return trends.RawObservation{}, err
		case errors.Is(err, trends.ErrThrottled):
			metrics.ObserveFetchAttempt("throttled")
		default:
			metrics.ObserveFetchAttempt("transient")
		}

		f.logger.Warn("fetch attempt failed",
			zap.String("keyword", key.Keyword),
			zap.String("market", key.Market),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", f.maxAttempts),
			zap.Error(err),
		)
	}
	return trends.RawObservation{}, fmt.Errorf("fetch %s: attempts exhausted: %w", key, lastErr)
}

// waitBackoff sleeps for the scheduled backoff, stretched to a provider
// Retry-After hint when one was given and is longer.
func (f *Fetcher) waitBackoff(ctx context.Context, lastErr error, retry int) error {
	delay := f.backoff.Delay(retry)
	var thr *trends.ThrottledError
	if errors.As(lastErr, &thr) && thr.RetryAfter > delay {
		delay = thr.RetryAfter
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff wait: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
