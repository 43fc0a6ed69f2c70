// Package resilience provides retry-with-backoff for the transient
// external failures Watchy's checks encounter (RPC timeouts, endpoint
// fetches, storage uploads, webhook delivery).
package resilience

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig configures exponential backoff.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // 0..1, adds +/- randomness to each delay
}

// OnchainRetryConfig matches spec.md §4.3: 200ms initial, factor 2,
// capped at 4 attempts' worth of growth, max 3 attempts total.
func OnchainRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     1600 * time.Millisecond, // 200ms * 2^3
		Multiplier:   2,
	}
}

// WebhookRetryConfig matches spec.md §7: 1s / 5s / 25s, 3 attempts.
func WebhookRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     25 * time.Second,
		Multiplier:   5,
	}
}

// Retry executes fn with exponential backoff until it succeeds, attempts
// are exhausted, or ctx is cancelled.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt < cfg.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(addJitter(delay, cfg.Jitter)):
			}
			delay = nextDelay(delay, cfg)
		}
	}
	return lastErr
}

func nextDelay(current time.Duration, cfg RetryConfig) time.Duration {
	next := time.Duration(float64(current) * cfg.Multiplier)
	if cfg.MaxDelay > 0 && next > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return next
}

func addJitter(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	delta := float64(d) * jitter
	return d + time.Duration(rand.Float64()*delta*2-delta)
}
