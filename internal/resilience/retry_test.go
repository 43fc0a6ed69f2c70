package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryStopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
	wantErr := errors.New("always fails")
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 3, calls)
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
	err := Retry(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	calls := 0
	cancel() // cancel before the first post-attempt wait
	err := Retry(ctx, cfg, func() error {
		calls++
		return errors.New("fails")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestNextDelayCapsAtMaxDelay(t *testing.T) {
	cfg := RetryConfig{MaxDelay: 500 * time.Millisecond, Multiplier: 10}
	next := nextDelay(100*time.Millisecond, cfg)
	assert.Equal(t, 500*time.Millisecond, next)
}

func TestOnchainAndWebhookRetryConfigsMatchSpec(t *testing.T) {
	oc := OnchainRetryConfig()
	assert.Equal(t, 3, oc.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, oc.InitialDelay)

	wc := WebhookRetryConfig()
	assert.Equal(t, 3, wc.MaxAttempts)
	assert.Equal(t, time.Second, wc.InitialDelay)
	assert.Equal(t, 25*time.Second, wc.MaxDelay)
}
