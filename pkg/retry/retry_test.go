package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "wxarchiver/pkg/errors"
	"wxarchiver/pkg/logger"
)

func TestExponentialBackoff(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 0},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{9, 30 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, backoff.NextDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExponentialBackoffWithJitter(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.3,
	}

	for i := 0; i < 50; i++ {
		delay := backoff.NextDelay(2)
		assert.GreaterOrEqual(t, delay, 140*time.Millisecond)
		assert.LessOrEqual(t, delay, 260*time.Millisecond)
	}
}

func fixed(d time.Duration) *ExponentialBackoff {
	return &ExponentialBackoff{BaseDelay: d, MaxDelay: d, Multiplier: 1}
}

func TestFlatBackoff(t *testing.T) {
	backoff := fixed(5 * time.Millisecond)
	assert.Equal(t, time.Duration(0), backoff.NextDelay(0))
	assert.Equal(t, 5*time.Millisecond, backoff.NextDelay(1))
	assert.Equal(t, 5*time.Millisecond, backoff.NextDelay(7))
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	var seen []int
	err := Do(context.Background(), func(ctx context.Context, attempt int) error {
		seen = append(seen, attempt)
		if attempt < 3 {
			return errors.New("temporary error")
		}
		return nil
	}, &Config{
		MaxAttempts: 5,
		Backoff:     fixed(time.Millisecond),
		RetryIf:     RetryUnlessCanceled,
		Logger:      logger.NewNopLogger(),
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestDoExhaustsAttemptsWithoutTrailingDelay(t *testing.T) {
	attempts := 0
	var delays []time.Duration
	cause := errors.New("persistent error")

	err := Do(context.Background(), func(ctx context.Context, attempt int) error {
		attempts++
		return cause
	}, &Config{
		MaxAttempts: 3,
		Backoff:     fixed(time.Millisecond),
		RetryIf:     RetryUnlessCanceled,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			delays = append(delays, delay)
		},
		Logger: logger.NewNopLogger(),
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "max retry attempts (3) exceeded")
	assert.Equal(t, 3, attempts)
	// Two pauses between three attempts, none after the last
	assert.Len(t, delays, 2)
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	attempts := 0
	expired := errs.New(errs.ErrorTypeSessionExpired, "token expired")

	err := Do(context.Background(), func(ctx context.Context, attempt int) error {
		attempts++
		return expired
	}, &Config{
		MaxAttempts: 5,
		Backoff:     fixed(time.Millisecond),
		RetryIf:     DefaultRetryIf,
	})

	assert.Same(t, expired, err)
	assert.Equal(t, 1, attempts)
}

func TestDoContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	err := Do(ctx, func(ctx context.Context, attempt int) error {
		attempts++
		if attempt == 2 {
			cancel()
		}
		return errors.New("error")
	}, &Config{
		MaxAttempts: 5,
		Backoff:     fixed(time.Millisecond),
		RetryIf:     RetryUnlessCanceled,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, attempts)
}

func TestDoCancelledDuringDelay(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := Do(ctx, func(ctx context.Context, attempt int) error {
		return errors.New("error")
	}, &Config{
		MaxAttempts: 5,
		Backoff:     fixed(time.Hour),
		RetryIf:     RetryUnlessCanceled,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDefaultRetryIf(t *testing.T) {
	assert.False(t, DefaultRetryIf(nil))
	assert.True(t, DefaultRetryIf(errors.New("unknown")))
	assert.True(t, DefaultRetryIf(errs.New(errs.ErrorTypeNetwork, "reset")))
	assert.False(t, DefaultRetryIf(errs.New(errs.ErrorTypeNotFound, "404")))
	assert.False(t, DefaultRetryIf(context.Canceled))
	assert.False(t, DefaultRetryIf(context.DeadlineExceeded))
}

func TestDoWithResult(t *testing.T) {
	result, err := DoWithResult(context.Background(), func(ctx context.Context, attempt int) (string, error) {
		if attempt < 2 {
			return "", errors.New("temporary error")
		}
		return "success", nil
	}, &Config{
		MaxAttempts: 3,
		Backoff:     fixed(time.Millisecond),
		RetryIf:     RetryUnlessCanceled,
	})

	require.NoError(t, err)
	assert.Equal(t, "success", result)
}

func TestWait(t *testing.T) {
	assert.NoError(t, Wait(context.Background(), 0))
	assert.NoError(t, Wait(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, Wait(ctx, 0), context.Canceled)
}
