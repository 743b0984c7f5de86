package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_SucceedsAfterTransientError(t *testing.T) {
	// Given: a function that fails twice then succeeds
	attempts := 0
	fn := func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient error")
		}
		return nil
	}

	// When: retrying
	err := Retry(context.Background(), fastRetry(3), fn)

	// Then: succeeds on the third attempt
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_FailsAfterMaxRetries(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetry(2), func() error {
		attempts++
		return errors.New("persistent error")
	})

	assert.ErrorContains(t, err, "after 2 retries")
	assert.Equal(t, 3, attempts) // initial + 2 retries
}

func TestRetry_PermanentStopsImmediately(t *testing.T) {
	// Given: a function that returns a permanent error
	cause := errors.New("400 bad request")
	attempts := 0

	// When: retrying
	err := Retry(context.Background(), fastRetry(5), func() error {
		attempts++
		return Permanent(cause)
	})

	// Then: only one attempt is made and the cause is returned unwrapped
	assert.Equal(t, 1, attempts)
	assert.Equal(t, cause, err)
}

func TestRetry_RespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := Retry(ctx, fastRetry(3), func() error {
		attempts++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, attempts)
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	attempts := 0
	got, err := RetryWithResult(context.Background(), fastRetry(2), func() (int, error) {
		attempts++
		if attempts == 1 {
			return 0, errors.New("flaky")
		}
		return 42, nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 42, got)
}
