package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
}

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), testPolicy(3), func(error) bool { return true }, func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryRetriesTransientErrors(t *testing.T) {
	transient := errors.New("connection refused")
	calls := 0
	err := Retry(context.Background(), testPolicy(5), func(error) bool { return true }, func() error {
		calls++
		if calls < 3 {
			return transient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("malformed input")
	calls := 0
	err := Retry(context.Background(), testPolicy(5), func(error) bool { return false }, func() error {
		calls++
		return fatal
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	transient := errors.New("timeout")
	calls := 0
	err := Retry(context.Background(), testPolicy(3), func(error) bool { return true }, func() error {
		calls++
		return transient
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "giving up after 3 attempts")
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, RetryPolicy{MaxAttempts: 10, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second},
		func(error) bool { return true },
		func() error {
			calls++
			cancel()
			return errors.New("unreachable")
		})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDelayDoublesAndCaps(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 10, BaseDelay: 10 * time.Millisecond, MaxDelay: 40 * time.Millisecond}

	assert.Equal(t, 10*time.Millisecond, policy.delay(0))
	assert.Equal(t, 20*time.Millisecond, policy.delay(1))
	assert.Equal(t, 40*time.Millisecond, policy.delay(2))
	assert.Equal(t, 40*time.Millisecond, policy.delay(3))
}

func TestWaitUntilConditionMet(t *testing.T) {
	calls := 0
	err := WaitUntil(context.Background(), time.Millisecond, 100*time.Millisecond, func(ctx context.Context) (bool, error) {
		calls++
		return calls >= 3, nil
	})

	require.NoError(t, err)
	assert.GreaterOrEqual(t, calls, 3)
}

func TestWaitUntilTimeout(t *testing.T) {
	err := WaitUntil(context.Background(), time.Millisecond, 20*time.Millisecond, func(ctx context.Context) (bool, error) {
		return false, nil
	})

	require.Error(t, err)
}
