package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	var retried []int

	err := RetryWithCallback(context.Background(), fastPolicy(5), func() error {
		calls++
		if calls < 3 {
			return errors.New("broker unavailable")
		}
		return nil
	}, func(attempt int, err error, _ time.Duration) {
		retried = append(retried, attempt)
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetryStopsOnFatal(t *testing.T) {
	calls := 0
	cause := errors.New("404")

	err := Retry(context.Background(), fastPolicy(5), func() error {
		calls++
		return NewFatalError(cause)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsFatal(err))
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	cause := errors.New("timeout")

	err := Retry(context.Background(), fastPolicy(3), func() error {
		calls++
		return cause
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsFatal(err))
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := Retry(ctx, Policy{MaxAttempts: 100, InitialInterval: 10 * time.Millisecond, MaxInterval: 10 * time.Millisecond, Multiplier: 1}, func() error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errors.New("again")
	})

	require.Error(t, err)
	assert.Less(t, calls, 100)
}

func TestPolicyMerge(t *testing.T) {
	p := Policy{MaxAttempts: 7}.Merge(DefaultPolicy())
	assert.Equal(t, 7, p.MaxAttempts)
	assert.Equal(t, time.Second, p.InitialInterval)
	assert.Equal(t, 2.0, p.Multiplier)
}

func TestCalculateBackoffDuration(t *testing.T) {
	assert.Equal(t, 2*time.Second, CalculateBackoffDuration(1, time.Second, 2, time.Minute))
	assert.Equal(t, 5*time.Second, CalculateBackoffDuration(10, time.Second, 2, 5*time.Second))
}
