package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSucceedsFirstAttempt(t *testing.T) {
	t.Parallel()

	calls := 0
	err := WithExponentialBackoff(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	err := WithExponentialBackoff(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, WithInitialDelay(time.Millisecond), WithMaxDelay(2*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExhaustsRetryBudget(t *testing.T) {
	t.Parallel()

	calls := 0
	err := WithExponentialBackoff(context.Background(), func() error {
		calls++
		return errors.New("still broken")
	}, WithMaxRetries(2), WithInitialDelay(time.Millisecond))
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "still broken")
}

func TestFatalErrorStopsImmediately(t *testing.T) {
	t.Parallel()

	calls := 0
	cause := errors.New("unauthorized")
	err := WithExponentialBackoff(context.Background(), func() error {
		calls++
		return Fatal(cause)
	}, WithInitialDelay(time.Millisecond))
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, cause)
}

func TestContextCancellationStopsRetries(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithExponentialBackoff(ctx, func() error {
		return errors.New("transient")
	}, WithInitialDelay(time.Second))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFatalNilPassthrough(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Fatal(nil))
	assert.False(t, IsFatal(errors.New("plain")))
	assert.True(t, IsFatal(Fatal(errors.New("wrapped"))))
}

func TestDelayCapsAtMax(t *testing.T) {
	t.Parallel()

	start := time.Now()
	calls := 0
	_ = WithExponentialBackoff(context.Background(), func() error {
		calls++
		return errors.New("transient")
	}, WithMaxRetries(3), WithInitialDelay(time.Millisecond), WithMaxDelay(time.Millisecond), WithMultiplier(100))

	assert.Equal(t, 4, calls)
	assert.Less(t, time.Since(start), time.Second)
}
