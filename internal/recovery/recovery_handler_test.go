package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	riskerrors "github.com/ducminhle1904/crypto-paper-risk/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(cfg RetryConfig) (*RecoveryHandler, *[]time.Duration) {
	var waits []time.Duration
	rh := NewRecoveryHandler(cfg, nil)
	rh.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return rh, &waits
}

func TestDelay(t *testing.T) {
	rh := NewRecoveryHandler(RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2}, nil)
	assert.Equal(t, 100*time.Millisecond, rh.Delay(0))
	assert.Equal(t, 200*time.Millisecond, rh.Delay(1))
	assert.Equal(t, 300*time.Millisecond, rh.Delay(2))

	linear := NewRecoveryHandler(RetryConfig{BaseDelay: time.Second, MaxDelay: time.Minute, Strategy: BackoffLinear}, nil)
	assert.Equal(t, 3*time.Second, linear.Delay(2))

	fixed := NewRecoveryHandler(RetryConfig{BaseDelay: time.Second, Strategy: BackoffFixed}, nil)
	assert.Equal(t, time.Second, fixed.Delay(5))
}

func TestExecute_RecoversFromTransientErrors(t *testing.T) {
	rh, waits := newTestHandler(RetryConfig{MaxAttempts: 4, BaseDelay: 10 * time.Millisecond, Multiplier: 2})

	calls := 0
	err := rh.Execute(context.Background(), "store", "Save", func() error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, *waits)
	assert.Equal(t, Stats{Calls: 1, Retries: 2, Recovered: 1}, rh.Stats())
}

func TestExecute_GivesUp(t *testing.T) {
	rh, waits := newTestHandler(RetryConfig{MaxAttempts: 3})
	boom := errors.New("timeout")

	err := rh.Execute(context.Background(), "store", "Load", func() error { return boom })
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "store.Load failed after 3 attempts")
	assert.Len(t, *waits, 2)
	assert.Equal(t, int64(1), rh.Stats().Failures)
}

func TestExecute_FinalErrorsAreNotRetried(t *testing.T) {
	rh, waits := newTestHandler(DefaultRetryConfig())
	missing := errors.New("missing")

	calls := 0
	err := rh.Execute(context.Background(), "store", "Load", func() error {
		calls++
		return Permanent(missing)
	})
	assert.Same(t, missing, err)

	riskErr := riskerrors.InvalidParameter("store", "Save", "bad id")
	err = rh.Execute(context.Background(), "store", "Save", func() error {
		calls++
		return riskErr
	})
	assert.ErrorIs(t, err, riskErr)
	assert.Equal(t, 2, calls)
	assert.Empty(t, *waits)
}

func TestExecute_StopsOnCancelledContext(t *testing.T) {
	rh, _ := newTestHandler(DefaultRetryConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := rh.Execute(ctx, "store", "Save", func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.True(t, Retryable(errors.New("io")))
	assert.False(t, Retryable(context.DeadlineExceeded))
	assert.False(t, Retryable(Permanent(errors.New("io"))))
	assert.False(t, Retryable(riskerrors.LimitExceeded("risk", "Open", "too many")))
	assert.Nil(t, Permanent(nil))
}
