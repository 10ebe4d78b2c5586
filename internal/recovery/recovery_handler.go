// Package recovery retries operations against external stores with backoff.
package recovery

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	riskerrors "github.com/ducminhle1904/crypto-paper-risk/internal/errors"
	"github.com/ducminhle1904/crypto-paper-risk/internal/logger"
)

// BackoffStrategy defines different backoff strategies
type BackoffStrategy string

const (
	BackoffExponential BackoffStrategy = "exponential"
	BackoffLinear      BackoffStrategy = "linear"
	BackoffFixed       BackoffStrategy = "fixed"
)

// RetryConfig defines retry behavior
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Strategy    BackoffStrategy
	Multiplier  float64
	Jitter      bool
}

// DefaultRetryConfig returns 4 attempts with exponential backoff from 200ms
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 4,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Strategy:    BackoffExponential,
		Multiplier:  1.5,
		Jitter:      true,
	}
}

// permanentError marks an error as not worth retrying
type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent wraps err so Execute returns it without retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Retryable reports whether Execute would retry err. Context errors, risk
// errors and errors wrapped by Permanent are final.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var p permanentError
	if stderrors.As(err, &p) {
		return false
	}
	return riskerrors.CodeOf(err) == ""
}

// Stats counts what a handler did
type Stats struct {
	Calls     int64
	Retries   int64
	Failures  int64
	Recovered int64
}

// RecoveryHandler runs operations with retries
type RecoveryHandler struct {
	cfg    RetryConfig
	logger *logger.Logger
	sleep  func(ctx context.Context, d time.Duration) error

	calls     atomic.Int64
	retries   atomic.Int64
	failures  atomic.Int64
	recovered atomic.Int64
}

// NewRecoveryHandler creates a handler. Zero config fields take defaults.
func NewRecoveryHandler(cfg RetryConfig, log *logger.Logger) *RecoveryHandler {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.Strategy == "" {
		cfg.Strategy = def.Strategy
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = def.Multiplier
	}
	return &RecoveryHandler{cfg: cfg, logger: log, sleep: sleepContext}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Delay returns the wait before retry number attempt (0-based), without jitter
func (rh *RecoveryHandler) Delay(attempt int) time.Duration {
	var delay time.Duration
	switch rh.cfg.Strategy {
	case BackoffExponential:
		multiplier := 1.0
		for i := 0; i < attempt; i++ {
			multiplier *= rh.cfg.Multiplier
		}
		delay = time.Duration(float64(rh.cfg.BaseDelay) * multiplier)
	case BackoffLinear:
		delay = rh.cfg.BaseDelay * time.Duration(attempt+1)
	default:
		delay = rh.cfg.BaseDelay
	}

	if delay > rh.cfg.MaxDelay {
		delay = rh.cfg.MaxDelay
	}
	return delay
}

func addJitter(delay time.Duration) time.Duration {
	jitter := int64(float64(delay) * 0.1)
	if jitter <= 0 {
		return delay
	}
	return delay + time.Duration(rand.Int63n(jitter))
}

// Execute calls fn until it succeeds, returns a final error, attempts run
// out or ctx is done.
func (rh *RecoveryHandler) Execute(ctx context.Context, component, operation string, fn func() error) error {
	rh.calls.Add(1)

	var lastErr error
	for attempt := 0; attempt < rh.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			if attempt > 0 {
				rh.recovered.Add(1)
				rh.logger.Info("Operation %s.%s succeeded after %d attempts", component, operation, attempt+1)
			}
			return nil
		}
		lastErr = err

		if !Retryable(err) {
			rh.failures.Add(1)
			var p permanentError
			if stderrors.As(err, &p) {
				return p.err
			}
			return err
		}
		if attempt == rh.cfg.MaxAttempts-1 {
			break
		}

		delay := rh.Delay(attempt)
		if rh.cfg.Jitter {
			delay = addJitter(delay)
		}
		rh.retries.Add(1)
		rh.logger.LogWarning(component, "%s failed (attempt %d/%d), retrying in %v: %v",
			operation, attempt+1, rh.cfg.MaxAttempts, delay, err)
		if err := rh.sleep(ctx, delay); err != nil {
			return err
		}
	}

	rh.failures.Add(1)
	return fmt.Errorf("%s.%s failed after %d attempts: %w", component, operation, rh.cfg.MaxAttempts, lastErr)
}

// Stats returns the handler counters
func (rh *RecoveryHandler) Stats() Stats {
	return Stats{
		Calls:     rh.calls.Load(),
		Retries:   rh.retries.Load(),
		Failures:  rh.failures.Load(),
		Recovered: rh.recovered.Load(),
	}
}
