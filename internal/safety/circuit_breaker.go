package safety

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned by Call while the breaker rejects calls
var ErrCircuitOpen = gobreaker.ErrOpenState

// CircuitBreakerConfig holds configuration for a circuit breaker
type CircuitBreakerConfig struct {
	FailureThreshold uint32        // consecutive failures before opening
	SuccessThreshold uint32        // trial calls let through half-open; all must succeed to close
	Timeout          time.Duration // how long the breaker stays open
}

// DefaultCircuitBreakerConfig opens after 5 failures for 30s
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{FailureThreshold: 5, SuccessThreshold: 1, Timeout: 30 * time.Second}
}

// CircuitBreaker stops calling a failing notification sink until Timeout has
// passed, then lets trial calls through.
type CircuitBreaker struct {
	cb       *gobreaker.CircuitBreaker
	rejected atomic.Uint64

	mu            sync.Mutex
	lastFailure   time.Time
	lastError     string
	onStateChange func(name string, from, to gobreaker.State)
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = def.SuccessThreshold
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}

	b := &CircuitBreaker{}
	threshold := config.FailureThreshold
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: config.SuccessThreshold,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.mu.Lock()
			callback := b.onStateChange
			b.mu.Unlock()
			if callback != nil {
				callback(name, from, to)
			}
		},
	})
	return b
}

// SetStateChangeCallback sets a callback invoked after every state change
func (b *CircuitBreaker) SetStateChangeCallback(callback func(name string, from, to gobreaker.State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = callback
}

// Name returns the breaker name
func (b *CircuitBreaker) Name() string {
	return b.cb.Name()
}

// Call executes fn unless the breaker is open
func (b *CircuitBreaker) Call(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.rejected.Add(1)
		return fmt.Errorf("%s: %w", b.cb.Name(), err)
	}

	b.mu.Lock()
	b.lastFailure = time.Now()
	b.lastError = err.Error()
	b.mu.Unlock()
	return err
}

// State returns the current state of the circuit breaker
func (b *CircuitBreaker) State() gobreaker.State {
	return b.cb.State()
}

// CircuitBreakerStats holds statistics about a circuit breaker
type CircuitBreakerStats struct {
	Name                string    `json:"name"`
	State               string    `json:"state"`
	Requests            uint32    `json:"requests"`
	ConsecutiveFailures uint32    `json:"consecutive_failures"`
	Rejected            uint64    `json:"rejected"`
	LastFailure         time.Time `json:"last_failure,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
}

// Stats returns statistics about the circuit breaker
func (b *CircuitBreaker) Stats() CircuitBreakerStats {
	// State may fire the transition callback, which takes b.mu.
	state := b.cb.State()
	counts := b.cb.Counts()
	b.mu.Lock()
	defer b.mu.Unlock()

	return CircuitBreakerStats{
		Name:                b.cb.Name(),
		State:               state.String(),
		Requests:            counts.Requests,
		ConsecutiveFailures: counts.ConsecutiveFailures,
		Rejected:            b.rejected.Load(),
		LastFailure:         b.lastFailure,
		LastError:           b.lastError,
	}
}
