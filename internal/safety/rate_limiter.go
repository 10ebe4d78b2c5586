package safety

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a named token bucket that counts the calls it turned away
type RateLimiter struct {
	name    string
	limiter *rate.Limiter
	denied  atomic.Uint64
}

// NewRateLimiter creates a full bucket of burst tokens refilled at perSecond
func NewRateLimiter(name string, burst int, perSecond float64) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		name:    name,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Allow takes a token now when one is available
func (rl *RateLimiter) Allow() bool {
	return rl.AllowAt(time.Now())
}

// AllowAt takes a token at t when one is available
func (rl *RateLimiter) AllowAt(t time.Time) bool {
	if rl.limiter.AllowN(t, 1) {
		return true
	}
	rl.denied.Add(1)
	return false
}

// RateLimiterStats holds statistics about a rate limiter
type RateLimiterStats struct {
	Name      string  `json:"name"`
	Burst     int     `json:"burst"`
	PerSecond float64 `json:"per_second"`
	Denied    uint64  `json:"denied"`
}

// Stats returns statistics about the rate limiter
func (rl *RateLimiter) Stats() RateLimiterStats {
	return RateLimiterStats{
		Name:      rl.name,
		Burst:     rl.limiter.Burst(),
		PerSecond: float64(rl.limiter.Limit()),
		Denied:    rl.denied.Load(),
	}
}
