// Package common holds small helpers shared by the scanning capabilities.
package common

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter paces outbound probes. A nil *RateLimiter never blocks, so callers can
// leave pacing unconfigured.
type RateLimiter struct {
	mu      sync.RWMutex
	limiter *rate.Limiter
}

// NewRateLimiter creates a RateLimiter allowing rps probes per second with the given
// burst. A non-positive rps disables pacing.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(toLimit(rps), max(burst, 1))}
}

// Wait blocks until the next probe may go out or ctx ends.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return ctx.Err()
	}
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.limiter.Wait(ctx)
}

// UpdateLimits adjusts the probe rate and burst at runtime.
func (rl *RateLimiter) UpdateLimits(rps float64, burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limiter.SetLimit(toLimit(rps))
	rl.limiter.SetBurst(max(burst, 1))
}

// Limit reports the current rate in probes per second; rate.Inf when unpaced.
func (rl *RateLimiter) Limit() rate.Limit {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.limiter.Limit()
}

func toLimit(rps float64) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}
