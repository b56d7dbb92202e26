// Package server implements a token bucket rate limiter for per-connection
// line throttling.
package server

import "time"

// rateLimiter refills capacity tokens evenly over interval. Each accepted
// line costs one token. A limiter belongs to a single receive loop and is
// not safe for concurrent use.
type rateLimiter struct {
	tokens    float64
	capacity  float64
	rate      float64
	lastCheck time.Time
	now       func() time.Time
}

// newRateLimiter returns nil when cfg disables limiting; a nil limiter
// allows everything.
func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if !cfg.Enabled() {
		return nil
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}

	capacity := float64(cfg.Burst)
	return &rateLimiter{
		tokens:    capacity,
		capacity:  capacity,
		rate:      capacity / interval.Seconds(),
		lastCheck: time.Now(),
		now:       time.Now,
	}
}

func (rl *rateLimiter) allow() bool {
	if rl == nil {
		return true
	}

	now := rl.now()
	if elapsed := now.Sub(rl.lastCheck).Seconds(); elapsed > 0 {
		rl.tokens = min(rl.capacity, rl.tokens+elapsed*rl.rate)
	}
	rl.lastCheck = now

	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}
