package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRateLimiterDisabled tests that a zero burst disables limiting.
func TestRateLimiterDisabled(t *testing.T) {
	limiter := newRateLimiter(RateLimitConfig{Burst: 0, RefillInterval: time.Second})
	require.Nil(t, limiter)
	for i := 0; i < 100; i++ {
		assert.True(t, limiter.allow())
	}
}

// TestRateLimiterBurstAndRefill tests token consumption and refill with a
// controlled clock.
func TestRateLimiterBurstAndRefill(t *testing.T) {
	now := time.Unix(1700000000, 0)
	limiter := newRateLimiter(RateLimitConfig{Burst: 3, RefillInterval: 3 * time.Second})
	require.NotNil(t, limiter)
	limiter.now = func() time.Time { return now }
	limiter.lastCheck = now

	assert.True(t, limiter.allow())
	assert.True(t, limiter.allow())
	assert.True(t, limiter.allow())
	assert.False(t, limiter.allow(), "burst exhausted")

	now = now.Add(time.Second)
	assert.True(t, limiter.allow(), "one token refilled after a third of the interval")
	assert.False(t, limiter.allow())

	now = now.Add(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, limiter.allow())
	}
	assert.False(t, limiter.allow(), "refill is capped at burst")
}
