package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucket_ExhaustAndRefill(t *testing.T) {
	clock := time.Now()
	tb := NewTokenBucket(2, 1)
	tb.now = func() time.Time { return clock }
	tb.lastRefillTime = clock

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	clock = clock.Add(time.Second)
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	metrics := tb.GetMetrics()
	assert.EqualValues(t, 5, metrics["request_count"])
	assert.EqualValues(t, 2, metrics["rejection_count"])
}

func TestTokenBucket_NeverExceedsCapacity(t *testing.T) {
	clock := time.Now()
	tb := NewTokenBucket(3, 10)
	tb.now = func() time.Time { return clock }
	tb.lastRefillTime = clock

	clock = clock.Add(time.Hour)
	assert.Equal(t, 3.0, tb.Available())
}

func TestIPRateLimiter_PerIPBuckets(t *testing.T) {
	ipl := NewIPRateLimiter(1, 0.001)
	defer ipl.Stop()

	assert.True(t, ipl.Allow("10.0.0.1"))
	assert.False(t, ipl.Allow("10.0.0.1"))
	assert.True(t, ipl.Allow("10.0.0.2"))
	assert.Equal(t, 2, ipl.Tracked())
}

func TestIPRateLimiter_EvictsIdle(t *testing.T) {
	clock := time.Now()
	ipl := NewIPRateLimiter(1, 1)
	defer ipl.Stop()
	ipl.now = func() time.Time { return clock }

	ipl.Allow("10.0.0.1")
	clock = clock.Add(5 * time.Minute)
	ipl.Allow("10.0.0.2")
	clock = clock.Add(6 * time.Minute)

	assert.Equal(t, 1, ipl.evictIdle())
	assert.Equal(t, 1, ipl.Tracked())

	ipl.Stop()
}
