package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket implements a token bucket rate limiting algorithm
type TokenBucket struct {
	tokens         float64
	maxTokens      float64
	refillRate     float64
	lastRefillTime time.Time
	requests       int64
	rejections     int64
	mutex          sync.Mutex
	now            func() time.Time
}

// NewTokenBucket creates a bucket that starts full and refills at refillRate tokens per second.
func NewTokenBucket(maxTokens float64, refillRate float64) *TokenBucket {
	return &TokenBucket{
		tokens:         maxTokens,
		maxTokens:      maxTokens,
		refillRate:     refillRate,
		lastRefillTime: time.Now(),
		now:            time.Now,
	}
}

// Allow takes a single token
func (tb *TokenBucket) Allow() bool {
	return tb.AllowN(1)
}

// AllowN takes n tokens if they are available
func (tb *TokenBucket) AllowN(n float64) bool {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	tb.refill()
	tb.requests++

	if tb.tokens >= n {
		tb.tokens -= n
		return true
	}

	tb.rejections++
	return false
}

func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefillTime).Seconds()
	tb.lastRefillTime = now
	tb.tokens = min(tb.maxTokens, tb.tokens+elapsed*tb.refillRate)
}

// Reset refills the bucket and clears its counters
func (tb *TokenBucket) Reset() {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	tb.tokens = tb.maxTokens
	tb.lastRefillTime = tb.now()
	tb.requests = 0
	tb.rejections = 0
}

// Available returns the number of tokens a caller could take right now
func (tb *TokenBucket) Available() float64 {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	elapsed := tb.now().Sub(tb.lastRefillTime).Seconds()
	return min(tb.maxTokens, tb.tokens+elapsed*tb.refillRate)
}

// MaxTokens returns the bucket capacity
func (tb *TokenBucket) MaxTokens() float64 {
	return tb.maxTokens
}

// RefillRate returns the refill rate in tokens per second
func (tb *TokenBucket) RefillRate() float64 {
	return tb.refillRate
}

// GetMetrics returns counters for the admin rate limit endpoint
func (tb *TokenBucket) GetMetrics() map[string]interface{} {
	tb.mutex.Lock()
	requests, rejections := tb.requests, tb.rejections
	tb.mutex.Unlock()

	return map[string]interface{}{
		"max_tokens":       tb.maxTokens,
		"refill_rate":      tb.refillRate,
		"available_tokens": tb.Available(),
		"request_count":    requests,
		"rejection_count":  rejections,
	}
}
