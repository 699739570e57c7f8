package ratelimit

import (
	"sync"
	"time"
)

type ipEntry struct {
	bucket   *TokenBucket
	lastSeen time.Time
}

// IPRateLimiter keeps one token bucket per client IP.
// Buckets idle for longer than the idle TTL are evicted.
type IPRateLimiter struct {
	limiters   map[string]*ipEntry
	mu         sync.Mutex
	maxTokens  float64
	refillRate float64
	idleTTL    time.Duration
	stopChan   chan struct{}
	stopOnce   sync.Once
	now        func() time.Time
}

// NewIPRateLimiter creates a limiter and starts its eviction loop.
func NewIPRateLimiter(maxTokens, refillRate float64) *IPRateLimiter {
	limiter := &IPRateLimiter{
		limiters:   make(map[string]*ipEntry),
		maxTokens:  maxTokens,
		refillRate: refillRate,
		idleTTL:    10 * time.Minute,
		stopChan:   make(chan struct{}),
		now:        time.Now,
	}

	go limiter.cleanupLoop(time.NewTicker(time.Minute))

	return limiter
}

// Allow checks if a request from the given IP can proceed
func (ipl *IPRateLimiter) Allow(ip string) bool {
	return ipl.getLimiter(ip).Allow()
}

// Tracked returns the number of IPs currently holding a bucket
func (ipl *IPRateLimiter) Tracked() int {
	ipl.mu.Lock()
	defer ipl.mu.Unlock()
	return len(ipl.limiters)
}

func (ipl *IPRateLimiter) getLimiter(ip string) *TokenBucket {
	ipl.mu.Lock()
	defer ipl.mu.Unlock()

	entry, exists := ipl.limiters[ip]
	if !exists {
		entry = &ipEntry{bucket: NewTokenBucket(ipl.maxTokens, ipl.refillRate)}
		ipl.limiters[ip] = entry
	}
	entry.lastSeen = ipl.now()

	return entry.bucket
}

func (ipl *IPRateLimiter) evictIdle() int {
	ipl.mu.Lock()
	defer ipl.mu.Unlock()

	cutoff := ipl.now().Add(-ipl.idleTTL)
	evicted := 0

	for ip, entry := range ipl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(ipl.limiters, ip)
			evicted++
		}
	}

	return evicted
}

func (ipl *IPRateLimiter) cleanupLoop(ticker *time.Ticker) {
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ipl.evictIdle()
		case <-ipl.stopChan:
			return
		}
	}
}

// Stop stops the eviction loop. Safe to call more than once.
func (ipl *IPRateLimiter) Stop() {
	ipl.stopOnce.Do(func() { close(ipl.stopChan) })
}
