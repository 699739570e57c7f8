package middleware

import (
	"net/http"
	"sync"

	"github.com/vaidashi/storefront-api/pkg/logger"
	"github.com/vaidashi/storefront-api/pkg/ratelimit"
)

// EndpointRateLimiterMiddleware limits specific "METHOD:/path" keys.
// Requests whose key has no configured limit pass through untouched.
type EndpointRateLimiterMiddleware struct {
	limiters map[string]*ratelimit.TokenBucket
	mu       sync.RWMutex
	logger   logger.Logger
}

// NewEndpointRateLimiterMiddleware creates a new EndpointRateLimiterMiddleware
func NewEndpointRateLimiterMiddleware(logger logger.Logger) *EndpointRateLimiterMiddleware {
	return &EndpointRateLimiterMiddleware{
		limiters: make(map[string]*ratelimit.TokenBucket),
		logger:   logger,
	}
}

// SetLimit sets or replaces the limit for an endpoint key such as "POST:/api/checkout"
func (m *EndpointRateLimiterMiddleware) SetLimit(endpoint string, maxTokens, refillRate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.limiters[endpoint] = ratelimit.NewTokenBucket(maxTokens, refillRate)
}

func (m *EndpointRateLimiterMiddleware) getLimiter(endpoint string) (*ratelimit.TokenBucket, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limiter, ok := m.limiters[endpoint]
	return limiter, ok
}

// Middleware returns a middleware function for per-endpoint rate limiting
func (m *EndpointRateLimiterMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.Method + ":" + r.URL.Path

		limiter, ok := m.getLimiter(endpoint)
		if ok && !limiter.Allow() {
			m.logger.Warn("Endpoint rate limit exceeded",
				"endpoint", endpoint,
				"remoteAddr", r.RemoteAddr)
			tooManyRequests(w, "5", "Endpoint rate limit exceeded. Please try again later.")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// GetAllLimits returns all configured endpoint limits
func (m *EndpointRateLimiterMiddleware) GetAllLimits() map[string]map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]map[string]float64, len(m.limiters))

	for endpoint, limiter := range m.limiters {
		result[endpoint] = map[string]float64{
			"max_tokens":  limiter.MaxTokens(),
			"refill_rate": limiter.RefillRate(),
			"available":   limiter.Available(),
		}
	}

	return result
}
