package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/vaidashi/storefront-api/pkg/circuitbreaker"
	"github.com/vaidashi/storefront-api/pkg/logger"
)

// GracefulDegradation sheds non-essential traffic while the service keeps failing.
// Paths under an essential prefix are never rejected and never counted.
type GracefulDegradation struct {
	breaker           *circuitbreaker.CircuitBreaker
	essentialPrefixes []string
	logger            logger.Logger
}

// NewGracefulDegradation creates a new graceful degradation middleware
func NewGracefulDegradation(essentialPrefixes []string, logger logger.Logger) *GracefulDegradation {
	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.CircuitBreakerConfig{
		Name:             "http",
		FailureThreshold: 10,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 5,
	})

	return &GracefulDegradation{
		breaker:           breaker,
		essentialPrefixes: essentialPrefixes,
		logger:            logger,
	}
}

// Middleware returns a middleware function
func (gd *GracefulDegradation) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gd.isEssential(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if !gd.breaker.Allow() {
			gd.logger.Warn("Circuit is open, request rejected",
				"path", r.URL.Path,
				"method", r.Method,
				"state", gd.breaker.GetState().String())

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"Service is temporarily unavailable. Please try again later."}`))
			return
		}

		sw := NewStatusWriter(w)
		next.ServeHTTP(sw, r)

		switch {
		case sw.StatusCode >= 500:
			gd.breaker.Failure()
		case sw.StatusCode < 400:
			gd.breaker.Success()
		}
	})
}

func (gd *GracefulDegradation) isEssential(path string) bool {
	for _, prefix := range gd.essentialPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// StatusWriter records the status code written through it
type StatusWriter struct {
	http.ResponseWriter
	StatusCode int
}

// NewStatusWriter wraps w, defaulting the recorded status to 200
func NewStatusWriter(w http.ResponseWriter) *StatusWriter {
	return &StatusWriter{ResponseWriter: w, StatusCode: http.StatusOK}
}

// WriteHeader captures the status code and passes it on
func (sw *StatusWriter) WriteHeader(code int) {
	sw.StatusCode = code
	sw.ResponseWriter.WriteHeader(code)
}

// GetMetrics returns metrics about the circuit breaker
func (gd *GracefulDegradation) GetMetrics() map[string]interface{} {
	return gd.breaker.GetMetrics()
}

// Reset resets the circuit breaker
func (gd *GracefulDegradation) Reset() {
	gd.breaker.Reset()
}
