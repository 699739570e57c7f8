package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vaidashi/storefront-api/pkg/logger"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAdminAuth(t *testing.T) {
	auth := NewAdminAuth("s3cret", logger.NewNopLogger())
	h := auth.Middleware(okHandler)

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong bearer", "Authorization", "Bearer nope", http.StatusUnauthorized},
		{"bearer", "Authorization", "Bearer s3cret", http.StatusOK},
		{"x-admin-token", "X-Admin-Token", "s3cret", http.StatusOK},
		{"basic scheme", "Authorization", "Basic s3cret", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAdminAuth_OpenWhenTokenEmpty(t *testing.T) {
	auth := NewAdminAuth("", logger.NewNopLogger())
	rec := httptest.NewRecorder()

	auth.Middleware(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil))

	assert.False(t, auth.Enabled())
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEndpointRateLimiter_OnlyConfiguredEndpoints(t *testing.T) {
	m := NewEndpointRateLimiterMiddleware(logger.NewNopLogger())
	m.SetLimit("POST:/api/contact", 1, 0.001)
	h := m.Middleware(okHandler)

	do := func(method, path string) int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/api/contact"))
	assert.Equal(t, http.StatusTooManyRequests, do(http.MethodPost, "/api/contact"))
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/api/contact"))
	assert.Contains(t, m.GetAllLimits(), "POST:/api/contact")
}

func TestRateLimiter_PerIP(t *testing.T) {
	m := NewRateLimiterMiddleware(&RateLimiterConfig{
		GlobalMaxTokens:  100,
		GlobalRefillRate: 100,
		IPMaxTokens:      1,
		IPRefillRate:     0.001,
	}, logger.NewNopLogger())
	defer m.Stop()
	h := m.Middleware(okHandler)

	do := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1:5000"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:5001"))
	assert.Equal(t, http.StatusOK, do("10.0.0.2:5000"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")

	assert.Equal(t, "192.0.2.1", ClientIP(req, false))
	assert.Equal(t, "203.0.113.5", ClientIP(req, true))
}

func TestGracefulDegradation_EssentialPathsBypass(t *testing.T) {
	gd := NewGracefulDegradation([]string{"/api/orders"}, logger.NewNopLogger())
	failing := gd.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	for i := 0; i < 10; i++ {
		failing.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/products", nil))
	}

	rec := httptest.NewRecorder()
	failing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	failing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	gd.Reset()
	assert.Equal(t, "closed", gd.GetMetrics()["state"])
}
