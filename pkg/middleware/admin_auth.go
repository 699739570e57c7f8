package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/vaidashi/storefront-api/pkg/logger"
)

// AdminAuth guards administrative routes with a shared token.
// The token is read from "Authorization: Bearer <token>" or "X-Admin-Token".
// An empty configured token leaves the routes open.
type AdminAuth struct {
	token  []byte
	logger logger.Logger
}

// NewAdminAuth creates the admin token middleware
func NewAdminAuth(token string, logger logger.Logger) *AdminAuth {
	if token == "" {
		logger.Warn("ADMIN_TOKEN is not set, admin routes are unauthenticated")
	}
	return &AdminAuth{token: []byte(token), logger: logger}
}

// Enabled reports whether a token is configured
func (a *AdminAuth) Enabled() bool {
	return len(a.token) > 0
}

// Middleware returns a middleware function
func (a *AdminAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		presented := presentedToken(r)
		if presented == "" || subtle.ConstantTimeCompare([]byte(presented), a.token) != 1 {
			a.logger.Warn("Rejected admin request", "method", r.Method, "path", r.URL.Path)

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"Unauthorized"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func presentedToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-Admin-Token"))
}
