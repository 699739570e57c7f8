package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/vaidashi/storefront-api/internal/checkout"
	"github.com/vaidashi/storefront-api/internal/config"
	"github.com/vaidashi/storefront-api/internal/handlers"
	"github.com/vaidashi/storefront-api/internal/models"
	"github.com/vaidashi/storefront-api/internal/payment"
	"github.com/vaidashi/storefront-api/internal/service"
	"github.com/vaidashi/storefront-api/pkg/circuitbreaker"
	"github.com/vaidashi/storefront-api/pkg/logger"
	"github.com/vaidashi/storefront-api/pkg/middleware"
)

// DeadLetterAdmin is what the admin endpoints need from the dead letter queue
type DeadLetterAdmin interface {
	List(ctx context.Context, status models.DeadLetterStatus, limit, offset int) ([]*models.DeadLetterMessage, error)
	MarkAsDiscarded(ctx context.Context, id int64, reason string) error
}

// DeadLetterRetrier replays a single dead letter message on demand
type DeadLetterRetrier interface {
	RetryNow(ctx context.Context, id int64) error
}

// OutboxCounter reports outbox backlog per status
type OutboxCounter interface {
	CountByStatus(ctx context.Context) (map[models.OutboxStatus]int, error)
}

// Services are the collaborators the HTTP layer calls into.
// DeadLetters, DLQRetrier, Outbox and OrderEvents may be nil.
type Services struct {
	Orders      *service.OrderService
	Catalog     *service.CatalogService
	Contacts    *service.ContactService
	Checkout    *checkout.Coordinator
	ESewa       *payment.ESewa
	Khalti      *payment.KhaltiClient
	DeadLetters DeadLetterAdmin
	DLQRetrier  DeadLetterRetrier
	Outbox      OutboxCounter
	OrderEvents *handlers.OrderEventsHandler
	UploadsDir  string
}

type Server struct {
	config     *config.Config
	logger     logger.Logger
	router     *mux.Router
	httpServer *http.Server

	services Services

	rateLimiter         *middleware.RateLimiterMiddleware
	endpointRateLimiter *middleware.EndpointRateLimiterMiddleware
	gracefulDegradation *middleware.GracefulDegradation
	adminAuth           *middleware.AdminAuth

	closersMu sync.Mutex
	closers   []closer
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// essentialPrefixes are never shed by graceful degradation
var essentialPrefixes = []string{"/api/orders", "/api/checkout", "/api/health", "/api/admin"}

// NewServer creates a new API server with the given configuration and services.
func NewServer(cfg *config.Config, services Services, logger logger.Logger) *Server {
	r := mux.NewRouter()

	rateLimiter := middleware.NewRateLimiterMiddleware(&middleware.RateLimiterConfig{
		GlobalMaxTokens:   200,
		GlobalRefillRate:  100,
		IPMaxTokens:       40,
		IPRefillRate:      10,
		TrustForwardedFor: cfg.IsProduction(),
	}, logger)

	endpointRateLimiter := middleware.NewEndpointRateLimiterMiddleware(logger)
	endpointRateLimiter.SetLimit("POST:/api/checkout", 20, 2)
	endpointRateLimiter.SetLimit("POST:/api/orders", 20, 2)
	endpointRateLimiter.SetLimit("POST:/api/contact", 10, 0.5)

	s := &Server{
		config: cfg,
		logger: logger,
		router: r,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		services:            services,
		rateLimiter:         rateLimiter,
		endpointRateLimiter: endpointRateLimiter,
		gracefulDegradation: middleware.NewGracefulDegradation(essentialPrefixes, logger),
		adminAuth:           middleware.NewAdminAuth(cfg.AdminToken, logger),
	}

	if !s.adminAuth.Enabled() {
		logger.Warn("ADMIN_TOKEN is empty, admin routes are unauthenticated")
	}

	s.setupRoutes()

	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// OnShutdown registers fn to run during Shutdown. Closers run in reverse
// registration order, after the HTTP server has stopped accepting requests.
func (s *Server) OnShutdown(name string, fn func(ctx context.Context) error) {
	s.closersMu.Lock()
	defer s.closersMu.Unlock()
	s.closers = append(s.closers, closer{name: name, fn: fn})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the HTTP server and then every background worker
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	s.closersMu.Lock()
	closers := s.closers
	s.closers = nil
	s.closersMu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		c := closers[i]
		if cerr := c.fn(ctx); cerr != nil {
			s.logger.Error("Error during shutdown", "component", c.name, "error", cerr)
			err = errors.Join(err, fmt.Errorf("%s: %w", c.name, cerr))
		}
	}

	s.rateLimiter.Stop()

	return err
}

// setupRoutes configures all the routes for our API
func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.rateLimiter.Middleware)
	s.router.Use(s.endpointRateLimiter.Middleware)
	s.router.Use(s.gracefulDegradation.Middleware)

	if s.services.UploadsDir != "" {
		s.router.PathPrefix("/uploads/").
			Handler(http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.services.UploadsDir)))).
			Methods(http.MethodGet, http.MethodHead)
	}

	// Admin API for monitoring and management
	admin := s.router.PathPrefix("/api/admin").Subrouter()
	admin.Use(s.adminAuth.Middleware)
	admin.HandleFunc("/dead-letters", s.getDeadLettersHandler).Methods(http.MethodGet)
	admin.HandleFunc("/dead-letters/{id:[0-9]+}/retry", s.retryDeadLetterHandler).Methods(http.MethodPost)
	admin.HandleFunc("/dead-letters/{id:[0-9]+}/discard", s.discardDeadLetterHandler).Methods(http.MethodPost)
	admin.HandleFunc("/circuit-breakers", s.getCircuitBreakerStatusHandler).Methods(http.MethodGet)
	admin.HandleFunc("/circuit-breakers/{name}/reset", s.resetCircuitBreakerHandler).Methods(http.MethodPost)
	admin.HandleFunc("/rate-limits", s.getRateLimitsHandler).Methods(http.MethodGet)
	admin.HandleFunc("/rate-limits", s.setEndpointRateLimitHandler).Methods(http.MethodPost)
	admin.HandleFunc("/stats", s.getStatsHandler).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.healthCheckHandler).Methods(http.MethodGet)

	api.HandleFunc("/orders", s.createOrderHandler).Methods(http.MethodPost)
	api.Handle("/orders", s.adminOnly(s.getOrdersHandler)).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", s.getOrderByIDHandler).Methods(http.MethodGet)
	api.Handle("/orders/{id}/deliver", s.adminOnly(s.deliverOrderHandler)).Methods(http.MethodPut)

	api.HandleFunc("/checkout", s.checkoutHandler).Methods(http.MethodPost)
	api.HandleFunc("/esewa-signature", s.esewaSignatureHandler).Methods(http.MethodPost)
	api.HandleFunc("/khalti-initiate", s.khaltiInitiateHandler).Methods(http.MethodPost)

	api.HandleFunc("/products", s.getProductsHandler).Methods(http.MethodGet)
	api.Handle("/products", s.adminOnly(s.createProductHandler)).Methods(http.MethodPost)
	api.HandleFunc("/products/{id}", s.getProductByIDHandler).Methods(http.MethodGet)
	api.Handle("/products/{id}", s.adminOnly(s.deleteProductHandler)).Methods(http.MethodDelete)

	api.HandleFunc("/contact", s.submitContactHandler).Methods(http.MethodPost)
	api.Handle("/contact", s.adminOnly(s.getContactMessagesHandler)).Methods(http.MethodGet)
}

func (s *Server) adminOnly(h http.HandlerFunc) http.Handler {
	return s.adminAuth.Middleware(h)
}

// breakers lists the circuit breakers exposed on the admin API
func (s *Server) breakers() map[string]*circuitbreaker.CircuitBreaker {
	out := map[string]*circuitbreaker.CircuitBreaker{}
	if s.services.Khalti != nil {
		b := s.services.Khalti.Breaker()
		out[b.Name()] = b
	}
	return out
}

// Middleware for logging requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := middleware.NewStatusWriter(w)

		next.ServeHTTP(sw, r)

		s.logger.Info("Request processed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.StatusCode,
			"duration", time.Since(start),
			"remoteAddr", r.RemoteAddr,
		)
	})
}
