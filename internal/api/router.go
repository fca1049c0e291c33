// Package api provides the health HTTP server of the holder bot.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/holdtrack/holdtrack/internal/api/handler"
	"github.com/holdtrack/holdtrack/internal/api/middleware"
	"github.com/holdtrack/holdtrack/internal/api/response"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	Checker     handler.Aggregator
	Readiness   handler.ReadinessFlag
	RequireTLS  bool
}

// NewRouter creates a chi router serving the liveness, readiness and aggregate
// health endpoints.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "holdtrack-bot"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger, "/", "/health/simple", "/health/ready"))
	r.Use(middleware.Recovery(cfg.Logger, func(w http.ResponseWriter, r *http.Request) {
		response.InternalError(w, r, "an unexpected error occurred")
	}))
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.GetHead)
	r.Use(middleware.SecurityHeaders)

	healthHandler := handler.NewHealthHandler(cfg.Checker, cfg.Readiness, cfg.Logger)

	// Liveness and readiness answer 200 whenever the process is up (readiness once
	// the flag is set). They skip TLS enforcement and rate limits.
	r.Get("/", healthHandler.Live)
	r.Get("/health/simple", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireTLS(cfg.RequireTLS))
		r.Use(middleware.RateLimitByIP(middleware.AggregateRateLimit))
		r.Get("/health", healthHandler.Health)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.MethodNotAllowed(w, r, "only GET and HEAD are supported")
	})

	return r
}
