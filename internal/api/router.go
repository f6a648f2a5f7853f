// Package api provides the HTTP API for GoldWatch.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/goldwatch/goldwatch/internal/api/handler"
	"github.com/goldwatch/goldwatch/internal/api/middleware"
	"github.com/goldwatch/goldwatch/internal/goldprice"
	"github.com/goldwatch/goldwatch/internal/push"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version      string
	BuildTime    string
	Logger       zerolog.Logger
	PriceService *goldprice.Service
	PushService  *push.Service
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS)           // TLS enforcement (enabled via REQUIRE_TLS=true)
	r.Use(middleware.ContentTypeJSON)      // JSON content type
	r.Use(middleware.RequireJSON)          // Reject non-JSON bodies

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.PushService)
	goldHandler := handler.NewGoldHandler(cfg.PriceService, cfg.Logger)
	notificationsHandler := handler.NewNotificationsHandler(cfg.PushService, cfg.Logger)

	// Create rate limit middleware for different endpoint categories
	expensiveRateLimit := middleware.RateLimitByIP(middleware.ExpensiveRateLimit) // 30 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)   // 100 req/min

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
		})

		// Gold price proxy - hits the upstream feed, strict rate limiting
		r.Route("/gold", func(r chi.Router) {
			r.Use(expensiveRateLimit)
			r.Get("/price", goldHandler.GetPrice)
		})

		// Push notification endpoints
		r.Route("/notifications", func(r chi.Router) {
			r.With(standardRateLimit).Get("/public-key", notificationsHandler.GetPublicKey)
			r.With(standardRateLimit).Get("/status", notificationsHandler.GetStatus)

			// Subscription registry mutations - strict rate limiting
			r.Route("/subscriptions", func(r chi.Router) {
				r.Use(expensiveRateLimit)
				r.Post("/", notificationsHandler.Subscribe)
				r.Delete("/", notificationsHandler.Unsubscribe)
			})
		})
	})

	return r
}
