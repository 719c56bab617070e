// Package api provides the HTTP API for Consentry.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/consentry/consentry/internal/api/handler"
	"github.com/consentry/consentry/internal/api/middleware"
	"github.com/consentry/consentry/internal/auth"
	"github.com/consentry/consentry/internal/consent"
	"github.com/consentry/consentry/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	Verifier    *auth.Verifier
	Registry    *consent.Registry
	Configs     *consent.ConfigStore
	DB          handler.Pinger
	Lists       handler.SnapshotProvider
	Providers   *resilience.Registry
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "consentry-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS)           // TLS enforcement (enabled via REQUIRE_TLS=true)
	r.Use(middleware.ContentTypeJSON)      // JSON content type

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		DB:        cfg.DB,
		Lists:     cfg.Lists,
		Providers: cfg.Providers,
	})
	consentHandler := handler.NewConsentHandler(cfg.Registry, cfg.Logger)
	adminHandler := handler.NewAdminHandler(cfg.Configs, cfg.Logger)

	// Admin auth middleware: service tokens with the config scope
	adminAuth := middleware.Auth(cfg.Verifier, auth.ScopeConfigWrite)

	// Create rate limit middleware for different endpoint categories
	adminRateLimit := middleware.RateLimitBySubject(middleware.AuthRateLimit)     // 10 req/min per token subject
	expensiveRateLimit := middleware.RateLimitByIP(middleware.ExpensiveRateLimit) // 30 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)   // 100 req/min

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			// Status endpoint requires authentication
			r.With(adminAuth).Get("/status", opsHandler.SystemStatus)
		})

		// Consent sessions
		r.Route("/sessions", func(r chi.Router) {
			// Session creation mutates state and loads the vendor list
			r.With(expensiveRateLimit).Post("/", consentHandler.CreateSession)

			r.Route("/{sessionId}", func(r chi.Router) {
				// CMP reads are cheap and polled by page scripts
				r.With(standardRateLimit).Get("/ping", consentHandler.Ping)
				r.With(standardRateLimit).Get("/tcdata", consentHandler.TCData)

				// Event stream holds a connection open; no rate limit on
				// the stream itself, removal is a cheap read-tier call
				r.Get("/events", consentHandler.Events)
				r.With(standardRateLimit).Delete("/events/{listenerId}", consentHandler.RemoveListener)

				// UI interaction intake drives saves
				r.With(expensiveRateLimit).Post("/ui", consentHandler.UIAction)
			})
		})

		// Admin endpoints (authenticated) - strict rate limiting. Auth
		// runs first so the limiter keys on the token subject.
		r.Route("/admin", func(r chi.Router) {
			r.Use(adminAuth)
			r.Use(adminRateLimit)
			r.Put("/config", adminHandler.UpdateConfig)
		})
	})

	return r
}
