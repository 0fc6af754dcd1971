// Package api provides the HTTP API for RoadTripper.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/roadtripper/roadtripper/internal/api/handler"
	"github.com/roadtripper/roadtripper/internal/api/middleware"
	"github.com/roadtripper/roadtripper/internal/featureflags"
	"github.com/roadtripper/roadtripper/internal/poi"
	"github.com/roadtripper/roadtripper/internal/prefs"
	"github.com/roadtripper/roadtripper/internal/provider/resilience"
	"github.com/roadtripper/roadtripper/internal/quota"
	"github.com/roadtripper/roadtripper/internal/tracking"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version            string
	BuildTime          string
	Logger             zerolog.Logger
	ServiceName        string
	Metrics            *middleware.Metrics
	DB                 handler.Pinger
	Registry           *resilience.Registry
	Engine             *poi.Engine
	Ledger             *quota.Ledger
	Tracker            *tracking.Tracker
	PositionSource     *tracking.PushSource
	PreferencesService *prefs.Service
	FeatureFlagService *featureflags.Service
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "roadtripper-api"
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
	r.Use(middleware.RequireJSON)          // Reject non-JSON bodies

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.DB, cfg.Registry, cfg.Engine, cfg.Tracker, cfg.FeatureFlagService)
	searchHandler := handler.NewSearchHandler(cfg.Engine, cfg.PreferencesService, cfg.FeatureFlagService, cfg.Logger)
	positionHandler := handler.NewPositionHandler(cfg.PositionSource, cfg.Tracker)
	quotaHandler := handler.NewQuotaHandler(cfg.Ledger)
	prefsHandler := handler.NewPreferencesHandler(cfg.PreferencesService)
	featureFlagsHandler := handler.NewFeatureFlagsHandler(cfg.FeatureFlagService)

	// Create rate limit middleware for different endpoint categories
	expensiveRateLimit := middleware.RateLimitByIP(middleware.ExpensiveRateLimit) // 30 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)   // 100 req/min
	positionRateLimit := middleware.RateLimitByIP(middleware.PositionRateLimit)   // 300 req/min

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		// Nearby search - hits the remote places provider, strict rate limiting
		r.With(expensiveRateLimit).Post("/search/nearby", searchHandler.SearchNearby)

		// Place detail - served from cache where possible
		r.With(standardRateLimit).Get("/places/{placeId}", searchHandler.GetPlace)

		// Position reporting - high-frequency device stream
		r.Route("/positions", func(r chi.Router) {
			r.Use(positionRateLimit)
			r.Post("/", positionHandler.ReportPosition)
		})
		r.Route("/position", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/", positionHandler.CurrentPosition)
			r.Get("/stats", positionHandler.TrackingStats)
		})

		// Quota inspection
		r.With(standardRateLimit).Get("/quota", quotaHandler.GetQuota)

		// Preferences
		r.Route("/preferences", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/", prefsHandler.GetPreferences)
			r.Put("/", prefsHandler.UpdatePreferences)
		})

		// Admin endpoints - for internal operations
		r.Route("/admin", func(r chi.Router) {
			r.Use(standardRateLimit)

			// Feature flags management
			r.Route("/feature-flags", func(r chi.Router) {
				r.Get("/", featureFlagsHandler.ListFeatureFlags)
				r.Put("/", featureFlagsHandler.UpsertFeatureFlags)
				r.Post("/invalidate", featureFlagsHandler.InvalidateCache)
			})
		})
	})

	return r
}
