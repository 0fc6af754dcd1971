// Package main provides the entrypoint for the RoadTripper API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/roadtripper/roadtripper/internal/api"
	"github.com/roadtripper/roadtripper/internal/api/middleware"
	"github.com/roadtripper/roadtripper/internal/database"
	"github.com/roadtripper/roadtripper/internal/featureflags"
	"github.com/roadtripper/roadtripper/internal/geo"
	"github.com/roadtripper/roadtripper/internal/persist"
	"github.com/roadtripper/roadtripper/internal/poi"
	"github.com/roadtripper/roadtripper/internal/poi/places"
	"github.com/roadtripper/roadtripper/internal/prefs"
	"github.com/roadtripper/roadtripper/internal/provider/resilience"
	"github.com/roadtripper/roadtripper/internal/quota"
	"github.com/roadtripper/roadtripper/internal/telemetry"
	"github.com/roadtripper/roadtripper/internal/tracking"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "roadtripper-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting RoadTripper API")

	// Get configuration from environment
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	telemetryEnabled := os.Getenv("OTEL_ENABLED") == "true"

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    env,
		OTLPEndpoint:   otlpEndpoint,
		Enabled:        telemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryEnabled {
		log.Info().
			Str("otlp_endpoint", otlpEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	// Connect to database
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("database connected")

	// Initialize feature flags repository and service
	ffRepo := featureflags.NewPostgresRepository(pool)
	ffService := featureflags.NewService(featureflags.ServiceConfig{
		Repository: ffRepo,
		Logger:     log,
		CacheTTL:   1 * time.Minute,
	})
	log.Info().Msg("feature flags service initialized")

	// Load today's quota record and build the ledger
	quotaRepo := quota.NewPostgresRepository(pool)
	var initialUsage *quota.Usage
	stored, err := quotaRepo.Get(ctx)
	switch {
	case err == nil:
		initialUsage = stored
	case errors.Is(err, quota.ErrQuotaNotFound):
		log.Info().Msg("no quota record found, starting fresh")
	default:
		log.Warn().Err(err).Msg("failed to load quota record, starting fresh")
	}
	ledger := quota.NewLedger(quota.LedgerConfig{
		Initial: initialUsage,
		Logger:  log,
	})
	log.Info().
		Float64("distance_m", ledger.Snapshot().DistanceTraveledMeters).
		Int("searches", ledger.Snapshot().SearchCount).
		Msg("quota ledger initialized")

	// Initialize provider registry and places client
	registry := resilience.NewRegistry()
	placesClient := places.NewClient(places.ClientConfig{
		BaseURL:  os.Getenv("PLACES_BASE_URL"),
		APIKey:   os.Getenv("PLACES_API_KEY"),
		Registry: registry,
		Logger:   log,
	})
	providerMetrics, err := middleware.NewProviderMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize provider metrics")
	}

	// Initialize the search engine
	engine := poi.NewEngine(poi.EngineConfig{
		Lookup:  placesClient,
		Store:   poi.NewPostgresStore(pool),
		Ledger:  ledger,
		Logger:  log,
		Flags:   ffService,
		Metrics: providerMetrics,
	})
	log.Info().Msg("search engine initialized")

	// Initialize preferences service
	prefsRepo := prefs.NewPostgresRepository(pool)
	prefsService := prefs.NewService(ctx, prefs.ServiceConfig{
		Repository: prefsRepo,
		Gate:       ffService,
		Logger:     log,
	})
	log.Info().Msg("preferences service initialized")

	// Initialize position tracking. Movement past the threshold warms the
	// search cache for the new position using the saved preferences.
	source := tracking.NewPushSource()
	tracker := tracking.NewTracker(tracking.TrackerConfig{
		Source: source,
		Ledger: ledger,
		Logger: log,
		OnMoved: func(p geo.Point) {
			go func() {
				searchCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if _, err := engine.SearchNearby(searchCtx, p, 0, prefsService.Get().Filter); err != nil {
					log.Warn().Err(err).Msg("movement-triggered search failed")
				}
			}()
		},
	})
	if err := tracker.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start tracker")
	}
	defer tracker.Stop()
	log.Info().Msg("position tracker started")

	// Start the persistence syncer: debounced writes of quota and
	// preference changes.
	syncCtx, cancelSync := context.WithCancel(context.Background())
	syncer := persist.NewSyncer(persist.SyncerConfig{
		QuotaEvents: ledger.Events(),
		QuotaRepo:   quotaRepo,
		PrefsEvents: prefsService.Events(),
		PrefsRepo:   prefsRepo,
		Logger:      log,
	})
	var syncWG sync.WaitGroup
	syncWG.Add(1)
	go func() {
		defer syncWG.Done()
		syncer.Run(syncCtx)
	}()
	log.Info().Msg("persistence syncer started")

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:            Version,
		BuildTime:          BuildTime,
		Logger:             log,
		ServiceName:        serviceName,
		Metrics:            metrics,
		DB:                 pool,
		Registry:           registry,
		Engine:             engine,
		Ledger:             ledger,
		Tracker:            tracker,
		PositionSource:     source,
		PreferencesService: prefsService,
		FeatureFlagService: ffService,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Stop the tracker first so no more quota mutations arrive, then let
	// the syncer flush pending writes.
	tracker.Stop()
	cancelSync()
	syncWG.Wait()

	log.Info().Msg("server stopped")
}
