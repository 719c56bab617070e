// Package main provides the entrypoint for the Consentry API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/consentry/consentry/internal/api"
	"github.com/consentry/consentry/internal/api/middleware"
	"github.com/consentry/consentry/internal/auth"
	"github.com/consentry/consentry/internal/consent"
	"github.com/consentry/consentry/internal/database"
	"github.com/consentry/consentry/internal/events"
	"github.com/consentry/consentry/internal/gvl"
	"github.com/consentry/consentry/internal/gvl/consensu"
	"github.com/consentry/consentry/internal/provider/resilience"
	"github.com/consentry/consentry/internal/storage"
	"github.com/consentry/consentry/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "consentry-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting Consentry API")

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

	providerMetrics, err := telemetry.NewProviderMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize provider metrics")
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

	// Consent storage: fast in-memory tier over the durable Postgres tier
	store := storage.NewDualStore(storage.DualConfig{
		Local:   storage.NewMemoryStore(),
		Durable: storage.NewPostgresStore(pool),
		Logger:  log,
	})

	// Initial site configuration from environment; the admin intake
	// endpoint replaces it at runtime
	siteConfig := siteConfigFromEnv()
	configs := consent.NewConfigStore(siteConfig)
	log.Info().
		Bool("enabled", siteConfig.Enabled()).
		Int("cmp_id", siteConfig.CmpID).
		Int("enabled_vendors", len(siteConfig.EnabledVendorIDs)).
		Msg("site configuration loaded")

	// Vendor list service backed by the hosted vendor-list.json. The
	// provider registry feeds circuit breaker health to /v1/ops/status.
	providers := resilience.NewRegistry()
	gvlService := gvl.NewService(gvl.ServiceConfig{
		Loader: consensu.NewClient(consensu.ClientConfig{
			BaseURL: siteConfig.GVLBaseURL,
			Health:  providers,
		}),
		Logger:  log,
		Metrics: providerMetrics,
	})

	// Consent event publisher (optional)
	var publisher events.Publisher = events.NoopPublisher{}
	if projectID := os.Getenv("PUBSUB_PROJECT_ID"); projectID != "" {
		topic := os.Getenv("CONSENT_EVENTS_TOPIC")
		if topic == "" {
			topic = "consent-events"
		}
		pubsubPublisher, pubErr := events.NewPubSubPublisher(ctx, events.PubSubConfig{
			ProjectID: projectID,
			TopicName: topic,
			Logger:    log,
		})
		if pubErr != nil {
			log.Fatal().Err(pubErr).Msg("failed to initialize event publisher")
		}
		defer func() {
			if closeErr := pubsubPublisher.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("failed to close event publisher")
			}
		}()
		publisher = pubsubPublisher
		log.Info().Str("topic", topic).Msg("consent event publisher initialized")
	} else {
		log.Warn().Msg("PUBSUB_PROJECT_ID not set - consent events disabled")
	}

	// Session registry
	registry := consent.NewRegistry(consent.RegistryConfig{
		Configs:   configs,
		Store:     store,
		Lists:     gvlService,
		Publisher: publisher,
		Logger:    log,
	})

	// Sweep idle sessions in the background
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				registry.Sweep()
			}
		}
	}()

	// Admin token verifier (get signing key from environment)
	signingKey := os.Getenv("ADMIN_TOKEN_SIGNING_KEY")
	if signingKey == "" {
		signingKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default admin token signing key - not secure for production")
	}
	verifier := auth.NewVerifier(auth.VerifierConfig{
		SigningKey: signingKey,
		Issuer:     os.Getenv("ADMIN_TOKEN_ISSUER"),
		Audience:   os.Getenv("ADMIN_TOKEN_AUDIENCE"),
	})

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     metrics,
		Verifier:    verifier,
		Registry:    registry,
		Configs:     configs,
		DB:          pool,
		Lists:       gvlService,
		Providers:   providers,
	})

	// Create HTTP server. WriteTimeout stays unset: the consent event
	// stream holds connections open indefinitely.
	server := &http.Server{
		Addr:        ":" + port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
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
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}

// siteConfigFromEnv builds the boot-time site configuration. All values
// can be replaced at runtime through the admin intake endpoint.
func siteConfigFromEnv() consent.SiteConfig {
	cmpID, _ := strconv.Atoi(os.Getenv("CMP_ID"))
	cmpVersion, _ := strconv.Atoi(os.Getenv("CMP_VERSION"))
	if cmpVersion == 0 {
		cmpVersion = 1
	}

	return consent.SiteConfig{
		CmpID:                cmpID,
		CmpVersion:           cmpVersion,
		GVLBaseURL:           os.Getenv("GVL_BASE_URL"),
		EnabledVendorIDs:     parseIntList(os.Getenv("ENABLED_VENDOR_IDS")),
		Language:             os.Getenv("CONSENT_LANGUAGE"),
		PublisherCountryCode: os.Getenv("PUBLISHER_COUNTRY_CODE"),
	}
}

// parseIntList parses a comma-separated id list, skipping blanks and
// unparseable entries.
func parseIntList(raw string) []int {
	if raw == "" {
		return nil
	}
	var ids []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.Atoi(part); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
