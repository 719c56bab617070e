// Package main provides the entrypoint for the Consentry background worker.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/consentry/consentry/internal/database"
	"github.com/consentry/consentry/internal/gvl"
	"github.com/consentry/consentry/internal/gvl/consensu"
	"github.com/consentry/consentry/internal/storage"
	"github.com/consentry/consentry/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "consentry-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting Consentry worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Durable store for the consent purge job (optional)
	var purger worker.ConsentPurger
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Warn().Err(err).Msg("database unavailable - consent purge disabled")
	} else {
		defer pool.Close()
		purger = storage.NewPostgresStore(pool)
		log.Info().
			Str("host", dbConfig.Host).
			Str("database", dbConfig.Database).
			Msg("database connected")
	}

	// Vendor list service; the worker forces refreshes on a schedule
	gvlService := gvl.NewService(gvl.ServiceConfig{
		Loader: consensu.NewClient(consensu.ClientConfig{
			BaseURL: os.Getenv("GVL_BASE_URL"),
		}),
		Logger: log,
	})

	refreshConfig := worker.DefaultRefreshConfig()
	if raw := os.Getenv("GVL_REFRESH_INTERVAL"); raw != "" {
		if interval, parseErr := time.ParseDuration(raw); parseErr == nil {
			refreshConfig.Interval = interval
		} else {
			log.Warn().Str("value", raw).Msg("invalid GVL_REFRESH_INTERVAL, using default")
		}
	}

	refreshJob := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config: refreshConfig,
		Logger: log,
		Lists:  gvlService,
		Purger: purger,
	})

	// Periodic refresh loop
	done := make(chan struct{})
	go func() {
		defer close(done)
		refreshJob.RunPeriodic(ctx)
	}()

	// Pub/Sub trigger subscription (optional)
	if projectID := os.Getenv("PUBSUB_PROJECT_ID"); projectID != "" {
		subscription := os.Getenv("WORKER_SUBSCRIPTION")
		if subscription == "" {
			subscription = "consentry-worker-jobs"
		}

		handler, handlerErr := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        projectID,
			SubscriptionName: subscription,
			RefreshJob:       refreshJob,
			Logger:           log,
		})
		if handlerErr != nil {
			log.Fatal().Err(handlerErr).Msg("failed to initialize pubsub handler")
		}
		defer func() {
			if closeErr := handler.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("failed to close pubsub handler")
			}
		}()

		// Receive blocks until the context is cancelled
		if receiveErr := handler.Start(ctx); receiveErr != nil && ctx.Err() == nil {
			log.Fatal().Err(receiveErr).Msg("pubsub handler failed")
		}
	} else {
		log.Info().Msg("PUBSUB_PROJECT_ID not set - running on schedule only")
		<-ctx.Done()
	}

	<-done
	log.Info().Msg("worker stopped")
}
