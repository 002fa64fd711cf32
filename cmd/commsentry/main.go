// Package main is the entry point for the commsentry detection server.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"commsentry/internal/api"
	"commsentry/internal/baseline"
	"commsentry/internal/config"
	"commsentry/internal/engine"
	"commsentry/internal/enrich"
	"commsentry/internal/middleware"
	"commsentry/internal/notify"
	"commsentry/internal/schema"
	"commsentry/internal/storage"
	"commsentry/internal/storage/s3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"listen_addr", cfg.Server.ListenAddr,
		"clickhouse_hosts", cfg.ClickHouse.Hosts,
		"baseline_backend", cfg.Baselines.Backend,
		"enrichment_enabled", cfg.Enrichment.Endpoint != "",
		"kafka_enabled", cfg.Kafka.Enabled,
		"archive_enabled", cfg.Archive.Enabled,
		"auth_enabled", len(cfg.Auth.APIKeyHashes) > 0,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	chClient, err := storage.NewClickHouseClient(cfg.ClickHouse)
	if err != nil {
		slog.Error("failed to connect to ClickHouse", "error", err)
		os.Exit(1)
	}
	defer chClient.Close()

	if err := chClient.EnsureDatabase(ctx); err != nil {
		slog.Error("failed to ensure database", "error", err)
		os.Exit(1)
	}

	slog.Info("running database migrations")
	if err := storage.NewMigrator(chClient).Run(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	eventStore := storage.NewEventStore(chClient)
	trustStore := storage.NewTrustStore(chClient)
	anomalyStore := storage.NewAnomalyStore(chClient)

	// Baseline store
	var baselineStore baseline.Store
	if cfg.Baselines.Backend == "redis" {
		redisClient, err := baseline.NewGoRedisClient(cfg.Baselines.Redis)
		if err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		baselineStore = baseline.NewRedisStore(redisClient)
	} else {
		slog.Warn("using in-memory baseline store, baselines do not survive restarts")
		baselineStore = baseline.NewMemoryStore()
	}

	// Detection engine collaborators
	opts := engine.Options{
		Events:    eventStore,
		Trust:     trustStore,
		Baselines: baselineStore,
		Sink:      anomalyStore,
		Logger:    logger,
	}

	if enricher := enrich.NewClient(cfg.Enrichment); enricher.Enabled() {
		slog.Info("enrichment enabled", "model", cfg.Enrichment.Model)
		opts.Enricher = enricher
	}

	var publisher *notify.Publisher
	if cfg.Kafka.Enabled {
		publisher, err = notify.NewPublisher(cfg.Kafka, logger)
		if err != nil {
			slog.Error("failed to create Kafka publisher", "error", err)
			os.Exit(1)
		}
		opts.Publisher = publisher
	}

	if cfg.Archive.Enabled {
		archiver, err := s3.NewRunArchiver(ctx, cfg.Archive, logger)
		if err != nil {
			slog.Error("failed to create run archiver", "error", err)
			os.Exit(1)
		}
		opts.Archiver = archiver
	}

	eng := engine.New(cfg.Engine, opts)

	// HTTP surface
	handler := api.NewHandler(eng, eventStore, anomalyStore, schema.NewValidator())

	auth := middleware.NewAPIKeyAuth(cfg.Auth.APIKeyHashes, logger)
	wrapped := middleware.SecurityHeaders(auth.Wrap(handler.Routes()))

	server := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      wrapped,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("starting server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	cancel()

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			slog.Error("publisher close error", "error", err)
		}
		published, failed := publisher.Metrics()
		slog.Info("publisher metrics", "published", published, "failed", failed)
	}

	slog.Info("shutdown complete")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
