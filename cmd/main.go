/**
 * @description
 * This is the main entry point for the settlement service. It is a
 * long-running process that executes the campaign settlement cycle on a cron
 * cadence and exposes a small operational HTTP surface (health, metrics, and
 * an internal manual trigger). It initializes the configuration, database
 * connection, redis cycle lock, RabbitMQ producer, and the cron scheduler,
 * then starts them.
 */
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ecobloom/settlement-service/internal/api"
	"github.com/ecobloom/settlement-service/internal/app"
	"github.com/ecobloom/settlement-service/internal/config"
	"github.com/ecobloom/settlement-service/internal/store"
	"github.com/ecobloom/settlement-service/pkg/rabbitmq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load .env file for local development.
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}

	// Load application configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Establish database connection with connection pool configuration
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	// Redis is optional; without it the cycle lock degrades to
	// single-instance always-acquire.
	var redisClient goredis.UniversalClient
	if cfg.RedisURL != "" {
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("unable to parse redis URL", "error", err)
			os.Exit(1)
		}
		client := goredis.NewClient(opts)
		defer client.Close()
		redisClient = client
		logger.Info("redis connection configured")
	} else {
		logger.Warn("REDIS_URL not set, cycle overlap guard disabled")
	}

	// Set up RabbitMQ producer, falling back to a no-op publisher when the
	// broker is unavailable at startup.
	var producer rabbitmq.Publisher
	if cfg.RabbitMQURL != "" {
		p, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
		if err != nil {
			logger.Warn("failed to connect to RabbitMQ, settlement events disabled", "error", err)
			producer = &rabbitmq.EventProducerFallback{}
		} else {
			producer = p
			logger.Info("RabbitMQ producer connected")
		}
	} else {
		logger.Warn("RABBITMQ_URL not set, settlement events disabled")
		producer = &rabbitmq.EventProducerFallback{}
	}
	defer producer.Close()

	// Initialize dependencies
	repository := store.NewPostgresRepository(dbpool)
	applier := app.NewApplier(repository, logger)
	lock := app.NewCycleLock(redisClient, "ecobloom:settlement:cycle_lock", time.Duration(cfg.CycleLockTTLSeconds)*time.Second)
	jobs := app.NewJobs(repository, applier, lock, producer, logger, *cfg)
	scheduler := app.NewScheduler(jobs, logger, *cfg)

	// Start the cron scheduler in the background
	scheduler.Start()
	logger.Info("scheduler started")

	// Start the operational HTTP server.
	handlers := api.NewSettlementHandlers(jobs, logger)
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: api.SettlementRoutes(handlers, cfg.InternalAPIKey),
	}

	go func() {
		logger.Info("server starting", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("could not start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for termination signal to gracefully shut down
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received, stopping scheduler")
	stopCtx := scheduler.Stop()
	<-stopCtx.Done() // Wait for any running cycle to finish

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	logger.Info("settlement service stopped gracefully")
}
