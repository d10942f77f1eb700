/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the payroll engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Build the zap logger
  3. Open the store (sqlite, postgres or memory)
  4. Wire change notification (SSE hub, Kafka when configured)
  5. Connect Redis for idempotency (when configured)
  6. Configure HTTP router and start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: APP_PORT or 8080)
  -db      SQLite database path (default: DB_PATH or ./data/payroll.db)
           Use ":memory:" for in-memory database
  -driver  sqlite, postgres or memory (default: DB_DRIVER or sqlite)

ENVIRONMENT:
  See config/config.go for the full list. The most common:
  DB_DRIVER, DATABASE_URL, REDIS_ADDR, KAFKA_BROKERS, PAYROLL_WORKERS

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close Kafka writer, Redis client and database
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/payroll.db"

  # Run with in-memory store
  ./server -driver=memory

  # Run against PostgreSQL
  DB_DRIVER=postgres DATABASE_URL=postgres://localhost/payroll ./server

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - config/config.go: Configuration keys
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/config"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/generic/store"
	"github.com/warp/payroll-engine/notify"
	"github.com/warp/payroll-engine/store/postgres"
	"github.com/warp/payroll-engine/store/sqlite"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	// Initialize store
	db, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer closeStore()
	logger.Info("store ready", zap.String("driver", cfg.Database.Driver))

	// Change notification
	hub := notify.NewHub()
	publishers := notify.Multi{hub}
	if len(cfg.Kafka.Brokers) > 0 {
		kafka := notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer kafka.Close()
		publishers = append(publishers, kafka)
		logger.Info("kafka publisher enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	// Router options; Redis enables idempotent POST replay
	routerOpts := api.RouterOptions{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RateLimit:      rate.Limit(cfg.HTTP.RateLimitRPS),
		RateBurst:      cfg.HTTP.RateLimitBurst,
		IdempotencyTTL: cfg.Redis.IdempotencyTTL,
		AccessLog:      api.NewAccessLogger(os.Stdout, cfg.App.Env),
		Logger:         logger,

		EnableScenarios: !cfg.IsProduction(),
	}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			// The middleware fails open, so a cold Redis is not fatal.
			logger.Warn("redis not reachable at startup", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		routerOpts.Redis = rdb
	}

	// Initialize handler and router
	handler := api.NewHandler(db, api.Options{
		Hub:       hub,
		Publisher: publishers,
		Logger:    logger,
		Workers:   cfg.Payroll.Workers,
	})
	router := api.NewRouter(handler, routerOpts)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.App.Port), zap.String("env", cfg.App.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// openStore returns the configured backend and its close function.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (generic.Store, func() error, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pg, err := postgres.Connect(ctx, cfg.URL)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	case config.DriverMemory:
		return store.NewMemory(), func() error { return nil }, nil
	default:
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		lite, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return lite, lite.Close, nil
	}
}
