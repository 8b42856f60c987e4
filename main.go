package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nugl/monetization/internal/config"
	"github.com/nugl/monetization/internal/database"
	"github.com/nugl/monetization/internal/httpserver"
	"github.com/nugl/monetization/internal/metrics"
	"github.com/nugl/monetization/internal/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logFormat := cfg.Log.Format
	if cfg.IsDevelopment() {
		logFormat = "console"
	}
	logger, err := middleware.NewLogger(cfg.Log.Level, logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting monetization service",
		zap.String("env", cfg.Server.Env),
		zap.String("addr", cfg.Server.Addr),
	)

	ctx := context.Background()

	// Connect to PostgreSQL; fall back to in-memory storage when it is
	// not reachable so local development works without infrastructure.
	db, err := database.NewPostgresDB(ctx, cfg.Database, logger)
	if err != nil {
		logger.Warn("PostgreSQL not available, using in-memory storage", zap.Error(err))
		db = nil
	} else {
		defer db.Close()
	}

	// Redis backs the stats cache
	redis, err := database.NewRedisDB(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis not available, stats caching disabled", zap.Error(err))
		redis = nil
	} else {
		defer redis.Close()
	}

	// ClickHouse backs the optional analytics archive
	var clickhouse *database.ClickHouseDB
	if cfg.ClickHouse.Enabled {
		clickhouse, err = database.NewClickHouseDB(ctx, cfg.ClickHouse, logger)
		if err != nil {
			logger.Warn("ClickHouse not available, event archiving disabled", zap.Error(err))
			clickhouse = nil
		} else {
			defer clickhouse.Close()
		}
	}

	m := metrics.NewMetrics("monetize")

	deps := &httpserver.Dependencies{
		DB:         db,
		Redis:      redis,
		ClickHouse: clickhouse,
		Config:     cfg,
		Logger:     logger,
		Metrics:    m,
	}

	handler := httpserver.NewServer(deps)

	// Middleware chain: recovery -> logging -> rate limit -> auth
	rateLimiter := middleware.NewRateLimitMiddleware(cfg.RateLimit, logger)
	rateLimiter.SetMetrics(m)
	auth := middleware.NewAuthMiddleware(cfg.Auth, logger)
	logging := middleware.NewLoggingMiddleware(logger)
	recovery := middleware.NewRecoveryMiddleware(logger)

	chained := recovery.Handler(logging.Handler(rateLimiter.Handler(auth.Handler(handler))))

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      chained,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Periodically drop per-IP limiter state
	cleanupDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rateLimiter.CleanupIPLimiters()
			case <-cleanupDone:
				return
			}
		}
	}()

	// Start server in goroutine
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	close(cleanupDone)

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
