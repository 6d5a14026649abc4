package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mohitverma010602/just-chat/internal/api"
	"github.com/mohitverma010602/just-chat/internal/auth"
	"github.com/mohitverma010602/just-chat/internal/chat"
	"github.com/mohitverma010602/just-chat/internal/config"
	"github.com/mohitverma010602/just-chat/internal/handlers"
	"github.com/mohitverma010602/just-chat/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Initialize the durable store: PostgreSQL when configured, SQLite
	// otherwise
	var dataStore store.DataStore
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		dataStore = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		dataStore = sqliteStore
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite")
	}
	defer dataStore.Close()

	// Initialize Redis store
	var redisStore *store.RedisStore
	if cfg.RedisURL != "" {
		var err error
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		logger.Info().Msg("connected to Redis")
	}

	// Identity layer
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	verifier := auth.NewJWTVerifier(tokens, dataStore)

	// Realtime core
	registry := chat.NewRegistry()
	presence := chat.NewPresence(registry, dataStore, logger)

	var limiter chat.SendLimiter
	var lastSeen chat.LastSeenRecorder
	if redisStore != nil {
		limiter = redisStore
		lastSeen = redisStore
	}
	engine := chat.NewEngine(dataStore, dataStore, registry, limiter, cfg.SendRateLimit, cfg.SendRateWindow, logger)
	gate := chat.NewGate(verifier, registry, engine, presence, lastSeen, logger)

	// HTTP layer
	h := handlers.NewHandler(dataStore, redisStore, tokens, registry, cfg)
	router := api.NewRouter(logger, h, gate, verifier, redisStore, cfg.CORSOrigin)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Write timeout would sever long-lived websocket connections; the
		// gate enforces its own per-frame deadlines.
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting just-chat server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	// Shutdown does not touch hijacked connections. Drain closes every live
	// websocket so each gate teardown runs: unregister, offline presence,
	// last-seen stamp.
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer drainCancel()
	if err := registry.Drain(drainCtx); err != nil {
		logger.Warn().Err(err).Msg("websocket drain incomplete")
	}

	logger.Info().Msg("server stopped")
}
