package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tikki/Chit/internal/api"
	"github.com/tikki/Chit/internal/broker"
	"github.com/tikki/Chit/internal/config"
	"github.com/tikki/Chit/internal/gateway"
	"github.com/tikki/Chit/internal/identity"
	"github.com/tikki/Chit/internal/store"
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

	// Development convenience: signatures stay stable only within one run.
	if cfg.Signature.Key == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			logger.Fatal().Err(err).Msg("entropy unavailable")
		}
		cfg.Signature.Key = base64.StdEncoding.EncodeToString(buf)
		logger.Warn().Msg("SIGNATURE_KEY not set, using a random per-process key")
	}

	transform, err := identity.NewTransformer(cfg.Signature)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid signature config")
	}

	chatStore, err := store.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer chatStore.Close()
	logger.Info().Msg("connected to Redis")

	b := broker.New(chatStore, transform, logger)
	gw := gateway.New(b, transform, logger)

	router := api.NewRouter(cfg, logger, chatStore, b, gw)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting Chit server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
