package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tikki/Chit/internal/api/middleware"
	"github.com/tikki/Chit/internal/broker"
	"github.com/tikki/Chit/internal/config"
	"github.com/tikki/Chit/internal/gateway"
	"github.com/tikki/Chit/internal/handlers"
	"github.com/tikki/Chit/internal/store"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(cfg *config.Config, logger zerolog.Logger, chatStore *store.ChatStore, b *broker.Broker, gw *gateway.Gateway) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(int64(cfg.MessageLength) + 4*1024)) // one envelope plus request framing

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	if cfg.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(chatStore.Client(), logger)
		r.Use(limiter.Middleware)
	}

	// Everything a chat key gates is ciphertext anyway; any origin may talk
	// to the API.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(b, chatStore, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/health", h.Health)
	r.Get("/api/1", h.Root)

	// Chat CRUD
	r.Post("/api/1/chat", h.CreateChat)
	r.Get("/api/1/chat/{id}", h.ReadChat)
	r.Put("/api/1/chat/{id}", h.UpdateChat)
	r.Delete("/api/1/chat/{id}", h.DeleteChat)

	// Persistent channel
	r.Get("/api/1/socket", gw.ServeWS)

	return r
}
