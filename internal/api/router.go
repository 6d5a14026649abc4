package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mohitverma010602/just-chat/internal/api/middleware"
	"github.com/mohitverma010602/just-chat/internal/auth"
	"github.com/mohitverma010602/just-chat/internal/chat"
	"github.com/mohitverma010602/just-chat/internal/handlers"
	"github.com/mohitverma010602/just-chat/internal/models"
	"github.com/mohitverma010602/just-chat/internal/store"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, gate *chat.Gate, verifier auth.Verifier, redisStore *store.RedisStore, corsOrigin string) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(16 * 1024)) // 16KB max body
	r.Use(middleware.RequireJSON)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting (needs Redis)
	if redisStore != nil {
		limiter := middleware.NewRateLimiter(redisStore.Client(), logger)
		r.Use(limiter.Middleware)
	}

	// CORS: browser clients authenticate with cookies, so credentials must
	// be allowed and the origin pinned in production.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{corsOrigin},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: corsOrigin != "*",
		MaxAge:           300,
	}))

	authMW := middleware.NewAuthMiddleware(verifier)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Post("/api/v1/auth/register", h.Register)
	r.Post("/api/v1/auth/login", h.Login)
	r.Post("/api/v1/auth/refresh", h.Refresh)

	// The websocket gate performs its own credential verification before
	// the upgrade.
	r.Get("/ws", gate.ServeHTTP)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(authMW.RequireAuth)

		r.Post("/api/v1/auth/logout", h.Logout)
		r.Get("/api/v1/users/me", h.Me)
		r.Get("/api/v1/users/{id}", h.GetUser)
		r.Get("/api/v1/messages/{peerID}", h.History)

		r.Group(func(r chi.Router) {
			r.Use(authMW.RequireRole(models.RoleAdmin))
			r.Get("/api/v1/admin/stats", h.Stats)
		})
	})

	return r
}
