package api

import (
	"net/http"

	"github.com/ashureev/doubt-solver/internal/identity"
	"github.com/ashureev/doubt-solver/internal/metrics"
	"github.com/ashureev/doubt-solver/internal/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	AllowedOrigins []string
	Metrics        *metrics.Metrics
	RequestLogging bool
}

// NewRouter wires the API, the WebSocket hub and operational endpoints.
func NewRouter(h *Handler, hub *Hub, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	if cfg.RequestLogging {
		r.Use(chiMiddleware.Logger)
	}
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Handle("/metrics", cfg.Metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware)
		h.RegisterRoutes(r)
		r.Get("/ws/chat", hub.ServeHTTP)
	})

	return r
}
