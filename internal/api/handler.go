// Package api provides the HTTP and WebSocket surface of the doubt solver.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/doubt-solver/internal/completion"
	"github.com/ashureev/doubt-solver/internal/history"
	"github.com/ashureev/doubt-solver/internal/problem"
	"github.com/ashureev/doubt-solver/internal/session"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

// KeyStore reads and saves the completion API key.
type KeyStore interface {
	completion.KeySource
	SetAPIKey(ctx context.Context, key string) error
}

// HandlerConfig holds the collaborators of Handler.
type HandlerConfig struct {
	Sessions *session.Manager
	Tracker  *problem.Tracker
	History  *history.Store
	Keys     KeyStore
	Limiter  *RateLimiter
	Logger   *slog.Logger
}

// Handler serves the chat API.
type Handler struct {
	sessions *session.Manager
	tracker  *problem.Tracker
	history  *history.Store
	keys     KeyStore
	limiter  *RateLimiter
	logger   *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Sessions == nil || cfg.Tracker == nil || cfg.History == nil || cfg.Keys == nil {
		return nil, errors.New("api: sessions, tracker, history and keys are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		sessions: cfg.Sessions,
		tracker:  cfg.Tracker,
		history:  cfg.History,
		keys:     cfg.Keys,
		limiter:  cfg.Limiter,
		logger:   cfg.Logger,
	}, nil
}

// RegisterRoutes registers the /api routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/problem", h.UpdateProblem)

		r.Route("/chat", func(r chi.Router) {
			r.Get("/state", h.State)
			r.Post("/open", h.Open)
			r.Post("/close", h.Close)
			r.Post("/query", h.Query)
			r.Post("/clear", h.Clear)
			r.Get("/export", h.Export)
			r.Get("/history", h.History)
		})

		r.Get("/sessions", h.Sessions)
		r.Get("/config", h.GetConfig)
		r.Put("/settings/api-key", h.SetAPIKey)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a size-limited JSON body into v. An empty body leaves v unchanged.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
