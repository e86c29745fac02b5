// AI Doubt Solver - local chat history and session server
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/doubt-solver/internal/api"
	"github.com/ashureev/doubt-solver/internal/completion"
	"github.com/ashureev/doubt-solver/internal/config"
	"github.com/ashureev/doubt-solver/internal/convlog"
	"github.com/ashureev/doubt-solver/internal/filter"
	"github.com/ashureev/doubt-solver/internal/history"
	"github.com/ashureev/doubt-solver/internal/metrics"
	"github.com/ashureev/doubt-solver/internal/problem"
	"github.com/ashureev/doubt-solver/internal/session"
	"github.com/ashureev/doubt-solver/internal/store"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.SlogLevel())

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "store", cfg.Store.Backend, "model", cfg.Completion.Model)

	kv, err := store.Open(cfg.StoreOptions())
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer func() {
		if closeErr := kv.Close(); closeErr != nil {
			slog.Error("Failed to close store", "error", closeErr)
		}
	}()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	err = kv.Ping(pingCtx)
	cancelPing()
	if err != nil {
		return fmt.Errorf("store health check: %w", err)
	}
	slog.Info("Store connected", "backend", cfg.Store.Backend)

	replyFilter, err := filter.NewFromFile(cfg.FilterRulesPath)
	if err != nil {
		return fmt.Errorf("load filter rules: %w", err)
	}
	slog.Info("Reply filter ready", "rules", len(replyFilter.Rules()))

	keys := completion.StoredKey{KV: kv, Fallback: cfg.Completion.APIKey}
	if !completion.HasCredential(context.Background(), keys) {
		slog.Warn("No Gemini API key configured; chat will stay closed until one is saved")
	}
	completer, err := completion.NewGemini(completion.GeminiConfig{
		Model:   cfg.Completion.Model,
		Timeout: cfg.Completion.Timeout,
		Keys:    keys,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("initialize completion service: %w", err)
	}

	conversationLogger, err := convlog.New(convlog.Config{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize conversation logger: %w", err)
	}
	defer func() {
		if closeErr := conversationLogger.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	m := metrics.New()
	chats := history.New(kv, logger)
	tracker := problem.NewTracker()
	hub := api.NewHub(cfg.AllowedOrigins, logger)
	limiter := api.NewRateLimiter(cfg.QueryRateLimit, cfg.QueryRateWindow)

	sessions := session.NewManager(tracker, hub, session.Deps{
		History:   chats,
		Filter:    replyFilter,
		Gate:      filter.Gate{},
		Completer: completer,
		Keys:      keys,
		ConvLog:   conversationLogger,
		Metrics:   m,
		Logger:    logger,
	})
	sessions.OnRemove(limiter.Forget)
	sessions.OnRemove(hub.Disconnect)

	handler, err := api.NewHandler(api.HandlerConfig{
		Sessions: sessions,
		Tracker:  tracker,
		History:  chats,
		Keys:     keys,
		Limiter:  limiter,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("initialize handlers: %w", err)
	}

	router := api.NewRouter(handler, hub, api.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		Metrics:        m,
		RequestLogging: cfg.SlogLevel() <= slog.LevelDebug,
	})

	// WebSocket connections are long lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	session.StartReaper(gctx, sessions, cfg.SurfaceIdleTTL, session.DefaultReaperInterval)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		sessions.CloseAll(session.ReasonShutdown)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("forced shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
