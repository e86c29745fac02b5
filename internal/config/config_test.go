package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("DB_PATH", "./data/doubt-solver.db")
	t.Setenv("GEMINI_MODEL", "gemini-2.0-flash")
	t.Setenv("COMPLETION_TIMEOUT", "30s")
	t.Setenv("SURFACE_IDLE_TTL", "1h")
	t.Setenv("ALLOWED_ORIGINS", "https://maang.in, ,http://localhost:3000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Completion.Timeout != 30*time.Second {
		t.Fatalf("unexpected timeout: %v", cfg.Completion.Timeout)
	}
	if cfg.SurfaceIdleTTL != time.Hour {
		t.Fatalf("unexpected idle ttl: %v", cfg.SurfaceIdleTTL)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://localhost:3000" {
		t.Fatalf("unexpected origins: %v", cfg.AllowedOrigins)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "etcd")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLoadRedisBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("REDIS_ADDR", "127.0.0.1:6380")
	t.Setenv("REDIS_DB", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Store.Backend != "redis" || cfg.Store.RedisDB != 2 || cfg.Store.RedisAddr != "127.0.0.1:6380" {
		t.Fatalf("unexpected store config: %+v", cfg.Store)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("COMPLETION_TIMEOUT", "soon")
	t.Setenv("CONVERSATION_LOG_ENABLED", "maybe")
	t.Setenv("CONVERSATION_LOG_QUEUE_SIZE", "-5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Completion.Timeout != 30*time.Second {
		t.Fatalf("expected fallback timeout, got %v", cfg.Completion.Timeout)
	}
	if !cfg.ConversationLog.Enabled {
		t.Fatal("expected fallback enabled=true")
	}
	if cfg.ConversationLog.QueueSize != 1000 {
		t.Fatalf("expected fallback queue size, got %d", cfg.ConversationLog.QueueSize)
	}
}

func TestValidateRateWindow(t *testing.T) {
	cfg := &Config{
		Port:            "8080",
		Store:           StoreConfig{Backend: "memory"},
		Completion:      CompletionConfig{Model: "m", Timeout: time.Second},
		QueryRateLimit:  5,
		ConversationLog: ConversationLogConfig{Dir: "d", GlobalPath: "g", QueueSize: 1},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing rate window")
	}
	cfg.QueryRateWindow = time.Minute
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStoreOptionsAndLogLevel(t *testing.T) {
	cfg := &Config{
		LogLevel: "debug",
		Store:    StoreConfig{Backend: "redis", RedisAddr: "r:6379", RedisPrefix: "p:", RedisDB: 3},
	}
	opts := cfg.StoreOptions()
	if opts.Backend != "redis" || opts.Redis.Addr != "r:6379" || opts.Redis.Prefix != "p:" || opts.Redis.DB != 3 {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Fatalf("unexpected level: %v", cfg.SlogLevel())
	}
	cfg.LogLevel = "bogus"
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Fatalf("expected info fallback, got %v", cfg.SlogLevel())
	}
}
