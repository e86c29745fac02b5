package session

import (
	"context"
	"log/slog"
	"time"
)

// DefaultReaperInterval is how often idle surfaces are swept.
const DefaultReaperInterval = 5 * time.Minute

// StartReaper runs a background goroutine that periodically removes surfaces idle
// for longer than ttl. It stops when ctx is done.
func StartReaper(ctx context.Context, m *Manager, ttl, interval time.Duration) {
	if ttl <= 0 {
		slog.Info("Surface reaper disabled", "ttl", ttl)
		return
	}
	if interval <= 0 {
		interval = DefaultReaperInterval
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Surface reaper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				if removed := m.RemoveIdle(ttl, m.deps.Clock()); len(removed) > 0 {
					slog.Info("Reaped idle chat surfaces", "count", len(removed), "surface_ids", removed)
				}
			case <-ctx.Done():
				slog.Info("Surface reaper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
