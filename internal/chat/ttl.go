package chat

import (
	"context"
	"log/slog"
	"time"
)

// StartTTLWorker runs a background goroutine that periodically closes chat
// views idle for longer than ttl. It stops when ctx is done.
func StartTTLWorker(ctx context.Context, views *Views, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				if n := views.ExpireIdle(ttl); n > 0 {
					slog.Info("TTL worker closed idle chat views", "count", n, "open", views.Len())
				}
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
