package core

// reaper.go evicts preview sessions nobody committed or cancelled.
//
// Expiry is the third terminal transition of a session: the entry leaves
// the cache through TakeExpired under the same lock as commit and cancel,
// and its temp file is removed. The reaper is long-running and stops with
// its context. A failed removal is logged and never stops the loop.

import (
	"context"
	"log/slog"
	"time"
)

// Reaper defaults.
const (
	DefaultSessionTTL   = 30 * time.Minute
	DefaultReapInterval = 5 * time.Minute
)

// ReaperConfig controls StartReaper. Zero values take the defaults.
type ReaperConfig struct {
	TTL      time.Duration // how long an untouched preview lives
	Interval time.Duration // how often the cache is swept
}

// StartReaper sweeps the preview cache every Interval until ctx is done.
// Callers run it in its own goroutine.
func (s *Service) StartReaper(ctx context.Context, cfg ReaperConfig) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSessionTTL
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultReapInterval
	}

	slog.Info("preview reaper started",
		"ttl", cfg.TTL.String(),
		"interval", cfg.Interval.String(),
	)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("preview reaper stopped")
			return
		case now := <-ticker.C:
			s.ReapExpired(ctx, now.Add(-cfg.TTL))
		}
	}
}

// ReapExpired evicts sessions created before cutoff and returns how many
// were evicted.
func (s *Service) ReapExpired(ctx context.Context, cutoff time.Time) int {
	expired := s.cache.TakeExpired(cutoff)
	for _, sess := range expired {
		removeTemp(ctx, sess.TempPath)
		slog.Debug("preview expired",
			"session_id", sess.ID,
			"file", sess.FileName,
			"age", time.Since(sess.CreatedAt).Round(time.Second).String(),
		)
	}
	if len(expired) > 0 {
		slog.Info("expired previews reaped", "count", len(expired), "pending", s.cache.Len())
	}
	return len(expired)
}
