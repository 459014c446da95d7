package core

// scheduler.go provides background jobs for the cache.
//
// The refresh job reloads every dataset so the cache follows the upstream
// files, then purges old load-history entries. It runs on a fixed interval
// or on a cron schedule. A failed refresh is logged and leaves the current
// generation in place.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron"
)

// HistoryPurger deletes load-history entries older than a cutoff.
type HistoryPurger interface {
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// RefreshConfig holds configuration for the refresh scheduler.
type RefreshConfig struct {
	Interval         time.Duration // How often to reload (ignored when Cron is set)
	Cron             string        // Six-field cron spec, seconds first
	HistoryRetention time.Duration // Age after which history is purged (0 disables)
	Purger           HistoryPurger // Optional
	Timeout          time.Duration // Per-refresh limit (default: 5m)
}

// StartRefreshScheduler reloads the cache until ctx is cancelled. It blocks;
// run it in its own goroutine. An invalid cron spec is returned immediately.
func (s *Service) StartRefreshScheduler(ctx context.Context, cfg RefreshConfig) error {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.Cron != "" {
		return s.runCronScheduler(ctx, cfg)
	}
	if cfg.Interval <= 0 {
		slog.Info("refresh scheduler disabled")
		return nil
	}

	slog.Info("refresh scheduler started",
		"interval", cfg.Interval.String(),
		"history_retention", cfg.HistoryRetention.String(),
	)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("refresh scheduler stopped")
			return nil
		case <-ticker.C:
			s.runRefreshJob(ctx, cfg)
		}
	}
}

func (s *Service) runCronScheduler(ctx context.Context, cfg RefreshConfig) error {
	c := cron.New()
	if err := c.AddFunc(cfg.Cron, func() { s.runRefreshJob(ctx, cfg) }); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", cfg.Cron, err)
	}

	slog.Info("refresh scheduler started",
		"cron", cfg.Cron,
		"history_retention", cfg.HistoryRetention.String(),
	)
	c.Start()
	<-ctx.Done()
	c.Stop()
	slog.Info("refresh scheduler stopped")
	return nil
}

// runRefreshJob performs one reload + purge cycle.
func (s *Service) runRefreshJob(ctx context.Context, cfg RefreshConfig) {
	if ctx.Err() != nil {
		return
	}
	slog.Debug("refresh job started")
	start := time.Now()

	jobCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	if _, err := s.cache.Load(jobCtx); err != nil {
		slog.Error("scheduled refresh failed",
			"dataset", DatasetOf(err),
			"error", err,
		)
	}

	if cfg.Purger != nil && cfg.HistoryRetention > 0 {
		purgeStart := time.Now()
		purged, err := cfg.Purger.Purge(jobCtx, time.Now().Add(-cfg.HistoryRetention))
		if err != nil {
			slog.Error("history purge failed", "error", err)
		} else {
			slog.Info("purged load history",
				"entries_purged", purged,
				"duration_ms", time.Since(purgeStart).Milliseconds(),
			)
		}
	}

	slog.Info("refresh job completed", "duration_ms", time.Since(start).Milliseconds())
}
