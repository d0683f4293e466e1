package worker

import (
	"context"
	"log/slog"
	"time"

	"basegraph.app/concierge/common/logger"
	"basegraph.app/concierge/internal/model"
)

type RetentionConfig struct {
	MaxAge   time.Duration
	Interval time.Duration
	Statuses []model.ConversationStatus
}

// RetentionSweeper periodically purges ended conversations older than MaxAge.
type RetentionSweeper struct {
	purger Purger
	cfg    RetentionConfig

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewRetentionSweeper(purger Purger, cfg RetentionConfig) *RetentionSweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &RetentionSweeper{
		purger:    purger,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run sweeps once immediately, then on every tick until ctx ends or Stop is called.
func (r *RetentionSweeper) Run(ctx context.Context) {
	defer close(r.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "concierge.worker.retention",
	})
	slog.InfoContext(ctx, "retention sweeper started",
		"max_age", r.cfg.MaxAge,
		"interval", r.cfg.Interval,
		"statuses", r.cfg.Statuses)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.SweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			slog.InfoContext(ctx, "retention sweeper stopping")
			return
		case <-ticker.C:
			r.SweepOnce(ctx)
		}
	}
}

func (r *RetentionSweeper) Stop() {
	close(r.stopCh)
	<-r.stoppedCh
}

// SweepOnce runs a single purge and returns how many conversations were removed.
func (r *RetentionSweeper) SweepOnce(ctx context.Context) int64 {
	if r.cfg.MaxAge <= 0 {
		return 0
	}

	start := time.Now()
	purged, err := r.purger.PurgeOlderThan(ctx, r.cfg.MaxAge, r.cfg.Statuses)
	if err != nil {
		slog.ErrorContext(ctx, "retention sweep failed", "error", err)
		return 0
	}

	if purged > 0 {
		slog.InfoContext(ctx, "retention sweep purged conversations",
			"purged", purged,
			"duration_ms", time.Since(start).Milliseconds())
	} else {
		slog.DebugContext(ctx, "retention sweep found nothing to purge")
	}
	return purged
}
