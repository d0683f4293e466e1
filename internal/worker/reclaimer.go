package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"basegraph.app/concierge/common/logger"
	"basegraph.app/concierge/internal/queue"
)

type ReclaimerConfig struct {
	MinIdle   time.Duration // How long a job must sit unacknowledged before it is taken over
	Interval  time.Duration
	BatchSize int64
	// MaxDeliveries dead-letters a job Redis has handed out this many times
	// without an ack. A job that crashes its worker never reaches Requeue,
	// so attempt counting alone would loop it forever.
	MaxDeliveries int64
}

// Reclaimer periodically takes over ticket jobs left pending by a worker
// that died between XREADGROUP and XACK, and hands them to the processor.
type Reclaimer struct {
	claimer   StaleClaimer
	consumer  Consumer
	processor queue.MessageProcessor
	cfg       ReclaimerConfig

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewReclaimer creates a Reclaimer. processor must settle the message itself
// (TicketWorker.Handle does).
func NewReclaimer(claimer StaleClaimer, consumer Consumer, processor queue.MessageProcessor, cfg ReclaimerConfig) *Reclaimer {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.MinIdle <= 0 {
		cfg.MinIdle = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = 10
	}
	return &Reclaimer{
		claimer:   claimer,
		consumer:  consumer,
		processor: processor,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run blocks until ctx is done or Stop is called.
func (r *Reclaimer) Run(ctx context.Context) {
	defer close(r.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "concierge.worker.reclaimer"})

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "reclaimer started", "interval", r.cfg.Interval, "min_idle", r.cfg.MinIdle)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			slog.InfoContext(ctx, "reclaimer stopping")
			return
		case <-ticker.C:
			if _, err := r.ReclaimOnce(ctx); err != nil {
				slog.ErrorContext(ctx, "reclaim cycle failed", "error", err)
			}
		}
	}
}

func (r *Reclaimer) Stop() {
	close(r.stopCh)
	<-r.stoppedCh
}

// ReclaimOnce claims one batch of stale jobs and settles each of them.
// It returns how many jobs were claimed.
func (r *Reclaimer) ReclaimOnce(ctx context.Context) (int, error) {
	stale, err := r.claimer.ClaimStale(ctx, r.cfg.MinIdle, r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claiming stale jobs: %w", err)
	}
	if len(stale) > 0 {
		slog.InfoContext(ctx, "claimed stale ticket jobs", "count", len(stale))
	}

	for _, s := range stale {
		msgID := s.Message.ID
		msgCtx := logger.WithLogFields(ctx, logger.LogFields{
			MessageID:      &msgID,
			ConversationID: &s.Message.Ticket.ConversationID,
		})

		if s.Deliveries >= r.cfg.MaxDeliveries {
			slog.ErrorContext(msgCtx, "stale job exceeded delivery limit", "deliveries", s.Deliveries)
			reason := fmt.Sprintf("delivered %d times without acknowledgement", s.Deliveries)
			if err := r.consumer.SendDLQ(msgCtx, s.Message, reason); err != nil {
				slog.ErrorContext(msgCtx, "failed to dead-letter stale job", "error", err)
			}
			continue
		}

		slog.InfoContext(msgCtx, "reprocessing stale job", "deliveries", s.Deliveries, "attempt", s.Message.Attempt)
		if err := r.processor(msgCtx, s.Message); err != nil {
			// Already requeued or dead-lettered by the processor.
			slog.WarnContext(msgCtx, "stale job failed again", "error", err)
		}
	}
	return len(stale), nil
}
