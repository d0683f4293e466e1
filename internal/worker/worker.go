package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"basegraph.app/concierge/common/logger"
	"basegraph.app/concierge/internal/queue"
)

const DefaultMaxAttempts = 5

type Config struct {
	MaxAttempts int
	// ErrorBackoff is how long Run pauses after a failed read.
	ErrorBackoff time.Duration
}

// TicketWorker drains the escalation stream and turns each job into a ticket.
type TicketWorker struct {
	consumer  Consumer
	processor TicketProcessor
	cfg       Config

	jobs metric.Int64Counter

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer Consumer, processor TicketProcessor, cfg Config) *TicketWorker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}
	jobs, err := otel.Meter("concierge/worker").Int64Counter("concierge.ticket_jobs",
		metric.WithDescription("Ticket jobs settled by the worker, by outcome"))
	if err != nil {
		otel.Handle(err)
	}
	return &TicketWorker{
		consumer:  consumer,
		processor: processor,
		cfg:       cfg,
		jobs:      jobs,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *TicketWorker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "concierge.worker.tickets",
	})
	slog.InfoContext(ctx, "ticket worker started", "max_attempts", w.cfg.MaxAttempts)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "ticket worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				select {
				case <-ctx.Done():
				case <-w.stopCh:
				case <-time.After(w.cfg.ErrorBackoff):
				}
			}
		}
	}
}

func (w *TicketWorker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *TicketWorker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		_ = w.Handle(ctx, msg)
	}
	return nil
}

// Handle processes one message and settles it: ack on success, requeue on
// failure, dead-letter once MaxAttempts is reached. The processing error, if
// any, is returned after settling. Exported so the reclaimer can reuse it.
func (w *TicketWorker) Handle(ctx context.Context, msg queue.Message) error {
	msgID := msg.ID
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		MessageID:      &msgID,
		ConversationID: &msg.Ticket.ConversationID,
		UserID:         &msg.Ticket.UserID,
	})

	sc := logger.StartRemoteSpan(ctx, msg.Ticket.TraceID, msg.Ticket.SpanID, "worker.process_ticket",
		trace.WithSpanKind(trace.SpanKindConsumer))
	defer sc.End()
	ctx = sc.Context()

	if err := w.processSafe(ctx, msg); err != nil {
		sc.RecordError(err)
		slog.ErrorContext(ctx, "ticket job failed", "error", err, "attempt", msg.Attempt)
		w.handleFailedMessage(ctx, msg, err)
		return err
	}

	w.countJob(ctx, "created")
	if err := w.consumer.Ack(ctx, msg); err != nil {
		// The reclaimer will pick it up again; the processor skips conversations that already have a ticket.
		slog.WarnContext(ctx, "failed to ACK message", "error", err)
	}
	return nil
}

func (w *TicketWorker) processSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in ticket processing", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	start := time.Now()
	ticketID, err := w.processor.Process(ctx, msg.Ticket)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "ticket job processed",
		"ticket_id", ticketID,
		"attempt", msg.Attempt,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (w *TicketWorker) handleFailedMessage(ctx context.Context, msg queue.Message, err error) {
	if msg.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "max attempts reached, sending to DLQ", "attempts", msg.Attempt)
		w.countJob(ctx, "dead_lettered")
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	w.countJob(ctx, "requeued")
	slog.WarnContext(ctx, "requeuing failed message", "attempt", msg.Attempt)
	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
	}
}

func (w *TicketWorker) countJob(ctx context.Context, outcome string) {
	if w.jobs != nil {
		w.jobs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}
