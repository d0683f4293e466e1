package ticketing

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"basegraph.app/concierge/internal/model"
)

var (
	ErrDispatcherClosed = errors.New("ticket dispatcher is closed")
	ErrDispatcherBusy   = errors.New("ticket dispatcher is at capacity")
)

type InlineConfig struct {
	MaxConcurrent int64
	MaxAttempts   int
	BaseDelay     time.Duration
}

// InlineDispatcher creates tickets in background goroutines of the serving
// process. It is used when no Redis stream is configured; jobs in flight are
// lost on restart, and Close abandons jobs waiting to retry.
type InlineDispatcher struct {
	processor *Processor
	sem       *semaphore.Weighted
	cfg       InlineConfig

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
	stopCh chan struct{}
}

func NewInlineDispatcher(processor *Processor, cfg InlineConfig) *InlineDispatcher {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	return &InlineDispatcher{
		processor: processor,
		sem:       semaphore.NewWeighted(cfg.MaxConcurrent),
		cfg:       cfg,
		stopCh:    make(chan struct{}),
	}
}

// Dispatch starts ticket creation and returns immediately. It fails only
// when the dispatcher is closed or every slot is taken.
func (d *InlineDispatcher) Dispatch(ctx context.Context, req model.TicketRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	if !d.sem.TryAcquire(1) {
		return ErrDispatcherBusy
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)
		d.run(context.WithoutCancel(ctx), req)
	}()
	return nil
}

func (d *InlineDispatcher) run(ctx context.Context, req model.TicketRequest) {
	var err error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if _, err = d.processor.Process(ctx, req); err == nil {
			return
		}
		if attempt == d.cfg.MaxAttempts {
			break
		}

		delay := d.cfg.BaseDelay * time.Duration(1<<(attempt-1))
		slog.WarnContext(ctx, "ticket creation failed, retrying",
			"conversation_id", req.ConversationID,
			"attempt", attempt,
			"retry_in_ms", delay.Milliseconds(),
			"error", err)
		if !d.wait(delay) {
			slog.WarnContext(ctx, "dispatcher closed, ticket retry abandoned",
				"conversation_id", req.ConversationID,
				"attempt", attempt,
				"error", err)
			return
		}
	}

	slog.ErrorContext(ctx, "ticket creation gave up",
		"conversation_id", req.ConversationID,
		"attempts", d.cfg.MaxAttempts,
		"error", err)
}

// wait sleeps for delay and reports false if the dispatcher closed first.
func (d *InlineDispatcher) wait(delay time.Duration) bool {
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-d.stopCh:
		return false
	}
}

// Close stops accepting work, cancels pending retries and waits for
// in-flight ticket calls or ctx, whichever ends first.
func (d *InlineDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.stopCh)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
