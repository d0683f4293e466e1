package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"basegraph.app/concierge/common/logger"
)

type ConsumerConfig struct {
	Stream       string        // Redis stream name
	Group        string        // Redis consumer group name
	Consumer     string        // Redis consumer name
	DLQStream    string        // Dead letter stream for jobs that exhausted their attempts
	BatchSize    int64         // Messages per XREADGROUP
	Block        time.Duration // How long XREADGROUP blocks waiting for jobs
	MaxAttempts  int           // Attempts before a job is dead-lettered
	RequeueDelay time.Duration // Pause before a failed job is re-added
	MaxLen       int64         // Approximate cap for both streams; 0 leaves them untrimmed
}

// StaleMessage is a pending job claimed from a consumer that stopped
// acknowledging it. Deliveries is how often Redis has handed it out.
type StaleMessage struct {
	Message    Message
	Deliveries int64
}

// RedisConsumer reads ticket jobs through a consumer group and settles them.
type RedisConsumer struct {
	client *redis.Client
	cfg    ConsumerConfig
}

func NewRedisConsumer(client *redis.Client, cfg ConsumerConfig) (*RedisConsumer, error) {
	c := &RedisConsumer{client: client, cfg: cfg}
	if err := c.ensureGroup(context.Background()); err != nil { //nolint:contextcheck
		return nil, err
	}
	return c, nil
}

// ensureGroup creates the group at "0" so jobs enqueued before the first
// worker started are still delivered.
func (c *RedisConsumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("creating consumer group: %w", err)
	}
	return nil
}

// Read returns new jobs for this consumer. Entries that cannot be decoded
// are acknowledged and dropped so they are never redelivered.
func (c *RedisConsumer) Read(ctx context.Context) ([]Message, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "concierge.queue.consumer"})

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		// ">" = never delivered to anyone. Stale pending entries are
		// ClaimStale's job.
		Streams: []string{c.cfg.Stream, ">"},
		Count:   c.cfg.BatchSize,
		Block:   c.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading from stream: %w", err)
	}

	var messages []Message
	for _, stream := range streams {
		for _, raw := range stream.Messages {
			if msg, ok := c.decode(ctx, raw); ok {
				messages = append(messages, msg)
			}
		}
	}

	if len(messages) > 0 {
		slog.DebugContext(ctx, "read ticket jobs", "count", len(messages), "consumer", c.cfg.Consumer)
	}
	return messages, nil
}

// ClaimStale takes over up to count jobs that have been pending longer than
// minIdle, typically because the worker holding them died before XACK.
func (c *RedisConsumer) ClaimStale(ctx context.Context, minIdle time.Duration, count int64) ([]StaleMessage, error) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.cfg.Stream,
		Group:  c.cfg.Group,
		Idle:   minIdle,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xpending: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]string, len(pending))
	deliveries := make(map[string]int64, len(pending))
	for i, p := range pending {
		ids[i] = p.ID
		deliveries[p.ID] = p.RetryCount
	}

	// XCLAIM re-checks idleness, so a job another reclaimer took meanwhile
	// is simply missing from the result.
	claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.cfg.Stream,
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xclaim: %w", err)
	}

	stale := make([]StaleMessage, 0, len(claimed))
	for _, raw := range claimed {
		if msg, ok := c.decode(ctx, raw); ok {
			stale = append(stale, StaleMessage{Message: msg, Deliveries: deliveries[raw.ID]})
		}
	}
	return stale, nil
}

func (c *RedisConsumer) decode(ctx context.Context, raw redis.XMessage) (Message, bool) {
	msg, err := ParseMessage(raw)
	if err == nil {
		return msg, true
	}
	slog.ErrorContext(ctx, "dropping undecodable ticket job", "error", err, "stream_message_id", raw.ID)
	if ackErr := c.Ack(ctx, Message{ID: raw.ID, Raw: raw}); ackErr != nil {
		slog.WarnContext(ctx, "failed to ack undecodable job", "error", ackErr)
	}
	return Message{}, false
}

func (c *RedisConsumer) Ack(ctx context.Context, msg Message) error {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
		return fmt.Errorf("xack (stream=%s): %w", c.cfg.Stream, err)
	}
	return nil
}

// Requeue re-adds the job with the next attempt number and acknowledges the
// original in one MULTI, so a crash cannot lose the job. A crash before EXEC
// leaves the original pending for ClaimStale.
func (c *RedisConsumer) Requeue(ctx context.Context, msg Message, errMsg string) error {
	if c.cfg.RequeueDelay > 0 {
		t := time.NewTimer(c.cfg.RequeueDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}

	values := encode(msg.Ticket, max(msg.Attempt, 1)+1)
	if errMsg != "" {
		values["last_error"] = errMsg
	}
	if err := c.moveTo(ctx, c.cfg.Stream, msg, values); err != nil {
		return fmt.Errorf("requeue: %w", err)
	}

	slog.InfoContext(ctx, "ticket job requeued", "next_attempt", values["attempt"], "reason", errMsg)
	return nil
}

// SendDLQ moves the job to the dead letter stream with its final error.
func (c *RedisConsumer) SendDLQ(ctx context.Context, msg Message, errMsg string) error {
	values := encode(msg.Ticket, msg.Attempt)
	values["error"] = errMsg
	values["source_id"] = msg.ID

	if err := c.moveTo(ctx, c.cfg.DLQStream, msg, values); err != nil {
		return fmt.Errorf("dead-letter (stream=%s): %w", c.cfg.DLQStream, err)
	}

	slog.ErrorContext(ctx, "ticket job dead-lettered", "final_error", errMsg, "dlq_stream", c.cfg.DLQStream)
	return nil
}

func (c *RedisConsumer) moveTo(ctx context.Context, stream string, msg Message, values map[string]any) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAdd(ctx, c.addArgs(stream, values))
		pipe.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID)
		return nil
	})
	return err
}

func (c *RedisConsumer) addArgs(stream string, values map[string]any) *redis.XAddArgs {
	args := &redis.XAddArgs{Stream: stream, Values: values}
	if c.cfg.MaxLen > 0 {
		args.MaxLen = c.cfg.MaxLen
		args.Approx = true
	}
	return args
}
