package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"basegraph.app/concierge/internal/model"
)

// TicketProducer enqueues escalation tickets onto a Redis stream. Dispatch
// returns as soon as the job is stored; the worker creates the ticket.
type TicketProducer interface {
	Dispatch(ctx context.Context, req model.TicketRequest) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) TicketProducer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Dispatch(ctx context.Context, req model.TicketRequest) error {
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: encode(req, 1),
	}).Result()
	if err != nil {
		return fmt.Errorf("enqueue ticket: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued escalation ticket",
		"stream_message_id", id,
		"conversation_id", req.ConversationID,
		"priority", req.Priority)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
