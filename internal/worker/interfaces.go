package worker

import (
	"context"
	"time"

	"basegraph.app/concierge/internal/model"
	"basegraph.app/concierge/internal/queue"
)

// Consumer abstracts the message queue for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

// StaleClaimer takes over jobs another consumer left unacknowledged.
type StaleClaimer interface {
	ClaimStale(ctx context.Context, minIdle time.Duration, count int64) ([]queue.StaleMessage, error)
}

// TicketProcessor abstracts escalation ticket creation for testability.
type TicketProcessor interface {
	Process(ctx context.Context, req model.TicketRequest) (string, error)
}

// Purger deletes ended conversations past their retention window.
type Purger interface {
	PurgeOlderThan(ctx context.Context, age time.Duration, statuses []model.ConversationStatus) (int64, error)
}
