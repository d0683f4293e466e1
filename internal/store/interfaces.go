package store

import (
	"context"
	"time"

	"basegraph.app/concierge/internal/model"
)

// ErrNotFound is returned when a requested conversation does not exist
var ErrNotFound = model.ErrNotFound

const DefaultListLimit = 10

// ConversationStore defines the contract for conversation and message data access.
// Appends to the same conversation are serialized; appends to different
// conversations may run concurrently.
type ConversationStore interface {
	Create(ctx context.Context, userID string, initialQuery *string) (*model.Conversation, error)
	GetByID(ctx context.Context, id int64) (*model.Conversation, error)
	AppendMessage(ctx context.Context, conversationID int64, msg model.NewMessage) (*model.Message, error)
	// History returns messages in ascending creation order. A positive limit
	// keeps only the most recent limit messages.
	History(ctx context.Context, conversationID int64, limit int) ([]model.Message, error)
	SetStatus(ctx context.Context, conversationID int64, change model.StatusChange) (*model.Conversation, error)
	AttachTicket(ctx context.Context, conversationID int64, ticketID string) error
	RecordSatisfaction(ctx context.Context, conversationID int64, rating int, feedback *string) (*model.Conversation, error)
	// ListByUser returns the user's conversations, most recently started first.
	ListByUser(ctx context.Context, userID string, limit int) ([]model.Conversation, error)
	Statistics(ctx context.Context, userID *string) (model.Statistics, error)
	PurgeOlderThan(ctx context.Context, age time.Duration, statuses []model.ConversationStatus) (int64, error)
}

// Clock lets tests control timestamps.
type Clock func() time.Time

// purgeStatuses validates the statuses eligible for retention purging.
// Only terminal statuses may be purged; an empty list means all terminal ones.
func purgeStatuses(statuses []model.ConversationStatus) ([]model.ConversationStatus, error) {
	if len(statuses) == 0 {
		return []model.ConversationStatus{model.ConversationStatusResolved, model.ConversationStatusAbandoned}, nil
	}
	for _, s := range statuses {
		if !s.IsTerminal() {
			return nil, model.NewValidationError("purge_conversations", model.ErrInvalidStatus)
		}
	}
	return statuses, nil
}

// nextMessageTime keeps message timestamps strictly increasing within a conversation.
func nextMessageTime(now time.Time, last *time.Time) time.Time {
	now = now.UTC().Truncate(time.Microsecond)
	if last != nil && !now.After(*last) {
		return last.Add(time.Microsecond)
	}
	return now
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

// endedAt returns the end timestamp for a status change, never earlier than start.
func endedAt(status model.ConversationStatus, now, startedAt time.Time) *time.Time {
	if !status.IsTerminal() {
		return nil
	}
	if now.Before(startedAt) {
		now = startedAt
	}
	return &now
}
