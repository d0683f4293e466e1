package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"basegraph.app/concierge/common/id"
	"basegraph.app/concierge/core/db"
	"basegraph.app/concierge/core/db/sqlc"
	"basegraph.app/concierge/internal/model"
)

type conversationStore struct {
	db  *db.DB
	now Clock
}

// NewConversationStore returns the Postgres-backed ConversationStore.
// Appends lock the conversation row, which serializes them across replicas.
func NewConversationStore(database *db.DB) ConversationStore {
	return &conversationStore{db: database, now: time.Now}
}

func (s *conversationStore) Create(ctx context.Context, userID string, initialQuery *string) (*model.Conversation, error) {
	row, err := s.db.Queries().CreateConversation(ctx, sqlc.CreateConversationParams{
		ID:           id.New(),
		SessionID:    uuid.New(),
		UserID:       userID,
		InitialQuery: initialQuery,
		Topic:        model.DeriveTopic(initialQuery),
		StartedAt:    timestamptz(s.now()),
	})
	if err != nil {
		return nil, model.WrapStoreError("create_conversation", err)
	}
	return toConversationModel(row), nil
}

func (s *conversationStore) GetByID(ctx context.Context, id int64) (*model.Conversation, error) {
	row, err := s.db.Queries().GetConversation(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, model.WrapStoreError("get_conversation", err)
	}
	return toConversationModel(row), nil
}

func (s *conversationStore) AppendMessage(ctx context.Context, conversationID int64, msg model.NewMessage) (*model.Message, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	var out *model.Message
	err := s.db.WithTx(ctx, func(q *sqlc.Queries) error {
		conv, err := q.LockConversation(ctx, conversationID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("locking conversation: %w", err)
		}

		createdAt := nextMessageTime(s.now(), timePtr(conv.LastMessageAt))
		params, err := toCreateMessageParams(conversationID, msg, createdAt)
		if err != nil {
			return err
		}

		row, err := q.CreateMessage(ctx, params)
		if err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}

		if err := q.TouchConversationMessage(ctx, sqlc.TouchConversationMessageParams{
			ID:            conversationID,
			LastMessageAt: timestamptz(createdAt),
		}); err != nil {
			return fmt.Errorf("updating conversation counters: %w", err)
		}

		out, err = toMessageModel(row)
		return err
	})
	if err != nil {
		return nil, model.WrapStoreError("append_message", err)
	}
	return out, nil
}

func (s *conversationStore) History(ctx context.Context, conversationID int64, limit int) ([]model.Message, error) {
	q := s.db.Queries()
	if _, err := q.GetConversation(ctx, conversationID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, model.WrapStoreError("history", err)
	}

	var (
		rows []sqlc.Message
		err  error
	)
	if limit > 0 {
		rows, err = q.ListRecentMessages(ctx, sqlc.ListRecentMessagesParams{
			ConversationID: conversationID,
			Limit:          int32(limit),
		})
	} else {
		rows, err = q.ListMessages(ctx, conversationID)
	}
	if err != nil {
		return nil, model.WrapStoreError("history", err)
	}

	messages := make([]model.Message, 0, len(rows))
	for _, row := range rows {
		m, err := toMessageModel(row)
		if err != nil {
			return nil, model.WrapStoreError("history", err)
		}
		messages = append(messages, *m)
	}
	return messages, nil
}

func (s *conversationStore) SetStatus(ctx context.Context, conversationID int64, change model.StatusChange) (*model.Conversation, error) {
	if err := change.Validate(); err != nil {
		return nil, err
	}

	row, err := s.db.Queries().UpdateConversationStatus(ctx, sqlc.UpdateConversationStatusParams{
		ID:               conversationID,
		Status:           string(change.Status),
		EscalationReason: change.EscalationReason,
		TicketID:         change.TicketID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, s.explainNoUpdate(ctx, conversationID, change)
		}
		return nil, model.WrapStoreError("set_status", err)
	}
	return toConversationModel(row), nil
}

// explainNoUpdate tells a missing conversation apart from one the status
// guard refused to reopen.
func (s *conversationStore) explainNoUpdate(ctx context.Context, conversationID int64, change model.StatusChange) error {
	current, err := s.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if err := change.ValidateFrom(current.Status); err != nil {
		return err
	}
	// Only reachable if the row changed between the two statements.
	return model.NewStorageError("set_status", fmt.Errorf("conversation %d changed concurrently", conversationID))
}

func (s *conversationStore) AttachTicket(ctx context.Context, conversationID int64, ticketID string) error {
	n, err := s.db.Queries().SetConversationTicket(ctx, sqlc.SetConversationTicketParams{
		ID:       conversationID,
		TicketID: &ticketID,
	})
	if err != nil {
		return model.WrapStoreError("attach_ticket", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *conversationStore) RecordSatisfaction(ctx context.Context, conversationID int64, rating int, feedback *string) (*model.Conversation, error) {
	if err := model.ValidateRating(rating); err != nil {
		return nil, err
	}

	r := int16(rating)
	row, err := s.db.Queries().RecordConversationSatisfaction(ctx, sqlc.RecordConversationSatisfactionParams{
		ID:                 conversationID,
		SatisfactionRating: &r,
		Feedback:           feedback,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, model.WrapStoreError("record_satisfaction", err)
	}
	return toConversationModel(row), nil
}

func (s *conversationStore) ListByUser(ctx context.Context, userID string, limit int) ([]model.Conversation, error) {
	rows, err := s.db.Queries().ListConversationsByUser(ctx, sqlc.ListConversationsByUserParams{
		UserID: userID,
		Limit:  int32(listLimit(limit)),
	})
	if err != nil {
		return nil, model.WrapStoreError("list_conversations", err)
	}

	conversations := make([]model.Conversation, 0, len(rows))
	for _, row := range rows {
		conversations = append(conversations, *toConversationModel(row))
	}
	return conversations, nil
}

func (s *conversationStore) Statistics(ctx context.Context, userID *string) (model.Statistics, error) {
	row, err := s.db.Queries().GetConversationStatistics(ctx, userID)
	if err != nil {
		return model.Statistics{}, model.WrapStoreError("statistics", err)
	}
	return model.Statistics{
		TotalConversations: int(row.Total),
		Resolved:           int(row.Resolved),
		Escalated:          int(row.Escalated),
		AvgSatisfaction:    row.AvgSatisfaction,
		RatedConversations: int(row.Rated),
	}, nil
}

func (s *conversationStore) PurgeOlderThan(ctx context.Context, age time.Duration, statuses []model.ConversationStatus) (int64, error) {
	statuses, err := purgeStatuses(statuses)
	if err != nil {
		return 0, err
	}

	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}

	n, err := s.db.Queries().DeleteConversationsStartedBefore(ctx, sqlc.DeleteConversationsStartedBeforeParams{
		StartedAt: timestamptz(s.now().Add(-age)),
		Column2:   names,
	})
	if err != nil {
		return 0, model.WrapStoreError("purge_conversations", err)
	}
	return n, nil
}

func toConversationModel(row sqlc.Conversation) *model.Conversation {
	c := &model.Conversation{
		ID:               row.ID,
		SessionID:        row.SessionID.String(),
		UserID:           row.UserID,
		Status:           model.ConversationStatus(row.Status),
		InitialQuery:     row.InitialQuery,
		Topic:            row.Topic,
		Escalated:        row.Escalated,
		EscalationReason: row.EscalationReason,
		TicketID:         row.TicketID,
		Feedback:         row.Feedback,
		MessageCount:     int(row.MessageCount),
		LastMessageAt:    timePtr(row.LastMessageAt),
		StartedAt:        row.StartedAt.Time,
		EndedAt:          timePtr(row.EndedAt),
		UpdatedAt:        row.UpdatedAt.Time,
	}
	if row.SatisfactionRating != nil {
		r := int(*row.SatisfactionRating)
		c.SatisfactionRating = &r
	}
	return c
}

func toCreateMessageParams(conversationID int64, msg model.NewMessage, createdAt time.Time) (sqlc.CreateMessageParams, error) {
	params := sqlc.CreateMessageParams{
		ID:             id.New(),
		ConversationID: conversationID,
		Role:           string(msg.Role),
		Content:        msg.Content,
		CreatedAt:      timestamptz(createdAt),
	}
	if meta := msg.Assistant; meta != nil {
		sources := meta.SourcesUsed
		if sources == nil {
			sources = []model.SourceRef{}
		}
		raw, err := json.Marshal(sources)
		if err != nil {
			return sqlc.CreateMessageParams{}, fmt.Errorf("encoding sources: %w", err)
		}
		confidence := meta.ConfidenceScore
		modelUsed := meta.ModelUsed
		tokens := int32(meta.TokensUsed)
		params.ConfidenceScore = &confidence
		params.SourcesUsed = raw
		params.ModelUsed = &modelUsed
		params.TokensUsed = &tokens
		params.Cost = decimal.NullDecimal{Decimal: meta.Cost, Valid: true}
	}
	return params, nil
}

func toMessageModel(row sqlc.Message) (*model.Message, error) {
	m := &model.Message{
		ID:             row.ID,
		ConversationID: row.ConversationID,
		Role:           model.MessageRole(row.Role),
		Content:        row.Content,
		CreatedAt:      row.CreatedAt.Time,
	}
	if row.ConfidenceScore == nil {
		return m, nil
	}

	meta := &model.AssistantMetadata{
		ConfidenceScore: *row.ConfidenceScore,
		SourcesUsed:     []model.SourceRef{},
	}
	if len(row.SourcesUsed) > 0 {
		if err := json.Unmarshal(row.SourcesUsed, &meta.SourcesUsed); err != nil {
			return nil, fmt.Errorf("decoding sources for message %d: %w", row.ID, err)
		}
	}
	if row.ModelUsed != nil {
		meta.ModelUsed = *row.ModelUsed
	}
	if row.TokensUsed != nil {
		meta.TokensUsed = int(*row.TokensUsed)
	}
	if row.Cost.Valid {
		meta.Cost = row.Cost.Decimal
	}
	m.Assistant = meta
	return m, nil
}

func timestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func timePtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}
