package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"basegraph.app/concierge/common/logger"
	"basegraph.app/concierge/internal/model"
	"basegraph.app/concierge/internal/store"
)

const (
	DefaultHistoryLimit = 50
	DefaultListLimit    = 10
	MaxLimit            = 100
)

var (
	ErrInvalidLimit = fmt.Errorf("limit must be between 1 and %d", MaxLimit)
	ErrEmptyUserID  = errors.New("user_id is required")
)

type ConversationService interface {
	History(ctx context.Context, conversationID int64, limit int) ([]model.Message, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]model.Conversation, error)
	RecordSatisfaction(ctx context.Context, conversationID int64, rating int, feedback *string) (*model.Conversation, error)
	UpdateStatus(ctx context.Context, conversationID int64, status model.ConversationStatus, reason *string) (*model.Conversation, error)
	Statistics(ctx context.Context, userID *string) (model.Statistics, error)
}

type conversationService struct {
	conversations store.ConversationStore
}

func NewConversationService(conversations store.ConversationStore) ConversationService {
	return &conversationService{conversations: conversations}
}

func (s *conversationService) History(ctx context.Context, conversationID int64, limit int) ([]model.Message, error) {
	limit, err := resolveLimit("history", limit, DefaultHistoryLimit)
	if err != nil {
		return nil, err
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{ConversationID: &conversationID})
	msgs, err := s.conversations.History(ctx, conversationID, limit)
	if err != nil {
		return nil, s.fail(ctx, "history", err)
	}
	return msgs, nil
}

func (s *conversationService) ListByUser(ctx context.Context, userID string, limit int) ([]model.Conversation, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, model.NewValidationError("list_conversations", ErrEmptyUserID)
	}
	limit, err := resolveLimit("list_conversations", limit, DefaultListLimit)
	if err != nil {
		return nil, err
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{UserID: &userID})
	convs, err := s.conversations.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, s.fail(ctx, "list_conversations", err)
	}
	return convs, nil
}

func (s *conversationService) RecordSatisfaction(ctx context.Context, conversationID int64, rating int, feedback *string) (*model.Conversation, error) {
	if err := model.ValidateRating(rating); err != nil {
		return nil, err
	}
	if feedback != nil && strings.TrimSpace(*feedback) == "" {
		feedback = nil
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{ConversationID: &conversationID})
	conv, err := s.conversations.RecordSatisfaction(ctx, conversationID, rating, feedback)
	if err != nil {
		return nil, s.fail(ctx, "record_satisfaction", err)
	}

	slog.InfoContext(ctx, "satisfaction recorded", "rating", rating)
	return conv, nil
}

// UpdateStatus moves a conversation to status. Ended conversations stay
// ended; only a transition to another terminal status is accepted for them.
func (s *conversationService) UpdateStatus(ctx context.Context, conversationID int64, status model.ConversationStatus, reason *string) (*model.Conversation, error) {
	if !status.Valid() {
		return nil, model.NewValidationError("update_status", model.ErrInvalidStatus)
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{ConversationID: &conversationID})
	current, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, s.fail(ctx, "update_status", err)
	}
	if current.Status.IsTerminal() && !status.IsTerminal() {
		return nil, model.NewValidationError("update_status", model.ErrInvalidTransition)
	}

	change := model.StatusChange{Status: status}
	if status == model.ConversationStatusEscalated && reason != nil {
		change.EscalationReason = reason
	}
	conv, err := s.conversations.SetStatus(ctx, conversationID, change)
	if err != nil {
		return nil, s.fail(ctx, "update_status", err)
	}

	slog.InfoContext(ctx, "conversation status updated",
		"from", current.Status,
		"to", status)
	return conv, nil
}

func (s *conversationService) Statistics(ctx context.Context, userID *string) (model.Statistics, error) {
	if userID != nil && strings.TrimSpace(*userID) == "" {
		userID = nil
	}
	stats, err := s.conversations.Statistics(ctx, userID)
	if err != nil {
		return model.Statistics{}, s.fail(ctx, "statistics", err)
	}
	return stats, nil
}

func (s *conversationService) fail(ctx context.Context, op string, err error) error {
	err = model.WrapStoreError(op, err)
	if model.KindOf(err) == model.ErrorKindStorage {
		slog.ErrorContext(ctx, "conversation store failed", "error", err, "step", op)
	}
	return err
}

func resolveLimit(op string, limit, fallback int) (int, error) {
	if limit == 0 {
		return fallback, nil
	}
	if limit < 1 || limit > MaxLimit {
		return 0, model.NewValidationError(op, ErrInvalidLimit)
	}
	return limit, nil
}
