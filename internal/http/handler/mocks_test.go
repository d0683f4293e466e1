package handler_test

import (
	"context"

	"basegraph.app/concierge/internal/model"
)

type mockTurnHandler struct {
	handleFn func(ctx context.Context, in model.TurnInput) (*model.TurnResult, error)
}

func (m *mockTurnHandler) HandleMessage(ctx context.Context, in model.TurnInput) (*model.TurnResult, error) {
	if m.handleFn != nil {
		return m.handleFn(ctx, in)
	}
	return &model.TurnResult{}, nil
}

type mockConversationService struct {
	historyFn            func(ctx context.Context, conversationID int64, limit int) ([]model.Message, error)
	listByUserFn         func(ctx context.Context, userID string, limit int) ([]model.Conversation, error)
	recordSatisfactionFn func(ctx context.Context, conversationID int64, rating int, feedback *string) (*model.Conversation, error)
	updateStatusFn       func(ctx context.Context, conversationID int64, status model.ConversationStatus, reason *string) (*model.Conversation, error)
	statisticsFn         func(ctx context.Context, userID *string) (model.Statistics, error)
}

func (m *mockConversationService) History(ctx context.Context, conversationID int64, limit int) ([]model.Message, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, conversationID, limit)
	}
	return []model.Message{}, nil
}

func (m *mockConversationService) ListByUser(ctx context.Context, userID string, limit int) ([]model.Conversation, error) {
	if m.listByUserFn != nil {
		return m.listByUserFn(ctx, userID, limit)
	}
	return []model.Conversation{}, nil
}

func (m *mockConversationService) RecordSatisfaction(ctx context.Context, conversationID int64, rating int, feedback *string) (*model.Conversation, error) {
	if m.recordSatisfactionFn != nil {
		return m.recordSatisfactionFn(ctx, conversationID, rating, feedback)
	}
	return &model.Conversation{ID: conversationID}, nil
}

func (m *mockConversationService) UpdateStatus(ctx context.Context, conversationID int64, status model.ConversationStatus, reason *string) (*model.Conversation, error) {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, conversationID, status, reason)
	}
	return &model.Conversation{ID: conversationID, Status: status}, nil
}

func (m *mockConversationService) Statistics(ctx context.Context, userID *string) (model.Statistics, error) {
	if m.statisticsFn != nil {
		return m.statisticsFn(ctx, userID)
	}
	return model.Statistics{}, nil
}
