package service_test

import (
	"context"

	"basegraph.app/concierge/internal/model"
	"basegraph.app/concierge/internal/store"
)

// mockConversationStore delegates to an in-memory store unless a hook is set.
type mockConversationStore struct {
	store.ConversationStore
	historyFn    func(ctx context.Context, id int64, limit int) ([]model.Message, error)
	listByUserFn func(ctx context.Context, userID string, limit int) ([]model.Conversation, error)
	statisticsFn func(ctx context.Context, userID *string) (model.Statistics, error)
}

func (m *mockConversationStore) History(ctx context.Context, id int64, limit int) ([]model.Message, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, id, limit)
	}
	return m.ConversationStore.History(ctx, id, limit)
}

func (m *mockConversationStore) ListByUser(ctx context.Context, userID string, limit int) ([]model.Conversation, error) {
	if m.listByUserFn != nil {
		return m.listByUserFn(ctx, userID, limit)
	}
	return m.ConversationStore.ListByUser(ctx, userID, limit)
}

func (m *mockConversationStore) Statistics(ctx context.Context, userID *string) (model.Statistics, error) {
	if m.statisticsFn != nil {
		return m.statisticsFn(ctx, userID)
	}
	return m.ConversationStore.Statistics(ctx, userID)
}
