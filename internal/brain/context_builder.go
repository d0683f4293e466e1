package brain

import (
	"context"
	"fmt"

	"basegraph.app/concierge/internal/model"
	"basegraph.app/concierge/internal/store"
)

const (
	DefaultMaxContextMessages = 10
	DefaultSummaryThreshold   = 5

	fallbackTopic = "general support"
)

// ContextBuilder derives the bounded message window handed to generation.
type ContextBuilder struct {
	conversations    store.ConversationStore
	maxMessages      int
	summaryThreshold int
}

// NewContextBuilder returns a builder that keeps the newest maxMessages
// messages and adds a summary once a conversation has more than
// summaryThreshold messages. Non-positive values use the defaults.
func NewContextBuilder(conversations store.ConversationStore, maxMessages, summaryThreshold int) *ContextBuilder {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxContextMessages
	}
	if summaryThreshold <= 0 {
		summaryThreshold = DefaultSummaryThreshold
	}
	return &ContextBuilder{
		conversations:    conversations,
		maxMessages:      maxMessages,
		summaryThreshold: summaryThreshold,
	}
}

// Build returns the most recent messages in chronological order. An empty
// conversation yields an empty window and no summary.
func (b *ContextBuilder) Build(ctx context.Context, conversationID int64) (model.ContextWindow, error) {
	conv, err := b.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return model.ContextWindow{}, fmt.Errorf("loading conversation: %w", err)
	}

	history, err := b.conversations.History(ctx, conversationID, b.maxMessages)
	if err != nil {
		return model.ContextWindow{}, fmt.Errorf("loading history: %w", err)
	}

	window := model.ContextWindow{
		Messages: make([]model.ContextMessage, len(history)),
	}
	for i, m := range history {
		window.Messages[i] = model.ContextMessage{Role: m.Role, Content: m.Content}
	}

	total := max(conv.MessageCount, len(history))
	if total > b.summaryThreshold {
		window.Summary = summarize(conv, total, total-len(history))
	}
	return window, nil
}

func summarize(conv *model.Conversation, total, hidden int) string {
	topic := fallbackTopic
	switch {
	case conv.Topic != nil && *conv.Topic != "":
		topic = *conv.Topic
	case conv.InitialQuery != nil && *conv.InitialQuery != "":
		topic = *conv.InitialQuery
	}
	return fmt.Sprintf("Earlier context: conversation about %s with %d messages so far (%d earlier messages not shown).",
		topic, total, hidden)
}
