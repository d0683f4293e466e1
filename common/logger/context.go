package logger

import (
	"context"
	"log/slog"
	"unicode/utf8"
)

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// A turn sets ConversationID and UserID once; every store, retrieval and
// generation log below it carries them without passing them around.
type LogFields struct {
	ConversationID *int64  // Conversation the turn or job belongs to
	UserID         *string // End user talking to the assistant
	MessageID      *string // Redis stream message ID
	TicketID       *string // External ticket created on escalation
	Step           *string // Orchestration step, e.g. "generate", "persist_assistant"
	Component      string  // Component name (OTel semantic convention style, e.g., "concierge.brain.orchestrator")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// WithStep is shorthand for tagging the current orchestration step.
func WithStep(ctx context.Context, step string) context.Context {
	return WithLogFields(ctx, LogFields{Step: &step})
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

// mergeFields merges two LogFields, preferring non-nil/non-empty values from 'new'.
func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.ConversationID != nil {
		result.ConversationID = new.ConversationID
	}
	if new.UserID != nil {
		result.UserID = new.UserID
	}
	if new.MessageID != nil {
		result.MessageID = new.MessageID
	}
	if new.TicketID != nil {
		result.TicketID = new.TicketID
	}
	if new.Step != nil {
		result.Step = new.Step
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// attrs renders the set fields in a stable order.
func (f LogFields) attrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, 6)
	if f.ConversationID != nil {
		attrs = append(attrs, slog.Int64("conversation_id", *f.ConversationID))
	}
	if f.UserID != nil {
		attrs = append(attrs, slog.String("user_id", *f.UserID))
	}
	if f.MessageID != nil {
		attrs = append(attrs, slog.String("message_id", *f.MessageID))
	}
	if f.TicketID != nil {
		attrs = append(attrs, slog.String("ticket_id", *f.TicketID))
	}
	if f.Step != nil {
		attrs = append(attrs, slog.String("step", *f.Step))
	}
	if f.Component != "" {
		attrs = append(attrs, slog.String("component", f.Component))
	}
	return attrs
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{ConversationID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate shortens s to at most maxLen runes, appending "..." if truncated.
// User messages are logged through this so multi-byte text is never split mid-rune.
func Truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}
