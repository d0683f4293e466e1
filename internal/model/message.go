package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

func (r MessageRole) Valid() bool {
	switch r {
	case MessageRoleUser, MessageRoleAssistant, MessageRoleSystem:
		return true
	}
	return false
}

// Message is an immutable entry in a conversation. Assistant is set only for
// assistant messages.
type Message struct {
	ID             int64              `json:"id"`
	ConversationID int64              `json:"conversation_id"`
	Role           MessageRole        `json:"role"`
	Content        string             `json:"content"`
	Assistant      *AssistantMetadata `json:"assistant,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

type AssistantMetadata struct {
	ConfidenceScore float64         `json:"confidence_score"`
	SourcesUsed     []SourceRef     `json:"sources_used"`
	ModelUsed       string          `json:"model_used"`
	TokensUsed      int             `json:"tokens_used"`
	Cost            decimal.Decimal `json:"cost"`
}

// SourceRef is the persisted reference to a knowledge snippet that grounded an answer.
type SourceRef struct {
	ID    string  `json:"id"`
	Title string  `json:"title,omitempty"`
	Type  string  `json:"type,omitempty"`
	Score float64 `json:"score"`
}

// NewMessage is the input to ConversationStore.AppendMessage.
type NewMessage struct {
	Role      MessageRole
	Content   string
	Assistant *AssistantMetadata
}

func (m NewMessage) Validate() error {
	if !m.Role.Valid() {
		return NewValidationError("append_message", fmt.Errorf("unknown role %q", m.Role))
	}
	if strings.TrimSpace(m.Content) == "" {
		return NewValidationError("append_message", errors.New("message content is empty"))
	}
	if m.Assistant != nil {
		if m.Role != MessageRoleAssistant {
			return NewValidationError("append_message", fmt.Errorf("assistant metadata on %s message", m.Role))
		}
		c := m.Assistant.ConfidenceScore
		if math.IsNaN(c) || c < 0 || c > 1 {
			return NewValidationError("append_message", fmt.Errorf("confidence %v outside [0,1]", c))
		}
	}
	return nil
}

func SourceRefsFromSnippets(snippets []KnowledgeSnippet) []SourceRef {
	refs := make([]SourceRef, len(snippets))
	for i, s := range snippets {
		refs[i] = SourceRef{
			ID:    s.ID,
			Title: s.Metadata.Title,
			Type:  s.Metadata.Type,
			Score: s.Score,
		}
	}
	return refs
}
