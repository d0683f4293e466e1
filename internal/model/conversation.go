package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

type ConversationStatus string

const (
	ConversationStatusActive    ConversationStatus = "active"
	ConversationStatusResolved  ConversationStatus = "resolved"
	ConversationStatusEscalated ConversationStatus = "escalated"
	ConversationStatusAbandoned ConversationStatus = "abandoned"
)

func (s ConversationStatus) Valid() bool {
	switch s {
	case ConversationStatusActive, ConversationStatusResolved, ConversationStatusEscalated, ConversationStatusAbandoned:
		return true
	}
	return false
}

// IsTerminal reports whether the conversation has ended and can no longer take new turns.
func (s ConversationStatus) IsTerminal() bool {
	return s == ConversationStatusResolved || s == ConversationStatusAbandoned
}

type Conversation struct {
	ID                 int64              `json:"id"`
	SessionID          string             `json:"session_id"`
	UserID             string             `json:"user_id"`
	Status             ConversationStatus `json:"status"`
	InitialQuery       *string            `json:"initial_query,omitempty"`
	Topic              *string            `json:"topic,omitempty"`
	Escalated          bool               `json:"escalated"`
	EscalationReason   *string            `json:"escalation_reason,omitempty"`
	TicketID           *string            `json:"ticket_id,omitempty"`
	SatisfactionRating *int               `json:"satisfaction_rating,omitempty"`
	Feedback           *string            `json:"feedback,omitempty"`
	MessageCount       int                `json:"message_count"`
	LastMessageAt      *time.Time         `json:"last_message_at,omitempty"`
	StartedAt          time.Time          `json:"started_at"`
	EndedAt            *time.Time         `json:"ended_at,omitempty"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// Open reports whether new turns may be appended to the conversation.
func (c *Conversation) Open() bool {
	return !c.Status.IsTerminal()
}

// StatusChange describes a transition requested through SetStatus.
type StatusChange struct {
	Status           ConversationStatus
	EscalationReason *string
	TicketID         *string
}

func (c StatusChange) Validate() error {
	if !c.Status.Valid() {
		return NewValidationError("set_status", ErrInvalidStatus)
	}
	return nil
}

// ValidateFrom rejects reopening an ended conversation. Moving between the
// terminal statuses is allowed.
func (c StatusChange) ValidateFrom(current ConversationStatus) error {
	if current.IsTerminal() && !c.Status.IsTerminal() {
		return NewValidationError("set_status", ErrInvalidTransition)
	}
	return nil
}

const (
	MinSatisfactionRating = 1
	MaxSatisfactionRating = 5
)

func ValidateRating(rating int) error {
	if rating < MinSatisfactionRating || rating > MaxSatisfactionRating {
		return NewValidationError("record_satisfaction", ErrInvalidRating)
	}
	return nil
}

const maxTopicRunes = 80

// DeriveTopic builds a short topic label from the first line of the opening query.
func DeriveTopic(initialQuery *string) *string {
	if initialQuery == nil {
		return nil
	}
	line := strings.TrimSpace(*initialQuery)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if line == "" {
		return nil
	}
	if utf8.RuneCountInString(line) > maxTopicRunes {
		runes := []rune(line)
		line = strings.TrimSpace(string(runes[:maxTopicRunes])) + "..."
	}
	return &line
}
