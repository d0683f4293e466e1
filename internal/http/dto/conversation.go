package dto

import (
	"time"

	"basegraph.app/concierge/internal/model"
)

type ConversationResponse struct {
	ID                 int64                    `json:"id,string"`
	SessionID          string                   `json:"session_id"`
	UserID             string                   `json:"user_id"`
	Status             model.ConversationStatus `json:"status"`
	Topic              *string                  `json:"topic,omitempty"`
	Escalated          bool                     `json:"escalated"`
	EscalationReason   *string                  `json:"escalation_reason,omitempty"`
	TicketID           *string                  `json:"ticket_id,omitempty"`
	SatisfactionRating *int                     `json:"satisfaction_rating,omitempty"`
	MessageCount       int                      `json:"message_count"`
	StartedAt          time.Time                `json:"started_at"`
	EndedAt            *time.Time               `json:"ended_at,omitempty"`
}

func ToConversationResponse(c *model.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:                 c.ID,
		SessionID:          c.SessionID,
		UserID:             c.UserID,
		Status:             c.Status,
		Topic:              c.Topic,
		Escalated:          c.Escalated,
		EscalationReason:   c.EscalationReason,
		TicketID:           c.TicketID,
		SatisfactionRating: c.SatisfactionRating,
		MessageCount:       c.MessageCount,
		StartedAt:          c.StartedAt,
		EndedAt:            c.EndedAt,
	}
}

type ConversationListResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
}

type MessageResponse struct {
	ID         int64             `json:"id,string"`
	Role       model.MessageRole `json:"role"`
	Content    string            `json:"content"`
	Confidence *float64          `json:"confidence,omitempty"`
	Sources    []SourceResponse  `json:"sources,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

func ToMessageResponse(m model.Message) MessageResponse {
	resp := MessageResponse{
		ID:        m.ID,
		Role:      m.Role,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
	if m.Assistant != nil {
		confidence := m.Assistant.ConfidenceScore
		resp.Confidence = &confidence
		for _, s := range m.Assistant.SourcesUsed {
			resp.Sources = append(resp.Sources, SourceResponse{ID: s.ID, Title: s.Title, Type: s.Type, Score: s.Score})
		}
	}
	return resp
}

type HistoryResponse struct {
	ConversationID int64             `json:"conversation_id,string"`
	Messages       []MessageResponse `json:"messages"`
}

type SatisfactionRequest struct {
	Rating   int     `json:"rating" binding:"required,min=1,max=5"`
	Feedback *string `json:"feedback,omitempty" binding:"omitempty,max=2000"`
}

type UpdateStatusRequest struct {
	Status model.ConversationStatus `json:"status" binding:"required"`
	Reason *string                  `json:"reason,omitempty" binding:"omitempty,max=500"`
}

type ListQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

type StatisticsQuery struct {
	UserID *string `form:"user_id"`
}
