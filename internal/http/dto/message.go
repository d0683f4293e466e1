package dto

import (
	"basegraph.app/concierge/internal/model"
)

type SendMessageRequest struct {
	UserID         string  `json:"user_id" binding:"required,max=255"`
	Message        string  `json:"message" binding:"required"`
	ConversationID *string `json:"conversation_id,omitempty"`
}

type SourceResponse struct {
	ID    string  `json:"id"`
	Title string  `json:"title,omitempty"`
	Type  string  `json:"type,omitempty"`
	Score float64 `json:"score"`
}

type SendMessageResponse struct {
	ConversationID    int64            `json:"conversation_id,string"`
	Message           string           `json:"message"`
	Confidence        float64          `json:"confidence"`
	Sources           []SourceResponse `json:"sources"`
	NeedsEscalation   bool             `json:"needs_escalation"`
	Priority          model.Priority   `json:"priority"`
	EscalationReason  string           `json:"escalation_reason"`
	RetrievalDegraded bool             `json:"retrieval_degraded,omitempty"`
}

func ToSendMessageResponse(r *model.TurnResult) SendMessageResponse {
	sources := make([]SourceResponse, len(r.Sources))
	for i, s := range r.Sources {
		sources[i] = SourceResponse{
			ID:    s.ID,
			Title: s.Metadata.Title,
			Type:  s.Metadata.Type,
			Score: s.Score,
		}
	}
	return SendMessageResponse{
		ConversationID:    r.ConversationID,
		Message:           r.Message,
		Confidence:        r.Confidence,
		Sources:           sources,
		NeedsEscalation:   r.NeedsEscalation,
		Priority:          r.Priority,
		EscalationReason:  r.EscalationReason,
		RetrievalDegraded: r.RetrievalDegraded,
	}
}
