package model

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityUrgent Priority = "urgent"
)

type EscalationVerdict struct {
	ShouldEscalate bool     `json:"should_escalate"`
	Priority       Priority `json:"priority"`
	Reason         string   `json:"reason"`
}

// TicketRequest is handed to the ticketing collaborator when a turn escalates.
type TicketRequest struct {
	ConversationID int64    `json:"conversation_id"`
	UserID         string   `json:"user_id"`
	Reason         string   `json:"reason"`
	Priority       Priority `json:"priority"`
	Excerpt        string   `json:"excerpt"`
	// TraceID and SpanID identify the turn's span so the worker can
	// continue its trace.
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}
