package model

// TurnInput is one inbound user message.
type TurnInput struct {
	UserID         string
	Message        string
	ConversationID *int64
}

// TurnResult is the envelope returned to the caller after a completed turn.
type TurnResult struct {
	ConversationID    int64              `json:"conversation_id"`
	Message           string             `json:"message"`
	Confidence        float64            `json:"confidence"`
	Sources           []KnowledgeSnippet `json:"sources"`
	NeedsEscalation   bool               `json:"needs_escalation"`
	Priority          Priority           `json:"priority"`
	EscalationReason  string             `json:"escalation_reason"`
	RetrievalDegraded bool               `json:"retrieval_degraded"`
}

// ContextMessage is a (role, content) pair fed to the generation model.
type ContextMessage struct {
	Role    MessageRole
	Content string
}

type ContextWindow struct {
	Messages []ContextMessage
	Summary  string
}

type Statistics struct {
	TotalConversations int      `json:"total_conversations"`
	Resolved           int      `json:"resolved"`
	Escalated          int      `json:"escalated"`
	AvgSatisfaction    *float64 `json:"avg_satisfaction"`
	RatedConversations int      `json:"rated_conversations"`
}
