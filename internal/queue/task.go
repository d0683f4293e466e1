package queue

type TaskType string

const (
	// TaskTypeEscalationTicket asks a worker to open a ticket for an
	// escalated conversation.
	TaskTypeEscalationTicket TaskType = "escalation_ticket"
)
