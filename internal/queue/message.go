package queue

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"basegraph.app/concierge/internal/model"
)

// Message is one ticket job read from the stream. Attempt starts at 1 and
// grows each time the job is requeued.
type Message struct {
	ID       string
	TaskType TaskType
	Ticket   model.TicketRequest
	Attempt  int
	Raw      redis.XMessage
}

// MessageProcessor handles a message and settles it on the stream.
type MessageProcessor func(ctx context.Context, msg Message) error

// ParseMessage decodes a stream entry. Redis returns every field as a
// string; missing optional fields take their defaults.
func ParseMessage(msg redis.XMessage) (Message, error) {
	r := fieldReader{values: msg.Values}

	taskType := TaskType(r.optional("task_type"))
	ticket := model.TicketRequest{
		ConversationID: r.int64("conversation_id"),
		UserID:         r.required("user_id"),
		Reason:         r.required("reason"),
		Priority:       model.Priority(r.optional("priority")),
		Excerpt:        r.optional("excerpt"),
		TraceID:        r.optional("trace_id"),
		SpanID:         r.optional("span_id"),
	}
	attempt := r.optionalInt("attempt", 1)
	if r.err != nil {
		return Message{}, r.err
	}

	if taskType != TaskTypeEscalationTicket {
		return Message{}, fmt.Errorf("unknown task_type %q", taskType)
	}
	switch ticket.Priority {
	case "":
		ticket.Priority = model.PriorityNormal
	case model.PriorityNormal, model.PriorityUrgent:
	default:
		return Message{}, fmt.Errorf("unknown priority %q", ticket.Priority)
	}

	return Message{
		ID:       msg.ID,
		TaskType: taskType,
		Ticket:   ticket,
		Attempt:  attempt,
		Raw:      msg,
	}, nil
}

// encode renders a job for XADD with the given attempt number.
func encode(ticket model.TicketRequest, attempt int) map[string]any {
	values := map[string]any{
		"task_type":       string(TaskTypeEscalationTicket),
		"attempt":         attempt,
		"conversation_id": ticket.ConversationID,
		"user_id":         ticket.UserID,
		"reason":          ticket.Reason,
		"priority":        string(ticket.Priority),
	}
	optional := map[string]string{
		"excerpt":  ticket.Excerpt,
		"trace_id": ticket.TraceID,
		"span_id":  ticket.SpanID,
	}
	for k, v := range optional {
		if v != "" {
			values[k] = v
		}
	}
	return values
}

// fieldReader keeps the first decoding error so ParseMessage reads every
// field without checking after each one.
type fieldReader struct {
	values map[string]any
	err    error
}

func (r *fieldReader) lookup(key string) (string, bool) {
	raw, ok := r.values[key]
	if !ok {
		return "", false
	}
	return fmt.Sprint(raw), true
}

func (r *fieldReader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *fieldReader) required(key string) string {
	v, ok := r.lookup(key)
	if !ok {
		r.fail(fmt.Errorf("missing %s", key))
	}
	return v
}

func (r *fieldReader) optional(key string) string {
	v, _ := r.lookup(key)
	return v
}

func (r *fieldReader) int64(key string) int64 {
	v := r.required(key)
	if r.err != nil {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		r.fail(fmt.Errorf("parsing %s: %w", key, err))
	}
	return n
}

func (r *fieldReader) optionalInt(key string, fallback int) int {
	v, ok := r.lookup(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(fmt.Errorf("parsing %s: %w", key, err))
		return 0
	}
	if n <= 0 {
		return fallback
	}
	return n
}
