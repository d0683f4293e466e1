package queue_test

import (
	"github.com/redis/go-redis/v9"

	"basegraph.app/concierge/internal/model"
	"basegraph.app/concierge/internal/queue"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ParseMessage", func() {
	// Redis hands every stream field back as a string.
	values := func(overrides map[string]any) map[string]any {
		v := map[string]any{
			"task_type":       "escalation_ticket",
			"conversation_id": "1790000000000000001",
			"user_id":         "user-42",
			"reason":          "low confidence (<0.70)",
			"priority":        "urgent",
			"excerpt":         "my card was charged twice",
			"trace_id":        "4bf92f3577b34da6a3ce929d0e0e4736",
			"span_id":         "00f067aa0ba902b7",
			"attempt":         "2",
		}
		for k, val := range overrides {
			if val == nil {
				delete(v, k)
				continue
			}
			v[k] = val
		}
		return v
	}

	It("decodes an escalation ticket job", func() {
		msg, err := queue.ParseMessage(redis.XMessage{ID: "1-0", Values: values(nil)})
		Expect(err).NotTo(HaveOccurred())

		Expect(msg.ID).To(Equal("1-0"))
		Expect(msg.TaskType).To(Equal(queue.TaskTypeEscalationTicket))
		Expect(msg.Attempt).To(Equal(2))
		Expect(msg.Ticket).To(Equal(model.TicketRequest{
			ConversationID: 1790000000000000001,
			UserID:         "user-42",
			Reason:         "low confidence (<0.70)",
			Priority:       model.PriorityUrgent,
			Excerpt:        "my card was charged twice",
			TraceID:        "4bf92f3577b34da6a3ce929d0e0e4736",
			SpanID:         "00f067aa0ba902b7",
		}))
	})

	It("defaults attempt and priority", func() {
		msg, err := queue.ParseMessage(redis.XMessage{ID: "1-0", Values: values(map[string]any{
			"attempt":  nil,
			"priority": nil,
		})})
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.Attempt).To(Equal(1))
		Expect(msg.Ticket.Priority).To(Equal(model.PriorityNormal))
	})

	DescribeTable("rejects malformed jobs",
		func(overrides map[string]any) {
			_, err := queue.ParseMessage(redis.XMessage{ID: "1-0", Values: values(overrides)})
			Expect(err).To(HaveOccurred())
		},
		Entry("unknown task type", map[string]any{"task_type": "repo_sync"}),
		Entry("missing task type", map[string]any{"task_type": nil}),
		Entry("missing conversation", map[string]any{"conversation_id": nil}),
		Entry("non-numeric conversation", map[string]any{"conversation_id": "abc"}),
		Entry("missing user", map[string]any{"user_id": nil}),
		Entry("missing reason", map[string]any{"reason": nil}),
		Entry("unknown priority", map[string]any{"priority": "critical"}),
		Entry("non-numeric attempt", map[string]any{"attempt": "two"}),
	)
})
