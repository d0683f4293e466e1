package brain_test

import (
	"context"
	"errors"
	"strings"
	"time"

	"basegraph.app/concierge/common/llm"
	"basegraph.app/concierge/internal/brain"
	"basegraph.app/concierge/internal/knowledge"
	"basegraph.app/concierge/internal/model"
	"basegraph.app/concierge/internal/store"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Orchestrator", func() {
	var (
		ctx           context.Context
		conversations store.ConversationStore
		retriever     brain.Retriever
		generator     *mockGenerator
		dispatcher    *mockDispatcher
		cfg           brain.OrchestratorConfig
		escalation    brain.EscalationConfig
	)

	newOrchestrator := func() *brain.Orchestrator {
		return brain.NewOrchestrator(
			cfg,
			conversations,
			brain.NewContextBuilder(conversations, 0, 0),
			retriever,
			generator,
			brain.NewEscalationEngine(escalation),
			dispatcher,
		)
	}

	turn := func(userID, message string, conversationID *int64) model.TurnInput {
		return model.TurnInput{UserID: userID, Message: message, ConversationID: conversationID}
	}

	history := func(conversationID int64) []model.Message {
		msgs, err := conversations.History(ctx, conversationID, 0)
		Expect(err).NotTo(HaveOccurred())
		return msgs
	}

	BeforeEach(func() {
		ctx = context.Background()
		conversations = store.NewMemoryConversationStore(nil)

		idx, err := knowledge.NewStaticIndex()
		Expect(err).NotTo(HaveOccurred())
		retriever = brain.NewKnowledgeRetriever(idx, brain.RetrieverConfig{})

		generator = &mockGenerator{}
		dispatcher = &mockDispatcher{}
		cfg = brain.OrchestratorConfig{
			GenerationTimeout:         time.Second,
			DegradedConfidencePenalty: brain.DefaultDegradedConfidencePenalty,
		}
		escalation = brain.EscalationConfig{}
	})

	Describe("a confident answer", func() {
		It("answers from the knowledge base without escalating", func() {
			generator.generateFn = answering("We are open 9am to 6pm, Monday to Friday.", 0.95)

			result, err := newOrchestrator().HandleMessage(ctx, turn("user-1", "What are the office hours?", nil))
			Expect(err).NotTo(HaveOccurred())

			Expect(result.ConversationID).NotTo(BeZero())
			Expect(result.Message).To(Equal("We are open 9am to 6pm, Monday to Friday."))
			Expect(result.Confidence).To(Equal(0.95))
			Expect(result.NeedsEscalation).To(BeFalse())
			Expect(result.Priority).To(Equal(model.PriorityNormal))
			Expect(result.EscalationReason).To(Equal("handled with sufficient confidence"))
			Expect(result.RetrievalDegraded).To(BeFalse())
			Expect(result.Sources).NotTo(BeEmpty())
			Expect(result.Sources[0].ID).To(Equal("faq-office-hours"))
			Expect(dispatcher.Requests()).To(BeEmpty())
		})

		It("stores the user message and the assistant message with its metadata", func() {
			generator.generateFn = answering("We are open 9am to 6pm.", 0.95)

			result, err := newOrchestrator().HandleMessage(ctx, turn("user-1", "What are the office hours?", nil))
			Expect(err).NotTo(HaveOccurred())

			msgs := history(result.ConversationID)
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[0].Role).To(Equal(model.MessageRoleUser))
			Expect(msgs[0].Content).To(Equal("What are the office hours?"))
			Expect(msgs[0].Assistant).To(BeNil())

			Expect(msgs[1].Role).To(Equal(model.MessageRoleAssistant))
			meta := msgs[1].Assistant
			Expect(meta).NotTo(BeNil())
			Expect(meta.ConfidenceScore).To(Equal(0.95))
			Expect(meta.ModelUsed).To(Equal("test-model"))
			Expect(meta.TokensUsed).To(Equal(120))
			Expect(meta.Cost.String()).To(Equal("0.0006"))
			Expect(meta.SourcesUsed).To(HaveLen(len(result.Sources)))
			Expect(meta.SourcesUsed[0].ID).To(Equal("faq-office-hours"))

			conv, err := conversations.GetByID(ctx, result.ConversationID)
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Status).To(Equal(model.ConversationStatusActive))
			Expect(conv.InitialQuery).To(HaveValue(Equal("What are the office hours?")))
		})

		It("grounds the prompt on the retrieved knowledge and the user's message", func() {
			_, err := newOrchestrator().HandleMessage(ctx, turn("user-1", "What are the office hours?", nil))
			Expect(err).NotTo(HaveOccurred())

			req := generator.LastRequest()
			Expect(req.SystemPrompt).To(ContainSubstring("# Knowledge base"))
			Expect(req.SystemPrompt).To(ContainSubstring("Office hours"))
			Expect(req.Messages).To(HaveLen(1))
			Expect(req.Messages[0]).To(Equal(llm.Message{Role: "user", Name: "user-1", Content: "What are the office hours?"}))
		})
	})

	Describe("escalation", func() {
		It("escalates a low-confidence answer and dispatches a ticket", func() {
			generator.generateFn = answering("I am not sure about that.", 0.5)

			result, err := newOrchestrator().HandleMessage(ctx, turn("user-1", "Can I pay with gold bars?", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.NeedsEscalation).To(BeTrue())
			Expect(result.Priority).To(Equal(model.PriorityNormal))
			Expect(result.EscalationReason).To(ContainSubstring("confidence"))

			conv, err := conversations.GetByID(ctx, result.ConversationID)
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Status).To(Equal(model.ConversationStatusEscalated))
			Expect(conv.Escalated).To(BeTrue())
			Expect(conv.EscalationReason).To(HaveValue(ContainSubstring("confidence")))

			reqs := dispatcher.Requests()
			Expect(reqs).To(HaveLen(1))
			Expect(reqs[0].ConversationID).To(Equal(result.ConversationID))
			Expect(reqs[0].UserID).To(Equal("user-1"))
			Expect(reqs[0].Priority).To(Equal(model.PriorityNormal))
			Expect(reqs[0].Excerpt).To(Equal("Can I pay with gold bars?"))
		})

		It("flags urgent messages even when the answer is confident", func() {
			generator.generateFn = answering("Your refund has been started.", 0.9)

			result, err := newOrchestrator().HandleMessage(ctx, turn("user-1", "URGENT: I need my refund", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.NeedsEscalation).To(BeTrue())
			Expect(result.Priority).To(Equal(model.PriorityUrgent))
			Expect(result.EscalationReason).To(Equal("urgent keyword detected"))
			Expect(dispatcher.Requests()[0].Priority).To(Equal(model.PriorityUrgent))
		})

		DescribeTable("escalates strictly below the threshold",
			func(confidence float64, escalate bool) {
				generator.generateFn = answering("Here you go.", confidence)
				result, err := newOrchestrator().HandleMessage(ctx, turn("user-1", "How do I reset my password?", nil))
				Expect(err).NotTo(HaveOccurred())
				Expect(result.NeedsEscalation).To(Equal(escalate))
			},
			Entry("at the threshold", 0.70, false),
			Entry("just below", 0.6999, true),
		)

		It("keeps the turn when ticket dispatch fails", func() {
			generator.generateFn = answering("Let me get someone.", 0.2)
			dispatcher.dispatchFn = func(context.Context, model.TicketRequest) error {
				return errors.New("redis unavailable")
			}

			result, err := newOrchestrator().HandleMessage(ctx, turn("user-1", "My account is locked", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.NeedsEscalation).To(BeTrue())
			Expect(history(result.ConversationID)).To(HaveLen(2))

			conv, err := conversations.GetByID(ctx, result.ConversationID)
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Status).To(Equal(model.ConversationStatusEscalated))
		})

		It("dispatches under its own deadline", func() {
			generator.generateFn = answering("Let me get someone.", 0.2)
			var hasDeadline bool
			dispatcher.dispatchFn = func(ctx context.Context, _ model.TicketRequest) error {
				_, hasDeadline = ctx.Deadline()
				return ctx.Err()
			}

			_, err := newOrchestrator().HandleMessage(ctx, turn("user-1", "My account is locked", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(hasDeadline).To(BeTrue())
		})

		It("leaves a conversation resolved while the answer was generated", func() {
			conv, err := conversations.Create(ctx, "user-1", nil)
			Expect(err).NotTo(HaveOccurred())
			generator.generateFn = func(ctx context.Context, _ llm.GenerateRequest) (*llm.Generation, error) {
				_, err := conversations.SetStatus(ctx, conv.ID, model.StatusChange{Status: model.ConversationStatusResolved})
				Expect(err).NotTo(HaveOccurred())
				return answer("Let me get someone.", 0.3), nil
			}

			result, err := newOrchestrator().HandleMessage(ctx, turn("user-1", "My account is locked", &conv.ID))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.ConversationID).To(Equal(conv.ID))
			Expect(dispatcher.Requests()).To(BeEmpty())

			ended, err := conversations.GetByID(ctx, conv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ended.Status).To(Equal(model.ConversationStatusResolved))
			Expect(ended.EndedAt).NotTo(BeNil())
			Expect(ended.EscalationReason).To(BeNil())
		})

		It("fails the turn when the escalation cannot be recorded", func() {
			generator.generateFn = answering("Let me get someone.", 0.2)
			conversations = &faultyStore{
				ConversationStore: conversations,
				setStatusErr:      model.NewStorageError("set_status", errors.New("disk full")),
			}

			_, err := newOrchestrator().HandleMessage(ctx, turn("user-1", "My account is locked", nil))
			Expect(model.KindOf(err)).To(Equal(model.ErrorKindStorage))
			Expect(dispatcher.Requests()).To(BeEmpty())
		})

		It("can suppress repeat escalations of an escalated conversation", func() {
			escalation.SkipWhenAlreadyEscalated = true
			generator.generateFn = answering("Not sure.", 0.3)
			o := newOrchestrator()

			first, err := o.HandleMessage(ctx, turn("user-1", "Question one", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(first.NeedsEscalation).To(BeTrue())

			second, err := o.HandleMessage(ctx, turn("user-1", "Question two", &first.ConversationID))
			Expect(err).NotTo(HaveOccurred())
			Expect(second.ConversationID).To(Equal(first.ConversationID))
			Expect(second.NeedsEscalation).To(BeFalse())
			Expect(second.EscalationReason).To(Equal("already escalated"))
			Expect(dispatcher.Requests()).To(HaveLen(1))
		})
	})

	Describe("retrieval outage", func() {
		BeforeEach(func() {
			retriever = &mockRetriever{searchFn: func(context.Context, string, int) ([]model.KnowledgeSnippet, error) {
				return nil, model.NewRetrievalError("knowledge_search", errors.New("typesense: connection refused"))
			}}
		})

		It("answers without sources and lowers confidence", func() {
			generator.generateFn = answering("We are usually open on weekdays.", 0.95)

			result, err := newOrchestrator().HandleMessage(ctx, turn("user-1", "What are the office hours?", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Sources).NotTo(BeNil())
			Expect(result.Sources).To(BeEmpty())
			Expect(result.RetrievalDegraded).To(BeTrue())
			Expect(result.Confidence).To(BeNumerically("~", 0.80, 1e-9))
			Expect(result.NeedsEscalation).To(BeFalse())

			msgs := history(result.ConversationID)
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[1].Assistant.SourcesUsed).To(BeEmpty())
		})

		It("can push a borderline answer into escalation", func() {
			generator.generateFn = answering("Probably weekdays.", 0.8)

			result, err := newOrchestrator().HandleMessage(ctx, turn("user-1", "What are the office hours?", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.NeedsEscalation).To(BeTrue())
			Expect(result.EscalationReason).To(ContainSubstring("low confidence"))
		})
	})

	Describe("generation failures", func() {
		It("aborts on timeout and keeps only the user message", func() {
			cfg.GenerationTimeout = 50 * time.Millisecond
			generator.generateFn = func(ctx context.Context, _ llm.GenerateRequest) (*llm.Generation, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}
			o := newOrchestrator()

			_, err := o.HandleMessage(ctx, turn("user-1", "What are the office hours?", nil))
			Expect(model.KindOf(err)).To(Equal(model.ErrorKindGeneration))
			Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())

			convs, err := conversations.ListByUser(ctx, "user-1", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(convs).To(HaveLen(1))
			msgs := history(convs[0].ID)
			Expect(msgs).To(HaveLen(1))
			Expect(msgs[0].Role).To(Equal(model.MessageRoleUser))
			Expect(dispatcher.Requests()).To(BeEmpty())
		})

		It("retries a transient failure", func() {
			cfg.GenerationRetries = 1
			generator.generateFn = func(context.Context, llm.GenerateRequest) (*llm.Generation, error) {
				if generator.calls.Load() == 1 {
					return nil, errors.New("connection reset by peer")
				}
				return answer("Recovered.", 0.9), nil
			}

			result, err := newOrchestrator().HandleMessage(ctx, turn("user-1", "Hello there", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Message).To(Equal("Recovered."))
			Expect(generator.calls.Load()).To(BeEquivalentTo(2))
		})

		It("does not retry non-retryable failures", func() {
			cfg.GenerationRetries = 3
			generator.generateFn = func(context.Context, llm.GenerateRequest) (*llm.Generation, error) {
				return nil, context.Canceled
			}

			_, err := newOrchestrator().HandleMessage(ctx, turn("user-1", "Hello there", nil))
			Expect(model.KindOf(err)).To(Equal(model.ErrorKindGeneration))
			Expect(generator.calls.Load()).To(BeEquivalentTo(1))
		})
	})

	Describe("conversation handling", func() {
		It("continues an existing conversation with its history", func() {
			o := newOrchestrator()
			first, err := o.HandleMessage(ctx, turn("user-1", "What are the office hours?", nil))
			Expect(err).NotTo(HaveOccurred())

			second, err := o.HandleMessage(ctx, turn("user-1", "And on weekends?", &first.ConversationID))
			Expect(err).NotTo(HaveOccurred())
			Expect(second.ConversationID).To(Equal(first.ConversationID))
			Expect(history(first.ConversationID)).To(HaveLen(4))

			req := generator.LastRequest()
			Expect(req.Messages).To(HaveLen(3))
			Expect(req.Messages[2].Content).To(Equal("And on weekends?"))
		})

		It("summarises long conversations in the prompt", func() {
			o := newOrchestrator()
			first, err := o.HandleMessage(ctx, turn("user-1", "What are the office hours?", nil))
			Expect(err).NotTo(HaveOccurred())
			for i := 0; i < 5; i++ {
				_, err = o.HandleMessage(ctx, turn("user-1", "One more thing", &first.ConversationID))
				Expect(err).NotTo(HaveOccurred())
			}

			req := generator.LastRequest()
			Expect(req.Messages).To(HaveLen(10))
			Expect(req.SystemPrompt).To(ContainSubstring("Earlier context: conversation about What are the office hours?"))
		})

		It("reports an unknown conversation as not found without side effects", func() {
			missing := int64(123456789)
			_, err := newOrchestrator().HandleMessage(ctx, turn("user-1", "Hello", &missing))
			Expect(model.KindOf(err)).To(Equal(model.ErrorKindNotFound))
			Expect(generator.calls.Load()).To(BeZero())

			convs, err := conversations.ListByUser(ctx, "user-1", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(convs).To(BeEmpty())
		})

		It("hides other users' conversations", func() {
			o := newOrchestrator()
			first, err := o.HandleMessage(ctx, turn("user-1", "Hello", nil))
			Expect(err).NotTo(HaveOccurred())

			_, err = o.HandleMessage(ctx, turn("user-2", "Let me in", &first.ConversationID))
			Expect(model.KindOf(err)).To(Equal(model.ErrorKindNotFound))
			Expect(history(first.ConversationID)).To(HaveLen(2))
		})

		It("starts a new conversation when the given one has ended", func() {
			o := newOrchestrator()
			first, err := o.HandleMessage(ctx, turn("user-1", "Hello", nil))
			Expect(err).NotTo(HaveOccurred())
			_, err = conversations.SetStatus(ctx, first.ConversationID, model.StatusChange{Status: model.ConversationStatusResolved})
			Expect(err).NotTo(HaveOccurred())

			second, err := o.HandleMessage(ctx, turn("user-1", "New question", &first.ConversationID))
			Expect(err).NotTo(HaveOccurred())
			Expect(second.ConversationID).NotTo(Equal(first.ConversationID))

			old, err := conversations.GetByID(ctx, first.ConversationID)
			Expect(err).NotTo(HaveOccurred())
			Expect(old.Status).To(Equal(model.ConversationStatusResolved))
			Expect(old.MessageCount).To(Equal(2))
			Expect(history(second.ConversationID)).To(HaveLen(2))
		})

		It("treats a failed context build as a storage error", func() {
			conversations = &faultyStore{
				ConversationStore: conversations,
				historyErr:        errors.New("connection lost"),
			}

			_, err := newOrchestrator().HandleMessage(ctx, turn("user-1", "Hello", nil))
			Expect(model.KindOf(err)).To(Equal(model.ErrorKindStorage))
			Expect(generator.calls.Load()).To(BeZero())
		})

		It("surfaces a failure to start a conversation as a storage error", func() {
			conversations = &faultyStore{
				ConversationStore: conversations,
				createErr:         model.NewStorageError("create_conversation", errors.New("pool exhausted")),
			}

			_, err := newOrchestrator().HandleMessage(ctx, turn("user-1", "Hello", nil))
			Expect(model.KindOf(err)).To(Equal(model.ErrorKindStorage))
		})
	})

	Describe("validation", func() {
		DescribeTable("rejects bad input before any side effect",
			func(userID, message string) {
				_, err := newOrchestrator().HandleMessage(ctx, turn(userID, message, nil))
				Expect(model.KindOf(err)).To(Equal(model.ErrorKindValidation))
				Expect(generator.calls.Load()).To(BeZero())

				stats, err := conversations.Statistics(ctx, nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(stats.TotalConversations).To(BeZero())
			},
			Entry("blank user", "  ", "Hello"),
			Entry("blank message", "user-1", " \n\t "),
			Entry("message over the limit", "user-1", strings.Repeat("é", brain.MaxMessageRunes+1)),
		)

		It("accepts a message exactly at the limit", func() {
			_, err := newOrchestrator().HandleMessage(ctx, turn("user-1", strings.Repeat("é", brain.MaxMessageRunes), nil))
			Expect(err).NotTo(HaveOccurred())
		})
	})
})
