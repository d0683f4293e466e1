package ticketing_test

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"basegraph.app/concierge/internal/model"
	"basegraph.app/concierge/internal/service/ticketing"
	"basegraph.app/concierge/internal/store"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("InlineDispatcher", func() {
	var (
		ctx           context.Context
		conversations store.ConversationStore
		tickets       *mockTicketing
		conv          *model.Conversation
	)

	BeforeEach(func() {
		ctx = context.Background()
		conversations = store.NewMemoryConversationStore(nil)
		tickets = &mockTicketing{}

		var err error
		conv, err = conversations.Create(ctx, "user-1", nil)
		Expect(err).NotTo(HaveOccurred())
	})

	ticketOf := func() *string {
		c, err := conversations.GetByID(ctx, conv.ID)
		Expect(err).NotTo(HaveOccurred())
		return c.TicketID
	}

	It("creates the ticket in the background", func() {
		d := ticketing.NewInlineDispatcher(ticketing.NewProcessor(tickets, conversations, nil), ticketing.InlineConfig{})

		Expect(d.Dispatch(ctx, model.TicketRequest{ConversationID: conv.ID, UserID: "user-1"})).To(Succeed())
		Expect(d.Close(ctx)).To(Succeed())
		Expect(ticketOf()).To(HaveValue(Equal("TICKET-1")))
	})

	It("retries with backoff until the tracker recovers", func() {
		var attempts atomic.Int32
		tickets.createFn = func(context.Context, model.TicketRequest) (string, error) {
			if attempts.Add(1) < 3 {
				return "", errors.New("temporarily unavailable")
			}
			return "TICKET-9", nil
		}
		d := ticketing.NewInlineDispatcher(ticketing.NewProcessor(tickets, conversations, nil), ticketing.InlineConfig{
			MaxAttempts: 3,
			BaseDelay:   5 * time.Millisecond,
		})

		Expect(d.Dispatch(ctx, model.TicketRequest{ConversationID: conv.ID})).To(Succeed())
		Eventually(ticketOf).Should(HaveValue(Equal("TICKET-9")))
		Expect(attempts.Load()).To(BeEquivalentTo(3))
		Expect(d.Close(ctx)).To(Succeed())
	})

	It("gives up after the configured attempts", func() {
		tickets.createFn = func(context.Context, model.TicketRequest) (string, error) {
			return "", errors.New("down")
		}
		d := ticketing.NewInlineDispatcher(ticketing.NewProcessor(tickets, conversations, nil), ticketing.InlineConfig{
			MaxAttempts: 2,
			BaseDelay:   time.Millisecond,
		})

		Expect(d.Dispatch(ctx, model.TicketRequest{ConversationID: conv.ID})).To(Succeed())
		Eventually(tickets.Calls).Should(Equal(2))
		Expect(d.Close(ctx)).To(Succeed())
		Consistently(tickets.Calls, 20*time.Millisecond).Should(Equal(2))
		Expect(ticketOf()).To(BeNil())
	})

	It("abandons a pending retry when closed", func() {
		tickets.createFn = func(context.Context, model.TicketRequest) (string, error) {
			return "", errors.New("down")
		}
		d := ticketing.NewInlineDispatcher(ticketing.NewProcessor(tickets, conversations, nil), ticketing.InlineConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Hour,
		})

		Expect(d.Dispatch(ctx, model.TicketRequest{ConversationID: conv.ID})).To(Succeed())
		Eventually(tickets.Calls).Should(Equal(1))

		closeCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		Expect(d.Close(closeCtx)).To(Succeed())
		Expect(tickets.Calls()).To(Equal(1))
		Expect(d.Close(closeCtx)).To(Succeed())
	})

	It("survives cancellation of the caller's context", func() {
		d := ticketing.NewInlineDispatcher(ticketing.NewProcessor(tickets, conversations, nil), ticketing.InlineConfig{})
		reqCtx, cancel := context.WithCancel(ctx)

		release := make(chan struct{})
		tickets.createFn = func(ctx context.Context, _ model.TicketRequest) (string, error) {
			<-release
			return "TICKET-2", ctx.Err()
		}

		Expect(d.Dispatch(reqCtx, model.TicketRequest{ConversationID: conv.ID})).To(Succeed())
		cancel()
		close(release)

		Expect(d.Close(ctx)).To(Succeed())
		Expect(ticketOf()).To(HaveValue(Equal("TICKET-2")))
	})

	It("rejects work when full or closed", func() {
		block := make(chan struct{})
		tickets.createFn = func(context.Context, model.TicketRequest) (string, error) {
			<-block
			return "T", nil
		}
		d := ticketing.NewInlineDispatcher(ticketing.NewProcessor(tickets, conversations, nil), ticketing.InlineConfig{MaxConcurrent: 1})

		Expect(d.Dispatch(ctx, model.TicketRequest{ConversationID: conv.ID})).To(Succeed())
		Expect(d.Dispatch(ctx, model.TicketRequest{ConversationID: conv.ID})).To(MatchError(ticketing.ErrDispatcherBusy))

		close(block)
		Expect(d.Close(ctx)).To(Succeed())
		Expect(d.Dispatch(ctx, model.TicketRequest{ConversationID: conv.ID})).To(MatchError(ticketing.ErrDispatcherClosed))
	})
})
