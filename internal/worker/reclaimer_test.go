package worker_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/concierge/internal/queue"
	"basegraph.app/concierge/internal/worker"
)

var _ = Describe("Reclaimer", func() {
	var (
		ctx       context.Context
		claimer   *mockClaimer
		consumer  *mockConsumer
		processed []string
		r         *worker.Reclaimer
	)

	BeforeEach(func() {
		ctx = context.Background()
		claimer = &mockClaimer{}
		consumer = &mockConsumer{}
		processed = nil
		r = worker.NewReclaimer(claimer, consumer, func(_ context.Context, msg queue.Message) error {
			processed = append(processed, msg.ID)
			return nil
		}, worker.ReclaimerConfig{MinIdle: time.Minute, BatchSize: 5, MaxDeliveries: 3})
	})

	It("passes its idle threshold and batch size to the claimer", func() {
		var gotIdle time.Duration
		var gotCount int64
		claimer.claimFn = func(_ context.Context, minIdle time.Duration, count int64) ([]queue.StaleMessage, error) {
			gotIdle, gotCount = minIdle, count
			return nil, nil
		}

		n, err := r.ReclaimOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(0))
		Expect(gotIdle).To(Equal(time.Minute))
		Expect(gotCount).To(Equal(int64(5)))
	})

	It("reprocesses stale jobs under the delivery limit", func() {
		claimer.claimFn = func(context.Context, time.Duration, int64) ([]queue.StaleMessage, error) {
			return []queue.StaleMessage{
				{Message: ticketMessage("1-0", 1), Deliveries: 1},
				{Message: ticketMessage("2-0", 2), Deliveries: 2},
			}, nil
		}

		n, err := r.ReclaimOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(2))
		Expect(processed).To(Equal([]string{"1-0", "2-0"}))
		Expect(consumer.dlq).To(BeEmpty())
	})

	It("dead-letters jobs that reached the delivery limit", func() {
		claimer.claimFn = func(context.Context, time.Duration, int64) ([]queue.StaleMessage, error) {
			return []queue.StaleMessage{
				{Message: ticketMessage("1-0", 1), Deliveries: 3},
				{Message: ticketMessage("2-0", 1), Deliveries: 1},
			}, nil
		}

		_, err := r.ReclaimOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(consumer.dlq).To(ConsistOf("1-0"))
		Expect(consumer.lastErr).To(ContainSubstring("delivered 3 times"))
		Expect(processed).To(Equal([]string{"2-0"}))
	})

	It("keeps going when the processor fails", func() {
		claimer.claimFn = func(context.Context, time.Duration, int64) ([]queue.StaleMessage, error) {
			return []queue.StaleMessage{
				{Message: ticketMessage("1-0", 1), Deliveries: 1},
				{Message: ticketMessage("2-0", 1), Deliveries: 1},
			}, nil
		}
		r = worker.NewReclaimer(claimer, consumer, func(_ context.Context, msg queue.Message) error {
			processed = append(processed, msg.ID)
			return errors.New("gitlab unavailable")
		}, worker.ReclaimerConfig{MaxDeliveries: 3})

		n, err := r.ReclaimOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(2))
		Expect(processed).To(HaveLen(2))
	})

	It("returns claim errors", func() {
		claimer.claimFn = func(context.Context, time.Duration, int64) ([]queue.StaleMessage, error) {
			return nil, errors.New("connection refused")
		}

		_, err := r.ReclaimOnce(ctx)
		Expect(err).To(MatchError(ContainSubstring("connection refused")))
	})

	It("stops when asked", func() {
		done := make(chan struct{})
		go func() {
			r.Run(ctx)
			close(done)
		}()

		r.Stop()
		Eventually(done).Should(BeClosed())
	})
})
