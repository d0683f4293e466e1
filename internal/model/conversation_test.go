package model_test

import (
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/concierge/internal/model"
)

var _ = Describe("Conversation", func() {
	DescribeTable("status terminality",
		func(status model.ConversationStatus, terminal bool) {
			Expect(status.Valid()).To(BeTrue())
			Expect(status.IsTerminal()).To(Equal(terminal))
			c := model.Conversation{Status: status}
			Expect(c.Open()).To(Equal(!terminal))
		},
		Entry("active", model.ConversationStatusActive, false),
		Entry("escalated", model.ConversationStatusEscalated, false),
		Entry("resolved", model.ConversationStatusResolved, true),
		Entry("abandoned", model.ConversationStatusAbandoned, true),
	)

	It("rejects unknown statuses in a change", func() {
		err := model.StatusChange{Status: model.ConversationStatus("closed")}.Validate()
		Expect(errors.Is(err, model.ErrInvalidStatus)).To(BeTrue())
		Expect(model.KindOf(err)).To(Equal(model.ErrorKindValidation))
	})

	DescribeTable("ValidateRating",
		func(rating int, ok bool) {
			err := model.ValidateRating(rating)
			if ok {
				Expect(err).NotTo(HaveOccurred())
			} else {
				Expect(errors.Is(err, model.ErrInvalidRating)).To(BeTrue())
			}
		},
		Entry("below range", 0, false),
		Entry("lowest", 1, true),
		Entry("highest", 5, true),
		Entry("above range", 6, false),
	)

	Describe("DeriveTopic", func() {
		It("is nil without a query", func() {
			Expect(model.DeriveTopic(nil)).To(BeNil())
			blank := "  \n "
			Expect(model.DeriveTopic(&blank)).To(BeNil())
		})

		It("keeps only the first line", func() {
			q := "  Refund for order 123\nI was charged twice."
			Expect(*model.DeriveTopic(&q)).To(Equal("Refund for order 123"))
		})

		It("shortens long queries", func() {
			q := strings.Repeat("é", 200)
			topic := *model.DeriveTopic(&q)
			Expect(topic).To(HaveSuffix("..."))
			Expect([]rune(topic)).To(HaveLen(83))
		})
	})
})
