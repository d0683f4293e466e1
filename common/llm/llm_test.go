package llm_test

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/shopspring/decimal"

	"basegraph.app/concierge/common/llm"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("SanitizeName", func() {
	DescribeTable("sanitizes user ids for OpenAI name parameter",
		func(input, expected string) {
			Expect(llm.SanitizeName(input)).To(Equal(expected))
		},
		Entry("valid name unchanged", "alice", "alice"),
		Entry("dots replaced with underscore", "alice.smith", "alice_smith"),
		Entry("@ replaced with underscore", "alice@dev", "alice_dev"),
		Entry("hyphens preserved", "alice-dev", "alice-dev"),
		Entry("multiple special chars replaced", "alice.smith@dev!", "alice_smith_dev_"),
		Entry("long name truncated to 64 chars", strings.Repeat("a", 100), strings.Repeat("a", 64)),
		Entry("empty string unchanged", "", ""),
	)
})

var _ = Describe("ParseAnswer", func() {
	It("decodes answer and confidence", func() {
		answer, confidence, err := llm.ParseAnswer([]byte(`{"answer":" We open at 9am. ","confidence":0.92}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(answer).To(Equal("We open at 9am."))
		Expect(confidence).To(BeNumerically("~", 0.92, 1e-9))
	})

	DescribeTable("clamps confidence into [0,1]",
		func(raw string, expected float64) {
			_, confidence, err := llm.ParseAnswer([]byte(fmt.Sprintf(`{"answer":"ok","confidence":%s}`, raw)))
			Expect(err).NotTo(HaveOccurred())
			Expect(confidence).To(Equal(expected))
		},
		Entry("negative", "-0.4", 0.0),
		Entry("above one", "1.7", 1.0),
		Entry("exact bound", "1", 1.0),
	)

	It("rejects a blank answer", func() {
		_, _, err := llm.ParseAnswer([]byte(`{"answer":"   ","confidence":0.9}`))
		Expect(err).To(MatchError(llm.ErrEmptyAnswer))
	})

	It("rejects malformed JSON", func() {
		_, _, err := llm.ParseAnswer([]byte(`not json`))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Pricing", func() {
	It("charges per million tokens", func() {
		p, err := llm.ParsePricing("3", "15")
		Expect(err).NotTo(HaveOccurred())
		cost := p.Cost(1000, 500)
		Expect(cost.Equal(decimal.RequireFromString("0.0105"))).To(BeTrue(), cost.String())
	})

	It("treats blank prices as free", func() {
		p, err := llm.ParsePricing("", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Cost(123456, 7890).IsZero()).To(BeTrue())
	})

	It("rejects garbage and negative prices", func() {
		_, err := llm.ParsePricing("abc", "1")
		Expect(err).To(HaveOccurred())
		_, err = llm.ParsePricing("-1", "1")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("NewGenerator", func() {
	It("requires an API key", func() {
		_, err := llm.NewGenerator(llm.Config{Provider: llm.ProviderOpenAI})
		Expect(err).To(HaveOccurred())
	})

	It("rejects unknown providers", func() {
		_, err := llm.NewGenerator(llm.Config{Provider: "bard", APIKey: "k"})
		Expect(err).To(MatchError(ContainSubstring("unsupported LLM provider")))
	})

	DescribeTable("applies provider default models",
		func(provider, expected string) {
			g, err := llm.NewGenerator(llm.Config{Provider: provider, APIKey: "k"})
			Expect(err).NotTo(HaveOccurred())
			Expect(g.Model()).To(Equal(expected))
		},
		Entry("openai by default", "", "gpt-4o-mini"),
		Entry("anthropic", llm.ProviderAnthropic, "claude-sonnet-4-5-20250514"),
	)
})

var _ = Describe("IsRetryable", func() {
	ctx := context.Background()

	It("never retries cancellation", func() {
		Expect(llm.IsRetryable(ctx, context.Canceled)).To(BeFalse())
		Expect(llm.IsRetryable(ctx, fmt.Errorf("wrapped: %w", context.DeadlineExceeded))).To(BeFalse())
	})

	DescribeTable("classifies provider status codes",
		func(status int, expected bool) {
			Expect(llm.IsRetryable(ctx, &openai.Error{StatusCode: status})).To(Equal(expected))
		},
		Entry("rate limited", 429, true),
		Entry("server error", 503, true),
		Entry("bad request", 400, false),
		Entry("unauthorized", 401, false),
	)

	It("retries transport failures and empty answers", func() {
		Expect(llm.IsRetryable(ctx, errors.New("connection reset by peer"))).To(BeTrue())
		Expect(llm.IsRetryable(ctx, llm.ErrEmptyAnswer)).To(BeTrue())
	})

	It("ignores nil", func() {
		Expect(llm.IsRetryable(ctx, nil)).To(BeFalse())
	})
})
