package llm

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var perMillion = decimal.NewFromInt(1_000_000)

// Pricing is the provider's list price in USD per million tokens.
type Pricing struct {
	InputPerMTok  decimal.Decimal
	OutputPerMTok decimal.Decimal
}

// ParsePricing reads decimal price strings; blank values count as free.
func ParsePricing(input, output string) (Pricing, error) {
	var p Pricing
	var err error
	if input != "" {
		if p.InputPerMTok, err = decimal.NewFromString(input); err != nil {
			return Pricing{}, fmt.Errorf("input price %q: %w", input, err)
		}
	}
	if output != "" {
		if p.OutputPerMTok, err = decimal.NewFromString(output); err != nil {
			return Pricing{}, fmt.Errorf("output price %q: %w", output, err)
		}
	}
	if p.InputPerMTok.IsNegative() || p.OutputPerMTok.IsNegative() {
		return Pricing{}, fmt.Errorf("token prices cannot be negative")
	}
	return p, nil
}

// Cost returns the USD cost of one call, rounded to six decimal places.
func (p Pricing) Cost(promptTokens, completionTokens int) decimal.Decimal {
	in := p.InputPerMTok.Mul(decimal.NewFromInt(int64(promptTokens)))
	out := p.OutputPerMTok.Mul(decimal.NewFromInt(int64(completionTokens)))
	return in.Add(out).Div(perMillion).Round(6)
}
