package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/shopspring/decimal"
)

var nameInvalidChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Provider constants for LLM provider selection.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

var ErrEmptyAnswer = errors.New("model returned an empty answer")

// Config holds LLM client configuration.
type Config struct {
	Provider    string   // "openai" or "anthropic"
	APIKey      string   // Required: API key for the provider
	BaseURL     string   // Optional: custom API endpoint
	Model       string   // Model name (e.g., "gpt-4o-mini", "claude-sonnet-4-5-20250514")
	MaxTokens   int      // Default completion budget when a request does not set one
	Temperature *float64 // nil = model default
	Pricing     Pricing
}

// Generator produces a grounded support answer together with the model's
// own confidence in it.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Generation, error)
	Model() string
}

type GenerateRequest struct {
	SystemPrompt string
	Messages     []Message
	MaxTokens    int
	Temperature  *float64
}

// Message represents a conversation message.
type Message struct {
	Role    string // "user" or "assistant"
	Name    string // Optional: participant name (user messages only)
	Content string
}

type Generation struct {
	Answer           string
	Confidence       float64
	Model            string
	PromptTokens     int
	CompletionTokens int
	Cost             decimal.Decimal
}

func (g *Generation) TotalTokens() int {
	return g.PromptTokens + g.CompletionTokens
}

// answerPayload is the structured output every provider is asked for.
type answerPayload struct {
	Answer     string  `json:"answer" jsonschema:"description=The reply shown to the customer"`
	Confidence float64 `json:"confidence" jsonschema:"minimum=0,maximum=1,description=How certain you are that the answer is correct and fully grounded in the provided knowledge (0 to 1)"`
}

// NewGenerator creates a Generator for cfg.Provider. Defaults to OpenAI if no
// provider is specified.
func NewGenerator(cfg Config) (Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	provider := cfg.Provider
	if provider == "" {
		provider = ProviderOpenAI
	}

	switch provider {
	case ProviderOpenAI:
		return newOpenAIGenerator(cfg), nil
	case ProviderAnthropic:
		return newAnthropicGenerator(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

// ParseAnswer decodes the structured answer payload. Confidence is clamped to
// [0,1]; NaN becomes 0.
func ParseAnswer(raw []byte) (answer string, confidence float64, err error) {
	var p answerPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", 0, fmt.Errorf("parse answer: %w", err)
	}
	if strings.TrimSpace(p.Answer) == "" {
		return "", 0, ErrEmptyAnswer
	}
	return strings.TrimSpace(p.Answer), clampConfidence(p.Confidence), nil
}

func clampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c) || c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

func Temp(t float64) *float64 {
	return &t
}

// SanitizeName converts a user id to a valid OpenAI name parameter.
// The name must match ^[a-zA-Z0-9_-]{1,64}$.
// Invalid characters are replaced with underscores, and the result is truncated to 64 characters.
func SanitizeName(username string) string {
	sanitized := nameInvalidChars.ReplaceAllString(username, "_")
	if len(sanitized) > 64 {
		sanitized = sanitized[:64]
	}
	return sanitized
}
