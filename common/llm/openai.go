package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type openaiGenerator struct {
	client    openai.Client
	model     string
	maxTokens int
	temp      *float64
	pricing   Pricing
}

func newOpenAIGenerator(cfg Config) Generator {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &openaiGenerator{
		client:    openai.NewClient(opts...),
		model:     model,
		maxTokens: cfg.MaxTokens,
		temp:      cfg.Temperature,
		pricing:   cfg.Pricing,
	}
}

func (g *openaiGenerator) Generate(ctx context.Context, req GenerateRequest) (*Generation, error) {
	maxTokens := firstPositive(req.MaxTokens, g.maxTokens, 1000)

	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "support_answer",
		Description: openai.String("Customer-facing answer with a self-assessed confidence"),
		Schema:      GenerateSchema[answerPayload](),
		Strict:      openai.Bool(true),
	}

	params := openai.ChatCompletionNewParams{
		Model:               g.model,
		Messages:            g.convertMessages(req),
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: schemaParam,
			},
		},
	}
	if t := firstTemp(req.Temperature, g.temp); t != nil {
		params.Temperature = openai.Float(*t)
	}

	start := time.Now()
	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai generate: %w", err)
	}

	slog.DebugContext(ctx, "llm generation completed",
		"model", g.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	answer, confidence, err := ParseAnswer([]byte(resp.Choices[0].Message.Content))
	if err != nil {
		return nil, &answerParseError{err: err}
	}

	promptTokens := int(resp.Usage.PromptTokens)
	completionTokens := int(resp.Usage.CompletionTokens)
	return &Generation{
		Answer:           answer,
		Confidence:       confidence,
		Model:            g.model,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		Cost:             g.pricing.Cost(promptTokens, completionTokens),
	}, nil
}

func (g *openaiGenerator) Model() string {
	return g.model
}

func (g *openaiGenerator) convertMessages(req GenerateRequest) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case "user":
			if msg.Name != "" {
				messages = append(messages, openai.ChatCompletionMessageParamUnion{
					OfUser: &openai.ChatCompletionUserMessageParam{
						Content: openai.ChatCompletionUserMessageParamContentUnion{
							OfString: openai.String(msg.Content),
						},
						Name: openai.String(SanitizeName(msg.Name)),
					},
				})
			} else {
				messages = append(messages, openai.UserMessage(msg.Content))
			}
		case "assistant":
			messages = append(messages, openai.AssistantMessage(msg.Content))
		case "system":
			messages = append(messages, openai.SystemMessage(msg.Content))
		}
	}
	return messages
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstTemp(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
