package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// answerToolName is the single tool Claude is forced to call; its input is
// the structured answer.
const answerToolName = "submit_answer"

type anthropicGenerator struct {
	client    anthropic.Client
	model     string
	maxTokens int
	temp      *float64
	pricing   Pricing
}

func newAnthropicGenerator(cfg Config) Generator {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-5-20250514"
	}

	return &anthropicGenerator{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: cfg.MaxTokens,
		temp:      cfg.Temperature,
		pricing:   cfg.Pricing,
	}
}

func (g *anthropicGenerator) Generate(ctx context.Context, req GenerateRequest) (*Generation, error) {
	maxTokens := firstPositive(req.MaxTokens, g.maxTokens, 1000)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: int64(maxTokens),
		Messages:  g.convertMessages(req.Messages),
		Tools:     []anthropic.ToolUnionParam{answerTool()},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: answerToolName},
		},
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if t := firstTemp(req.Temperature, g.temp); t != nil {
		params.Temperature = anthropic.Float(*t)
	}

	start := time.Now()
	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic generate: %w", err)
	}

	slog.DebugContext(ctx, "llm generation completed",
		"model", g.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"stop_reason", resp.StopReason)

	var raw []byte
	for _, block := range resp.Content {
		if block.Type == "tool_use" && block.Name == answerToolName {
			raw = []byte(block.Input)
			break
		}
	}
	if raw == nil {
		return nil, &answerParseError{err: fmt.Errorf("response has no %s call (stop_reason=%s)", answerToolName, resp.StopReason)}
	}

	answer, confidence, err := ParseAnswer(raw)
	if err != nil {
		return nil, &answerParseError{err: err}
	}

	promptTokens := int(resp.Usage.InputTokens)
	completionTokens := int(resp.Usage.OutputTokens)
	return &Generation{
		Answer:           answer,
		Confidence:       confidence,
		Model:            g.model,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		Cost:             g.pricing.Cost(promptTokens, completionTokens),
	}, nil
}

func (g *anthropicGenerator) Model() string {
	return g.model
}

// convertMessages maps history onto alternating user/assistant turns.
// Anthropic takes the system prompt separately, so system entries are folded
// into the following user message.
func (g *anthropicGenerator) convertMessages(msgs []Message) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(msgs))
	var pendingSystem string

	for _, msg := range msgs {
		switch msg.Role {
		case "system":
			pendingSystem += msg.Content + "\n\n"
		case "user":
			messages = append(messages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(pendingSystem + msg.Content)},
			})
			pendingSystem = ""
		case "assistant":
			messages = append(messages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)},
			})
		}
	}
	return messages
}

func answerTool() anthropic.ToolUnionParam {
	schema := GenerateSchema[answerPayload]()
	return anthropic.ToolUnionParam{
		OfTool: &anthropic.ToolParam{
			Name:        answerToolName,
			Description: anthropic.String("Submit the reply for the customer together with your confidence in it."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Type:       "object",
				Properties: schema.Properties,
			},
		},
	}
}
