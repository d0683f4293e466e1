package brain

import (
	"fmt"
	"strings"

	"basegraph.app/concierge/common/llm"
	"basegraph.app/concierge/common/logger"
	"basegraph.app/concierge/internal/model"
)

const systemPrompt = `You are a customer support assistant.

Answer the customer's latest message using the knowledge base excerpts below.
- Only state facts that are supported by the excerpts or the conversation.
- If the excerpts do not cover the question, say so plainly and offer to connect the customer with a human agent.
- Keep answers short and friendly. Do not mention "excerpts" or internal document ids.

Report a confidence between 0 and 1:
- 0.9 or above: the answer is directly stated in the excerpts.
- around 0.7: the answer is inferred from related material.
- below 0.5: you are guessing or the knowledge base has nothing relevant.`

const maxSnippetRunes = 1500

// buildGenerateRequest renders the system prompt (summary and knowledge) and
// maps the context window onto provider messages.
func buildGenerateRequest(userID string, window model.ContextWindow, snippets []model.KnowledgeSnippet) llm.GenerateRequest {
	var sb strings.Builder
	sb.WriteString(systemPrompt)

	if window.Summary != "" {
		sb.WriteString("\n\n# Conversation so far\n")
		sb.WriteString(window.Summary)
	}

	sb.WriteString("\n\n# Knowledge base\n")
	if len(snippets) == 0 {
		sb.WriteString("No relevant knowledge base entries were found.\n")
	}
	for i, s := range snippets {
		title := s.Metadata.Title
		if title == "" {
			title = s.ID
		}
		fmt.Fprintf(&sb, "\n## [%d] %s\n%s\n", i+1, title, logger.Truncate(s.Content, maxSnippetRunes))
	}

	messages := make([]llm.Message, 0, len(window.Messages))
	for _, m := range window.Messages {
		msg := llm.Message{Role: string(m.Role), Content: m.Content}
		if m.Role == model.MessageRoleUser {
			msg.Name = userID
		}
		messages = append(messages, msg)
	}

	return llm.GenerateRequest{
		SystemPrompt: sb.String(),
		Messages:     messages,
	}
}
