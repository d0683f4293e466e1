package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"basegraph.app/concierge/common/id"
	"basegraph.app/concierge/common/llm"
	"basegraph.app/concierge/core/config"
	"basegraph.app/concierge/internal/brain"
	"basegraph.app/concierge/internal/knowledge"
	"basegraph.app/concierge/internal/model"
	"basegraph.app/concierge/internal/store"
)

// chat runs turns against an in-memory store from the terminal. Escalations
// are recorded but no tickets are opened.
func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := id.Init(id.NodeChat); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init ids: %v\n", err)
		os.Exit(1)
	}

	pricing, err := llm.ParsePricing(cfg.GenerationLLM.InputPricePerMTok, cfg.GenerationLLM.OutputPricePerMTok)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid pricing: %v\n", err)
		os.Exit(1)
	}
	generator, err := llm.NewGenerator(llm.Config{
		Provider:    cfg.GenerationLLM.Provider,
		APIKey:      cfg.GenerationLLM.APIKey,
		BaseURL:     cfg.GenerationLLM.BaseURL,
		Model:       cfg.GenerationLLM.Model,
		MaxTokens:   cfg.GenerationLLM.MaxTokens,
		Temperature: llm.Temp(cfg.GenerationLLM.Temperature),
		Pricing:     pricing,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create LLM client: %v\n", err)
		os.Exit(1)
	}

	index, err := knowledge.Open(ctx, cfg.Knowledge)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Knowledge: falling back to bundled FAQ (%v)\n", err)
		if index, err = knowledge.NewStaticIndex(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load bundled FAQ: %v\n", err)
			os.Exit(1)
		}
	}

	conversations := store.NewMemoryConversationStore(nil)
	orchestrator := brain.NewOrchestrator(
		brain.OrchestratorConfig{GenerationTimeout: cfg.Orchestrator.GenerationTimeout},
		conversations,
		brain.NewContextBuilder(conversations, cfg.Orchestrator.MaxContextMessages, cfg.Orchestrator.SummaryThreshold),
		brain.NewKnowledgeRetriever(index, brain.RetrieverConfig{DefaultTopK: cfg.Orchestrator.RetrievalTopK}),
		generator,
		brain.NewEscalationEngine(brain.EscalationConfig{ConfidenceThreshold: cfg.Escalation.ConfidenceThreshold}),
		nil,
	)

	userID := os.Getenv("USER")
	if userID == "" {
		userID = "local"
	}

	fmt.Fprintf(os.Stderr, "\nChat ready (model=%s, knowledge=%s)\n", generator.Model(), index.Name())
	fmt.Fprintln(os.Stderr, "Ask a question (or 'quit' to exit, 'new' to start over):")

	var conversationID *int64
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		text := strings.TrimSpace(scanner.Text())
		switch text {
		case "":
			continue
		case "quit", "exit", "q":
			fmt.Fprintln(os.Stderr, "Goodbye!")
			return
		case "new":
			conversationID = nil
			continue
		}

		result, err := orchestrator.HandleMessage(ctx, model.TurnInput{
			UserID:         userID,
			Message:        text,
			ConversationID: conversationID,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error (%s): %v\n", model.KindOf(err), err)
			continue
		}
		conversationID = &result.ConversationID

		fmt.Println(result.Message)
		fmt.Fprintf(os.Stderr, "--- confidence=%.2f sources=%d", result.Confidence, len(result.Sources))
		if result.NeedsEscalation {
			fmt.Fprintf(os.Stderr, " ESCALATED [%s] %s", result.Priority, result.EscalationReason)
		}
		if result.RetrievalDegraded {
			fmt.Fprint(os.Stderr, " (knowledge unavailable)")
		}
		fmt.Fprintln(os.Stderr)
		fmt.Println()
	}
}
