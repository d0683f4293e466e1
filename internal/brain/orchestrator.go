package brain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"basegraph.app/concierge/common/llm"
	"basegraph.app/concierge/common/logger"
	"basegraph.app/concierge/internal/model"
	"basegraph.app/concierge/internal/store"
)

const (
	MaxMessageRunes = 8000

	DefaultGenerationTimeout         = 30 * time.Second
	DefaultDegradedConfidencePenalty = 0.15

	dispatchTimeout = 10 * time.Second
	excerptRunes    = 500
)

var (
	ErrEmptyUserID  = errors.New("user id is required")
	ErrEmptyMessage = errors.New("message is required")
	ErrMessageLong  = fmt.Errorf("message exceeds %d characters", MaxMessageRunes)
)

// TicketDispatcher hands an escalation to the ticketing side. Dispatch must
// not block on ticket creation itself.
type TicketDispatcher interface {
	Dispatch(ctx context.Context, req model.TicketRequest) error
}

type OrchestratorConfig struct {
	RetrievalTopK             int
	GenerationTimeout         time.Duration
	GenerationRetries         int
	MaxConcurrentGenerations  int64
	DegradedConfidencePenalty float64
}

// Orchestrator runs one conversational turn end to end.
type Orchestrator struct {
	cfg            OrchestratorConfig
	conversations  store.ConversationStore
	contextBuilder *ContextBuilder
	retriever      Retriever
	generator      llm.Generator
	escalation     *EscalationEngine
	tickets        TicketDispatcher
	generations    *Limiter
	metrics        *turnMetrics
}

func NewOrchestrator(
	cfg OrchestratorConfig,
	conversations store.ConversationStore,
	contextBuilder *ContextBuilder,
	retriever Retriever,
	generator llm.Generator,
	escalation *EscalationEngine,
	tickets TicketDispatcher,
) *Orchestrator {
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = DefaultGenerationTimeout
	}
	if cfg.RetrievalTopK <= 0 {
		cfg.RetrievalTopK = DefaultRetrievalTopK
	}
	if cfg.GenerationRetries < 0 {
		cfg.GenerationRetries = 0
	}

	slog.InfoContext(context.Background(), "orchestrator initialized",
		"model", generator.Model(),
		"generation_timeout", cfg.GenerationTimeout.String(),
		"escalation_threshold", escalation.Threshold())

	return &Orchestrator{
		cfg:            cfg,
		conversations:  conversations,
		contextBuilder: contextBuilder,
		retriever:      retriever,
		generator:      generator,
		escalation:     escalation,
		tickets:        tickets,
		generations:    NewLimiter(cfg.MaxConcurrentGenerations),
		metrics:        newTurnMetrics(),
	}
}

// HandleMessage records the user's message, answers it from the knowledge
// base and escalates to a human when needed.
//
// Retrieval failures degrade the answer instead of failing the turn. A
// generation failure fails the turn after the user message is stored, and no
// assistant message is written. Store failures are always fatal.
func (o *Orchestrator) HandleMessage(ctx context.Context, in model.TurnInput) (*model.TurnResult, error) {
	sc := logger.StartSpan(ctx, "brain.handle_message")
	defer sc.End()
	ctx = logger.WithLogFields(sc.Context(), logger.LogFields{
		UserID:    &in.UserID,
		Component: "concierge.brain.orchestrator",
	})

	started := time.Now()
	result, err := o.handle(ctx, in)
	o.metrics.record(ctx, started, result, err)
	if err != nil {
		sc.RecordError(err)
		return nil, err
	}
	sc.SetAttributes(
		attribute.Int64("conversation_id", result.ConversationID),
		attribute.Bool("needs_escalation", result.NeedsEscalation),
		attribute.Bool("retrieval_degraded", result.RetrievalDegraded),
	)
	return result, nil
}

func (o *Orchestrator) handle(ctx context.Context, in model.TurnInput) (*model.TurnResult, error) {
	if err := validateTurn(in); err != nil {
		slog.WarnContext(logger.WithStep(ctx, "validate"), "turn rejected", "error", err)
		return nil, err
	}

	conv, err := o.resolveConversation(ctx, in)
	if err != nil {
		slog.ErrorContext(logger.WithStep(ctx, "resolve_conversation"), "resolving conversation failed", "error", err)
		return nil, err
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{ConversationID: &conv.ID})

	stepCtx := logger.WithStep(ctx, "append_user_message")
	if _, err := o.conversations.AppendMessage(stepCtx, conv.ID, model.NewMessage{
		Role:    model.MessageRoleUser,
		Content: in.Message,
	}); err != nil {
		slog.ErrorContext(stepCtx, "storing user message failed", "error", err)
		return nil, model.WrapStoreError("append_user_message", err)
	}

	window, snippets, degraded, err := o.gather(logger.WithStep(ctx, "gather_context"), conv.ID, in.Message)
	if err != nil {
		return nil, err
	}

	stepCtx = logger.WithStep(ctx, "generate")
	gen, err := o.generate(stepCtx, buildGenerateRequest(in.UserID, window, snippets))
	if err != nil {
		slog.ErrorContext(stepCtx, "generation failed, turn aborted", "error", err)
		return nil, err
	}
	o.metrics.addTokens(ctx, gen.Model, gen.TotalTokens())

	confidence := gen.Confidence
	if degraded {
		confidence = math.Max(0, confidence-o.cfg.DegradedConfidencePenalty)
	}

	verdict := o.escalation.Evaluate(in.Message, confidence, conv.Escalated)
	slog.InfoContext(logger.WithStep(ctx, "evaluate_escalation"), "escalation evaluated",
		"confidence", confidence,
		"should_escalate", verdict.ShouldEscalate,
		"priority", verdict.Priority,
		"reason", verdict.Reason)

	stepCtx = logger.WithStep(ctx, "append_assistant_message")
	if _, err := o.conversations.AppendMessage(stepCtx, conv.ID, model.NewMessage{
		Role:    model.MessageRoleAssistant,
		Content: gen.Answer,
		Assistant: &model.AssistantMetadata{
			ConfidenceScore: confidence,
			SourcesUsed:     model.SourceRefsFromSnippets(snippets),
			ModelUsed:       gen.Model,
			TokensUsed:      gen.TotalTokens(),
			Cost:            gen.Cost,
		},
	}); err != nil {
		slog.ErrorContext(stepCtx, "storing assistant message failed", "error", err)
		return nil, model.WrapStoreError("append_assistant_message", err)
	}

	if verdict.ShouldEscalate {
		if err := o.escalate(logger.WithStep(ctx, "escalate"), conv, in, verdict); err != nil {
			return nil, err
		}
	}

	return &model.TurnResult{
		ConversationID:    conv.ID,
		Message:           gen.Answer,
		Confidence:        confidence,
		Sources:           snippets,
		NeedsEscalation:   verdict.ShouldEscalate,
		Priority:          verdict.Priority,
		EscalationReason:  verdict.Reason,
		RetrievalDegraded: degraded,
	}, nil
}

func validateTurn(in model.TurnInput) error {
	switch {
	case strings.TrimSpace(in.UserID) == "":
		return model.NewValidationError("handle_message", ErrEmptyUserID)
	case strings.TrimSpace(in.Message) == "":
		return model.NewValidationError("handle_message", ErrEmptyMessage)
	case utf8.RuneCountInString(in.Message) > MaxMessageRunes:
		return model.NewValidationError("handle_message", ErrMessageLong)
	}
	return nil
}

// resolveConversation loads the caller's conversation, or starts a new one
// when none was given or the given one has ended. Someone else's
// conversation is reported as not found.
func (o *Orchestrator) resolveConversation(ctx context.Context, in model.TurnInput) (*model.Conversation, error) {
	if in.ConversationID != nil {
		conv, err := o.conversations.GetByID(ctx, *in.ConversationID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, model.NewNotFoundError("handle_message", fmt.Errorf("conversation %d: %w", *in.ConversationID, store.ErrNotFound))
			}
			return nil, model.WrapStoreError("get_conversation", err)
		}
		if conv.UserID != in.UserID {
			return nil, model.NewNotFoundError("handle_message", fmt.Errorf("conversation %d: %w", *in.ConversationID, store.ErrNotFound))
		}
		if conv.Open() {
			return conv, nil
		}
		slog.InfoContext(ctx, "conversation has ended, starting a new one",
			"previous_conversation_id", conv.ID,
			"previous_status", conv.Status)
	}

	query := in.Message
	conv, err := o.conversations.Create(ctx, in.UserID, &query)
	if err != nil {
		return nil, model.WrapStoreError("create_conversation", err)
	}
	slog.InfoContext(ctx, "conversation started", "conversation_id", conv.ID)
	return conv, nil
}

// gather builds the context window and searches the knowledge base in
// parallel. Retrieval problems degrade to no snippets; a context failure is
// fatal.
func (o *Orchestrator) gather(ctx context.Context, conversationID int64, query string) (model.ContextWindow, []model.KnowledgeSnippet, bool, error) {
	var (
		wg           sync.WaitGroup
		window       model.ContextWindow
		windowErr    error
		snippets     []model.KnowledgeSnippet
		retrievalErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		window, windowErr = o.contextBuilder.Build(ctx, conversationID)
	}()
	go func() {
		defer wg.Done()
		snippets, retrievalErr = o.retriever.Search(ctx, query, o.cfg.RetrievalTopK)
	}()
	wg.Wait()

	if windowErr != nil {
		slog.ErrorContext(ctx, "building context window failed", "error", windowErr)
		return model.ContextWindow{}, nil, false, model.WrapStoreError("build_context", windowErr)
	}

	degraded := false
	if retrievalErr != nil {
		slog.WarnContext(ctx, "knowledge retrieval failed, continuing without grounding", "error", retrievalErr)
		snippets = []model.KnowledgeSnippet{}
		degraded = true
	}
	if snippets == nil {
		snippets = []model.KnowledgeSnippet{}
	}

	slog.DebugContext(ctx, "context gathered",
		"window_messages", len(window.Messages),
		"has_summary", window.Summary != "",
		"snippets", len(snippets),
		"retrieval_degraded", degraded)

	return window, snippets, degraded, nil
}

// generate calls the model under the generation deadline, retrying
// retryable failures within that same deadline.
func (o *Orchestrator) generate(ctx context.Context, req llm.GenerateRequest) (*llm.Generation, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.GenerationTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= o.cfg.GenerationRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * 250 * time.Millisecond
			slog.WarnContext(ctx, "retrying generation",
				"attempt", attempt+1,
				"backoff_ms", backoff.Milliseconds(),
				"error", lastErr)
			select {
			case <-ctx.Done():
				return nil, model.NewGenerationError("generate", errors.Join(lastErr, ctx.Err()))
			case <-time.After(backoff):
			}
		}

		start := time.Now()
		var gen *llm.Generation
		err := o.generations.Do(ctx, func(ctx context.Context) error {
			var err error
			gen, err = o.generator.Generate(ctx, req)
			return err
		})
		if err == nil {
			slog.InfoContext(ctx, "answer generated",
				"model", gen.Model,
				"confidence", gen.Confidence,
				"tokens", gen.TotalTokens(),
				"cost", gen.Cost.String(),
				"duration_ms", time.Since(start).Milliseconds())
			return gen, nil
		}

		lastErr = err
		if !llm.IsRetryable(ctx, err) {
			break
		}
	}
	return nil, model.NewGenerationError("generate", lastErr)
}

// escalate marks the conversation escalated and hands a ticket request to
// the dispatcher. Only the status change can fail the turn. A conversation
// that ended while the turn ran stays ended and gets no ticket.
func (o *Orchestrator) escalate(ctx context.Context, conv *model.Conversation, in model.TurnInput, verdict model.EscalationVerdict) error {
	reason := verdict.Reason
	if _, err := o.conversations.SetStatus(ctx, conv.ID, model.StatusChange{
		Status:           model.ConversationStatusEscalated,
		EscalationReason: &reason,
	}); err != nil {
		if errors.Is(err, model.ErrInvalidTransition) {
			slog.WarnContext(ctx, "conversation ended during the turn, escalation skipped",
				"priority", verdict.Priority,
				"reason", verdict.Reason)
			return nil
		}
		slog.ErrorContext(ctx, "marking conversation escalated failed", "error", err)
		return model.WrapStoreError("set_status", err)
	}

	if o.tickets == nil {
		slog.WarnContext(ctx, "no ticket dispatcher configured, escalation recorded only")
		return nil
	}

	req := model.TicketRequest{
		ConversationID: conv.ID,
		UserID:         in.UserID,
		Reason:         verdict.Reason,
		Priority:       verdict.Priority,
		Excerpt:        logger.Truncate(in.Message, excerptRunes),
	}
	req.TraceID, req.SpanID = logger.TraceIDs(ctx)

	// The caller's context may end as soon as the response is written.
	dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
	defer cancel()
	if err := o.tickets.Dispatch(dispatchCtx, req); err != nil {
		slog.ErrorContext(ctx, "ticket dispatch failed, escalation recorded without ticket",
			"priority", verdict.Priority,
			"error", err)
		return nil
	}

	slog.InfoContext(ctx, "escalation dispatched",
		"priority", verdict.Priority,
		"reason", verdict.Reason)
	return nil
}
