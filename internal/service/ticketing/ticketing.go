package ticketing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"basegraph.app/concierge/common/logger"
	"basegraph.app/concierge/internal/model"
	"basegraph.app/concierge/internal/store"
)

// Ticketing opens a ticket in an external tracker and returns its id.
type Ticketing interface {
	CreateTicket(ctx context.Context, req model.TicketRequest) (string, error)
}

// Notifier tells on-call humans about a new escalation.
type Notifier interface {
	NotifyEscalation(ctx context.Context, req model.TicketRequest, ticketID string) error
}

// Processor turns one escalation into a ticket: create it, record it on the
// conversation, then notify. Conversations get at most one ticket.
type Processor struct {
	tickets       Ticketing
	conversations store.ConversationStore
	notifier      Notifier
}

// NewProcessor builds a Processor. notifier may be nil.
func NewProcessor(tickets Ticketing, conversations store.ConversationStore, notifier Notifier) *Processor {
	return &Processor{
		tickets:       tickets,
		conversations: conversations,
		notifier:      notifier,
	}
}

// Process returns the ticket id now attached to the conversation. Errors
// are worth retrying; a missing conversation is not an error.
func (p *Processor) Process(ctx context.Context, req model.TicketRequest) (string, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationID: &req.ConversationID,
		UserID:         &req.UserID,
		Component:      "concierge.ticketing.processor",
	})

	conv, err := p.conversations.GetByID(ctx, req.ConversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "conversation gone before ticket creation, dropping job")
			return "", nil
		}
		return "", fmt.Errorf("loading conversation: %w", err)
	}
	if conv.TicketID != nil && *conv.TicketID != "" {
		slog.InfoContext(ctx, "conversation already has a ticket, skipping", "ticket_id", *conv.TicketID)
		return *conv.TicketID, nil
	}

	start := time.Now()
	ticketID, err := p.tickets.CreateTicket(ctx, req)
	if err != nil {
		return "", fmt.Errorf("creating ticket: %w", err)
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{TicketID: &ticketID})

	if err := p.conversations.AttachTicket(ctx, req.ConversationID, ticketID); err != nil {
		return "", fmt.Errorf("attaching ticket %s: %w", ticketID, err)
	}

	slog.InfoContext(ctx, "escalation ticket created",
		"priority", req.Priority,
		"duration_ms", time.Since(start).Milliseconds())

	if p.notifier != nil {
		if err := p.notifier.NotifyEscalation(ctx, req, ticketID); err != nil {
			slog.WarnContext(ctx, "escalation notification failed", "error", err)
		}
	}

	return ticketID, nil
}
