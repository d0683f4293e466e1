package ticketing_test

import (
	"context"
	"sync"

	"basegraph.app/concierge/internal/model"
)

type mockTicketing struct {
	createFn func(ctx context.Context, req model.TicketRequest) (string, error)

	mu    sync.Mutex
	calls int
}

func (m *mockTicketing) CreateTicket(ctx context.Context, req model.TicketRequest) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.createFn != nil {
		return m.createFn(ctx, req)
	}
	return "TICKET-1", nil
}

func (m *mockTicketing) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockNotifier struct {
	notifyFn func(ctx context.Context, req model.TicketRequest, ticketID string) error

	mu        sync.Mutex
	ticketIDs []string
}

func (m *mockNotifier) NotifyEscalation(ctx context.Context, req model.TicketRequest, ticketID string) error {
	m.mu.Lock()
	m.ticketIDs = append(m.ticketIDs, ticketID)
	m.mu.Unlock()
	if m.notifyFn != nil {
		return m.notifyFn(ctx, req, ticketID)
	}
	return nil
}

func (m *mockNotifier) TicketIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ticketIDs...)
}
