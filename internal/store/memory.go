package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"basegraph.app/concierge/common/id"
	"basegraph.app/concierge/internal/model"
)

// memoryConversationStore keeps conversations in process memory. Each
// conversation has its own mutex so appends to one conversation never block
// another; mu only guards the maps themselves.
type memoryConversationStore struct {
	now Clock

	mu            sync.RWMutex
	conversations map[int64]*memoryConversation
}

type memoryConversation struct {
	mu       sync.Mutex
	conv     model.Conversation
	messages []model.Message
}

// NewMemoryConversationStore returns an in-process ConversationStore. A nil
// clock uses time.Now.
func NewMemoryConversationStore(clock Clock) ConversationStore {
	if clock == nil {
		clock = time.Now
	}
	return &memoryConversationStore{
		now:           clock,
		conversations: make(map[int64]*memoryConversation),
	}
}

func (s *memoryConversationStore) Create(_ context.Context, userID string, initialQuery *string) (*model.Conversation, error) {
	now := s.now().UTC()
	entry := &memoryConversation{
		conv: model.Conversation{
			ID:           id.New(),
			SessionID:    uuid.NewString(),
			UserID:       userID,
			Status:       model.ConversationStatusActive,
			InitialQuery: cloneString(initialQuery),
			Topic:        model.DeriveTopic(initialQuery),
			StartedAt:    now,
			UpdatedAt:    now,
		},
	}

	s.mu.Lock()
	s.conversations[entry.conv.ID] = entry
	s.mu.Unlock()

	c := cloneConversation(entry.conv)
	return &c, nil
}

func (s *memoryConversationStore) lookup(id int64) (*memoryConversation, error) {
	s.mu.RLock()
	entry, ok := s.conversations[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return entry, nil
}

func (s *memoryConversationStore) GetByID(_ context.Context, id int64) (*model.Conversation, error) {
	entry, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	c := cloneConversation(entry.conv)
	return &c, nil
}

func (s *memoryConversationStore) AppendMessage(ctx context.Context, conversationID int64, msg model.NewMessage) (*model.Message, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, model.WrapStoreError("append_message", err)
	}

	entry, err := s.lookup(conversationID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	createdAt := nextMessageTime(s.now(), entry.conv.LastMessageAt)
	m := model.Message{
		ID:             id.New(),
		ConversationID: conversationID,
		Role:           msg.Role,
		Content:        msg.Content,
		Assistant:      cloneAssistant(msg.Assistant),
		CreatedAt:      createdAt,
	}
	entry.messages = append(entry.messages, m)
	entry.conv.MessageCount++
	entry.conv.LastMessageAt = &createdAt
	entry.conv.UpdatedAt = s.now().UTC()

	out := m
	out.Assistant = cloneAssistant(m.Assistant)
	return &out, nil
}

func (s *memoryConversationStore) History(_ context.Context, conversationID int64, limit int) ([]model.Message, error) {
	entry, err := s.lookup(conversationID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	msgs := entry.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]model.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m
		out[i].Assistant = cloneAssistant(m.Assistant)
	}
	return out, nil
}

func (s *memoryConversationStore) SetStatus(_ context.Context, conversationID int64, change model.StatusChange) (*model.Conversation, error) {
	if err := change.Validate(); err != nil {
		return nil, err
	}

	entry, err := s.lookup(conversationID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if err := applyStatusChange(&entry.conv, change, s.now().UTC()); err != nil {
		return nil, err
	}

	c := cloneConversation(entry.conv)
	return &c, nil
}

func (s *memoryConversationStore) AttachTicket(_ context.Context, conversationID int64, ticketID string) error {
	entry, err := s.lookup(conversationID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.conv.TicketID = &ticketID
	entry.conv.UpdatedAt = s.now().UTC()
	return nil
}

func (s *memoryConversationStore) RecordSatisfaction(_ context.Context, conversationID int64, rating int, feedback *string) (*model.Conversation, error) {
	if err := model.ValidateRating(rating); err != nil {
		return nil, err
	}

	entry, err := s.lookup(conversationID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.conv.SatisfactionRating = &rating
	entry.conv.Feedback = cloneString(feedback)
	entry.conv.UpdatedAt = s.now().UTC()

	c := cloneConversation(entry.conv)
	return &c, nil
}

func (s *memoryConversationStore) ListByUser(_ context.Context, userID string, limit int) ([]model.Conversation, error) {
	var out []model.Conversation
	for _, entry := range s.snapshot() {
		entry.mu.Lock()
		if entry.conv.UserID == userID {
			out = append(out, cloneConversation(entry.conv))
		}
		entry.mu.Unlock()
	}

	sortByStartedDesc(out)
	if n := listLimit(limit); len(out) > n {
		out = out[:n]
	}
	if out == nil {
		out = []model.Conversation{}
	}
	return out, nil
}

func (s *memoryConversationStore) Statistics(_ context.Context, userID *string) (model.Statistics, error) {
	var all []model.Conversation
	for _, entry := range s.snapshot() {
		entry.mu.Lock()
		if userID == nil || entry.conv.UserID == *userID {
			all = append(all, entry.conv)
		}
		entry.mu.Unlock()
	}
	return computeStatistics(all), nil
}

func (s *memoryConversationStore) PurgeOlderThan(_ context.Context, age time.Duration, statuses []model.ConversationStatus) (int64, error) {
	statuses, err := purgeStatuses(statuses)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-age)

	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for cid, entry := range s.conversations {
		entry.mu.Lock()
		eligible := entry.conv.StartedAt.Before(cutoff) && hasStatus(statuses, entry.conv.Status)
		entry.mu.Unlock()
		if eligible {
			delete(s.conversations, cid)
			purged++
		}
	}
	return purged, nil
}

func (s *memoryConversationStore) snapshot() []*memoryConversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]*memoryConversation, 0, len(s.conversations))
	for _, entry := range s.conversations {
		entries = append(entries, entry)
	}
	return entries
}

// applyStatusChange mirrors the UpdateConversationStatus query for the
// non-SQL backends. An ended conversation keeps its original endedAt.
func applyStatusChange(c *model.Conversation, change model.StatusChange, now time.Time) error {
	if err := change.ValidateFrom(c.Status); err != nil {
		return err
	}
	ended := c.Status.IsTerminal()
	c.Status = change.Status
	if change.Status == model.ConversationStatusEscalated {
		c.Escalated = true
	}
	if change.EscalationReason != nil {
		c.EscalationReason = cloneString(change.EscalationReason)
	}
	if change.TicketID != nil {
		c.TicketID = cloneString(change.TicketID)
	}
	if !ended {
		c.EndedAt = endedAt(change.Status, now, c.StartedAt)
	}
	c.UpdatedAt = now
	return nil
}

func computeStatistics(conversations []model.Conversation) model.Statistics {
	var (
		stats model.Statistics
		sum   int
	)
	for _, c := range conversations {
		stats.TotalConversations++
		if c.Status == model.ConversationStatusResolved {
			stats.Resolved++
		}
		if c.Escalated {
			stats.Escalated++
		}
		if c.SatisfactionRating != nil {
			stats.RatedConversations++
			sum += *c.SatisfactionRating
		}
	}
	if stats.RatedConversations > 0 {
		avg := float64(sum) / float64(stats.RatedConversations)
		stats.AvgSatisfaction = &avg
	}
	return stats
}

func sortByStartedDesc(conversations []model.Conversation) {
	sort.Slice(conversations, func(i, j int) bool {
		a, b := conversations[i], conversations[j]
		if a.StartedAt.Equal(b.StartedAt) {
			return a.ID > b.ID
		}
		return a.StartedAt.After(b.StartedAt)
	})
}

func hasStatus(statuses []model.ConversationStatus, status model.ConversationStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneConversation(c model.Conversation) model.Conversation {
	out := c
	out.InitialQuery = cloneString(c.InitialQuery)
	out.Topic = cloneString(c.Topic)
	out.EscalationReason = cloneString(c.EscalationReason)
	out.TicketID = cloneString(c.TicketID)
	out.Feedback = cloneString(c.Feedback)
	if c.SatisfactionRating != nil {
		r := *c.SatisfactionRating
		out.SatisfactionRating = &r
	}
	if c.LastMessageAt != nil {
		t := *c.LastMessageAt
		out.LastMessageAt = &t
	}
	if c.EndedAt != nil {
		t := *c.EndedAt
		out.EndedAt = &t
	}
	return out
}

func cloneAssistant(meta *model.AssistantMetadata) *model.AssistantMetadata {
	if meta == nil {
		return nil
	}
	out := *meta
	out.SourcesUsed = append([]model.SourceRef{}, meta.SourcesUsed...)
	return &out
}
