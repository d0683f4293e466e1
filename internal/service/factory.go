package service

import (
	"basegraph.app/concierge/internal/store"
)

type Services struct {
	conversations store.ConversationStore
}

func NewServices(conversations store.ConversationStore) *Services {
	return &Services{conversations: conversations}
}

func (s *Services) Conversations() ConversationService {
	return NewConversationService(s.conversations)
}
