package store

import (
	"fmt"

	"basegraph.app/concierge/core/db"
)

type Stores struct {
	db *db.DB
}

func NewStores(database *db.DB) *Stores {
	return &Stores{db: database}
}

func (s *Stores) Conversations() ConversationStore {
	return NewConversationStore(s.db)
}

// Open builds the ConversationStore for the configured backend. The returned
// close function releases backend resources and is never nil.
func Open(backend, boltPath string, database *db.DB) (ConversationStore, func() error, error) {
	noop := func() error { return nil }
	switch backend {
	case "postgres":
		if database == nil {
			return nil, nil, fmt.Errorf("postgres backend requires a database connection")
		}
		return NewStores(database).Conversations(), noop, nil
	case "bolt":
		s, err := NewBoltConversationStore(boltPath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "memory":
		return NewMemoryConversationStore(nil), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
