package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"basegraph.app/concierge/common/id"
	"basegraph.app/concierge/internal/model"
)

var (
	bucketConversations     = []byte("conversations")
	bucketMessages          = []byte("messages")
	bucketUserConversations = []byte("user_conversations")
)

// BoltConversationStore persists conversations in a single BoltDB file.
// Bolt allows one writer transaction at a time, which serializes appends.
type BoltConversationStore struct {
	db  *bolt.DB
	now Clock
}

// NewBoltConversationStore opens (or creates) the BoltDB file at path.
func NewBoltConversationStore(path string) (*BoltConversationStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketConversations, bucketMessages, bucketUserConversations} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}
	return &BoltConversationStore{db: db, now: time.Now}, nil
}

func (s *BoltConversationStore) Close() error {
	return s.db.Close()
}

func (s *BoltConversationStore) Create(_ context.Context, userID string, initialQuery *string) (*model.Conversation, error) {
	now := s.now().UTC()
	c := model.Conversation{
		ID:           id.New(),
		SessionID:    uuid.NewString(),
		UserID:       userID,
		Status:       model.ConversationStatusActive,
		InitialQuery: initialQuery,
		Topic:        model.DeriveTopic(initialQuery),
		StartedAt:    now,
		UpdatedAt:    now,
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := putConversation(tx, &c); err != nil {
			return err
		}
		users, err := tx.Bucket(bucketUserConversations).CreateBucketIfNotExists([]byte(userID))
		if err != nil {
			return err
		}
		return users.Put(itob(c.ID), []byte{1})
	})
	if err != nil {
		return nil, model.WrapStoreError("create_conversation", err)
	}
	return &c, nil
}

func (s *BoltConversationStore) GetByID(_ context.Context, id int64) (*model.Conversation, error) {
	var c *model.Conversation
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		c, err = getConversation(tx, id)
		return err
	})
	if err != nil {
		return nil, model.WrapStoreError("get_conversation", err)
	}
	return c, nil
}

func (s *BoltConversationStore) AppendMessage(_ context.Context, conversationID int64, msg model.NewMessage) (*model.Message, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	var out model.Message
	err := s.db.Update(func(tx *bolt.Tx) error {
		c, err := getConversation(tx, conversationID)
		if err != nil {
			return err
		}

		createdAt := nextMessageTime(s.now(), c.LastMessageAt)
		out = model.Message{
			ID:             id.New(),
			ConversationID: conversationID,
			Role:           msg.Role,
			Content:        msg.Content,
			Assistant:      msg.Assistant,
			CreatedAt:      createdAt,
		}

		bucket, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists(itob(conversationID))
		if err != nil {
			return err
		}
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		raw, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("encoding message: %w", err)
		}
		if err := bucket.Put(itob(int64(seq)), raw); err != nil {
			return err
		}

		c.MessageCount++
		c.LastMessageAt = &createdAt
		c.UpdatedAt = s.now().UTC()
		return putConversation(tx, c)
	})
	if err != nil {
		return nil, model.WrapStoreError("append_message", err)
	}
	return &out, nil
}

func (s *BoltConversationStore) History(_ context.Context, conversationID int64, limit int) ([]model.Message, error) {
	messages := []model.Message{}
	err := s.db.View(func(tx *bolt.Tx) error {
		if _, err := getConversation(tx, conversationID); err != nil {
			return err
		}
		bucket := tx.Bucket(bucketMessages).Bucket(itob(conversationID))
		if bucket == nil {
			return nil
		}

		// Walk backwards from the newest entry so a limit only touches what it returns.
		cur := bucket.Cursor()
		for k, v := cur.Last(); k != nil; k, v = cur.Prev() {
			if limit > 0 && len(messages) == limit {
				break
			}
			var m model.Message
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("decoding message: %w", err)
			}
			messages = append(messages, m)
		}
		return nil
	})
	if err != nil {
		return nil, model.WrapStoreError("history", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *BoltConversationStore) SetStatus(_ context.Context, conversationID int64, change model.StatusChange) (*model.Conversation, error) {
	if err := change.Validate(); err != nil {
		return nil, err
	}
	return s.update("set_status", conversationID, func(c *model.Conversation) error {
		return applyStatusChange(c, change, s.now().UTC())
	})
}

func (s *BoltConversationStore) AttachTicket(_ context.Context, conversationID int64, ticketID string) error {
	_, err := s.update("attach_ticket", conversationID, func(c *model.Conversation) error {
		c.TicketID = &ticketID
		c.UpdatedAt = s.now().UTC()
		return nil
	})
	return err
}

func (s *BoltConversationStore) RecordSatisfaction(_ context.Context, conversationID int64, rating int, feedback *string) (*model.Conversation, error) {
	if err := model.ValidateRating(rating); err != nil {
		return nil, err
	}
	return s.update("record_satisfaction", conversationID, func(c *model.Conversation) error {
		c.SatisfactionRating = &rating
		c.Feedback = feedback
		c.UpdatedAt = s.now().UTC()
		return nil
	})
}

func (s *BoltConversationStore) ListByUser(_ context.Context, userID string, limit int) ([]model.Conversation, error) {
	conversations := []model.Conversation{}
	err := s.db.View(func(tx *bolt.Tx) error {
		users := tx.Bucket(bucketUserConversations).Bucket([]byte(userID))
		if users == nil {
			return nil
		}
		return users.ForEach(func(k, _ []byte) error {
			c, err := getConversation(tx, btoi(k))
			if err != nil {
				return err
			}
			conversations = append(conversations, *c)
			return nil
		})
	})
	if err != nil {
		return nil, model.WrapStoreError("list_conversations", err)
	}

	sortByStartedDesc(conversations)
	if n := listLimit(limit); len(conversations) > n {
		conversations = conversations[:n]
	}
	return conversations, nil
}

func (s *BoltConversationStore) Statistics(_ context.Context, userID *string) (model.Statistics, error) {
	var all []model.Conversation
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketConversations).ForEach(func(_, v []byte) error {
			var c model.Conversation
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("decoding conversation: %w", err)
			}
			if userID == nil || c.UserID == *userID {
				all = append(all, c)
			}
			return nil
		})
	})
	if err != nil {
		return model.Statistics{}, model.WrapStoreError("statistics", err)
	}
	return computeStatistics(all), nil
}

func (s *BoltConversationStore) PurgeOlderThan(_ context.Context, age time.Duration, statuses []model.ConversationStatus) (int64, error) {
	statuses, err := purgeStatuses(statuses)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-age)

	var purged int64
	err = s.db.Update(func(tx *bolt.Tx) error {
		var doomed []model.Conversation
		err := tx.Bucket(bucketConversations).ForEach(func(_, v []byte) error {
			var c model.Conversation
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("decoding conversation: %w", err)
			}
			if c.StartedAt.Before(cutoff) && hasStatus(statuses, c.Status) {
				doomed = append(doomed, c)
			}
			return nil
		})
		if err != nil {
			return err
		}

		// Deleting inside ForEach is not allowed, so removal happens afterwards.
		for _, c := range doomed {
			key := itob(c.ID)
			if err := tx.Bucket(bucketConversations).Delete(key); err != nil {
				return err
			}
			if tx.Bucket(bucketMessages).Bucket(key) != nil {
				if err := tx.Bucket(bucketMessages).DeleteBucket(key); err != nil {
					return err
				}
			}
			if users := tx.Bucket(bucketUserConversations).Bucket([]byte(c.UserID)); users != nil {
				if err := users.Delete(key); err != nil {
					return err
				}
			}
			purged++
		}
		return nil
	})
	if err != nil {
		return 0, model.WrapStoreError("purge_conversations", err)
	}
	return purged, nil
}

// update rewrites one conversation in a write transaction. An error from
// mutate aborts the transaction.
func (s *BoltConversationStore) update(op string, conversationID int64, mutate func(*model.Conversation) error) (*model.Conversation, error) {
	var c *model.Conversation
	err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		c, err = getConversation(tx, conversationID)
		if err != nil {
			return err
		}
		if err := mutate(c); err != nil {
			return err
		}
		return putConversation(tx, c)
	})
	if err != nil {
		return nil, model.WrapStoreError(op, err)
	}
	return c, nil
}

func getConversation(tx *bolt.Tx, id int64) (*model.Conversation, error) {
	raw := tx.Bucket(bucketConversations).Get(itob(id))
	if raw == nil {
		return nil, ErrNotFound
	}
	var c model.Conversation
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decoding conversation %d: %w", id, err)
	}
	return &c, nil
}

func putConversation(tx *bolt.Tx, c *model.Conversation) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding conversation: %w", err)
	}
	return tx.Bucket(bucketConversations).Put(itob(c.ID), raw)
}

// itob encodes ids big-endian so bucket iteration follows numeric order.
func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func btoi(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}
