package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/oklog/ulid/v2"
)

// NewConversationID generates a lexicographically sortable conversation
// identifier. ULIDs sort by creation time, which keeps bucket listings in
// chronological order.
func NewConversationID() string {
	return ulid.Make().String()
}

// Turn is one message in a conversation, either side.
type Turn struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is a stored chat transcript.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Mode      string    `json:"mode,omitempty"`
	Turns     []Turn    `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationStore persists conversation transcripts. Appends are
// best-effort from the caller's point of view: a chat turn must not fail
// because its transcript could not be written.
type ConversationStore struct {
	kv jetstream.KeyValue
}

// NewConversationStore creates the conversation store, creating its bucket
// if needed.
func NewConversationStore(ctx context.Context, js jetstream.JetStream) (*ConversationStore, error) {
	kv, err := getOrCreateBucket(ctx, js, BucketConversations)
	if err != nil {
		return nil, fmt.Errorf("create conversations bucket: %w", err)
	}
	return &ConversationStore{kv: kv}, nil
}

// Get retrieves a conversation by ID.
func (s *ConversationStore) Get(ctx context.Context, id string) (*Conversation, error) {
	entry, err := s.kv.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	var conv Conversation
	if err := json.Unmarshal(entry.Value(), &conv); err != nil {
		return nil, fmt.Errorf("unmarshal conversation: %w", err)
	}

	return &conv, nil
}

// Append adds turns to a conversation, creating it on first use.
func (s *ConversationStore) Append(ctx context.Context, id, userID, mode string, turns ...Turn) error {
	now := time.Now()

	conv, err := s.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		conv = &Conversation{
			ID:        id,
			UserID:    userID,
			Mode:      mode,
			CreatedAt: now,
		}
	}

	conv.Turns = append(conv.Turns, turns...)
	conv.UpdatedAt = now

	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}

	if _, err := s.kv.Put(ctx, id, data); err != nil {
		return fmt.Errorf("store conversation: %w", err)
	}

	return nil
}
