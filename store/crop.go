package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/fasalsetu/agrichat/cropsim"
)

// NewCropID generates a unique crop identifier.
func NewCropID() string {
	return uuid.New().String()
}

// CropStore persists crop growth documents. Reads return the KV revision so
// writers can detect concurrent turns on the same crop; Update refuses to
// overwrite a document that moved since it was read.
type CropStore struct {
	kv jetstream.KeyValue
}

// NewCropStore creates the crop store, creating its bucket if needed.
func NewCropStore(ctx context.Context, js jetstream.JetStream) (*CropStore, error) {
	kv, err := getOrCreateBucket(ctx, js, BucketCrops)
	if err != nil {
		return nil, fmt.Errorf("create crops bucket: %w", err)
	}
	return &CropStore{kv: kv}, nil
}

// Create stores a new crop document.
func (s *CropStore) Create(ctx context.Context, state *cropsim.CropState) error {
	if state.ID == "" {
		state.ID = NewCropID()
	}
	now := time.Now()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	state.UpdatedAt = now

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal crop: %w", err)
	}

	if _, err := s.kv.Create(ctx, state.ID, data); err != nil {
		if isWrongRevision(err) || isKeyExists(err) {
			return ErrExists
		}
		return fmt.Errorf("store crop: %w", err)
	}

	return nil
}

// Get retrieves a crop document and the revision it was read at.
func (s *CropStore) Get(ctx context.Context, id string) (*cropsim.CropState, uint64, error) {
	entry, err := s.kv.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("get crop: %w", err)
	}

	var state cropsim.CropState
	if err := json.Unmarshal(entry.Value(), &state); err != nil {
		return nil, 0, fmt.Errorf("unmarshal crop: %w", err)
	}

	return &state, entry.Revision(), nil
}

// Update writes a crop document read at the given revision. ErrConflict
// means another turn won the race; callers should reload and retry.
func (s *CropStore) Update(ctx context.Context, state *cropsim.CropState, revision uint64) error {
	state.UpdatedAt = time.Now()

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal crop: %w", err)
	}

	if _, err := s.kv.Update(ctx, state.ID, data, revision); err != nil {
		if isWrongRevision(err) {
			return ErrConflict
		}
		return fmt.Errorf("update crop: %w", err)
	}

	return nil
}

func isKeyExists(err error) bool {
	return errors.Is(err, jetstream.ErrKeyExists) ||
		(err != nil && strings.Contains(err.Error(), "key exists"))
}
