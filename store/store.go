// Package store persists crop state and conversation history in NATS
// JetStream key-value buckets.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
)

// Bucket names for each document type.
const (
	BucketCrops         = "AGRICHAT_CROPS"
	BucketConversations = "AGRICHAT_CONVERSATIONS"
)

// Common storage errors.
var (
	// ErrNotFound is returned when a document is not found.
	ErrNotFound = errors.New("document not found")

	// ErrConflict is returned when an optimistic-concurrency write loses:
	// the document changed between the caller's read and write.
	ErrConflict = errors.New("document revision conflict")

	// ErrExists is returned when creating a document that already exists.
	ErrExists = errors.New("document already exists")
)

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Agrichat %s storage", strings.ToLower(name)),
		History:     5, // Keep last 5 revisions
	})
}

// isNotFound checks if an error indicates a key was not found.
func isNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound) ||
		(err != nil && strings.Contains(err.Error(), "key not found"))
}

// isWrongRevision checks if an error indicates a compare-and-set failure.
func isWrongRevision(err error) bool {
	return err != nil && strings.Contains(err.Error(), "wrong last sequence")
}
