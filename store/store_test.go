package store

import (
	"errors"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
)

func TestNewCropID(t *testing.T) {
	a := NewCropID()
	b := NewCropID()

	if a == "" || b == "" {
		t.Fatal("NewCropID() returned empty ID")
	}
	if a == b {
		t.Errorf("NewCropID() returned duplicate ID %q", a)
	}
}

func TestNewConversationID_Sortable(t *testing.T) {
	a := NewConversationID()
	b := NewConversationID()

	if len(a) != 26 {
		t.Errorf("conversation ID length = %d, want 26", len(a))
	}
	// ULIDs created later never sort before earlier ones.
	if b < a {
		t.Errorf("later ID %q sorts before earlier ID %q", b, a)
	}
}

func TestIsNotFound(t *testing.T) {
	if !isNotFound(jetstream.ErrKeyNotFound) {
		t.Error("isNotFound(ErrKeyNotFound) = false, want true")
	}
	if !isNotFound(errors.New("nats: key not found")) {
		t.Error("isNotFound(message match) = false, want true")
	}
	if isNotFound(errors.New("connection refused")) {
		t.Error("isNotFound(unrelated error) = true, want false")
	}
	if isNotFound(nil) {
		t.Error("isNotFound(nil) = true, want false")
	}
}

func TestIsWrongRevision(t *testing.T) {
	if !isWrongRevision(errors.New("nats: wrong last sequence: 5")) {
		t.Error("isWrongRevision(CAS failure) = false, want true")
	}
	if isWrongRevision(errors.New("key not found")) {
		t.Error("isWrongRevision(unrelated error) = true, want false")
	}
	if isWrongRevision(nil) {
		t.Error("isWrongRevision(nil) = true, want false")
	}
}

func TestIsKeyExists(t *testing.T) {
	if !isKeyExists(jetstream.ErrKeyExists) {
		t.Error("isKeyExists(ErrKeyExists) = false, want true")
	}
	if isKeyExists(errors.New("timeout")) {
		t.Error("isKeyExists(unrelated error) = true, want false")
	}
}
