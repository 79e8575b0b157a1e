// Package store provides the key-value persistence surface behind the cart
// and user session slots, with in-memory, file, Redis and SQLite backends.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Store errors.
var (
	ErrNotFound   = errors.New("key not found")
	ErrInvalidKey = errors.New("invalid key")
	ErrClosed     = errors.New("store is closed")
)

// Slot names. Each browsing session owns one slot of each kind.
const (
	CartSlot = "flexishop_cart"
	UserSlot = "flexishop_user"
)

// Store defines the interface for key-value blob storage.
type Store interface {
	// Get returns the blob stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put replaces the blob stored under key. Last write wins.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// PersistenceError reports a failed read or write against a slot.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Slot is a single named blob scoped to one browsing session.
type Slot struct {
	kv  Store
	key string
}

// NewSlot binds the slot name to a session id on the given store.
func NewSlot(kv Store, sessionID, name string) *Slot {
	return &Slot{
		kv:  kv,
		key: SlotKey(sessionID, name),
	}
}

// SlotKey returns the storage key of a session slot.
func SlotKey(sessionID, name string) string {
	return sessionID + ":" + name
}

// Key returns the underlying storage key.
func (s *Slot) Key() string {
	return s.key
}

// Read returns the slot blob. A missing slot yields (nil, nil).
func (s *Slot) Read(ctx context.Context) ([]byte, error) {
	data, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "read", Key: s.key, Err: err}
	}
	return data, nil
}

// Write replaces the slot blob.
func (s *Slot) Write(ctx context.Context, blob []byte) error {
	if err := s.kv.Put(ctx, s.key, blob); err != nil {
		return &PersistenceError{Op: "write", Key: s.key, Err: err}
	}
	return nil
}

// Clear removes the slot.
func (s *Slot) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, s.key); err != nil {
		return &PersistenceError{Op: "clear", Key: s.key, Err: err}
	}
	return nil
}

func checkKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	return nil
}
