// ABOUTME: Store interface and shared types for coven-responder persistence
// ABOUTME: Defines the keyed blob "brain" the responder registry and migrator sit on

package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested key does not exist
var ErrNotFound = errors.New("not found")

// Write is a single change applied by Store.Write.
// A Write with Delete set removes the key and ignores Value.
type Write struct {
	Key    string
	Value  []byte
	Delete bool
}

// Set returns a Write that stores value under key.
func Set(key string, value []byte) Write {
	return Write{Key: key, Value: value}
}

// Delete returns a Write that removes key.
func Delete(key string) Write {
	return Write{Key: key, Delete: true}
}

// Store defines the interface for keyed blob persistence.
// Every value is an opaque byte slice; callers own the encoding.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set replaces the value stored under key.
	Set(ctx context.Context, key string, value []byte) error

	// Write applies all writes atomically: either every write lands or none does.
	Write(ctx context.Context, writes ...Write) error

	// Keys lists stored keys in ascending order.
	Keys(ctx context.Context) ([]string, error)

	// Close releases any resources held by the store
	Close() error
}

// AuditStore records administrative changes to the registry.
type AuditStore interface {
	AppendAuditLog(ctx context.Context, e *AuditEntry) error
	ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}
