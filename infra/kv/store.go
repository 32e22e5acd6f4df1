// Package kv provides the key-value storage layer used for all persisted
// bridge state: tracked invoices, transaction records, API key mappings,
// unmatched payments and OAuth tokens. Values are opaque JSON blobs; keys
// carry the entity prefix and tenant partitioning.
package kv

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested key does not exist or has expired.
var ErrNotFound = errors.New("kv: key not found")

// Store defines the operations the bridge needs from its backing store.
//
// GetDelete must be atomic with respect to concurrent callers: when two
// requests race on the same key, exactly one of them observes the value.
// Amount-based invoice matching relies on this to keep the at-most-one-match
// guarantee under concurrent webhook deliveries.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A ttl of zero means the entry never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// GetDelete returns the value stored under key and removes it in a single
	// atomic operation, or returns ErrNotFound.
	GetDelete(ctx context.Context, key string) ([]byte, error)

	// Close releases the underlying resources.
	Close() error
}

// Cleaner is implemented by stores that expire entries lazily on read and
// need a periodic sweep to reclaim rows whose TTL has passed.
type Cleaner interface {
	Cleanup(ctx context.Context) error
}

// New creates a Store for the given driver name. Supported drivers are
// "sqlite", "bolt" and "memory".
func New(driver, path string) (Store, error) {
	switch driver {
	case "sqlite":
		return NewSQLiteStore(path)
	case "bolt":
		return NewBoltStore(path)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("kv: unknown driver %q", driver)
	}
}
