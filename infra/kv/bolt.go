package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "github.com/boltdb/bolt"
)

const boltBucket = "entries"

// boltEnvelope wraps a stored value with its expiry timestamp. Bolt has no
// native TTL, so expiry travels with the value and is checked on read.
type boltEnvelope struct {
	Value     []byte `json:"v"`
	ExpiresAt int64  `json:"expires_at,omitempty"` // unix millis, 0 means no expiry
}

// BoltStore is a single-file embedded Store backend.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database at path and ensures the
// entries bucket exists.
func NewBoltStore(path string) (*BoltStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (e boltEnvelope) expired() bool {
	return e.ExpiresAt > 0 && time.Now().UnixMilli() >= e.ExpiresAt
}

// Get returns the value stored under key, or ErrNotFound.
func (s *BoltStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte

	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(boltBucket)).Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}

		var env boltEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return fmt.Errorf("corrupt entry for key %s: %w", key, err)
		}
		if env.expired() {
			return ErrNotFound
		}

		value = append([]byte(nil), env.Value...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return value, nil
}

// Set stores value under key with an optional ttl.
func (s *BoltStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	env := boltEnvelope{Value: value}
	if ttl > 0 {
		env.ExpiresAt = time.Now().Add(ttl).UnixMilli()
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode entry for key %s: %w", key, err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(boltBucket)).Put([]byte(key), raw)
	})
}

// Delete removes key. Bolt's delete of a missing key is already a no-op.
func (s *BoltStore) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(boltBucket)).Delete([]byte(key))
	})
}

// GetDelete reads and removes key inside a single write transaction, so two
// concurrent callers cannot both observe the value.
func (s *BoltStore) GetDelete(ctx context.Context, key string) ([]byte, error) {
	var value []byte

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(boltBucket))

		raw := b.Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}

		var env boltEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return fmt.Errorf("corrupt entry for key %s: %w", key, err)
		}

		if err := b.Delete([]byte(key)); err != nil {
			return err
		}
		if env.expired() {
			return ErrNotFound
		}

		value = append([]byte(nil), env.Value...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return value, nil
}

// Close releases the database file lock.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
