package kv

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is the default durable Store backend. A single table holds all
// entries; expiry is enforced lazily on read plus a periodic cleanup.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) the database at dbPath and prepares the
// schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	// WAL mode and a generous busy timeout so multiple replicas can share
	// the same database file.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_timeout=20000&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{db: db, path: dbPath}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Printf("SQLite key-value store initialized at: %s", dbPath)
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS kv_entries (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		expires_at INTEGER,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_kv_expires ON kv_entries(expires_at);
	`

	_, err := s.db.Exec(query)
	return err
}

// retryOperation executes a database operation with retry logic for SQLITE_BUSY errors
func (s *SQLiteStore) retryOperation(operation func() error, maxRetries int) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		if strings.Contains(err.Error(), "SQLITE_BUSY") || strings.Contains(err.Error(), "database is locked") {
			lastErr = err
			if attempt < maxRetries {
				// Exponential backoff: 10ms, 20ms, 40ms, 80ms
				backoff := time.Duration(10*(1<<attempt)) * time.Millisecond
				time.Sleep(backoff)
				continue
			}
		} else {
			return err
		}
	}

	return fmt.Errorf("operation failed after %d retries, last error: %w", maxRetries+1, lastErr)
}

// Get returns the value stored under key, or ErrNotFound. Expired entries
// are removed on the way out.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	var expiresAt sql.NullInt64

	err := s.db.QueryRowContext(ctx,
		"SELECT value, expires_at FROM kv_entries WHERE key = ?", key,
	).Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key %s: %w", key, err)
	}

	if expiresAt.Valid && time.Now().UnixMilli() >= expiresAt.Int64 {
		_ = s.Delete(ctx, key)
		return nil, ErrNotFound
	}

	return value, nil
}

// Set stores value under key with an optional ttl.
func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt sql.NullInt64
	if ttl > 0 {
		expiresAt = sql.NullInt64{Int64: time.Now().Add(ttl).UnixMilli(), Valid: true}
	}

	return s.retryOperation(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO kv_entries (key, value, expires_at, updated_at)
			VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				expires_at = excluded.expires_at,
				updated_at = CURRENT_TIMESTAMP
		`, key, value, expiresAt)
		if err != nil {
			return fmt.Errorf("failed to store key %s: %w", key, err)
		}
		return nil
	}, 3)
}

// Delete removes key. Missing keys are a no-op.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	return s.retryOperation(func() error {
		_, err := s.db.ExecContext(ctx, "DELETE FROM kv_entries WHERE key = ?", key)
		if err != nil {
			return fmt.Errorf("failed to delete key %s: %w", key, err)
		}
		return nil
	}, 3)
}

// GetDelete reads and removes key inside one immediate transaction so that
// concurrent callers cannot both observe the value.
func (s *SQLiteStore) GetDelete(ctx context.Context, key string) ([]byte, error) {
	var value []byte

	err := s.retryOperation(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		var stored []byte
		var expiresAt sql.NullInt64
		err = tx.QueryRowContext(ctx,
			"SELECT value, expires_at FROM kv_entries WHERE key = ?", key,
		).Scan(&stored, &expiresAt)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read key %s: %w", key, err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM kv_entries WHERE key = ?", key); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", key, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit: %w", err)
		}

		if expiresAt.Valid && time.Now().UnixMilli() >= expiresAt.Int64 {
			return ErrNotFound
		}

		value = stored
		return nil
	}, 3)
	if err != nil {
		return nil, err
	}

	return value, nil
}

// Cleanup removes expired entries. Intended to be called periodically.
func (s *SQLiteStore) Cleanup(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= ?",
		time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to cleanup expired entries: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
