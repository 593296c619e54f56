package kv

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// SQLiteStore is a persistent store backed by the nvs_store table.
// Writes are staged in memory and flushed in one transaction on Commit.
type SQLiteStore struct {
	db        *sql.DB
	namespace string

	mu      sync.Mutex
	pending map[string]entry
	closed  bool
}

// NewSQLiteStore creates a store scoped to namespace.
func NewSQLiteStore(db *sql.DB, namespace string) *SQLiteStore {
	return &SQLiteStore{
		db:        db,
		namespace: namespace,
		pending:   make(map[string]entry),
	}
}

// Namespace returns the store namespace.
func (s *SQLiteStore) Namespace() string {
	return s.namespace
}

// GetInt64 returns the integer stored under key.
func (s *SQLiteStore) GetInt64(key string) (int64, error) {
	e, err := s.lookup(key)
	if err != nil {
		return 0, err
	}
	return e.int64()
}

// SetInt64 stages an integer write.
func (s *SQLiteStore) SetInt64(key string, value int64) error {
	return s.stage(key, entry{i: value})
}

// GetBlob returns the bytes stored under key.
func (s *SQLiteStore) GetBlob(key string) ([]byte, error) {
	e, err := s.lookup(key)
	if err != nil {
		return nil, err
	}
	return e.blob()
}

// SetBlob stages a blob write.
func (s *SQLiteStore) SetBlob(key string, value []byte) error {
	return s.stage(key, blobEntry(value))
}

// Commit writes every staged value in a single transaction.
func (s *SQLiteStore) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if len(s.pending) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin commit: %w", err)
	}

	now := time.Now().UTC().Unix()
	for key, e := range s.pending {
		var intValue, blobValue any
		if e.isBlob {
			blobValue = e.b
		} else {
			intValue = e.i
		}

		_, err := tx.Exec(`
			INSERT INTO nvs_store (namespace, key, int_value, blob_value, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(namespace, key) DO UPDATE SET
				int_value = excluded.int_value,
				blob_value = excluded.blob_value,
				updated_at = excluded.updated_at
		`, s.namespace, key, intValue, blobValue, now)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to store %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	s.pending = make(map[string]entry)
	return nil
}

// Close discards staged writes. The underlying *sql.DB is owned by the caller.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = make(map[string]entry)
	s.closed = true
	return nil
}

func (s *SQLiteStore) lookup(key string) (entry, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return entry{}, ErrClosed
	}
	if e, ok := s.pending[key]; ok {
		s.mu.Unlock()
		return e, nil
	}
	s.mu.Unlock()

	var intValue sql.NullInt64
	var blobValue []byte
	err := s.db.QueryRow(`
		SELECT int_value, blob_value FROM nvs_store
		WHERE namespace = ? AND key = ?
	`, s.namespace, key).Scan(&intValue, &blobValue)

	if errors.Is(err, sql.ErrNoRows) {
		return entry{}, ErrNotFound
	}
	if err != nil {
		return entry{}, fmt.Errorf("failed to get %q: %w", key, err)
	}

	if intValue.Valid {
		return entry{i: intValue.Int64}, nil
	}
	return entry{isBlob: true, b: blobValue}, nil
}

func (s *SQLiteStore) stage(key string, e entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.pending[key] = e
	return nil
}
