// Package kv provides the non-volatile key-value store that survives
// low-power sleep. Writes are staged and become durable on Commit.
package kv

import "errors"

// ErrNotFound is returned when a key has never been committed.
var ErrNotFound = errors.New("kv: key not found")

// ErrTypeMismatch is returned when a key holds a value of another kind.
var ErrTypeMismatch = errors.New("kv: value type mismatch")

// ErrClosed is returned for operations on a closed store.
var ErrClosed = errors.New("kv: store closed")

// Store is the interface for persistent key-value operations.
type Store interface {
	// GetInt64 returns the integer stored under key, or ErrNotFound.
	GetInt64(key string) (int64, error)

	// SetInt64 stages an integer write. It is not durable until Commit.
	SetInt64(key string, value int64) error

	// GetBlob returns the bytes stored under key, or ErrNotFound.
	GetBlob(key string) ([]byte, error)

	// SetBlob stages a blob write. It is not durable until Commit.
	SetBlob(key string, value []byte) error

	// Commit makes every staged write durable.
	Commit() error

	// Close releases the store. Uncommitted writes are discarded.
	Close() error
}

// entry is a staged or stored value. Exactly one of the fields is meaningful.
type entry struct {
	isBlob bool
	i      int64
	b      []byte
}

func (e entry) int64() (int64, error) {
	if e.isBlob {
		return 0, ErrTypeMismatch
	}
	return e.i, nil
}

func (e entry) blob() ([]byte, error) {
	if !e.isBlob {
		return nil, ErrTypeMismatch
	}
	out := make([]byte, len(e.b))
	copy(out, e.b)
	return out, nil
}

func blobEntry(value []byte) entry {
	b := make([]byte, len(value))
	copy(b, value)
	return entry{isBlob: true, b: b}
}
