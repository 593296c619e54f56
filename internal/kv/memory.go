package kv

import "sync"

// MemoryStore is an in-memory store with the same staging semantics as
// SQLiteStore. Committed values survive Close and can be reopened with
// Reopen, which is how tests model a power cycle.
type MemoryStore struct {
	mu        sync.Mutex
	committed map[string]entry
	pending   map[string]entry
	closed    bool
	commits   int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		committed: make(map[string]entry),
		pending:   make(map[string]entry),
	}
}

// GetInt64 returns the integer stored under key.
func (s *MemoryStore) GetInt64(key string) (int64, error) {
	e, err := s.lookup(key)
	if err != nil {
		return 0, err
	}
	return e.int64()
}

// SetInt64 stages an integer write.
func (s *MemoryStore) SetInt64(key string, value int64) error {
	return s.stage(key, entry{i: value})
}

// GetBlob returns the bytes stored under key.
func (s *MemoryStore) GetBlob(key string) ([]byte, error) {
	e, err := s.lookup(key)
	if err != nil {
		return nil, err
	}
	return e.blob()
}

// SetBlob stages a blob write.
func (s *MemoryStore) SetBlob(key string, value []byte) error {
	return s.stage(key, blobEntry(value))
}

// Commit moves staged writes into the committed set.
func (s *MemoryStore) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	for k, e := range s.pending {
		s.committed[k] = e
	}
	s.pending = make(map[string]entry)
	s.commits++
	return nil
}

// Close discards staged writes.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = make(map[string]entry)
	s.closed = true
	return nil
}

// Reopen makes a closed store usable again with only committed data.
func (s *MemoryStore) Reopen() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = make(map[string]entry)
	s.closed = false
}

// Commits returns how many times Commit succeeded.
func (s *MemoryStore) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

func (s *MemoryStore) lookup(key string) (entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return entry{}, ErrClosed
	}
	if e, ok := s.pending[key]; ok {
		return e, nil
	}
	if e, ok := s.committed[key]; ok {
		return e, nil
	}
	return entry{}, ErrNotFound
}

func (s *MemoryStore) stage(key string, e entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.pending[key] = e
	return nil
}
