package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps configuration documents in process memory.
// Params: in-memory map and injected clock.
// Returns: store implementation without external dependencies.
type MemoryStore struct {
	mu      sync.RWMutex
	now     func() time.Time
	entries map[string]Entry
}

// NewMemoryStore creates in-memory store.
// Params: now function (defaults to time.Now when nil).
// Returns: initialized in-memory store.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:     now,
		entries: make(map[string]Entry),
	}
}

// Get reads one entry.
// Params: key.
// Returns: entry copy or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, key string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	entry.Value = append([]byte(nil), entry.Value...)
	return entry, nil
}

// Put writes value unconditionally.
// Params: key and value bytes.
// Returns: new revision.
func (s *MemoryStore) Put(_ context.Context, key string, value []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	revision := s.entries[key].Revision + 1
	s.entries[key] = Entry{
		Key:       key,
		Value:     append([]byte(nil), value...),
		Revision:  revision,
		UpdatedAt: s.now().UTC(),
	}
	return revision, nil
}

// Delete removes key; absent keys are ignored.
// Params: key.
// Returns: nil.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Keys lists keys with prefix in lexical order.
// Params: key prefix.
// Returns: matching keys.
func (s *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close is no-op for memory store.
// Params: none.
// Returns: nil.
func (s *MemoryStore) Close() error {
	return nil
}
