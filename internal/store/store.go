package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates absent key.
var ErrNotFound = errors.New("not found")

// Entry is one stored value with backend revision.
type Entry struct {
	Key       string
	Value     []byte
	Revision  uint64
	UpdatedAt time.Time
}

// Store provides key/value persistence for configuration documents.
// Params: byte-level CRUD and prefix listing.
// Returns: backend persistence behavior.
type Store interface {
	Get(ctx context.Context, key string) (Entry, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}
