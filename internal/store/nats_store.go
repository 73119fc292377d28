package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"logalert/internal/config"

	"github.com/nats-io/nats.go"
)

// NATSStore persists configuration documents in one JetStream KV bucket.
// Params: NATS connection and KV bucket handle.
// Returns: KV-backed store implementation.
type NATSStore struct {
	nc       *nats.Conn
	kv       nats.KeyValue
	settings config.NATSStoreConfig
}

// NewNATSStore opens or creates KV bucket and returns NATS backend.
// Params: NATS/JetStream settings from config.
// Returns: initialized NATS store or setup error.
func NewNATSStore(settings config.NATSStoreConfig) (*NATSStore, error) {
	nc, err := nats.Connect(strings.Join(settings.URL, ","), nats.Name(settings.ClientName))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	kv, err := js.KeyValue(settings.Bucket)
	if err != nil {
		if !settings.AllowCreateBucket {
			nc.Close()
			return nil, fmt.Errorf("open bucket %q: %w", settings.Bucket, err)
		}
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      settings.Bucket,
			Description: "logging alert configuration",
			History:     uint8(settings.History),
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create bucket %q: %w", settings.Bucket, err)
		}
	}

	return &NATSStore{nc: nc, kv: kv, settings: settings}, nil
}

// Get reads one entry.
// Params: key.
// Returns: entry or ErrNotFound.
func (s *NATSStore) Get(_ context.Context, key string) (Entry, error) {
	entry, err := s.kv.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("get %s: %w", key, err)
	}
	return Entry{
		Key:       key,
		Value:     entry.Value(),
		Revision:  entry.Revision(),
		UpdatedAt: entry.Created(),
	}, nil
}

// Put writes value unconditionally.
// Params: key and value bytes.
// Returns: new KV revision.
func (s *NATSStore) Put(_ context.Context, key string, value []byte) (uint64, error) {
	rev, err := s.kv.Put(key, value)
	if err != nil {
		return 0, fmt.Errorf("put %s: %w", key, err)
	}
	return rev, nil
}

// Delete removes key; absent keys are ignored.
// Params: key.
// Returns: delete error.
func (s *NATSStore) Delete(_ context.Context, key string) error {
	if err := s.kv.Delete(key); err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Keys lists keys by prefix.
// Params: key prefix.
// Returns: matching keys in lexical order.
func (s *NATSStore) Keys(_ context.Context, prefix string) ([]string, error) {
	keys, err := s.kv.Keys()
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list keys: %w", err)
	}
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Close closes underlying NATS connection.
// Params: none.
// Returns: nil after connection close.
func (s *NATSStore) Close() error {
	s.nc.Close()
	return nil
}
