package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"logalert/internal/domain"
	"logalert/internal/permanent"
	"logalert/internal/resolver"
	"logalert/internal/session"
)

const (
	// SettingsKey stores the global Logging Alert configuration.
	SettingsKey = "settings"

	notificationPrefix = "notification/"
	definitionPrefix   = "definition/"
)

// NotificationKey returns storage key of per-notification overrides.
// Params: notification id.
// Returns: key.
func NotificationKey(id string) string { return notificationPrefix + id }

// DefinitionKey returns storage key of notification title/description.
// Params: notification id.
// Returns: key.
func DefinitionKey(id string) string { return definitionPrefix + id }

type definitionRecord struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// LoadConfiguration reads and decodes one configuration document.
// Params: store and key.
// Returns: configuration, nil when absent, or error; decode failures are permanent.
func LoadConfiguration(ctx context.Context, s Store, key string) (*domain.Configuration, error) {
	entry, err := s.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var cfg domain.Configuration
	if err := json.Unmarshal(entry.Value, &cfg); err != nil {
		return nil, permanent.Mark(fmt.Errorf("decode %s: %w", key, err))
	}
	return &cfg, nil
}

// SaveConfiguration encodes and writes one configuration document.
// Params: store, key and configuration.
// Returns: encode or write error; encode failures are permanent.
func SaveConfiguration(ctx context.Context, s Store, key string, cfg domain.Configuration) error {
	body, err := json.Marshal(cfg)
	if err != nil {
		return permanent.Mark(fmt.Errorf("encode %s: %w", key, err))
	}
	if _, err := s.Put(ctx, key, body); err != nil {
		return err
	}
	return nil
}

// Persister adapts store key to session persist callback.
// Params: store and key.
// Returns: persist function writing the draft as-is.
func Persister(s Store, key string) session.PersistFunc {
	return func(ctx context.Context, cfg domain.Configuration) error {
		return SaveConfiguration(ctx, s, key, cfg)
	}
}

type defaultsSource struct {
	store Store
}

// DefaultsSource adapts store to global defaults source.
// Params: store.
// Returns: source reporting absent keys as nil configuration.
func DefaultsSource(s Store) resolver.DefaultsSource {
	return defaultsSource{store: s}
}

func (d defaultsSource) FetchDefaults(ctx context.Context, key string) (*domain.Configuration, error) {
	return LoadConfiguration(ctx, d.store, key)
}

// LoadNotification reads definition and overrides of one notification.
// Params: store and notification id.
// Returns: notification, found flag, or error.
func LoadNotification(ctx context.Context, s Store, id string) (domain.Notification, bool, error) {
	entry, err := s.Get(ctx, DefinitionKey(id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.Notification{}, false, nil
		}
		return domain.Notification{}, false, err
	}
	var record definitionRecord
	if err := json.Unmarshal(entry.Value, &record); err != nil {
		return domain.Notification{}, false, permanent.Mark(fmt.Errorf("decode definition %s: %w", id, err))
	}
	cfg, err := LoadConfiguration(ctx, s, NotificationKey(id))
	if err != nil {
		return domain.Notification{}, false, err
	}
	out := domain.Notification{ID: id, Title: record.Title, Description: record.Description}
	if cfg != nil {
		out.Config = *cfg
	}
	return out, true, nil
}

// SaveDefinition writes notification title and description.
// Params: store and notification; overrides are persisted by the edit session.
// Returns: write error.
func SaveDefinition(ctx context.Context, s Store, n domain.Notification) error {
	body, err := json.Marshal(definitionRecord{Title: n.Title, Description: n.Description})
	if err != nil {
		return permanent.Mark(fmt.Errorf("encode definition %s: %w", n.ID, err))
	}
	if _, err := s.Put(ctx, DefinitionKey(n.ID), body); err != nil {
		return err
	}
	return nil
}

// DeleteNotification removes definition and overrides.
// Params: store and notification id.
// Returns: first delete error.
func DeleteNotification(ctx context.Context, s Store, id string) error {
	if err := s.Delete(ctx, NotificationKey(id)); err != nil {
		return err
	}
	return s.Delete(ctx, DefinitionKey(id))
}

// ListNotificationIDs lists ids of stored notification definitions.
// Params: store.
// Returns: ids in lexical order.
func ListNotificationIDs(ctx context.Context, s Store) ([]string, error) {
	keys, err := s.Keys(ctx, definitionPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, definitionPrefix))
	}
	return ids, nil
}
