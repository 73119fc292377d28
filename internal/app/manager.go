package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"logalert/internal/catalog"
	"logalert/internal/config"
	"logalert/internal/domain"
	"logalert/internal/resolver"
	"logalert/internal/session"
	"logalert/internal/store"
	"logalert/internal/view"

	"golang.org/x/sync/errgroup"
)

const settingsTitle = "Logging Alert"

// Manager coordinates edit sessions, resolvers, catalogs and the configuration store.
// Params: runtime config, logger and store backend.
// Returns: shared state behind the HTTP API and CLI.
type Manager struct {
	mu     sync.RWMutex
	cfg    config.Config
	logger *slog.Logger
	store  store.Store

	settingsResolver *resolver.Resolver
	notifyResolver   *resolver.Resolver
	settings         *session.Session
	catalogs         catalog.FieldCatalog
	notifications    map[string]*notificationEntry
}

type notificationEntry struct {
	mu          sync.RWMutex
	title       string
	description string
	session     *session.Session
}

func (e *notificationEntry) definition(id string) domain.Notification {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return domain.Notification{ID: id, Title: e.title, Description: e.description, Config: e.session.Persisted()}
}

// NewManager creates manager with closed sessions and unloaded catalogs.
// Params: validated config, logger and store.
// Returns: manager or setup error.
func NewManager(cfg config.Config, logger *slog.Logger, st store.Store) (*Manager, error) {
	if st == nil {
		return nil, errors.New("manager store is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		cfg:              cfg,
		logger:           logger,
		store:            st,
		settingsResolver: resolver.New(cfg.Fields.SettingsSet, domain.BuiltinDefaults()),
		notifyResolver:   resolver.New(cfg.Fields.NotifySet, domain.BuiltinDefaults()),
		catalogs:         buildCatalogs(cfg.Catalog, logger),
		notifications:    make(map[string]*notificationEntry),
	}
	settings, err := session.New(session.Options{
		Name:       store.SettingsKey,
		Permission: session.PermissionSettingsEdit,
		Resolver:   m.settingsResolver,
		Persist:    m.persistSettings,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	m.settings = settings
	return m, nil
}

// persistSettings writes global settings and publishes them as the notification global layer.
func (m *Manager) persistSettings(ctx context.Context, cfg domain.Configuration) error {
	if err := store.SaveConfiguration(ctx, m.store, store.SettingsKey, cfg); err != nil {
		return err
	}
	published := cfg.Clone()
	m.notifyResolver.SetGlobalDefaults(&published)
	return nil
}

// Init seeds empty stores from config and loads persisted settings.
// Params: context bounding store calls.
// Returns: first store error.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.RLock()
	cfg := m.cfg
	m.mu.RUnlock()

	if _, err := m.seed(ctx, cfg); err != nil {
		return err
	}
	persisted, err := store.LoadConfiguration(ctx, m.store, store.SettingsKey)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if persisted != nil {
		if err := m.settings.Reset(*persisted); err != nil {
			return err
		}
	}
	return nil
}

// seed writes config seeds for absent documents.
// Returns: true when the settings document was written.
func (m *Manager) seed(ctx context.Context, cfg config.Config) (bool, error) {
	settingsSeeded := false
	if !cfg.Settings.IsEmpty() {
		existing, err := store.LoadConfiguration(ctx, m.store, store.SettingsKey)
		if err != nil {
			return false, fmt.Errorf("seed settings: %w", err)
		}
		if existing == nil {
			if err := store.SaveConfiguration(ctx, m.store, store.SettingsKey, cfg.Settings); err != nil {
				return false, fmt.Errorf("seed settings: %w", err)
			}
			settingsSeeded = true
			m.logger.Info("settings seeded from config")
		}
	}
	for _, seed := range cfg.Notifications {
		_, found, err := store.LoadNotification(ctx, m.store, seed.ID)
		if err != nil {
			return settingsSeeded, fmt.Errorf("seed notification %s: %w", seed.ID, err)
		}
		if found {
			continue
		}
		if err := store.SaveConfiguration(ctx, m.store, store.NotificationKey(seed.ID), seed.Config); err != nil {
			return settingsSeeded, fmt.Errorf("seed notification %s: %w", seed.ID, err)
		}
		notification := domain.Notification{ID: seed.ID, Title: seed.Title, Description: seed.Description}
		if err := store.SaveDefinition(ctx, m.store, notification); err != nil {
			return settingsSeeded, fmt.Errorf("seed notification %s: %w", seed.ID, err)
		}
		m.logger.Info("notification seeded from config", "notification", seed.ID)
	}
	return settingsSeeded, nil
}

// Preload fetches global defaults and both catalogs concurrently.
// Params: context bounding provider and store calls.
// Returns: first fetch error; each failure is logged and does not block the others.
func (m *Manager) Preload(ctx context.Context) error {
	var group errgroup.Group
	group.Go(func() error {
		err := m.notifyResolver.LoadGlobalDefaults(ctx, store.DefaultsSource(m.store), store.SettingsKey)
		if err != nil {
			m.logger.Warn("global defaults unavailable, falling back to builtin", "error", err.Error())
		}
		return err
	})
	group.Go(func() error {
		err := m.Catalogs().LoadAll(ctx)
		if err != nil {
			m.logger.Warn("catalog load failed", "error", err.Error())
		}
		return err
	})
	return group.Wait()
}

// Config returns active config snapshot.
func (m *Manager) Config() config.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Catalogs returns active stream and field catalogs.
func (m *Manager) Catalogs() catalog.FieldCatalog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.catalogs
}

// Settings returns global settings edit session.
func (m *Manager) Settings() *session.Session {
	return m.settings
}

// GlobalDefaultsState reports the notification global layer state.
func (m *Manager) GlobalDefaultsState() (resolver.GlobalState, error) {
	return m.notifyResolver.GlobalState()
}

// SettingsForm renders the settings panel from the session's effective configuration.
func (m *Manager) SettingsForm() view.Form {
	return view.BuildForm(settingsTitle, m.settings.Effective(), m.Catalogs().Streams.Snapshot())
}

// NotificationSession returns edit session of one notification.
// Params: context and notification id.
// Returns: session, invalid id, unknown notification or store error.
func (m *Manager) NotificationSession(ctx context.Context, id string) (*session.Session, error) {
	entry, err := m.notification(ctx, id)
	if err != nil {
		return nil, err
	}
	return entry.session, nil
}

// Notification returns definition with persisted overrides.
func (m *Manager) Notification(ctx context.Context, id string) (domain.Notification, error) {
	entry, err := m.notification(ctx, id)
	if err != nil {
		return domain.Notification{}, err
	}
	return entry.definition(id), nil
}

// NotificationForm renders the notification form from the session's effective configuration.
func (m *Manager) NotificationForm(ctx context.Context, id string) (view.Form, error) {
	entry, err := m.notification(ctx, id)
	if err != nil {
		return view.Form{}, err
	}
	title := entry.definition(id).DisplayTitle()
	return view.BuildForm(title, entry.session.Effective(), m.Catalogs().Streams.Snapshot()), nil
}

// NotificationSummary renders the summary card from persisted overrides.
func (m *Manager) NotificationSummary(ctx context.Context, id string) (view.Summary, error) {
	notification, err := m.Notification(ctx, id)
	if err != nil {
		return view.Summary{}, err
	}
	return view.BuildSummary(notification, m.notifyResolver.Effective(notification.Config)), nil
}

// NotificationDetails renders the detail panel from persisted overrides.
func (m *Manager) NotificationDetails(ctx context.Context, id string) (view.Details, error) {
	notification, err := m.Notification(ctx, id)
	if err != nil {
		return view.Details{}, err
	}
	return view.BuildDetails(notification, m.notifyResolver.Effective(notification.Config)), nil
}

// ListNotifications returns stored notifications in id order.
func (m *Manager) ListNotifications(ctx context.Context) ([]domain.Notification, error) {
	ids, err := store.ListNotificationIDs(ctx, m.store)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	out := make([]domain.Notification, 0, len(ids))
	for _, id := range ids {
		notification, err := m.Notification(ctx, id)
		if errors.Is(err, domain.ErrUnknownNotification) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, notification)
	}
	return out, nil
}

// PutDefinition creates or updates notification title and description.
// Params: context and notification; Config is ignored, overrides go through the edit session.
// Returns: created flag or validation/store error.
func (m *Manager) PutDefinition(ctx context.Context, notification domain.Notification) (bool, error) {
	if !domain.ValidNotificationID(notification.ID) {
		return false, fmt.Errorf("%w: %q", domain.ErrInvalidNotificationID, notification.ID)
	}
	entry, err := m.notification(ctx, notification.ID)
	created := errors.Is(err, domain.ErrUnknownNotification)
	if err != nil && !created {
		return false, err
	}
	if err := store.SaveDefinition(ctx, m.store, notification); err != nil {
		return false, fmt.Errorf("save definition %s: %w", notification.ID, err)
	}
	if created {
		m.logger.Info("notification created", "notification", notification.ID)
		return true, nil
	}
	entry.mu.Lock()
	entry.title = notification.Title
	entry.description = notification.Description
	entry.mu.Unlock()
	return false, nil
}

// DeleteNotification removes notification definition and overrides.
// Params: context and notification id.
// Returns: ErrInvalidState while its session is open, lookup or store error.
func (m *Manager) DeleteNotification(ctx context.Context, id string) error {
	entry, err := m.notification(ctx, id)
	if err != nil {
		return err
	}
	if err := entry.session.Retire(); err != nil {
		return fmt.Errorf("notification %s: %w", id, err)
	}
	err = store.DeleteNotification(ctx, m.store, id)
	// Dropped even on failure so the next lookup reloads a live session from the store.
	m.mu.Lock()
	if m.notifications[id] == entry {
		delete(m.notifications, id)
	}
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("delete notification %s: %w", id, err)
	}
	m.logger.Info("notification deleted", "notification", id)
	return nil
}

func (m *Manager) notification(ctx context.Context, id string) (*notificationEntry, error) {
	if !domain.ValidNotificationID(id) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidNotificationID, id)
	}
	m.mu.RLock()
	entry, ok := m.notifications[id]
	m.mu.RUnlock()
	if ok {
		return entry, nil
	}

	notification, found, err := store.LoadNotification(ctx, m.store, id)
	if err != nil {
		return nil, fmt.Errorf("load notification %s: %w", id, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownNotification, id)
	}
	sess, err := session.New(session.Options{
		Name:       store.NotificationKey(id),
		Permission: session.PermissionNotificationsEdit,
		Persisted:  notification.Config,
		Resolver:   m.notifyResolver,
		Persist:    store.Persister(m.store, store.NotificationKey(id)),
		Logger:     m.logger,
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.notifications[id]; ok {
		return existing, nil
	}
	entry = &notificationEntry{title: notification.Title, description: notification.Description, session: sess}
	m.notifications[id] = entry
	return entry, nil
}

// ApplyConfig swaps reloadable parts of the config.
// Params: context for seeding and next validated snapshot.
// Returns: restart-required or seed error; catalogs are rebuilt unloaded.
func (m *Manager) ApplyConfig(ctx context.Context, next config.Config) error {
	m.mu.RLock()
	current := m.cfg
	m.mu.RUnlock()
	if err := config.RestartRequired(current, next); err != nil {
		return err
	}
	settingsSeeded, err := m.seed(ctx, next)
	if settingsSeeded {
		m.publishSeededSettings(next.Settings)
	}
	if err != nil {
		return err
	}
	catalogs := buildCatalogs(next.Catalog, m.logger)
	m.mu.Lock()
	m.cfg = next
	m.catalogs = catalogs
	m.mu.Unlock()
	return nil
}

// publishSeededSettings exposes a settings seed written on reload to both surfaces.
func (m *Manager) publishSeededSettings(seed domain.Configuration) {
	published := seed.Clone()
	m.notifyResolver.SetGlobalDefaults(&published)
	if err := m.settings.Reset(seed); err != nil {
		// The open draft keeps editing from the old base; its save replaces the seed.
		m.logger.Warn("settings seed not applied to open session", "error", err.Error())
	}
}

// buildCatalogs creates stream and message-field catalogs from config.
func buildCatalogs(cfg config.CatalogConfig, logger *slog.Logger) catalog.FieldCatalog {
	return catalog.FieldCatalog{
		Streams: catalog.New("streams", buildProvider(cfg.Streams), cfg.LanguageTag, logger),
		Fields:  catalog.New("fields", buildProvider(cfg.Fields), cfg.LanguageTag, logger),
	}
}

func buildProvider(src config.CatalogSourceConfig) catalog.Provider {
	if src.Source == config.CatalogSourceHTTP {
		return catalog.HTTPProvider{
			URL:       src.URL,
			ItemsPath: src.ItemsPath,
			LabelPath: src.LabelPath,
			ValuePath: src.ValuePath,
			TypePath:  src.TypePath,
			Headers:   src.Headers,
			Client:    &http.Client{Timeout: time.Duration(src.TimeoutSec) * time.Second},
		}
	}
	options := make([]catalog.Option, 0, len(src.Options))
	for _, option := range src.Options {
		options = append(options, catalog.Option{Label: option.Label, Value: option.Value})
	}
	return catalog.StaticProvider{Options: options}
}
