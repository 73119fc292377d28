package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"logalert/internal/catalog"
	"logalert/internal/config"
	"logalert/internal/domain"
	"logalert/internal/logging"
	"logalert/internal/resolver"
	"logalert/internal/session"
	"logalert/internal/store"
)

func newTestManager(t *testing.T, cfg config.Config) (*Manager, store.Store) {
	t.Helper()
	st := store.NewMemoryStore(time.Now)
	m, err := NewManager(cfg, logging.Discard(), st)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m, st
}

func seededConfig() config.Config {
	cfg := config.Default()
	cfg.Settings = domain.Configuration{}.Set(domain.FieldSeverity, domain.SeverityHigh).Set(domain.FieldAlertTag, "Global")
	cfg.Notifications = []config.NotificationSeed{{
		ID:     "n1",
		Title:  "Brute force",
		Config: domain.Configuration{}.Set(domain.FieldAggregationTime, 5),
	}}
	return cfg
}

func TestManagerInitSeedsEmptyStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, st := newTestManager(t, seededConfig())
	if err := m.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	stored, err := store.LoadConfiguration(ctx, st, store.SettingsKey)
	if err != nil || stored == nil {
		t.Fatalf("expected seeded settings, cfg=%v err=%v", stored, err)
	}
	if got, _ := m.Settings().Persisted().Get(domain.FieldAlertTag); got != "Global" {
		t.Fatalf("expected settings session to load seed, got %v", got)
	}
	notification, err := m.Notification(ctx, "n1")
	if err != nil {
		t.Fatalf("notification: %v", err)
	}
	if notification.Title != "Brute force" || !notification.Config.Defined(domain.FieldAggregationTime) {
		t.Fatalf("unexpected seeded notification %+v", notification)
	}
}

func TestManagerSeedKeepsStoredDocuments(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, st := newTestManager(t, seededConfig())
	existing := domain.Configuration{}.Set(domain.FieldAlertTag, "Stored")
	if err := store.SaveConfiguration(ctx, st, store.SettingsKey, existing); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := m.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if got, _ := m.Settings().Persisted().Get(domain.FieldAlertTag); got != "Stored" {
		t.Fatalf("expected stored settings to win over seed, got %v", got)
	}
}

func TestManagerNotificationInheritsGlobalDefaults(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _ := newTestManager(t, seededConfig())
	if err := m.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := m.Preload(ctx); err != nil {
		t.Fatalf("preload: %v", err)
	}
	if state, _ := m.GlobalDefaultsState(); state != resolver.GlobalLoaded {
		t.Fatalf("expected loaded global defaults, got %s", state)
	}

	summary, err := m.NotificationSummary(ctx, "n1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	for _, row := range summary.Rows {
		if row.Field == domain.FieldAlertTag && (row.Value != "Global" || row.Source != resolver.LayerGlobal) {
			t.Fatalf("expected global alert tag, got %+v", row)
		}
		if row.Field == domain.FieldAggregationTime && (row.Value != "5" || row.Source != resolver.LayerDraft) {
			t.Fatalf("expected notification override, got %+v", row)
		}
	}
	if !m.Catalogs().Streams.Snapshot().Ready() {
		t.Fatalf("expected stream catalog loaded")
	}
}

func TestManagerSettingsSavePublishesGlobalLayer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, st := newTestManager(t, seededConfig())
	if err := m.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	settings := m.Settings()
	if _, err := settings.Open(session.AllowAll{}); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := settings.Edit(domain.FieldAlertTag, "Edited"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if err := settings.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}

	stored, err := store.LoadConfiguration(ctx, st, store.SettingsKey)
	if err != nil || stored == nil {
		t.Fatalf("load: cfg=%v err=%v", stored, err)
	}
	if got, _ := stored.Get(domain.FieldAlertTag); got != "Edited" {
		t.Fatalf("expected stored edit, got %v", got)
	}
	form, err := m.NotificationForm(ctx, "n1")
	if err != nil {
		t.Fatalf("form: %v", err)
	}
	for _, row := range form.Rows {
		if row.Field == domain.FieldAlertTag && row.Value != "Edited" {
			t.Fatalf("expected saved settings as global layer, got %+v", row)
		}
	}
}

func TestManagerNotificationSessionPersists(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, st := newTestManager(t, seededConfig())
	if err := m.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	sess, err := m.NotificationSession(ctx, "n1")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if _, err := sess.Open(session.AllowAll{}); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := sess.Edit(domain.FieldSplitFields, []string{"src_ip"}); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if err := sess.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}
	stored, err := store.LoadConfiguration(ctx, st, store.NotificationKey("n1"))
	if err != nil || stored == nil || !stored.Defined(domain.FieldSplitFields) {
		t.Fatalf("expected persisted split fields, cfg=%v err=%v", stored, err)
	}
	again, _ := m.NotificationSession(ctx, "n1")
	if again != sess {
		t.Fatalf("expected cached session per notification")
	}
}

func TestManagerDefinitionLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _ := newTestManager(t, config.Default())

	if _, err := m.Notification(ctx, "n2"); !errors.Is(err, domain.ErrUnknownNotification) {
		t.Fatalf("expected unknown notification, got %v", err)
	}
	if _, err := m.PutDefinition(ctx, domain.Notification{ID: "bad id"}); !errors.Is(err, domain.ErrInvalidNotificationID) {
		t.Fatalf("expected invalid id error, got %v", err)
	}
	created, err := m.PutDefinition(ctx, domain.Notification{ID: "n2", Title: "First"})
	if err != nil || !created {
		t.Fatalf("expected creation, created=%v err=%v", created, err)
	}
	created, err = m.PutDefinition(ctx, domain.Notification{ID: "n2", Title: "Second", Description: "d"})
	if err != nil || created {
		t.Fatalf("expected update, created=%v err=%v", created, err)
	}
	details, err := m.NotificationDetails(ctx, "n2")
	if err != nil || details.Title != "Second" {
		t.Fatalf("unexpected details %+v err=%v", details, err)
	}
	list, err := m.ListNotifications(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one notification, got %v err=%v", list, err)
	}

	sess, _ := m.NotificationSession(ctx, "n2")
	if _, err := sess.Open(session.AllowAll{}); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := m.DeleteNotification(ctx, "n2"); !errors.Is(err, session.ErrInvalidState) {
		t.Fatalf("expected delete refusal while open, got %v", err)
	}
	if err := sess.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := m.DeleteNotification(ctx, "n2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.Notification(ctx, "n2"); !errors.Is(err, domain.ErrUnknownNotification) {
		t.Fatalf("expected deleted notification to be unknown, got %v", err)
	}
	if _, err := sess.Open(session.AllowAll{}); !errors.Is(err, session.ErrRetired) {
		t.Fatalf("expected stale session of deleted notification to refuse open, got %v", err)
	}
}

// blockingPutStore holds settings writes until release is closed.
type blockingPutStore struct {
	store.Store
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingPutStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	if key == store.SettingsKey {
		s.once.Do(func() { close(s.started) })
		<-s.release
	}
	return s.Store.Put(ctx, key, value)
}

func TestManagerLateSettingsSaveStaysConsistent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := &blockingPutStore{Store: store.NewMemoryStore(time.Now), started: make(chan struct{}), release: make(chan struct{})}
	m, err := NewManager(config.Default(), logging.Discard(), st)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := m.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	settings := m.Settings()
	_, _ = settings.Open(session.AllowAll{})
	_ = settings.Edit(domain.FieldAlertTag, "first")
	done := make(chan error, 1)
	go func() { done <- settings.Save(ctx) }()
	<-st.started
	if err := settings.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	close(st.release)
	if err := <-done; !errors.Is(err, session.ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}

	stored, err := store.LoadConfiguration(ctx, st, store.SettingsKey)
	if err != nil || stored == nil {
		t.Fatalf("expected stored settings, cfg=%v err=%v", stored, err)
	}
	if got, _ := stored.Get(domain.FieldAlertTag); got != "first" {
		t.Fatalf("expected stored alert_tag first, got %v", got)
	}
	if got, _ := settings.Persisted().Get(domain.FieldAlertTag); got != "first" {
		t.Fatalf("expected settings session to follow store, got %v", got)
	}
	global, ok := m.notifyResolver.Global()
	if !ok {
		t.Fatalf("expected published global layer")
	}
	if got, _ := global.Get(domain.FieldAlertTag); got != "first" {
		t.Fatalf("expected notification global layer to follow store, got %v", got)
	}
}

func TestManagerApplyConfigPublishesSettingsSeed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := seededConfig()
	cfg.Settings = domain.Configuration{}
	m, _ := newTestManager(t, cfg)
	if err := m.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := m.Preload(ctx); err != nil {
		t.Fatalf("preload: %v", err)
	}

	next := seededConfig()
	if err := m.ApplyConfig(ctx, next); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got, _ := m.Settings().Persisted().Get(domain.FieldAlertTag); got != "Global" {
		t.Fatalf("expected settings session to pick up reload seed, got %v", got)
	}
	summary, err := m.NotificationSummary(ctx, "n1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	for _, row := range summary.Rows {
		if row.Field == domain.FieldAlertTag {
			if row.Value != "Global" || row.Source != resolver.LayerGlobal {
				t.Fatalf("expected alert tag from reload seed, got %+v", row)
			}
			return
		}
	}
	t.Fatalf("expected alert tag row in summary")
}

func TestManagerApplyConfigRebuildsCatalogs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _ := newTestManager(t, config.Default())
	if err := m.Preload(ctx); err != nil {
		t.Fatalf("preload: %v", err)
	}

	next := config.Default()
	next.Catalog.Streams.Options = []config.CatalogOptionConfig{{Label: "Security", Value: "s1"}}
	next.Notifications = []config.NotificationSeed{{ID: "late", Title: "Added on reload"}}
	if err := m.ApplyConfig(ctx, next); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if m.Catalogs().Streams.Snapshot().Status != catalog.StatusLoading {
		t.Fatalf("expected rebuilt catalog to start loading")
	}
	if err := m.Catalogs().LoadAll(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if label, ok := m.Catalogs().Streams.Snapshot().Lookup("s1"); !ok || label != "Security" {
		t.Fatalf("expected reloaded stream option, got %q", label)
	}
	if _, err := m.Notification(ctx, "late"); err != nil {
		t.Fatalf("expected seeded notification after reload: %v", err)
	}

	restart := next
	restart.Service.Mode = config.StoreModeSQLite
	if err := m.ApplyConfig(ctx, restart); err == nil {
		t.Fatalf("expected restart-required error")
	}
}
