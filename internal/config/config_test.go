package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"logalert/internal/domain"
)

const (
	sqliteServiceSection = `[service]
name = "la"
mode = "sqlite"`
	settingsSeedSection = `[settings]
severity = "high"
alert_tag = "Seeded"
aggregation_time = 0
split_fields = []`
)

func TestLoadSnapshotDefaults(t *testing.T) {
	t.Parallel()

	cfg := mustLoadSnapshot(t, `[service]
name = "la"`)

	if cfg.Service.Mode != StoreModeMemory {
		t.Fatalf("expected memory mode by default, got %q", cfg.Service.Mode)
	}
	if cfg.HTTP.Listen != defaultHTTPListen || cfg.HTTP.APIPrefix != "/api" {
		t.Fatalf("unexpected http defaults %+v", cfg.HTTP)
	}
	if cfg.HTTP.PermissionsHeader != "X-Permissions" {
		t.Fatalf("unexpected permissions header %q", cfg.HTTP.PermissionsHeader)
	}
	if !cfg.Log.Console.Enabled {
		t.Fatalf("expected console sink enabled when no sink is configured")
	}
	if len(cfg.Fields.SettingsSet) != len(domain.SettingsFields()) || len(cfg.Fields.NotifySet) != len(domain.NotificationFields()) {
		t.Fatalf("expected default field sets, got %v / %v", cfg.Fields.SettingsSet, cfg.Fields.NotifySet)
	}
	if cfg.Catalog.Streams.Source != CatalogSourceStatic || len(cfg.Catalog.Streams.Options) != 1 {
		t.Fatalf("expected default stream option, got %+v", cfg.Catalog.Streams)
	}
	if cfg.Store.NATS.ClientName != "la" {
		t.Fatalf("expected derived nats client name, got %q", cfg.Store.NATS.ClientName)
	}
}

func TestLoadSnapshotSettingsSeed(t *testing.T) {
	t.Parallel()

	cfg := mustLoadSnapshot(t, joinSections(sqliteServiceSection, settingsSeedSection))

	if got, _ := cfg.Settings.Get(domain.FieldSeverity); got != domain.SeverityHigh {
		t.Fatalf("expected HIGH seed severity, got %v", got)
	}
	if got, ok := cfg.Settings.Get(domain.FieldAggregationTime); !ok || got != 0 {
		t.Fatalf("expected explicit zero aggregation_time, got %v ok=%v", got, ok)
	}
	if !cfg.Settings.Defined(domain.FieldSplitFields) {
		t.Fatalf("expected explicit empty split_fields")
	}
	if cfg.Settings.Defined(domain.FieldLogBody) {
		t.Fatalf("expected log_body to fall through")
	}
	if cfg.Store.SQLite.BusyTimeout <= 0 {
		t.Fatalf("expected derived busy timeout")
	}
}

func TestLoadSnapshotRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"mode":        "[service]\nmode = \"redis\"",
		"severity":    "[settings]\nseverity = \"CRITICAL\"",
		"negative":    "[settings]\nlimit_overflow = -1",
		"log_body":    "[settings]\nlog_body = \"${if x} y\"",
		"field set":   "[fields]\nsettings = [\"severity\", \"nope\"]",
		"catalog":     "[catalog.fields]\nsource = \"ldap\"",
		"catalog url": "[catalog.fields]\nsource = \"http\"",
		"language":    "[catalog]\nlanguage = \"???\"",
		"unknown key": "[service]\nnmae = \"typo\"",
		"log sink":    "[log.file]\nenabled = true",
		"nats bucket": "[service]\nmode = \"nats\"\n\n[store.nats]\nbucket = \"a.b\"",
		"prefix":      "[http]\napi_prefix = \"/\"",
		"notify id":   "[notification.\"a b\"]\ntitle = \"x\"",
	}
	for name, content := range cases {
		if _, err := loadSnapshotFromContent(t, content); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadSnapshotNotificationSeeds(t *testing.T) {
	t.Parallel()

	cfg := mustLoadSnapshot(t, joinSections(`[notification.b]
title = "Second"`, `[notification.a]
title = "First"
description = "desc"

[notification.a.config]
severity = "MEDIUM"
split_fields = ["src_ip"]`))

	if len(cfg.Notifications) != 2 || cfg.Notifications[0].ID != "a" || cfg.Notifications[1].ID != "b" {
		t.Fatalf("expected sorted notification seeds, got %+v", cfg.Notifications)
	}
	if got, _ := cfg.Notifications[0].Config.Get(domain.FieldSeverity); got != domain.SeverityMedium {
		t.Fatalf("unexpected seed severity %v", got)
	}
}

func TestLoadSnapshotFromDirMergesFragments(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	writeConfigFile(t, filepath.Join(tmpDir, "10-base.toml"), joinSections(
		sqliteServiceSection,
		settingsSeedSection,
		`[store.nats]
allow_create_bucket = true`,
	))
	writeConfigFile(t, filepath.Join(tmpDir, "20-override.toml"), joinSections(
		`[settings]
alert_tag = "Override"`,
		`[store.nats]
allow_create_bucket = false`,
		`[notification.n1]
title = "From dir"`,
	))
	writeConfigFile(t, filepath.Join(tmpDir, "ignored.txt"), "not toml")

	cfg, err := LoadSnapshot(ConfigSource{Dir: tmpDir})
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if got, _ := cfg.Settings.Get(domain.FieldAlertTag); got != "Override" {
		t.Fatalf("expected later fragment to override alert_tag, got %v", got)
	}
	if got, _ := cfg.Settings.Get(domain.FieldSeverity); got != domain.SeverityHigh {
		t.Fatalf("expected earlier fragment severity to survive, got %v", got)
	}
	if cfg.Store.NATS.AllowCreateBucket {
		t.Fatalf("expected explicit false to override allow_create_bucket")
	}
	if cfg.Service.Mode != StoreModeSQLite || len(cfg.Notifications) != 1 {
		t.Fatalf("unexpected merged config %+v", cfg)
	}
}

func TestLoadSnapshotFromDirRejectsDuplicateNotifications(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	writeConfigFile(t, filepath.Join(tmpDir, "a.toml"), "[notification.n1]\ntitle = \"a\"\n")
	writeConfigFile(t, filepath.Join(tmpDir, "b.toml"), "[notification.n1]\ntitle = \"b\"\n")

	_, err := LoadSnapshot(ConfigSource{Dir: tmpDir})
	if err == nil || !strings.Contains(err.Error(), "more than once") {
		t.Fatalf("expected duplicate notification error, got %v", err)
	}
}

func TestFromCLI(t *testing.T) {
	t.Parallel()

	if _, err := FromCLI("", ""); err == nil {
		t.Fatalf("expected missing source error")
	}
	if _, err := FromCLI("a.toml", "dir"); err == nil {
		t.Fatalf("expected ambiguous source error")
	}
	src, err := FromCLI(" a.toml ", "")
	if err != nil || src.File != "a.toml" || src.Path() != "a.toml" {
		t.Fatalf("unexpected source %+v err=%v", src, err)
	}
}

func TestRestartRequired(t *testing.T) {
	t.Parallel()

	current := Default()
	next := current
	next.Settings = next.Settings.Set(domain.FieldAlertTag, "x")
	if err := RestartRequired(current, next); err != nil {
		t.Fatalf("settings change must be reloadable: %v", err)
	}
	next.Service.Mode = StoreModeSQLite
	if err := RestartRequired(current, next); err == nil {
		t.Fatalf("expected mode change to require restart")
	}

	narrowed := current
	narrowed.Fields.NotifySet = domain.FieldSet{domain.FieldSeverity}
	if err := RestartRequired(current, narrowed); err == nil {
		t.Fatalf("expected field set change to require restart")
	}
}

func mustLoadSnapshot(t *testing.T, content string) Config {
	t.Helper()
	cfg, err := loadSnapshotFromContent(t, content)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	return cfg
}

func loadSnapshotFromContent(t *testing.T, content string) (Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	writeConfigFile(t, path, content)
	return LoadSnapshot(ConfigSource{File: path})
}

func joinSections(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		nonEmpty = append(nonEmpty, trimmed)
	}
	return strings.Join(nonEmpty, "\n\n") + "\n"
}

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}
