package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"logalert/internal/domain"
	"logalert/internal/templatefmt"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"
)

const (
	defaultServiceName        = "logalert"
	defaultHTTPListen         = ":8080"
	defaultHealthPath         = "/healthz"
	defaultReadyPath          = "/readyz"
	defaultAPIPrefix          = "/api"
	defaultPermissionsHeader  = "X-Permissions"
	defaultMaxBodyBytes       = 1 << 20
	defaultShutdownSeconds    = 10
	defaultInitTimeoutSeconds = 10
	defaultReloadDebounceMS   = 250
	defaultSQLitePath         = "data/logalert.db"
	defaultSQLiteBusyMS       = 5000
	defaultNATSURL            = "nats://127.0.0.1:4222"
	defaultNATSBucket         = "logalert"
	defaultNATSHistory        = 1
	defaultCatalogLanguage    = "en"
	defaultCatalogTimeoutSec  = 10

	// StoreModeMemory keeps configuration documents in process memory.
	StoreModeMemory = "memory"
	// StoreModeSQLite keeps configuration documents in a local SQLite file.
	StoreModeSQLite = "sqlite"
	// StoreModeNATS keeps configuration documents in a JetStream KV bucket.
	StoreModeNATS = "nats"

	// CatalogSourceStatic serves options listed in config.
	CatalogSourceStatic = "static"
	// CatalogSourceHTTP loads options from host REST API.
	CatalogSourceHTTP = "http"
)

// storeModeDescriptor stores validation hook for one store backend.
// Params: backend-specific validator.
// Returns: descriptor used by validateConfig.
type storeModeDescriptor struct {
	validate func(cfg Config) error
}

var (
	storeModeOrder    = []string{StoreModeMemory, StoreModeSQLite, StoreModeNATS}
	storeModeRegistry = map[string]storeModeDescriptor{
		StoreModeMemory: {validate: func(Config) error { return nil }},
		StoreModeSQLite: {validate: func(cfg Config) error {
			if strings.TrimSpace(cfg.Store.SQLite.Path) == "" {
				return errors.New("store.sqlite.path is required")
			}
			return nil
		}},
		StoreModeNATS: {validate: func(cfg Config) error {
			if len(cfg.Store.NATS.URL) == 0 {
				return errors.New("store.nats.url is required")
			}
			for i, url := range cfg.Store.NATS.URL {
				if url == "" {
					return fmt.Errorf("store.nats.url[%d] is empty", i)
				}
			}
			if !natsBucketPattern.MatchString(cfg.Store.NATS.Bucket) {
				return fmt.Errorf("store.nats.bucket has unsupported value %q", cfg.Store.NATS.Bucket)
			}
			if cfg.Store.NATS.History < 1 || cfg.Store.NATS.History > 64 {
				return fmt.Errorf("store.nats.history must be in 1..64")
			}
			return nil
		}},
	}

	natsBucketPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// Config is one validated service configuration snapshot.
type Config struct {
	Service       ServiceConfig
	HTTP          HTTPConfig
	Log           LogConfig
	Store         StoreConfig
	Fields        FieldsConfig
	Catalog       CatalogConfig
	Settings      domain.Configuration
	Notifications []NotificationSeed
}

// rawConfig is TOML representation before normalization.
// Params: decoded TOML key/value tree.
// Returns: raw config model for normalization.
type rawConfig struct {
	Service      ServiceConfig                  `toml:"service"`
	HTTP         HTTPConfig                     `toml:"http"`
	Log          LogConfig                      `toml:"log"`
	Store        StoreConfig                    `toml:"store"`
	Fields       FieldsConfig                   `toml:"fields"`
	Catalog      CatalogConfig                  `toml:"catalog"`
	Settings     domain.Configuration           `toml:"settings"`
	Notification map[string]rawNotificationSeed `toml:"notification"`
}

// rawNotificationSeed is one [notification.<id>] table.
type rawNotificationSeed struct {
	Title       string               `toml:"title"`
	Description string               `toml:"description"`
	Config      domain.Configuration `toml:"config"`
}

// ServiceConfig contains service identity and lifecycle settings.
type ServiceConfig struct {
	Name             string `toml:"name"`
	Mode             string `toml:"mode"`
	ReloadEnabled    bool   `toml:"reload_enabled"`
	ReloadDebounceMS int    `toml:"reload_debounce_ms"`
	InitTimeoutSec   int    `toml:"init_timeout_sec"`
}

// HTTPConfig contains API listener settings.
type HTTPConfig struct {
	Listen             string `toml:"listen"`
	HealthPath         string `toml:"health_path"`
	ReadyPath          string `toml:"ready_path"`
	APIPrefix          string `toml:"api_prefix"`
	PermissionsHeader  string `toml:"permissions_header"`
	MaxBodyBytes       int64  `toml:"max_body_bytes"`
	ShutdownTimeoutSec int    `toml:"shutdown_timeout_sec"`
}

// LogConfig contains console and file sink settings.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig configures one logging sink.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// StoreConfig contains backend-specific store settings; service.mode selects one.
type StoreConfig struct {
	SQLite SQLiteStoreConfig `toml:"sqlite"`
	NATS   NATSStoreConfig   `toml:"nats"`
}

// SQLiteStoreConfig configures SQLite-backed store.
type SQLiteStoreConfig struct {
	Path          string        `toml:"path"`
	BusyTimeoutMS int           `toml:"busy_timeout_ms"`
	BusyTimeout   time.Duration `toml:"-"`
}

// NATSStoreConfig configures JetStream KV-backed store.
type NATSStoreConfig struct {
	URL               []string `toml:"url"`
	Bucket            string   `toml:"bucket"`
	AllowCreateBucket bool     `toml:"allow_create_bucket"`
	History           int      `toml:"history"`
	ClientName        string   `toml:"-"`
}

// FieldsConfig overrides the field sets of the settings and notification surfaces.
type FieldsConfig struct {
	Settings     []string        `toml:"settings"`
	Notification []string        `toml:"notification"`
	SettingsSet  domain.FieldSet `toml:"-"`
	NotifySet    domain.FieldSet `toml:"-"`
}

// CatalogConfig configures stream and message-field catalogs.
type CatalogConfig struct {
	Language       string              `toml:"language"`
	LoadTimeoutSec int                 `toml:"load_timeout_sec"`
	Streams        CatalogSourceConfig `toml:"streams"`
	Fields         CatalogSourceConfig `toml:"fields"`
	LanguageTag    language.Tag        `toml:"-"`
}

// CatalogSourceConfig configures one catalog provider.
type CatalogSourceConfig struct {
	Source     string                `toml:"source"`
	Options    []CatalogOptionConfig `toml:"option"`
	URL        string                `toml:"url"`
	ItemsPath  string                `toml:"items_path"`
	LabelPath  string                `toml:"label_path"`
	ValuePath  string                `toml:"value_path"`
	TypePath   string                `toml:"type_path"`
	Headers    map[string]string     `toml:"headers"`
	TimeoutSec int                   `toml:"timeout_sec"`
}

// CatalogOptionConfig is one static catalog option.
type CatalogOptionConfig struct {
	Label string `toml:"label"`
	Value string `toml:"value"`
}

// NotificationSeed is one notification definition created in empty stores.
type NotificationSeed struct {
	ID          string
	Title       string
	Description string
	Config      domain.Configuration
}

// ConfigSource describes file or directory config source.
// Params: exactly one of file path or directory path.
// Returns: normalized source descriptor.
type ConfigSource struct {
	File string
	Dir  string
}

// Path returns watched filesystem path of the source.
// Params: none.
// Returns: file path or directory path.
func (s ConfigSource) Path() string {
	if s.File != "" {
		return s.File
	}
	return s.Dir
}

// FromCLI builds normalized source configuration from input paths.
// Params: optional file and directory arguments.
// Returns: source descriptor or validation error.
func FromCLI(filePath, dirPath string) (ConfigSource, error) {
	filePath = strings.TrimSpace(filePath)
	dirPath = strings.TrimSpace(dirPath)

	if filePath == "" && dirPath == "" {
		return ConfigSource{}, errors.New("either --config-file or --config-dir must be provided")
	}
	if filePath != "" && dirPath != "" {
		return ConfigSource{}, errors.New("config source must be either file or dir")
	}

	if filePath != "" {
		return ConfigSource{File: filePath}, nil
	}
	return ConfigSource{Dir: dirPath}, nil
}

// LoadSnapshot loads and validates configuration from one source.
// Params: source selects file or directory mode.
// Returns: validated config or load/validation error.
func LoadSnapshot(src ConfigSource) (Config, error) {
	var cfg Config
	var err error
	if src.File != "" {
		cfg, err = loadFile(src.File)
	} else {
		cfg, err = loadDir(src.Dir)
	}
	if err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns validated configuration without any source file.
// Params: none.
// Returns: in-memory defaults snapshot.
func Default() Config {
	var cfg Config
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		panic(fmt.Sprintf("builtin service defaults are invalid: %v", err))
	}
	return cfg
}

// configMergeHints carries explicit bool-presence markers used for directory overlays.
// Params: sparse fields decoded from one TOML fragment.
// Returns: merge behavior hints for zero-value bool overrides.
type configMergeHints struct {
	Store storeMergeHints `toml:"store"`
}

// storeMergeHints tracks explicit bool fields in store sections.
type storeMergeHints struct {
	NATS struct {
		AllowCreateBucket *bool `toml:"allow_create_bucket"`
	} `toml:"nats"`
}

// normalizeRawConfig converts raw TOML model to runtime config.
// Params: decoded raw config from file fragment.
// Returns: normalized config snapshot.
func normalizeRawConfig(raw rawConfig) (Config, error) {
	cfg := Config{
		Service:  raw.Service,
		HTTP:     raw.HTTP,
		Log:      raw.Log,
		Store:    raw.Store,
		Fields:   raw.Fields,
		Catalog:  raw.Catalog,
		Settings: raw.Settings,
	}
	if len(raw.Notification) == 0 {
		return cfg, nil
	}

	ids := make([]string, 0, len(raw.Notification))
	for id := range raw.Notification {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	cfg.Notifications = make([]NotificationSeed, 0, len(ids))
	for _, id := range ids {
		body := raw.Notification[id]
		cfg.Notifications = append(cfg.Notifications, NotificationSeed{
			ID:          id,
			Title:       body.Title,
			Description: body.Description,
			Config:      body.Config,
		})
	}
	return cfg, nil
}

// loadFile reads one TOML configuration file.
// Params: file path to config snapshot.
// Returns: decoded config or read/decode error.
func loadFile(path string) (Config, error) {
	cfg, _, err := loadFileForMerge(path)
	return cfg, err
}

// loadFileForMerge reads one TOML file with merge hints.
// Params: file path to config fragment.
// Returns: decoded config plus explicit-bool hints for overlay merge.
func loadFileForMerge(path string) (Config, configMergeHints, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Config{}, configMergeHints{}, fmt.Errorf("read config file %q: %w", path, err)
	}
	var raw rawConfig
	decoder := toml.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&raw); err != nil {
		return Config{}, configMergeHints{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	cfg, err := normalizeRawConfig(raw)
	if err != nil {
		return Config{}, configMergeHints{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	var hints configMergeHints
	if err := toml.Unmarshal(body, &hints); err != nil {
		return Config{}, configMergeHints{}, fmt.Errorf("decode merge hints %q: %w", path, err)
	}
	return cfg, hints, nil
}

// loadDir reads and merges TOML files from one directory.
// Params: directory containing config fragments.
// Returns: merged config snapshot or load/decode error.
func loadDir(dir string) (Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Config{}, fmt.Errorf("read config dir %q: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.ToLower(filepath.Ext(name)) != ".toml" {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	if len(files) == 0 {
		return Config{}, fmt.Errorf("no .toml files found in %q", dir)
	}
	sort.Strings(files)

	var merged Config
	for _, file := range files {
		fragment, hints, err := loadFileForMerge(file)
		if err != nil {
			return Config{}, err
		}
		mergeConfig(&merged, fragment, hints)
	}
	return merged, nil
}

// mergeConfig overlays source onto destination.
// Params: destination config, next fragment and its bool hints.
// Returns: merged configuration side-effect in dst.
func mergeConfig(dst *Config, src Config, hints configMergeHints) {
	if src.Service != (ServiceConfig{}) {
		dst.Service = src.Service
	}
	if src.HTTP != (HTTPConfig{}) {
		dst.HTTP = src.HTTP
	}
	if src.Log != (LogConfig{}) {
		dst.Log = src.Log
	}
	if src.Store.SQLite != (SQLiteStoreConfig{}) {
		dst.Store.SQLite = src.Store.SQLite
	}
	mergeNATSStore(&dst.Store.NATS, src.Store.NATS, hints.Store)
	if len(src.Fields.Settings) > 0 {
		dst.Fields.Settings = append([]string(nil), src.Fields.Settings...)
	}
	if len(src.Fields.Notification) > 0 {
		dst.Fields.Notification = append([]string(nil), src.Fields.Notification...)
	}
	mergeCatalog(&dst.Catalog, src.Catalog)
	for _, field := range domain.Fields() {
		if value, ok := src.Settings.Get(field); ok {
			dst.Settings = dst.Settings.Set(field, value)
		}
	}
	if len(src.Notifications) > 0 {
		dst.Notifications = append(dst.Notifications, src.Notifications...)
	}
}

// mergeNATSStore overlays NATS store fragment preserving sibling fields.
// Params: destination settings, source fragment and bool hints.
// Returns: merged settings side-effect in dst.
func mergeNATSStore(dst *NATSStoreConfig, src NATSStoreConfig, hints storeMergeHints) {
	if len(src.URL) > 0 {
		dst.URL = append([]string(nil), src.URL...)
	}
	if strings.TrimSpace(src.Bucket) != "" {
		dst.Bucket = src.Bucket
	}
	if src.History != 0 {
		dst.History = src.History
	}
	applyBoolMerge(&dst.AllowCreateBucket, src.AllowCreateBucket, hints.NATS.AllowCreateBucket)
}

// mergeCatalog overlays catalog fragment per source.
// Params: destination catalog settings and source fragment.
// Returns: merged catalog settings side-effect in dst.
func mergeCatalog(dst *CatalogConfig, src CatalogConfig) {
	if strings.TrimSpace(src.Language) != "" {
		dst.Language = src.Language
	}
	if src.LoadTimeoutSec != 0 {
		dst.LoadTimeoutSec = src.LoadTimeoutSec
	}
	if hasCatalogSource(src.Streams) {
		dst.Streams = src.Streams
	}
	if hasCatalogSource(src.Fields) {
		dst.Fields = src.Fields
	}
}

func hasCatalogSource(src CatalogSourceConfig) bool {
	return strings.TrimSpace(src.Source) != "" || len(src.Options) > 0 || strings.TrimSpace(src.URL) != ""
}

// applyBoolMerge applies explicit bool values from fragment hints.
// Params: destination bool, decoded value and explicit marker.
// Returns: merged bool side-effect in dst.
func applyBoolMerge(dst *bool, value bool, explicit *bool) {
	if explicit != nil {
		*dst = *explicit
		return
	}
	if value {
		*dst = true
	}
}

// applyDefaults fills omitted settings.
// Params: config pointer.
// Returns: config side-effect with defaults.
func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Service.Name) == "" {
		cfg.Service.Name = defaultServiceName
	}
	cfg.Service.Mode = NormalizeStoreMode(cfg.Service.Mode)
	if cfg.Service.ReloadDebounceMS <= 0 {
		cfg.Service.ReloadDebounceMS = defaultReloadDebounceMS
	}
	if cfg.Service.InitTimeoutSec <= 0 {
		cfg.Service.InitTimeoutSec = defaultInitTimeoutSeconds
	}

	if strings.TrimSpace(cfg.HTTP.Listen) == "" {
		cfg.HTTP.Listen = defaultHTTPListen
	}
	if strings.TrimSpace(cfg.HTTP.HealthPath) == "" {
		cfg.HTTP.HealthPath = defaultHealthPath
	}
	if strings.TrimSpace(cfg.HTTP.ReadyPath) == "" {
		cfg.HTTP.ReadyPath = defaultReadyPath
	}
	if strings.TrimSpace(cfg.HTTP.APIPrefix) == "" {
		cfg.HTTP.APIPrefix = defaultAPIPrefix
	}
	cfg.HTTP.APIPrefix = "/" + strings.Trim(cfg.HTTP.APIPrefix, "/")
	if strings.TrimSpace(cfg.HTTP.PermissionsHeader) == "" {
		cfg.HTTP.PermissionsHeader = defaultPermissionsHeader
	}
	if cfg.HTTP.MaxBodyBytes <= 0 {
		cfg.HTTP.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.HTTP.ShutdownTimeoutSec <= 0 {
		cfg.HTTP.ShutdownTimeoutSec = defaultShutdownSeconds
	}

	if cfg.Log.Console.Level == "" {
		cfg.Log.Console.Level = "info"
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = "line"
	}
	if cfg.Log.File.Level == "" {
		cfg.Log.File.Level = "info"
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = "json"
	}
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}

	if strings.TrimSpace(cfg.Store.SQLite.Path) == "" {
		cfg.Store.SQLite.Path = defaultSQLitePath
	}
	if cfg.Store.SQLite.BusyTimeoutMS <= 0 {
		cfg.Store.SQLite.BusyTimeoutMS = defaultSQLiteBusyMS
	}
	cfg.Store.SQLite.BusyTimeout = time.Duration(cfg.Store.SQLite.BusyTimeoutMS) * time.Millisecond
	cfg.Store.NATS.URL = normalizeNATSURLs(cfg.Store.NATS.URL)
	if len(cfg.Store.NATS.URL) == 0 {
		cfg.Store.NATS.URL = []string{defaultNATSURL}
	}
	if strings.TrimSpace(cfg.Store.NATS.Bucket) == "" {
		cfg.Store.NATS.Bucket = defaultNATSBucket
	}
	if cfg.Store.NATS.History == 0 {
		cfg.Store.NATS.History = defaultNATSHistory
	}
	cfg.Store.NATS.ClientName = cfg.Service.Name

	if strings.TrimSpace(cfg.Catalog.Language) == "" {
		cfg.Catalog.Language = defaultCatalogLanguage
	}
	if cfg.Catalog.LoadTimeoutSec <= 0 {
		cfg.Catalog.LoadTimeoutSec = defaultCatalogTimeoutSec
	}
	applyCatalogSourceDefaults(&cfg.Catalog.Streams, defaultStreamOptions())
	applyCatalogSourceDefaults(&cfg.Catalog.Fields, nil)
}

func applyCatalogSourceDefaults(src *CatalogSourceConfig, fallback []CatalogOptionConfig) {
	src.Source = strings.ToLower(strings.TrimSpace(src.Source))
	if src.Source == "" {
		src.Source = CatalogSourceStatic
	}
	if src.Source == CatalogSourceStatic && len(src.Options) == 0 {
		src.Options = fallback
	}
	if src.TimeoutSec <= 0 {
		src.TimeoutSec = defaultCatalogTimeoutSec
	}
}

func defaultStreamOptions() []CatalogOptionConfig {
	return []CatalogOptionConfig{{Label: "All messages", Value: domain.DefaultStreamID}}
}

// normalizeNATSURLs trims URL list values.
// Params: configured URLs.
// Returns: non-empty trimmed URLs.
func normalizeNATSURLs(urls []string) []string {
	if len(urls) == 0 {
		return nil
	}
	out := make([]string, 0, len(urls))
	for i := range urls {
		if trimmed := strings.TrimSpace(urls[i]); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// NormalizeStoreMode canonicalizes service.mode value.
// Params: raw mode value.
// Returns: lower-case mode; empty means memory.
func NormalizeStoreMode(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return StoreModeMemory
	}
	return normalized
}

// StoreModes lists supported service.mode values.
// Params: none.
// Returns: fresh ordered copy.
func StoreModes() []string {
	return append([]string(nil), storeModeOrder...)
}

// validateConfig checks semantic constraints and fills parsed derived fields.
// Params: config pointer after defaults.
// Returns: first validation error.
func validateConfig(cfg *Config) error {
	descriptor, ok := storeModeRegistry[cfg.Service.Mode]
	if !ok {
		return fmt.Errorf("service.mode has unsupported value %q (supported: %s)", cfg.Service.Mode, strings.Join(storeModeOrder, ", "))
	}
	if err := descriptor.validate(*cfg); err != nil {
		return err
	}

	if err := validateHTTP(cfg.HTTP); err != nil {
		return err
	}
	if err := validateLogSink("log.console", cfg.Log.Console, false); err != nil {
		return err
	}
	if err := validateLogSink("log.file", cfg.Log.File, true); err != nil {
		return err
	}

	settingsSet, err := parseFieldSet("fields.settings", cfg.Fields.Settings, domain.SettingsFields())
	if err != nil {
		return err
	}
	notifySet, err := parseFieldSet("fields.notification", cfg.Fields.Notification, domain.NotificationFields())
	if err != nil {
		return err
	}
	cfg.Fields.SettingsSet = settingsSet
	cfg.Fields.NotifySet = notifySet

	tag, err := language.Parse(cfg.Catalog.Language)
	if err != nil {
		return fmt.Errorf("catalog.language is invalid: %w", err)
	}
	cfg.Catalog.LanguageTag = tag
	if err := validateCatalogSource("catalog.streams", cfg.Catalog.Streams); err != nil {
		return err
	}
	if err := validateCatalogSource("catalog.fields", cfg.Catalog.Fields); err != nil {
		return err
	}

	if err := validateSeed("settings", cfg.Settings); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(cfg.Notifications))
	for _, seed := range cfg.Notifications {
		if !domain.ValidNotificationID(seed.ID) {
			return fmt.Errorf("notification.%s has unsupported id", seed.ID)
		}
		if _, dup := seen[seed.ID]; dup {
			return fmt.Errorf("notification.%s is defined more than once", seed.ID)
		}
		seen[seed.ID] = struct{}{}
		if err := validateSeed("notification."+seed.ID+".config", seed.Config); err != nil {
			return err
		}
	}
	return nil
}

func validateHTTP(cfg HTTPConfig) error {
	for name, path := range map[string]string{
		"http.health_path": cfg.HealthPath,
		"http.ready_path":  cfg.ReadyPath,
		"http.api_prefix":  cfg.APIPrefix,
	} {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("%s must start with /", name)
		}
	}
	if cfg.APIPrefix == "/" {
		return errors.New("http.api_prefix must not be /")
	}
	return nil
}

func parseFieldSet(path string, names []string, fallback domain.FieldSet) (domain.FieldSet, error) {
	if len(names) == 0 {
		return fallback, nil
	}
	set, err := domain.ParseFieldSet(names)
	if err != nil {
		return nil, fmt.Errorf("%s is invalid: %w", path, err)
	}
	return set, nil
}

func validateCatalogSource(path string, src CatalogSourceConfig) error {
	switch src.Source {
	case CatalogSourceStatic:
		for i, option := range src.Options {
			if strings.TrimSpace(option.Value) == "" {
				return fmt.Errorf("%s.option[%d].value is required", path, i)
			}
		}
	case CatalogSourceHTTP:
		if strings.TrimSpace(src.URL) == "" {
			return fmt.Errorf("%s.url is required for http source", path)
		}
	default:
		return fmt.Errorf("%s.source has unsupported value %q", path, src.Source)
	}
	return nil
}

// validateSeed checks configuration values seeded from TOML.
// Params: config path and seed layer.
// Returns: validation error for negative numbers or malformed log body template.
func validateSeed(path string, seed domain.Configuration) error {
	for _, field := range []domain.Field{domain.FieldLimitOverflow, domain.FieldAggregationTime} {
		if value, ok := seed.Get(field); ok && value.(int) < 0 {
			return fmt.Errorf("%s.%s must be >=0", path, field)
		}
	}
	if value, ok := seed.Get(domain.FieldLogBody); ok {
		if err := templatefmt.Validate(value.(string)); err != nil {
			return fmt.Errorf("%s.log_body is invalid: %w", path, err)
		}
	}
	return nil
}

// validateLogSink validates one log sink configuration.
// Params: sink name, sink values, and whether path is required.
// Returns: sink validation error.
func validateLogSink(name string, sink LogSinkConfig, requirePath bool) error {
	if !sink.Enabled {
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(sink.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%s.level has unsupported value %q", name, sink.Level)
	}

	switch strings.ToLower(strings.TrimSpace(sink.Format)) {
	case "line", "json":
	default:
		return fmt.Errorf("%s.format has unsupported value %q", name, sink.Format)
	}

	if requirePath && strings.TrimSpace(sink.Path) == "" {
		return fmt.Errorf("%s.path is required", name)
	}

	return nil
}

// RestartRequired reports settings that cannot change on reload.
// Params: running and next snapshots.
// Returns: error naming the first changed restart-only setting.
func RestartRequired(current, next Config) error {
	switch {
	case current.Service.Mode != next.Service.Mode:
		return errors.New("service.mode change requires restart")
	case current.HTTP != next.HTTP:
		return errors.New("http section change requires restart")
	case current.Store.SQLite != next.Store.SQLite:
		return errors.New("store.sqlite change requires restart")
	case strings.Join(current.Store.NATS.URL, ",") != strings.Join(next.Store.NATS.URL, ",") ||
		current.Store.NATS.Bucket != next.Store.NATS.Bucket:
		return errors.New("store.nats change requires restart")
	case !slices.Equal(current.Fields.SettingsSet, next.Fields.SettingsSet) ||
		!slices.Equal(current.Fields.NotifySet, next.Fields.NotifySet):
		return errors.New("fields change requires restart")
	}
	return nil
}
