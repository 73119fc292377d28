package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Option is one selectable value of a catalog.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Status is catalog load lifecycle.
type Status int

const (
	StatusLoading Status = iota
	StatusReady
	StatusFailed
)

// String returns stable status name.
// Params: none.
// Returns: lower-case status label.
func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "loading"
	}
}

// MarshalText encodes status name for JSON read models.
// Params: none.
// Returns: status name bytes.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Provider fetches raw catalog options from host.
type Provider interface {
	Fetch(ctx context.Context) ([]Option, error)
}

// ProviderFunc adapts plain function to Provider.
type ProviderFunc func(ctx context.Context) ([]Option, error)

// Fetch calls wrapped function.
// Params: context.
// Returns: function result.
func (f ProviderFunc) Fetch(ctx context.Context) ([]Option, error) {
	return f(ctx)
}

// Snapshot is immutable view of catalog state.
// Params: status, sorted options when ready, error when failed.
// Returns: copy safe for concurrent readers.
type Snapshot struct {
	Status  Status   `json:"status"`
	Options []Option `json:"options"`
	Err     error    `json:"-"`
}

// Ready reports whether options are loaded.
func (s Snapshot) Ready() bool { return s.Status == StatusReady }

// Lookup finds option label by value.
// Params: option value.
// Returns: label and true when found in a ready snapshot.
func (s Snapshot) Lookup(value string) (string, bool) {
	for _, option := range s.Options {
		if option.Value == value {
			return option.Label, true
		}
	}
	return "", false
}

// Catalog lazily loads one option list.
// Params: created by New.
// Returns: concurrency-safe single-shot loader with explicit loading marker.
type Catalog struct {
	name     string
	provider Provider
	lang     language.Tag
	logger   *slog.Logger

	mu       sync.RWMutex
	snapshot Snapshot
}

// New creates catalog in loading state.
// Params: name, provider, collation language and logger.
// Returns: catalog that reports loading until Load completes.
func New(name string, provider Provider, lang language.Tag, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		name:     name,
		provider: provider,
		lang:     lang,
		logger:   logger.With("component", "catalog", "catalog", name),
		snapshot: Snapshot{Status: StatusLoading},
	}
}

// Name returns catalog name.
func (c *Catalog) Name() string { return c.name }

// Load fetches and sorts options once per call; no retry is built in.
// Params: context bounding the provider call.
// Returns: wrapped provider error; snapshot moves to ready or failed.
func (c *Catalog) Load(ctx context.Context) error {
	if c.provider == nil {
		err := errors.New("catalog provider is nil")
		c.store(Snapshot{Status: StatusFailed, Err: err})
		return err
	}
	options, err := c.provider.Fetch(ctx)
	if err != nil {
		wrapped := fmt.Errorf("load catalog %s: %w", c.name, err)
		c.store(Snapshot{Status: StatusFailed, Err: wrapped})
		c.logger.Error("catalog load failed", "error", err.Error())
		return wrapped
	}
	sorted := SortOptions(options, c.lang)
	c.store(Snapshot{Status: StatusReady, Options: sorted})
	c.logger.Info("catalog loaded", "options", len(sorted))
	return nil
}

func (c *Catalog) store(snapshot Snapshot) {
	c.mu.Lock()
	c.snapshot = snapshot
	c.mu.Unlock()
}

// Snapshot returns current catalog state.
// Params: none.
// Returns: copy of state; options are nil while loading.
func (c *Catalog) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := c.snapshot
	if out.Options != nil {
		out.Options = append([]Option(nil), out.Options...)
	}
	return out
}

// SortOptions orders options by label, locale-aware and case-insensitive.
// Params: options and collation language.
// Returns: new stably sorted slice.
func SortOptions(options []Option, lang language.Tag) []Option {
	out := append(make([]Option, 0, len(options)), options...)
	collator := collate.New(lang, collate.IgnoreCase)
	sort.SliceStable(out, func(i, j int) bool {
		return collator.CompareString(out[i].Label, out[j].Label) < 0
	})
	return out
}

// FieldCatalog groups stream and message-field catalogs.
type FieldCatalog struct {
	Streams *Catalog
	Fields  *Catalog
}

// LoadAll loads both catalogs independently.
// Params: context.
// Returns: first load error; a failure of one catalog does not cancel the other.
func (f FieldCatalog) LoadAll(ctx context.Context) error {
	var group errgroup.Group
	for _, current := range []*Catalog{f.Streams, f.Fields} {
		if current == nil {
			continue
		}
		group.Go(func() error {
			return current.Load(ctx)
		})
	}
	return group.Wait()
}
