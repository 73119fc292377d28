package resolver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"logalert/internal/domain"
)

// NotSet is the read-only display sentinel for empty or absent values.
const NotSet = "[not set]"

// Layer identifies which configuration layer supplied an effective value.
// Params: enum of draft/global/builtin/none.
// Returns: provenance marker for views and diagnostics.
type Layer int

const (
	LayerNone Layer = iota
	LayerBuiltin
	LayerGlobal
	LayerDraft
)

// String returns stable layer name.
// Params: none.
// Returns: lower-case layer label.
func (l Layer) String() string {
	switch l {
	case LayerDraft:
		return "draft"
	case LayerGlobal:
		return "global"
	case LayerBuiltin:
		return "builtin"
	default:
		return "none"
	}
}

// MarshalText encodes layer name for JSON read models.
// Params: none.
// Returns: layer name bytes.
func (l Layer) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// GlobalState is lifecycle of the asynchronously fetched global layer.
type GlobalState int

const (
	GlobalPending GlobalState = iota
	GlobalLoaded
	GlobalAbsent
	GlobalFailed
)

// String returns stable state name.
// Params: none.
// Returns: lower-case state label.
func (s GlobalState) String() string {
	switch s {
	case GlobalLoaded:
		return "loaded"
	case GlobalAbsent:
		return "absent"
	case GlobalFailed:
		return "failed"
	default:
		return "pending"
	}
}

// MarshalText encodes state name for JSON read models.
// Params: none.
// Returns: state name bytes.
func (s GlobalState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// DefaultsSource fetches the global default configuration from the host store.
// Params: key of the global configuration entry.
// Returns: configuration, nil when absent, or fetch error.
type DefaultsSource interface {
	FetchDefaults(ctx context.Context, key string) (*domain.Configuration, error)
}

// Resolved is the effective configuration for one field set.
// Params: produced by Resolve/Effective.
// Returns: values with layer provenance and display formatting.
type Resolved struct {
	Config  domain.Configuration
	Fields  domain.FieldSet
	sources map[domain.Field]Layer
}

// Resolve applies draft > global > builtin for every field in the set.
// Params: draft layer, optional global layer (nil when not loaded), builtin layer, active fields.
// Returns: resolved configuration; inputs are never mutated.
func Resolve(draft domain.Configuration, global *domain.Configuration, builtin domain.Configuration, fields domain.FieldSet) Resolved {
	out := Resolved{
		Fields:  append(domain.FieldSet(nil), fields...),
		sources: make(map[domain.Field]Layer, len(fields)),
	}
	for _, field := range fields {
		layer := LayerNone
		var value any
		if candidate, ok := draft.Get(field); ok {
			value, layer = candidate, LayerDraft
		} else if candidate, ok := lookup(global, field); ok {
			value, layer = candidate, LayerGlobal
		} else if candidate, ok := builtin.Get(field); ok {
			value, layer = candidate, LayerBuiltin
		}
		out.sources[field] = layer
		if layer != LayerNone {
			out.Config = out.Config.Set(field, value)
		}
	}
	return out
}

func lookup(layer *domain.Configuration, field domain.Field) (any, bool) {
	if layer == nil {
		return nil, false
	}
	return layer.Get(field)
}

// Value returns effective value of one field.
// Params: field.
// Returns: value and defined flag; fields outside the set are undefined.
func (r Resolved) Value(field domain.Field) (any, bool) {
	if !r.Fields.Contains(field) {
		return nil, false
	}
	return r.Config.Get(field)
}

// Source returns layer that supplied the field.
// Params: field.
// Returns: layer or LayerNone for undefined/outside-set fields.
func (r Resolved) Source(field domain.Field) Layer {
	return r.sources[field]
}

// Display renders one effective value for read-only views.
// Params: field.
// Returns: formatted text or NotSet; panics for severities outside the label table.
func (r Resolved) Display(field domain.Field) string {
	value, ok := r.Value(field)
	return FormatValue(value, ok)
}

// FormatValue renders one configuration value.
// Params: raw value and defined flag.
// Returns: text; empty string, nil, undefined and empty list render as NotSet.
func FormatValue(value any, defined bool) string {
	if !defined || value == nil {
		return NotSet
	}
	switch typed := value.(type) {
	case domain.Severity:
		return typed.Label()
	case string:
		if typed == "" {
			return NotSet
		}
		return typed
	case int:
		return strconv.Itoa(typed)
	case bool:
		return strconv.FormatBool(typed)
	case []string:
		if len(typed) == 0 {
			return NotSet
		}
		return strings.Join(typed, ", ")
	default:
		return fmt.Sprint(typed)
	}
}

// Resolver owns builtin and global layers for one configuration surface.
// Params: active field set and builtin layer.
// Returns: concurrency-safe effective configuration provider.
type Resolver struct {
	mu      sync.RWMutex
	fields  domain.FieldSet
	builtin domain.Configuration
	global  *domain.Configuration
	state   GlobalState
	loadErr error
	version uint64

	loadOnce   sync.Once
	loadResult error
}

// New creates resolver with pending global layer.
// Params: active field set and builtin defaults.
// Returns: initialized resolver.
func New(fields domain.FieldSet, builtin domain.Configuration) *Resolver {
	return &Resolver{
		fields:  append(domain.FieldSet(nil), fields...),
		builtin: builtin.Clone(),
		state:   GlobalPending,
	}
}

// Fields returns active field set.
// Params: none.
// Returns: fresh ordered copy.
func (r *Resolver) Fields() domain.FieldSet {
	return append(domain.FieldSet(nil), r.fields...)
}

// Builtin returns builtin layer copy.
// Params: none.
// Returns: fresh builtin configuration.
func (r *Resolver) Builtin() domain.Configuration {
	return r.builtin.Clone()
}

// Effective resolves draft against current layers without blocking on the global fetch.
// Params: draft layer.
// Returns: resolved configuration; pending/absent/failed global layer falls through to builtin.
func (r *Resolver) Effective(draft domain.Configuration) Resolved {
	r.mu.RLock()
	var global *domain.Configuration
	if r.state == GlobalLoaded && r.global != nil {
		copied := r.global.Clone()
		global = &copied
	}
	r.mu.RUnlock()
	return Resolve(draft, global, r.builtin, r.fields)
}

// LoadGlobalDefaults fetches global layer once per resolver lifetime.
// Params: context, defaults source and storage key.
// Returns: first fetch error (nil for loaded or absent); later calls return the same result.
func (r *Resolver) LoadGlobalDefaults(ctx context.Context, source DefaultsSource, key string) error {
	r.loadOnce.Do(func() {
		r.loadResult = r.fetchGlobal(ctx, source, key)
	})
	return r.loadResult
}

func (r *Resolver) fetchGlobal(ctx context.Context, source DefaultsSource, key string) error {
	if source == nil {
		return errors.New("defaults source is nil")
	}
	r.mu.RLock()
	startVersion := r.version
	r.mu.RUnlock()

	cfg, err := source.FetchDefaults(ctx, key)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.version != startVersion {
		// Layer was replaced while fetching; the newer value wins.
		return err
	}
	switch {
	case err != nil:
		r.state = GlobalFailed
		r.loadErr = err
		return fmt.Errorf("fetch global defaults %q: %w", key, err)
	case cfg == nil:
		r.state = GlobalAbsent
		r.global = nil
	default:
		copied := cfg.Clone()
		r.global = &copied
		r.state = GlobalLoaded
	}
	r.loadErr = nil
	return nil
}

// SetGlobalDefaults replaces global layer after a settings save or reload.
// Params: configuration or nil for absent.
// Returns: none.
func (r *Resolver) SetGlobalDefaults(cfg *domain.Configuration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.version++
	r.loadErr = nil
	if cfg == nil {
		r.global = nil
		r.state = GlobalAbsent
		return
	}
	copied := cfg.Clone()
	r.global = &copied
	r.state = GlobalLoaded
}

// GlobalState returns global layer lifecycle state.
// Params: none.
// Returns: state and last fetch error.
func (r *Resolver) GlobalState() (GlobalState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state, r.loadErr
}

// Global returns loaded global layer.
// Params: none.
// Returns: copy and true when loaded.
func (r *Resolver) Global() (domain.Configuration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state != GlobalLoaded || r.global == nil {
		return domain.Configuration{}, false
	}
	return r.global.Clone(), true
}
