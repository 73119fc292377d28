package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"logalert/internal/domain"
	"logalert/internal/resolver"
	"logalert/internal/templatefmt"
)

const (
	// PermissionSettingsEdit gates the global settings panel.
	PermissionSettingsEdit = "clusterconfigentry:edit"
	// PermissionNotificationsEdit gates per-notification forms.
	PermissionNotificationsEdit = "eventnotifications:edit"
)

var (
	// ErrInvalidState marks caller contract violations of the session state machine.
	ErrInvalidState = errors.New("invalid session state")
	// ErrNotOpen is returned by edit/save calls outside the Open state.
	ErrNotOpen = fmt.Errorf("%w: session is not open", ErrInvalidState)
	// ErrSaveInProgress is returned by edits while the persist callback runs.
	ErrSaveInProgress = fmt.Errorf("%w: save in progress", ErrInvalidState)
	// ErrSuperseded is returned by a save whose session was cancelled or reopened meanwhile.
	ErrSuperseded = errors.New("save superseded by newer session")
	// ErrForbidden is returned when the caller lacks the session permission.
	ErrForbidden = errors.New("permission denied")
	// ErrRetired is returned by Open after the backing configuration was removed.
	ErrRetired = fmt.Errorf("%w: session retired", ErrInvalidState)
)

// State is edit session lifecycle state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateSaving
)

// String returns stable state name.
// Params: none.
// Returns: lower-case state label.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateSaving:
		return "saving"
	default:
		return "closed"
	}
}

// MarshalText encodes state name for JSON read models.
// Params: none.
// Returns: state name bytes.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// PersistFunc hands a draft to host storage.
// Params: context and configuration to persist.
// Returns: persistence error; the session does not retry.
type PersistFunc func(ctx context.Context, cfg domain.Configuration) error

// Authorizer answers host permission checks.
type Authorizer interface {
	IsPermitted(permission string) bool
}

// AllowAll grants every permission; used by local CLI flows.
type AllowAll struct{}

// IsPermitted always grants.
// Params: permission name.
// Returns: true.
func (AllowAll) IsPermitted(string) bool { return true }

// ValidationError reports an effective configuration that cannot be saved.
// Params: offending field and reason.
// Returns: user-facing error; session stays open.
type ValidationError struct {
	Field  domain.Field
	Reason string
}

// Error renders field and reason.
// Params: none.
// Returns: error message.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Options configures one edit session.
// Params: display name, permission, persisted layer, resolver, persist callback and logger.
// Returns: constructor input for New.
type Options struct {
	Name       string
	Permission string
	Persisted  domain.Configuration
	Resolver   *resolver.Resolver
	Persist    PersistFunc
	Logger     *slog.Logger
}

// Session isolates user edits from persisted configuration until save.
// Params: created by New.
// Returns: concurrency-safe open/edit/cancel/save state machine.
type Session struct {
	mu         sync.Mutex
	name       string
	permission string
	resolver   *resolver.Resolver
	persist    PersistFunc
	logger     *slog.Logger

	state     State
	token     string
	persisted domain.Configuration
	snapshot  domain.Configuration
	draft     domain.Configuration
	lastErr   error
	retired   bool
}

// New creates closed session.
// Params: session options; Resolver and Persist are required.
// Returns: session or configuration error.
func New(opts Options) (*Session, error) {
	if opts.Resolver == nil {
		return nil, errors.New("session resolver is nil")
	}
	if opts.Persist == nil {
		return nil, errors.New("session persist callback is nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		name:       opts.Name,
		permission: opts.Permission,
		resolver:   opts.Resolver,
		persist:    opts.Persist,
		logger:     logger.With("component", "session", "session_name", opts.Name),
		persisted:  opts.Persisted.Clone(),
	}, nil
}

// Open starts editing from a frozen snapshot of persisted configuration.
// Params: caller authorizer.
// Returns: session token; idempotent while open or saving.
func (s *Session) Open(auth Authorizer) (string, error) {
	if auth == nil || !auth.IsPermitted(s.permission) {
		s.logger.Warn("session open denied", "permission", s.permission)
		return "", fmt.Errorf("%w: %s", ErrForbidden, s.permission)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retired {
		return "", ErrRetired
	}
	if s.state != StateClosed {
		return s.token, nil
	}
	s.snapshot = s.persisted.Clone()
	s.draft = s.snapshot.Clone()
	s.token = uuid.NewString()
	s.state = StateOpen
	s.lastErr = nil
	s.logger.Info("session opened", "session", s.token)
	return s.token, nil
}

// Edit overwrites one draft field.
// Params: field and value of the field's Go type.
// Returns: ErrUnknownField for fields outside the session field set; ErrNotOpen or ErrSaveInProgress outside Open.
func (s *Session) Edit(field domain.Field, value any) error {
	return s.mutate("edit", field, func(draft domain.Configuration) domain.Configuration {
		return draft.Set(field, value)
	})
}

// Unset reverts one draft field to its inherited value.
// Params: field.
// Returns: same errors as Edit.
func (s *Session) Unset(field domain.Field) error {
	return s.mutate("unset", field, func(draft domain.Configuration) domain.Configuration {
		return draft.Unset(field)
	})
}

func (s *Session) mutate(op string, field domain.Field, apply func(domain.Configuration) domain.Configuration) error {
	if !s.resolver.Fields().Contains(field) {
		return fmt.Errorf("%w %q for %s", domain.ErrUnknownField, string(field), s.name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpenLocked(op); err != nil {
		return err
	}
	s.draft = apply(s.draft)
	s.logger.Debug("session draft changed", "session", s.token, "op", op, "field", string(field))
	return nil
}

func (s *Session) requireOpenLocked(op string) error {
	switch s.state {
	case StateOpen:
		return nil
	case StateSaving:
		s.logger.Error("session call rejected", "op", op, "state", s.state.String())
		return ErrSaveInProgress
	default:
		s.logger.Error("session call rejected", "op", op, "state", s.state.String())
		return ErrNotOpen
	}
}

// Save validates and persists the draft.
// Params: context passed to the persist callback.
// Returns: ValidationError, wrapped persist error (session back to Open), ErrSuperseded or nil (session Closed).
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	if err := s.requireOpenLocked("save"); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.validateLocked(); err != nil {
		s.lastErr = err
		s.mu.Unlock()
		s.logger.Warn("session save rejected", "session", s.token, "error", err.Error())
		return err
	}
	token := s.token
	draft := s.draft.Clone()
	s.state = StateSaving
	s.mu.Unlock()

	err := s.persist(ctx, draft)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != token || s.state != StateSaving {
		if err != nil {
			s.logger.Warn("late save failure ignored", "session", token, "current_session", s.token)
			return fmt.Errorf("%w: %w", ErrSuperseded, err)
		}
		// Store holds the late draft; the newer draft stays untouched.
		s.persisted = draft
		s.logger.Warn("late save committed behind newer session", "session", token, "current_session", s.token)
		return ErrSuperseded
	}
	if err != nil {
		s.state = StateOpen
		s.lastErr = fmt.Errorf("persist %s: %w", s.name, err)
		s.logger.Error("session save failed", "session", token, "error", err.Error())
		return s.lastErr
	}
	s.persisted = draft
	s.snapshot = domain.Configuration{}
	s.draft = domain.Configuration{}
	s.state = StateClosed
	s.token = ""
	s.lastErr = nil
	s.logger.Info("session saved", "session", token)
	return nil
}

func (s *Session) validateLocked() error {
	effective := s.resolver.Effective(s.draft)
	if !effective.Fields.Contains(domain.FieldLogBody) {
		return nil
	}
	value, _ := effective.Value(domain.FieldLogBody)
	body, _ := value.(string)
	if err := templatefmt.Validate(body); err != nil {
		return &ValidationError{Field: domain.FieldLogBody, Reason: err.Error()}
	}
	return nil
}

// Cancel discards the draft.
// Params: none.
// Returns: ErrNotOpen when closed; a save in flight completes as superseded.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		s.logger.Error("session call rejected", "op", "cancel", "state", s.state.String())
		return ErrNotOpen
	}
	s.logger.Info("session cancelled", "session", s.token, "state", s.state.String())
	s.snapshot = domain.Configuration{}
	s.draft = domain.Configuration{}
	s.state = StateClosed
	s.token = ""
	s.lastErr = nil
	return nil
}

// Reset replaces persisted configuration after an external change.
// Params: new persisted configuration.
// Returns: ErrInvalidState while open or saving.
func (s *Session) Reset(persisted domain.Configuration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		return fmt.Errorf("%w: reset while %s", ErrInvalidState, s.state)
	}
	s.persisted = persisted.Clone()
	return nil
}

// Retire closes the session for good before its configuration is deleted.
// Params: none.
// Returns: ErrInvalidState while open or saving; later Open calls fail with ErrRetired.
func (s *Session) Retire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		return fmt.Errorf("%w: retire while %s", ErrInvalidState, s.state)
	}
	s.retired = true
	return nil
}

// State returns lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Token returns current session token or empty string when closed.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Draft returns draft copy.
// Params: none.
// Returns: draft and true while open or saving.
func (s *Session) Draft() (domain.Configuration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return domain.Configuration{}, false
	}
	return s.draft.Clone(), true
}

// Persisted returns last committed configuration.
func (s *Session) Persisted() domain.Configuration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persisted.Clone()
}

// Snapshot returns the frozen persisted copy captured at open.
// Params: none.
// Returns: snapshot and true while open or saving.
func (s *Session) Snapshot() (domain.Configuration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return domain.Configuration{}, false
	}
	return s.snapshot.Clone(), true
}

// Effective resolves draft while open and persisted layer otherwise.
// Params: none.
// Returns: resolved configuration.
func (s *Session) Effective() resolver.Resolved {
	s.mu.Lock()
	layer := s.persisted
	if s.state != StateClosed {
		layer = s.draft
	}
	layer = layer.Clone()
	s.mu.Unlock()
	return s.resolver.Effective(layer)
}

// LastError returns error of the last rejected or failed save.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Permission returns permission required to open the session.
func (s *Session) Permission() string {
	return s.permission
}
