package domain

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultStreamID is the host's built-in "All messages" stream.
const DefaultStreamID = "000000000000000000000001"

// DefaultBodyTemplate is the log content template used when no layer defines log_body.
const DefaultBodyTemplate = "type: alert\n" +
	"id: ${logging_alert.id}\n" +
	"aggregation_id: ${event.fields.aggregation_id}\n" +
	"severity: ${logging_alert.severity}\n" +
	"app: graylog\n" +
	"subject: ${event_definition_title}\n" +
	"body: ${event_definition_description}\n" +
	"${if backlog && backlog[0]} src: ${backlog[0].fields.src_ip}\n" +
	"src_category: ${backlog[0].fields.src_category}\n" +
	"dest: ${backlog[0].fields.dest_ip}\n" +
	"dest_category: ${backlog[0].fields.dest_category}\n" +
	"${end}"

// Configuration is one Logging Alert configuration layer.
// Params: optional field values; nil means "fall through to the next layer".
// Returns: value object copied on every mutation.
type Configuration struct {
	Severity           *Severity `json:"severity,omitempty" toml:"severity,omitempty"`
	LogBody            *string   `json:"log_body,omitempty" toml:"log_body,omitempty"`
	Separator          *string   `json:"separator,omitempty" toml:"separator,omitempty"`
	AlertTag           *string   `json:"alert_tag,omitempty" toml:"alert_tag,omitempty"`
	OverflowTag        *string   `json:"overflow_tag,omitempty" toml:"overflow_tag,omitempty"`
	LimitOverflow      *int      `json:"limit_overflow,omitempty" toml:"limit_overflow,omitempty"`
	AggregationTime    *int      `json:"aggregation_time,omitempty" toml:"aggregation_time,omitempty"`
	AggregationStream  *string   `json:"aggregation_stream,omitempty" toml:"aggregation_stream,omitempty"`
	FieldAlertID       *string   `json:"field_alert_id,omitempty" toml:"field_alert_id,omitempty"`
	SplitFields        *[]string `json:"split_fields,omitempty" toml:"split_fields,omitempty"`
	SingleNotification *bool     `json:"single_notification,omitempty" toml:"single_notification,omitempty"`
	Comment            *string   `json:"comment,omitempty" toml:"comment,omitempty"`
}

// Get reads one field value.
// Params: registered field.
// Returns: copy of value and defined flag; panics for unregistered fields.
func (c Configuration) Get(field Field) (any, bool) {
	return descriptorFor(field).get(c)
}

// Defined reports whether a field carries an explicit value in this layer.
// Params: registered field.
// Returns: true when value is not nil.
func (c Configuration) Defined(field Field) bool {
	_, ok := c.Get(field)
	return ok
}

// Set returns a copy with exactly one field overwritten.
// Params: registered field and value of the field's Go type (Severity/string, string, int, []string, bool).
// Returns: new configuration; receiver is never mutated. Panics on unknown field or wrong value type.
func (c Configuration) Set(field Field, value any) Configuration {
	descriptor := descriptorFor(field)
	next := c.Clone()
	descriptor.set(&next, value)
	return next
}

// Unset returns a copy with one field undefined.
// Params: registered field.
// Returns: new configuration that falls through for the field.
func (c Configuration) Unset(field Field) Configuration {
	descriptor := descriptorFor(field)
	next := c.Clone()
	descriptor.clear(&next)
	return next
}

// IsEmpty reports whether no field is defined.
// Params: none.
// Returns: true for a configuration without explicit values.
func (c Configuration) IsEmpty() bool {
	for _, field := range fieldOrder {
		if c.Defined(field) {
			return false
		}
	}
	return true
}

// Clone deep-copies every defined field.
// Params: none.
// Returns: configuration sharing no pointers with the receiver.
func (c Configuration) Clone() Configuration {
	return Configuration{
		Severity:           clonePtr(c.Severity),
		LogBody:            clonePtr(c.LogBody),
		Separator:          clonePtr(c.Separator),
		AlertTag:           clonePtr(c.AlertTag),
		OverflowTag:        clonePtr(c.OverflowTag),
		LimitOverflow:      clonePtr(c.LimitOverflow),
		AggregationTime:    clonePtr(c.AggregationTime),
		AggregationStream:  clonePtr(c.AggregationStream),
		FieldAlertID:       clonePtr(c.FieldAlertID),
		SplitFields:        cloneList(c.SplitFields),
		SingleNotification: clonePtr(c.SingleNotification),
		Comment:            clonePtr(c.Comment),
	}
}

func clonePtr[T any](src *T) *T {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}

func cloneList(src *[]string) *[]string {
	if src == nil {
		return nil
	}
	copied := append([]string{}, (*src)...)
	return &copied
}

// BuiltinDefaults returns the constant fallback layer.
// Params: none.
// Returns: fresh configuration with every field except comment defined.
func BuiltinDefaults() Configuration {
	return Configuration{}.
		Set(FieldSeverity, SeverityLow).
		Set(FieldLogBody, DefaultBodyTemplate).
		Set(FieldSeparator, " | ").
		Set(FieldAlertTag, "LoggingAlert").
		Set(FieldOverflowTag, "LoggingOverflow").
		Set(FieldLimitOverflow, 0).
		Set(FieldAggregationTime, 0).
		Set(FieldAggregationStream, DefaultStreamID).
		Set(FieldAlertIDField, "id").
		Set(FieldSplitFields, []string{}).
		Set(FieldSingleNotification, false)
}

// FieldSet is the ordered set of fields one surface resolves and renders.
// Params: registered fields.
// Returns: field subset for settings or notification views.
type FieldSet []Field

// Contains reports field membership.
// Params: field to look up.
// Returns: true when field belongs to the set.
func (s FieldSet) Contains(field Field) bool {
	for _, candidate := range s {
		if candidate == field {
			return true
		}
	}
	return false
}

// SettingsFields is the default field set of the global settings panel.
// Params: none.
// Returns: fresh ordered set.
func SettingsFields() FieldSet {
	return FieldSet{
		FieldSeverity,
		FieldLogBody,
		FieldSeparator,
		FieldLimitOverflow,
		FieldAlertTag,
		FieldOverflowTag,
		FieldAggregationStream,
		FieldAggregationTime,
		FieldAlertIDField,
	}
}

// NotificationFields is the default field set of the notification form.
// Params: none.
// Returns: fresh ordered set.
func NotificationFields() FieldSet {
	return FieldSet{
		FieldSeverity,
		FieldLogBody,
		FieldSplitFields,
		FieldAggregationTime,
		FieldAlertTag,
		FieldSingleNotification,
		FieldComment,
	}
}

// ParseFieldSet validates configured field names.
// Params: raw names; duplicates are rejected.
// Returns: ordered field set or validation error.
func ParseFieldSet(names []string) (FieldSet, error) {
	out := make(FieldSet, 0, len(names))
	seen := make(map[Field]struct{}, len(names))
	for _, name := range names {
		field, err := ParseField(name)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[field]; dup {
			return nil, fmt.Errorf("duplicate field %q", name)
		}
		seen[field] = struct{}{}
		out = append(out, field)
	}
	return out, nil
}

// Notification is one event notification definition of Logging Alert type.
// Params: host id, title, description and per-notification overrides.
// Returns: definition rendered by summary/details views.
type Notification struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Config      Configuration `json:"config"`
}

// DisplayTitle returns title or notification id when title is blank.
// Params: none.
// Returns: heading text.
func (n Notification) DisplayTitle() string {
	if strings.TrimSpace(n.Title) == "" {
		return n.ID
	}
	return n.Title
}

// NotificationType is the host event-notification type name.
const NotificationType = "logging-alert-notification"

// ValidNotificationID reports whether id is usable as a storage key segment.
// Params: notification id.
// Returns: true for non-empty ids of letters, digits, '-' and '_'.
func ValidNotificationID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

var (
	// ErrUnknownNotification reports a notification id without stored definition.
	ErrUnknownNotification = errors.New("unknown notification")
	// ErrInvalidNotificationID reports an id outside the accepted alphabet.
	ErrInvalidNotificationID = errors.New("invalid notification id")
)
