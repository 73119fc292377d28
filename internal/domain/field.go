package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Field is the name of one recognized configuration field.
// Params: JSON/TOML key of the field.
// Returns: typed field identifier.
type Field string

const (
	FieldSeverity           Field = "severity"
	FieldLogBody            Field = "log_body"
	FieldSeparator          Field = "separator"
	FieldAlertTag           Field = "alert_tag"
	FieldOverflowTag        Field = "overflow_tag"
	FieldLimitOverflow      Field = "limit_overflow"
	FieldAggregationTime    Field = "aggregation_time"
	FieldAggregationStream  Field = "aggregation_stream"
	FieldAlertIDField       Field = "field_alert_id"
	FieldSplitFields        Field = "split_fields"
	FieldSingleNotification Field = "single_notification"
	FieldComment            Field = "comment"
)

// FieldKind is semantic value type of one field.
// Params: enum of supported scalar/list kinds.
// Returns: kind used by parsers and display formatting.
type FieldKind int

const (
	KindSeverity FieldKind = iota
	KindString
	KindTemplate
	KindInteger
	KindStream
	KindStringList
	KindBool
)

// ErrUnknownField indicates user input naming a field outside the registry.
var ErrUnknownField = errors.New("unknown configuration field")

// UnknownFieldError is panic payload for programmatic access to unregistered fields.
// Params: offending field name.
// Returns: error describing the contract violation.
type UnknownFieldError struct {
	Field Field
}

// Error renders the offending field name.
// Params: none.
// Returns: error message.
func (e UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown configuration field %q", string(e.Field))
}

// WrongValueTypeError is panic payload for Set calls with a value of unexpected Go type.
// Params: field name, expected and actual types.
// Returns: error describing the contract violation.
type WrongValueTypeError struct {
	Field    Field
	Expected string
	Actual   any
}

// Error renders the type mismatch.
// Params: none.
// Returns: error message.
func (e WrongValueTypeError) Error() string {
	return fmt.Sprintf("field %q expects %s value, got %T", string(e.Field), e.Expected, e.Actual)
}

// fieldDescriptor stores generic accessors for one configuration field.
// Params: kind, display label and struct accessors.
// Returns: field metadata used by resolver, parsers and views.
type fieldDescriptor struct {
	kind  FieldKind
	label string
	get   func(Configuration) (any, bool)
	set   func(*Configuration, any)
	clear func(*Configuration)
}

var (
	fieldOrder = []Field{
		FieldSeverity,
		FieldLogBody,
		FieldSeparator,
		FieldLimitOverflow,
		FieldAlertTag,
		FieldOverflowTag,
		FieldAggregationStream,
		FieldAggregationTime,
		FieldAlertIDField,
		FieldSplitFields,
		FieldSingleNotification,
		FieldComment,
	}
	fieldRegistry = map[Field]fieldDescriptor{
		FieldSeverity: {
			kind:  KindSeverity,
			label: "Alert Severity",
			get: func(c Configuration) (any, bool) {
				if c.Severity == nil {
					return nil, false
				}
				return *c.Severity, true
			},
			set: func(c *Configuration, value any) {
				severity := mustSeverity(FieldSeverity, value)
				c.Severity = &severity
			},
			clear: func(c *Configuration) { c.Severity = nil },
		},
		FieldLogBody: stringField(FieldLogBody, KindTemplate, "Log Content",
			func(c *Configuration) **string { return &c.LogBody }),
		FieldSeparator: stringField(FieldSeparator, KindString, "Line Break Substitution",
			func(c *Configuration) **string { return &c.Separator }),
		FieldAlertTag: stringField(FieldAlertTag, KindString, "Alert Tag",
			func(c *Configuration) **string { return &c.AlertTag }),
		FieldOverflowTag: stringField(FieldOverflowTag, KindString, "Overflow Tag",
			func(c *Configuration) **string { return &c.OverflowTag }),
		FieldLimitOverflow: intField(FieldLimitOverflow, "Overflow Limit",
			func(c *Configuration) **int { return &c.LimitOverflow }),
		FieldAggregationTime: intField(FieldAggregationTime, "Aggregation Time Range",
			func(c *Configuration) **int { return &c.AggregationTime }),
		FieldAggregationStream: stringField(FieldAggregationStream, KindStream, "Aggregation Stream",
			func(c *Configuration) **string { return &c.AggregationStream }),
		FieldAlertIDField: stringField(FieldAlertIDField, KindString, "Alert ID Field",
			func(c *Configuration) **string { return &c.FieldAlertID }),
		FieldSplitFields: {
			kind:  KindStringList,
			label: "Split Fields",
			get: func(c Configuration) (any, bool) {
				if c.SplitFields == nil {
					return nil, false
				}
				return append([]string{}, (*c.SplitFields)...), true
			},
			set: func(c *Configuration, value any) {
				list, ok := value.([]string)
				if !ok {
					panic(WrongValueTypeError{Field: FieldSplitFields, Expected: "[]string", Actual: value})
				}
				copied := append([]string{}, list...)
				c.SplitFields = &copied
			},
			clear: func(c *Configuration) { c.SplitFields = nil },
		},
		FieldSingleNotification: {
			kind:  KindBool,
			label: "Single Notification",
			get: func(c Configuration) (any, bool) {
				if c.SingleNotification == nil {
					return nil, false
				}
				return *c.SingleNotification, true
			},
			set: func(c *Configuration, value any) {
				flag, ok := value.(bool)
				if !ok {
					panic(WrongValueTypeError{Field: FieldSingleNotification, Expected: "bool", Actual: value})
				}
				c.SingleNotification = &flag
			},
			clear: func(c *Configuration) { c.SingleNotification = nil },
		},
		FieldComment: stringField(FieldComment, KindString, "Comment",
			func(c *Configuration) **string { return &c.Comment }),
	}
)

func stringField(name Field, kind FieldKind, label string, slot func(*Configuration) **string) fieldDescriptor {
	return fieldDescriptor{
		kind:  kind,
		label: label,
		get: func(c Configuration) (any, bool) {
			ptr := *slot(&c)
			if ptr == nil {
				return nil, false
			}
			return *ptr, true
		},
		set: func(c *Configuration, value any) {
			text, ok := value.(string)
			if !ok {
				panic(WrongValueTypeError{Field: name, Expected: "string", Actual: value})
			}
			*slot(c) = &text
		},
		clear: func(c *Configuration) { *slot(c) = nil },
	}
}

func intField(name Field, label string, slot func(*Configuration) **int) fieldDescriptor {
	return fieldDescriptor{
		kind:  KindInteger,
		label: label,
		get: func(c Configuration) (any, bool) {
			ptr := *slot(&c)
			if ptr == nil {
				return nil, false
			}
			return *ptr, true
		},
		set: func(c *Configuration, value any) {
			number, ok := value.(int)
			if !ok {
				panic(WrongValueTypeError{Field: name, Expected: "int", Actual: value})
			}
			*slot(c) = &number
		},
		clear: func(c *Configuration) { *slot(c) = nil },
	}
}

func mustSeverity(field Field, value any) Severity {
	switch typed := value.(type) {
	case Severity:
		return typed
	case string:
		return Severity(typed)
	default:
		panic(WrongValueTypeError{Field: field, Expected: "Severity", Actual: value})
	}
}

// descriptorFor returns registry entry or panics for unregistered fields.
// Params: field name.
// Returns: field descriptor.
func descriptorFor(field Field) fieldDescriptor {
	descriptor, ok := fieldRegistry[field]
	if !ok {
		panic(UnknownFieldError{Field: field})
	}
	return descriptor
}

// ParseField validates one user-provided field name.
// Params: raw field key.
// Returns: typed field or ErrUnknownField.
func ParseField(raw string) (Field, error) {
	field := Field(strings.TrimSpace(raw))
	if _, ok := fieldRegistry[field]; !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownField, raw)
	}
	return field, nil
}

// Fields lists every recognized field in canonical order.
// Params: none.
// Returns: fresh ordered copy.
func Fields() []Field {
	return append([]Field(nil), fieldOrder...)
}

// Kind returns semantic value kind of a field.
// Params: none.
// Returns: field kind; panics for unregistered fields.
func (f Field) Kind() FieldKind {
	return descriptorFor(f).kind
}

// Label returns display label of a field.
// Params: none.
// Returns: label; panics for unregistered fields.
func (f Field) Label() string {
	return descriptorFor(f).label
}

// DecodeValue converts one JSON edit payload into the field's Go value.
// Params: field and raw JSON value.
// Returns: typed value accepted by Configuration.Set or input error.
func DecodeValue(field Field, raw json.RawMessage) (any, error) {
	descriptor, ok := fieldRegistry[field]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownField, string(field))
	}
	switch descriptor.kind {
	case KindSeverity, KindString, KindTemplate, KindStream:
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, fmt.Errorf("%s must be a string: %w", field, err)
		}
		return ParseValue(field, text)
	case KindInteger:
		var number int
		if err := json.Unmarshal(raw, &number); err == nil {
			return checkNonNegative(field, number)
		}
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, fmt.Errorf("%s must be an integer", field)
		}
		return ParseValue(field, text)
	case KindStringList:
		var list []string
		if err := json.Unmarshal(raw, &list); err == nil {
			if list == nil {
				list = []string{}
			}
			return list, nil
		}
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, fmt.Errorf("%s must be a list of strings", field)
		}
		return ParseValue(field, text)
	case KindBool:
		var flag bool
		if err := json.Unmarshal(raw, &flag); err != nil {
			return nil, fmt.Errorf("%s must be a boolean: %w", field, err)
		}
		return flag, nil
	default:
		return nil, fmt.Errorf("%s has unsupported kind", field)
	}
}

// ParseValue converts one textual form/CLI value into the field's Go value.
// Params: field and raw text; lists are comma separated, empty text is an empty list.
// Returns: typed value accepted by Configuration.Set or input error.
func ParseValue(field Field, raw string) (any, error) {
	descriptor, ok := fieldRegistry[field]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownField, string(field))
	}
	switch descriptor.kind {
	case KindSeverity:
		return ParseSeverity(raw)
	case KindString, KindTemplate, KindStream:
		return raw, nil
	case KindInteger:
		number, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%s must be an integer: %w", field, err)
		}
		return checkNonNegative(field, number)
	case KindStringList:
		if strings.TrimSpace(raw) == "" {
			return []string{}, nil
		}
		parts := strings.Split(raw, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out, nil
	case KindBool:
		flag, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%s must be a boolean: %w", field, err)
		}
		return flag, nil
	default:
		return nil, fmt.Errorf("%s has unsupported kind", field)
	}
}

func checkNonNegative(field Field, number int) (any, error) {
	if number < 0 {
		return nil, fmt.Errorf("%s must be >=0", field)
	}
	return number, nil
}
