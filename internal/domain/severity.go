package domain

import (
	"fmt"
	"strings"
)

// Severity is urgency classification attached to a generated alert.
// Params: one of HIGH/MEDIUM/LOW/INFO.
// Returns: stored enum key used by configuration layers.
type Severity string

const (
	// SeverityHigh marks high urgency alerts.
	SeverityHigh Severity = "HIGH"
	// SeverityMedium marks medium urgency alerts.
	SeverityMedium Severity = "MEDIUM"
	// SeverityLow marks low urgency alerts.
	SeverityLow Severity = "LOW"
	// SeverityInfo marks informational alerts.
	SeverityInfo Severity = "INFO"
)

var (
	severityOrder  = []Severity{SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}
	severityLabels = map[Severity]string{
		SeverityHigh:   "High",
		SeverityMedium: "Medium",
		SeverityLow:    "Low",
		SeverityInfo:   "Info",
	}
)

// UnknownSeverityError reports severity key outside the label table.
// Params: offending raw value.
// Returns: panic payload for label resolution and error for parsing.
type UnknownSeverityError struct {
	Value string
}

// Error renders the offending severity value.
// Params: none.
// Returns: error message.
func (e UnknownSeverityError) Error() string {
	return fmt.Sprintf("unknown severity %q", e.Value)
}

// ParseSeverity validates one user-provided severity key.
// Params: raw key, case-insensitive, surrounding spaces ignored.
// Returns: normalized severity or UnknownSeverityError.
func ParseSeverity(raw string) (Severity, error) {
	candidate := Severity(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := severityLabels[candidate]; !ok {
		return "", UnknownSeverityError{Value: raw}
	}
	return candidate, nil
}

// Known reports whether severity has a label.
// Params: none.
// Returns: true for HIGH/MEDIUM/LOW/INFO.
func (s Severity) Known() bool {
	_, ok := severityLabels[s]
	return ok
}

// Label resolves human label for the stored key.
// Params: none.
// Returns: label; panics with UnknownSeverityError for keys outside the table.
func (s Severity) Label() string {
	label, ok := severityLabels[s]
	if !ok {
		panic(UnknownSeverityError{Value: string(s)})
	}
	return label
}

// MarshalText encodes severity key.
// Params: none.
// Returns: raw key bytes or error for unknown keys.
func (s Severity) MarshalText() ([]byte, error) {
	if !s.Known() {
		return nil, UnknownSeverityError{Value: string(s)}
	}
	return []byte(s), nil
}

// UnmarshalText decodes and validates severity key from JSON/TOML.
// Params: raw key bytes.
// Returns: UnknownSeverityError for keys outside the enum.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Severities lists severities in selector order.
// Params: none.
// Returns: fresh ordered copy.
func Severities() []Severity {
	return append([]Severity(nil), severityOrder...)
}
