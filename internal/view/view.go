// Package view builds read-only display models from effective configurations.
package view

import (
	"fmt"
	"io"
	"strings"
	"text/template"

	"logalert/internal/catalog"
	"logalert/internal/domain"
	"logalert/internal/resolver"
	"logalert/internal/templatefmt"
)

const (
	noDescription = "No description given"
	emptyBody     = "Empty body"
	noSplitFields = "No split fields for this notification."
)

// Row is one labeled display value.
type Row struct {
	Field   domain.Field     `json:"field,omitempty"`
	Label   string           `json:"label"`
	Value   string           `json:"value"`
	Source  resolver.Layer   `json:"source,omitempty"`
	Choices []catalog.Option `json:"choices,omitempty"`
}

// Form lists every field of the active set with its provenance.
type Form struct {
	Title string `json:"title"`
	Rows  []Row  `json:"rows"`
}

// Summary is the collapsed notification card shown in event definitions.
type Summary struct {
	Title       string `json:"title"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Rows        []Row  `json:"rows"`
}

// Details is the notification detail panel.
type Details struct {
	Title string `json:"title"`
	Rows  []Row  `json:"rows"`
}

// BuildForm renders every resolved field in set order.
// Params: title, resolved configuration and stream catalog snapshot used for stream labels.
// Returns: form read model; panics for severities outside the label table.
func BuildForm(title string, resolved resolver.Resolved, streams catalog.Snapshot) Form {
	rows := make([]Row, 0, len(resolved.Fields))
	for _, field := range resolved.Fields {
		rows = append(rows, fieldRow(resolved, field, streams))
	}
	return Form{Title: title, Rows: rows}
}

// BuildSummary renders the notification summary card.
// Params: notification definition and its resolved configuration.
// Returns: summary read model.
func BuildSummary(notification domain.Notification, resolved resolver.Resolved) Summary {
	rows := []Row{
		bodyRow(resolved),
		{
			Field:  domain.FieldSplitFields,
			Label:  domain.FieldSplitFields.Label(),
			Value:  fallback(resolved.Display(domain.FieldSplitFields), noSplitFields),
			Source: resolved.Source(domain.FieldSplitFields),
		},
		plainRow(resolved, domain.FieldAggregationTime),
		plainRow(resolved, domain.FieldAlertTag),
		boolRow(resolved, domain.FieldSingleNotification),
	}
	return Summary{
		Title:       notification.DisplayTitle(),
		Type:        domain.NotificationType,
		Description: describe(notification.Description),
		Rows:        rows,
	}
}

// BuildDetails renders the notification detail panel.
func BuildDetails(notification domain.Notification, resolved resolver.Resolved) Details {
	return Details{
		Title: notification.DisplayTitle(),
		Rows: []Row{
			{Label: "Description", Value: describe(notification.Description)},
			bodyRow(resolved),
			plainRow(resolved, domain.FieldAggregationTime),
			plainRow(resolved, domain.FieldAlertTag),
			boolRow(resolved, domain.FieldSingleNotification),
		},
	}
}

func fieldRow(resolved resolver.Resolved, field domain.Field, streams catalog.Snapshot) Row {
	row := plainRow(resolved, field)
	if field.Kind() == domain.KindSeverity {
		row.Choices = severityChoices()
		return row
	}
	if field.Kind() != domain.KindStream || row.Value == resolver.NotSet {
		return row
	}
	if label, ok := streams.Lookup(row.Value); ok {
		row.Value = fmt.Sprintf("%s (%s)", label, row.Value)
	}
	return row
}

func severityChoices() []catalog.Option {
	severities := domain.Severities()
	out := make([]catalog.Option, 0, len(severities))
	for _, severity := range severities {
		out = append(out, catalog.Option{Label: severity.Label(), Value: string(severity)})
	}
	return out
}

func plainRow(resolved resolver.Resolved, field domain.Field) Row {
	return Row{
		Field:  field,
		Label:  field.Label(),
		Value:  resolved.Display(field),
		Source: resolved.Source(field),
	}
}

// boolRow renders undefined flags as false like the notification card does.
func boolRow(resolved resolver.Resolved, field domain.Field) Row {
	row := plainRow(resolved, field)
	if row.Value == resolver.NotSet {
		row.Value = "false"
	}
	return row
}

func bodyRow(resolved resolver.Resolved) Row {
	row := plainRow(resolved, domain.FieldLogBody)
	row.Value = fallback(row.Value, emptyBody)
	return row
}

func fallback(value, replacement string) string {
	if value == resolver.NotSet {
		return replacement
	}
	return value
}

func describe(description string) string {
	if strings.TrimSpace(description) == "" {
		return noDescription
	}
	return description
}

const rowsTemplate = `{{define "rows"}}{{range .}}  {{printf "%-24s" .Label}}{{indent "                          " .Value}}{{if .Field}}  [{{.Source}}]{{end}}
{{end}}{{end}}`

var (
	formTemplate = template.Must(templatefmt.ParseViewTemplate("form",
		rowsTemplate+`{{.Title}}
{{template "rows" .Rows}}`))
	summaryTemplate = template.Must(templatefmt.ParseViewTemplate("summary",
		rowsTemplate+`{{.Title}}
  {{.Type}}
  {{printf "%-24s" "Description"}}{{indent "                          " .Description}}
{{template "rows" .Rows}}`))
	detailsTemplate = template.Must(templatefmt.ParseViewTemplate("details",
		rowsTemplate+`{{.Title}}
{{template "rows" .Rows}}`))
)

// Render writes a read model as aligned text.
// Params: destination and one of Form, Summary or Details.
// Returns: template execution error or unsupported model error.
func Render(w io.Writer, model any) error {
	switch typed := model.(type) {
	case Form:
		return formTemplate.Execute(w, typed)
	case Summary:
		return summaryTemplate.Execute(w, typed)
	case Details:
		return detailsTemplate.Execute(w, typed)
	default:
		return fmt.Errorf("unsupported read model %T", model)
	}
}
