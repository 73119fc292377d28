package templatefmt

import (
	"bytes"
	"strings"
	"testing"

	"logalert/internal/domain"
)

func TestValidateAcceptsDefaultBody(t *testing.T) {
	t.Parallel()

	if err := Validate(domain.DefaultBodyTemplate); err != nil {
		t.Fatalf("default body must be valid: %v", err)
	}
}

func TestValidateRejectsBrokenTemplates(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"empty":        "   ",
		"unterminated": "id: ${logging_alert.id",
		"blank":        "id: ${ }",
		"unclosed if":  "${if backlog} src",
		"stray end":    "x ${end}",
		"stray else":   "x ${else}",
	}
	for name, body := range cases {
		if err := Validate(body); err == nil {
			t.Fatalf("%s: expected validation error for %q", name, body)
		}
	}
}

func TestPlaceholdersOffsets(t *testing.T) {
	t.Parallel()

	placeholders, err := Placeholders("a ${x} b ${ foreach y z }${end}")
	if err != nil {
		t.Fatalf("placeholders: %v", err)
	}
	if len(placeholders) != 3 {
		t.Fatalf("expected 3 placeholders, got %d", len(placeholders))
	}
	if placeholders[0].Expr != "x" || placeholders[0].Offset != 2 {
		t.Fatalf("unexpected first placeholder %+v", placeholders[0])
	}
	if placeholders[1].Expr != "foreach y z" {
		t.Fatalf("expected trimmed expression, got %q", placeholders[1].Expr)
	}
}

func TestParseViewTemplateHelpers(t *testing.T) {
	t.Parallel()

	tpl, err := ParseViewTemplate("row", `{{ .Name }} {{ indent "  " .Body }}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var out bytes.Buffer
	if err := tpl.Execute(&out, map[string]any{"Name": "a", "Body": "x\ny"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.HasPrefix(out.String(), "a x") || !strings.Contains(out.String(), "\n  y") {
		t.Fatalf("unexpected output %q", out.String())
	}
}
