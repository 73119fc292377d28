package templatefmt

import (
	"fmt"
	"strings"
	"text/template"
)

// Placeholder is one `${...}` expression inside a log body template.
type Placeholder struct {
	Expr   string
	Offset int
}

// Placeholders lists `${...}` expressions in appearance order.
// Params: template body.
// Returns: expressions with byte offsets or error for unterminated expressions.
func Placeholders(body string) ([]Placeholder, error) {
	out := make([]Placeholder, 0, 8)
	rest := body
	base := 0
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			return out, nil
		}
		end := strings.IndexByte(rest[start+2:], '}')
		if end < 0 {
			return nil, fmt.Errorf("unterminated placeholder at offset %d", base+start)
		}
		expr := strings.TrimSpace(rest[start+2 : start+2+end])
		out = append(out, Placeholder{Expr: expr, Offset: base + start})
		consumed := start + 2 + end + 1
		rest = rest[consumed:]
		base += consumed
	}
}

// Validate checks log body template structure.
// Params: template body.
// Returns: error for empty body, empty or unterminated placeholders and unbalanced if/foreach/end blocks.
func Validate(body string) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("log body must not be empty")
	}
	placeholders, err := Placeholders(body)
	if err != nil {
		return err
	}
	open := make([]Placeholder, 0, 4)
	for _, placeholder := range placeholders {
		keyword, _, _ := strings.Cut(placeholder.Expr, " ")
		switch keyword {
		case "":
			return fmt.Errorf("empty placeholder at offset %d", placeholder.Offset)
		case "if", "foreach":
			open = append(open, placeholder)
		case "else":
			if len(open) == 0 {
				return fmt.Errorf("${else} without block at offset %d", placeholder.Offset)
			}
		case "end":
			if len(open) == 0 {
				return fmt.Errorf("${end} without block at offset %d", placeholder.Offset)
			}
			open = open[:len(open)-1]
		}
	}
	if len(open) > 0 {
		last := open[len(open)-1]
		return fmt.Errorf("block %q at offset %d is not closed with ${end}", last.Expr, last.Offset)
	}
	return nil
}

// FuncMap returns shared read model template helpers.
// Params: none.
// Returns: deterministic helper map used by CLI renderers.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"indent": Indent,
	}
}

// ParseViewTemplate parses one read model template with shared helpers.
// Params: template name and body.
// Returns: compiled template or parse error.
func ParseViewTemplate(name, body string) (*template.Template, error) {
	return template.New(name).Funcs(FuncMap()).Option("missingkey=error").Parse(body)
}

// Indent prefixes every continuation line of multi-line values.
// Params: prefix and value.
// Returns: value with prefix after each line break.
func Indent(prefix, value string) string {
	return strings.ReplaceAll(value, "\n", "\n"+prefix)
}
