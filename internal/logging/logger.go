package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"logalert/internal/config"

	"github.com/mattn/go-isatty"
)

const (
	ansiReset   = "\x1b[0m"
	ansiBlue    = "\x1b[34m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiMagenta = "\x1b[35m"
	ansiRed     = "\x1b[31m"
	ansiGray    = "\x1b[90m"
)

// Lower index wins when regions start at the same offset.
var highlightRules = []struct {
	pattern *regexp.Regexp
	color   string
}{
	{regexp.MustCompile(`"[^"\n]*"`), ansiGreen},
	{regexp.MustCompile(`\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`), ansiMagenta},
	{regexp.MustCompile(`\b\d+(?:\.\d+)?\b`), ansiYellow},
}

var levelTones = []struct {
	marker string
	color  string
}{
	{"level=DEBUG", ansiGray},
	{"level=INFO", ansiBlue},
	{"level=WARN", ansiYellow},
	{"level=ERROR", ansiRed},
}

// New builds a logger for configured sinks writing console output to stderr.
// Returns: slog logger, cleanup callback closing file sinks, and setup error.
func New(cfg config.LogConfig) (*slog.Logger, func(), error) {
	return NewWithConsole(cfg, os.Stderr)
}

// NewWithConsole is New with an explicit console writer; colors apply only to terminals.
func NewWithConsole(cfg config.LogConfig, console io.Writer) (*slog.Logger, func(), error) {
	var (
		handlers fanout
		files    []*os.File
	)
	if cfg.Console.Enabled {
		handler, err := consoleHandler(cfg.Console, console)
		if err != nil {
			return nil, nil, fmt.Errorf("build console handler: %w", err)
		}
		handlers = append(handlers, handler)
	}
	if cfg.File.Enabled {
		handler, file, err := fileHandler(cfg.File)
		if err != nil {
			return nil, nil, fmt.Errorf("build file handler: %w", err)
		}
		handlers = append(handlers, handler)
		files = append(files, file)
	}

	closeFn := func() {
		for _, file := range files {
			_ = file.Close()
		}
	}
	switch len(handlers) {
	case 0:
		return nil, nil, fmt.Errorf("no log sinks enabled")
	case 1:
		return slog.New(handlers[0]), closeFn, nil
	default:
		return slog.New(handlers), closeFn, nil
	}
}

// Discard returns a logger dropping every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}

func consoleHandler(sink config.LogSinkConfig, dst io.Writer) (slog.Handler, error) {
	level, err := parseLevel(sink.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return attr
		},
	}
	if strings.EqualFold(sink.Format, "line") && isTerminal(dst) {
		dst = &colorLineWriter{dst: dst}
	}
	return formatHandler("console", sink.Format, dst, opts)
}

// fileHandler opens the sink file in append mode, creating its directory.
func fileHandler(sink config.LogSinkConfig) (slog.Handler, *os.File, error) {
	level, err := parseLevel(sink.Level)
	if err != nil {
		return nil, nil, err
	}
	if dir := filepath.Dir(sink.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir %q: %w", dir, err)
		}
	}
	file, err := os.OpenFile(sink.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open file %q: %w", sink.Path, err)
	}
	handler, err := formatHandler("file", sink.Format, file, &slog.HandlerOptions{Level: level})
	if err != nil {
		_ = file.Close()
		return nil, nil, err
	}
	return handler, file, nil
}

func formatHandler(sink, format string, dst io.Writer, opts *slog.HandlerOptions) (slog.Handler, error) {
	switch strings.ToLower(format) {
	case "line":
		return slog.NewTextHandler(dst, opts), nil
	case "json":
		return slog.NewJSONHandler(dst, opts), nil
	default:
		return nil, fmt.Errorf("unsupported %s format %q", sink, format)
	}
}

func isTerminal(dst io.Writer) bool {
	file, ok := dst.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}

func parseLevel(value string) (slog.Level, error) {
	name := strings.TrimSpace(strings.ToLower(value))
	switch name {
	case "debug", "info", "warn", "error":
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported level %q", value)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}

// fanout writes each record to every sink that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range f {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle stops at the first failing sink.
func (f fanout) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range f {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.each(func(handler slog.Handler) slog.Handler { return handler.WithAttrs(attrs) })
}

func (f fanout) WithGroup(name string) slog.Handler {
	return f.each(func(handler slog.Handler) slog.Handler { return handler.WithGroup(name) })
}

func (f fanout) each(derive func(slog.Handler) slog.Handler) fanout {
	next := make(fanout, len(f))
	for i, handler := range f {
		next[i] = derive(handler)
	}
	return next
}

// colorLineWriter tints one rendered text line by level and highlights
// quoted strings, session tokens and numbers inside it.
type colorLineWriter struct {
	dst io.Writer
}

func (w *colorLineWriter) Write(payload []byte) (int, error) {
	line := string(payload)
	tone := levelColor(line)
	if tone == "" {
		return w.dst.Write(payload)
	}
	n, err := io.WriteString(w.dst, tone+highlight(line, tone)+ansiReset)
	return min(n, len(payload)), err
}

func levelColor(line string) string {
	for _, tone := range levelTones {
		if strings.Contains(line, tone.marker) {
			return tone.color
		}
	}
	return ""
}

type span struct {
	start, end int
	rule       int
}

// highlight restores base after every highlighted span.
func highlight(line, base string) string {
	spans := collectSpans(line)
	if len(spans) == 0 {
		return line
	}
	var builder strings.Builder
	builder.Grow(len(line) + len(spans)*12)
	cursor := 0
	for _, s := range spans {
		builder.WriteString(line[cursor:s.start])
		builder.WriteString(highlightRules[s.rule].color)
		builder.WriteString(line[s.start:s.end])
		builder.WriteString(ansiReset)
		builder.WriteString(base)
		cursor = s.end
	}
	builder.WriteString(line[cursor:])
	return builder.String()
}

// collectSpans returns sorted non-overlapping spans across all rules.
func collectSpans(line string) []span {
	var candidates []span
	for rule, current := range highlightRules {
		for _, pair := range current.pattern.FindAllStringIndex(line, -1) {
			candidates = append(candidates, span{start: pair[0], end: pair[1], rule: rule})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.start != b.start {
			return a.start < b.start
		}
		if a.rule != b.rule {
			return a.rule < b.rule
		}
		return a.end > b.end
	})

	out := candidates[:0]
	cursor := 0
	for _, s := range candidates {
		if s.start < cursor || s.start >= s.end {
			continue
		}
		out = append(out, s)
		cursor = s.end
	}
	return out
}
