package resolver

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"logalert/internal/domain"
)

type stubSource struct {
	calls atomic.Int32
	cfg   *domain.Configuration
	err   error
	hook  func()
}

func (s *stubSource) FetchDefaults(context.Context, string) (*domain.Configuration, error) {
	s.calls.Add(1)
	if s.hook != nil {
		s.hook()
	}
	return s.cfg, s.err
}

func scenarioBuiltin() domain.Configuration {
	return domain.Configuration{}.
		Set(domain.FieldSeverity, domain.SeverityLow).
		Set(domain.FieldAlertTag, "LoggingAlert").
		Set(domain.FieldAggregationTime, 0)
}

var scenarioFields = domain.FieldSet{domain.FieldSeverity, domain.FieldAlertTag, domain.FieldAggregationTime}

func TestResolveLayering(t *testing.T) {
	t.Parallel()

	draft := domain.Configuration{}.Set(domain.FieldAlertTag, "draft")
	global := domain.Configuration{}.Set(domain.FieldAlertTag, "global").Set(domain.FieldSeverity, domain.SeverityMedium)
	resolved := Resolve(draft, &global, scenarioBuiltin(), scenarioFields)

	if got, _ := resolved.Value(domain.FieldAlertTag); got != "draft" {
		t.Fatalf("expected draft to win, got %v", got)
	}
	if resolved.Source(domain.FieldAlertTag) != LayerDraft {
		t.Fatalf("unexpected alert_tag source %s", resolved.Source(domain.FieldAlertTag))
	}
	if got, _ := resolved.Value(domain.FieldSeverity); got != domain.SeverityMedium {
		t.Fatalf("expected global severity, got %v", got)
	}
	if resolved.Source(domain.FieldAggregationTime) != LayerBuiltin {
		t.Fatalf("expected builtin aggregation_time")
	}
}

func TestResolveFallthroughWithoutGlobal(t *testing.T) {
	t.Parallel()

	resolved := Resolve(domain.Configuration{}, nil, scenarioBuiltin(), scenarioFields)
	for _, field := range scenarioFields {
		want, _ := scenarioBuiltin().Get(field)
		if got, _ := resolved.Value(field); got != want {
			t.Fatalf("field %s: expected builtin %v, got %v", field, want, got)
		}
	}
}

func TestResolveConcreteScenario(t *testing.T) {
	t.Parallel()

	r := New(scenarioFields, scenarioBuiltin())
	draft := domain.Configuration{}.Set(domain.FieldSeverity, domain.SeverityHigh)
	resolved := r.Effective(draft)

	if got, _ := resolved.Value(domain.FieldSeverity); got != domain.SeverityHigh {
		t.Fatalf("expected HIGH, got %v", got)
	}
	if got, _ := resolved.Value(domain.FieldAlertTag); got != "LoggingAlert" {
		t.Fatalf("expected LoggingAlert, got %v", got)
	}
	if got, ok := resolved.Value(domain.FieldAggregationTime); !ok || got != 0 {
		t.Fatalf("expected aggregation_time 0, got %v ok=%v", got, ok)
	}
	if resolved.Display(domain.FieldSeverity) != "High" {
		t.Fatalf("unexpected severity display %q", resolved.Display(domain.FieldSeverity))
	}
	if resolved.Display(domain.FieldAggregationTime) != "0" {
		t.Fatalf("expected explicit zero to render as 0, got %q", resolved.Display(domain.FieldAggregationTime))
	}
}

func TestDisplaySentinel(t *testing.T) {
	t.Parallel()

	fields := domain.FieldSet{domain.FieldComment, domain.FieldSplitFields, domain.FieldAlertTag, domain.FieldLimitOverflow}
	draft := domain.Configuration{}.
		Set(domain.FieldSplitFields, []string{}).
		Set(domain.FieldAlertTag, "")
	resolved := Resolve(draft, nil, domain.Configuration{}, fields)

	for _, field := range fields {
		if got := resolved.Display(field); got != NotSet {
			t.Fatalf("field %s: expected %q, got %q", field, NotSet, got)
		}
	}
	if got := resolved.Display(domain.FieldSeverity); got != NotSet {
		t.Fatalf("expected field outside set to render sentinel, got %q", got)
	}
	if got := FormatValue(nil, true); got != NotSet {
		t.Fatalf("expected nil to render sentinel, got %q", got)
	}
	if got := FormatValue([]string{"a", "b"}, true); got != "a, b" {
		t.Fatalf("unexpected list display %q", got)
	}
	if got := FormatValue(false, true); got != "false" {
		t.Fatalf("unexpected bool display %q", got)
	}
}

func TestDisplayUnknownSeverityPanics(t *testing.T) {
	t.Parallel()

	draft := domain.Configuration{}.Set(domain.FieldSeverity, "CRITICAL")
	resolved := Resolve(draft, nil, scenarioBuiltin(), scenarioFields)

	defer func() {
		if _, ok := recover().(domain.UnknownSeverityError); !ok {
			t.Fatalf("expected UnknownSeverityError panic")
		}
	}()
	_ = resolved.Display(domain.FieldSeverity)
}

func TestResolveDoesNotMutateInputs(t *testing.T) {
	t.Parallel()

	draft := domain.Configuration{}.Set(domain.FieldSplitFields, []string{"a"})
	resolved := Resolve(draft, nil, domain.BuiltinDefaults(), domain.NotificationFields())
	(*resolved.Config.SplitFields)[0] = "z"

	if got, _ := draft.Get(domain.FieldSplitFields); got.([]string)[0] != "a" {
		t.Fatalf("expected draft untouched")
	}
}

func TestLoadGlobalDefaultsFetchesOnce(t *testing.T) {
	t.Parallel()

	global := domain.Configuration{}.Set(domain.FieldAlertTag, "global")
	source := &stubSource{cfg: &global}
	r := New(scenarioFields, scenarioBuiltin())

	if state, _ := r.GlobalState(); state != GlobalPending {
		t.Fatalf("expected pending before load, got %s", state)
	}
	if got, _ := r.Effective(domain.Configuration{}).Value(domain.FieldAlertTag); got != "LoggingAlert" {
		t.Fatalf("expected builtin while pending, got %v", got)
	}
	for i := 0; i < 3; i++ {
		if err := r.LoadGlobalDefaults(context.Background(), source, "settings"); err != nil {
			t.Fatalf("load: %v", err)
		}
	}
	if source.calls.Load() != 1 {
		t.Fatalf("expected single fetch, got %d", source.calls.Load())
	}
	if got, _ := r.Effective(domain.Configuration{}).Value(domain.FieldAlertTag); got != "global" {
		t.Fatalf("expected global value, got %v", got)
	}
}

func TestLoadGlobalDefaultsAbsentAndFailed(t *testing.T) {
	t.Parallel()

	absent := New(scenarioFields, scenarioBuiltin())
	if err := absent.LoadGlobalDefaults(context.Background(), &stubSource{}, "settings"); err != nil {
		t.Fatalf("absent load: %v", err)
	}
	if state, _ := absent.GlobalState(); state != GlobalAbsent {
		t.Fatalf("expected absent, got %s", state)
	}

	failing := New(scenarioFields, scenarioBuiltin())
	boom := errors.New("boom")
	if err := failing.LoadGlobalDefaults(context.Background(), &stubSource{err: boom}, "settings"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
	state, lastErr := failing.GlobalState()
	if state != GlobalFailed || !errors.Is(lastErr, boom) {
		t.Fatalf("expected failed state, got %s err=%v", state, lastErr)
	}
	if got, _ := failing.Effective(domain.Configuration{}).Value(domain.FieldAlertTag); got != "LoggingAlert" {
		t.Fatalf("expected builtin fallback after failure, got %v", got)
	}
}

func TestSetGlobalDefaultsWinsOverInFlightFetch(t *testing.T) {
	t.Parallel()

	stale := domain.Configuration{}.Set(domain.FieldAlertTag, "stale")
	fresh := domain.Configuration{}.Set(domain.FieldAlertTag, "fresh")
	r := New(scenarioFields, scenarioBuiltin())
	source := &stubSource{cfg: &stale, hook: func() { r.SetGlobalDefaults(&fresh) }}

	if err := r.LoadGlobalDefaults(context.Background(), source, "settings"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got, _ := r.Effective(domain.Configuration{}).Value(domain.FieldAlertTag); got != "fresh" {
		t.Fatalf("expected newer global layer, got %v", got)
	}
}
