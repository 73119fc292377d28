package domain

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestDecodeValueAcceptsNumberOrNumericString(t *testing.T) {
	t.Parallel()

	value, err := DecodeValue(FieldAggregationTime, json.RawMessage(`15`))
	if err != nil || value != 15 {
		t.Fatalf("expected 15, got %v err=%v", value, err)
	}
	value, err = DecodeValue(FieldAggregationTime, json.RawMessage(`"20"`))
	if err != nil || value != 20 {
		t.Fatalf("expected 20, got %v err=%v", value, err)
	}
	if _, err := DecodeValue(FieldAggregationTime, json.RawMessage(`-1`)); err == nil {
		t.Fatalf("expected negative value rejection")
	}
}

func TestDecodeValueSplitsCommaList(t *testing.T) {
	t.Parallel()

	value, err := DecodeValue(FieldSplitFields, json.RawMessage(`"src_ip, dest_ip,,"`))
	if err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if !reflect.DeepEqual(value, []string{"src_ip", "dest_ip"}) {
		t.Fatalf("unexpected list %v", value)
	}
	value, err = DecodeValue(FieldSplitFields, json.RawMessage(`["a"]`))
	if err != nil || !reflect.DeepEqual(value, []string{"a"}) {
		t.Fatalf("expected [a], got %v err=%v", value, err)
	}
}

func TestDecodeValueValidatesSeverity(t *testing.T) {
	t.Parallel()

	value, err := DecodeValue(FieldSeverity, json.RawMessage(`"high"`))
	if err != nil || value != SeverityHigh {
		t.Fatalf("expected HIGH, got %v err=%v", value, err)
	}
	_, err = DecodeValue(FieldSeverity, json.RawMessage(`"CRITICAL"`))
	var unknown UnknownSeverityError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownSeverityError, got %v", err)
	}
}

func TestDecodeValueRejectsUnknownField(t *testing.T) {
	t.Parallel()

	if _, err := DecodeValue(Field("nope"), json.RawMessage(`"x"`)); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestParseValueBool(t *testing.T) {
	t.Parallel()

	value, err := ParseValue(FieldSingleNotification, "true")
	if err != nil || value != true {
		t.Fatalf("expected true, got %v err=%v", value, err)
	}
	if _, err := ParseValue(FieldSingleNotification, "maybe"); err == nil {
		t.Fatalf("expected bool parse error")
	}
}

func TestParsedValuesAreAcceptedBySet(t *testing.T) {
	t.Parallel()

	inputs := map[Field]string{
		FieldSeverity:           "medium",
		FieldLogBody:            "${logging_alert.id}",
		FieldSeparator:          " / ",
		FieldAlertTag:           "tag",
		FieldOverflowTag:        "over",
		FieldLimitOverflow:      "3",
		FieldAggregationTime:    "0",
		FieldAggregationStream:  "s1",
		FieldAlertIDField:       "alert_id",
		FieldSplitFields:        "a,b",
		FieldSingleNotification: "false",
		FieldComment:            "note",
	}
	cfg := Configuration{}
	for field, raw := range inputs {
		value, err := ParseValue(field, raw)
		if err != nil {
			t.Fatalf("parse %s: %v", field, err)
		}
		cfg = cfg.Set(field, value)
	}
	for field := range inputs {
		if !cfg.Defined(field) {
			t.Fatalf("expected %s defined", field)
		}
	}
}

func TestSeverityLabelPanicsOutsideTable(t *testing.T) {
	t.Parallel()

	defer func() {
		recovered := recover()
		typed, ok := recovered.(UnknownSeverityError)
		if !ok || typed.Value != "CRITICAL" {
			t.Fatalf("expected UnknownSeverityError panic, got %v", recovered)
		}
	}()
	_ = Severity("CRITICAL").Label()
}
