package core

import (
	"errors"
	"testing"
)

func TestDecodeExport(t *testing.T) {
	cases := []struct {
		in  string
		typ string
		str string
	}{
		{`{"t":"number","j":42}`, "number", "42"},
		{`{"t":"number","j":0.5}`, "number", "0.5"},
		{`{"t":"string","j":"hi"}`, "string", "hi"},
		{`{"t":"boolean","j":false}`, "boolean", "false"},
		{`{"t":"null","j":null}`, "null", "null"},
		{`{"t":"undefined"}`, "undefined", "undefined"},
		{`{"t":"object","j":{"a":[1,2]}}`, "object", `{"a":[1,2]}`},
		{`{"t":"function","s":"function f() {}"}`, "function", "function f() {}"},
	}
	for _, tc := range cases {
		v, err := DecodeExport(tc.in)
		if err != nil {
			t.Fatalf("DecodeExport(%s): %v", tc.in, err)
		}
		if v.Type != tc.typ || v.String() != tc.str {
			t.Errorf("DecodeExport(%s) = %s %q, want %s %q", tc.in, v.Type, v.String(), tc.typ, tc.str)
		}
	}

	if _, err := DecodeExport("not json"); err == nil {
		t.Error("expected error for invalid envelope")
	}
}

func TestValueEqual(t *testing.T) {
	a := Value{Type: "object", Export: map[string]any{"x": 1.0}}
	b := Value{Type: "object", Export: map[string]any{"x": 1.0}}
	c := Value{Type: "object", Export: map[string]any{"x": 2.0}}
	if !a.Equal(b) || a.Equal(c) {
		t.Error("object equality wrong")
	}
	if !Undefined.Equal(Value{}) {
		t.Error("zero Value should equal undefined")
	}
	if (Value{Type: "string", Export: "1"}).Equal(Value{Type: "number", Export: 1.0}) {
		t.Error("values of different types compared equal")
	}
}

func TestStatusOf(t *testing.T) {
	if StatusOf(nil) != StatusOK {
		t.Error("nil should be StatusOK")
	}
	if StatusOf(errors.New("plain")) != StatusScriptException {
		t.Error("plain errors should be script exceptions")
	}
	ee := Errorf(StatusBadSerializedScript, "stale %d", 1)
	wrapped := errors.Join(errors.New("context"), ee)
	if StatusOf(wrapped) != StatusBadSerializedScript {
		t.Errorf("wrapped status = %v", StatusOf(wrapped))
	}
	if ee.Error() != "bad serialized script: stale 1" {
		t.Errorf("Error() = %q", ee.Error())
	}
	named := &EngineError{Status: StatusSyntaxError, Name: "SyntaxError", Message: "unexpected token"}
	if named.Error() != "syntax error: SyntaxError: unexpected token" {
		t.Errorf("Error() = %q", named.Error())
	}
	if Status(99).String() != "status(99)" {
		t.Errorf("unknown status = %q", Status(99).String())
	}
}
