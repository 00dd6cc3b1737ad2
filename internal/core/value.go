package core

import (
	"encoding/json"
	"fmt"
)

// Value is an engine result exported to Go. Engines convert their native
// values eagerly so a Value never references engine memory and stays valid
// after the engine is closed.
type Value struct {
	// Type is the JavaScript typeof of the value, with "null" for null.
	Type string
	// Export holds the JSON-compatible Go form: nil, bool, float64, string,
	// []any or map[string]any. Functions, symbols and bigints are exported
	// as their string form.
	Export any
}

// Undefined is the exported undefined value.
var Undefined = Value{Type: "undefined"}

// IsUndefined reports whether v is undefined.
func (v Value) IsUndefined() bool { return v.Type == "undefined" || v.Type == "" }

// String returns the value the way JavaScript's String() would for
// primitives and JSON for objects.
func (v Value) String() string {
	switch v.Type {
	case "", "undefined":
		return "undefined"
	case "null":
		return "null"
	case "string":
		s, _ := v.Export.(string)
		return s
	case "object":
		b, err := json.Marshal(v.Export)
		if err != nil {
			return fmt.Sprint(v.Export)
		}
		return string(b)
	default:
		return fmt.Sprint(v.Export)
	}
}

// Equal compares type and JSON form.
func (v Value) Equal(o Value) bool {
	if v.IsUndefined() || o.IsUndefined() {
		return v.IsUndefined() && o.IsUndefined()
	}
	if v.Type != o.Type {
		return false
	}
	a, err1 := json.Marshal(v.Export)
	b, err2 := json.Marshal(o.Export)
	return err1 == nil && err2 == nil && string(a) == string(b)
}

// exportEnvelope is the JSON shape engines emit when exporting a value from
// inside the VM (see ExportScript).
type exportEnvelope struct {
	T string          `json:"t"`
	J json.RawMessage `json:"j,omitempty"`
	S *string         `json:"s,omitempty"`
}

// ExportScript is a JS function expression that converts its argument into
// the JSON envelope understood by DecodeExport.
const ExportScript = `(function(v) {
	var t = v === null ? 'null' : typeof v;
	if (t === 'undefined') return '{"t":"undefined"}';
	if (t === 'function' || t === 'symbol' || t === 'bigint') return JSON.stringify({t: t, s: String(v)});
	try {
		var j = JSON.stringify(v);
		if (j === undefined) return JSON.stringify({t: t, s: String(v)});
		return '{"t":' + JSON.stringify(t) + ',"j":' + j + '}';
	} catch (e) {
		return JSON.stringify({t: t, s: String(v)});
	}
})`

// DecodeExport turns the output of ExportScript into a Value.
func DecodeExport(s string) (Value, error) {
	var env exportEnvelope
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		return Value{}, fmt.Errorf("decoding exported value: %w", err)
	}
	v := Value{Type: env.T}
	switch {
	case env.S != nil:
		v.Export = *env.S
	case len(env.J) > 0:
		if err := json.Unmarshal(env.J, &v.Export); err != nil {
			return Value{}, fmt.Errorf("decoding exported value: %w", err)
		}
	}
	return v, nil
}
