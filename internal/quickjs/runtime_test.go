//go:build !v8

package quickjs

import (
	"testing"
	"time"

	"github.com/cryguy/jshost/internal/core"
	"modernc.org/quickjs"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(core.EngineConfig{MemoryLimitMB: 64})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestRunScript_Values(t *testing.T) {
	e := newTestEngine(t)

	cases := []struct {
		src  string
		typ  string
		want string
	}{
		{"1 + 2", "number", "3"},
		{"'a' + 'b'", "string", "ab"},
		{"true", "boolean", "true"},
		{"null", "null", "null"},
		{"undefined", "undefined", "undefined"},
		{"({x: 1, y: [1, 2]})", "object", `{"x":1,"y":[1,2]}`},
	}
	for _, tc := range cases {
		v, err := e.RunScript(tc.src, core.SourceContextNone, "values.js")
		if err != nil {
			t.Fatalf("RunScript(%q): %v", tc.src, err)
		}
		if v.Type != tc.typ {
			t.Errorf("RunScript(%q) type = %q, want %q", tc.src, v.Type, tc.typ)
		}
		if v.String() != tc.want {
			t.Errorf("RunScript(%q) = %q, want %q", tc.src, v.String(), tc.want)
		}
	}
}

func TestRunScript_GlobalsPersist(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.RunScript("var counter = 41;", core.SourceContextNone, "a.js"); err != nil {
		t.Fatalf("first script: %v", err)
	}
	v, err := e.RunScript("counter + 1", core.SourceContextNone, "b.js")
	if err != nil {
		t.Fatalf("second script: %v", err)
	}
	if v.String() != "42" {
		t.Errorf("counter + 1 = %s, want 42", v)
	}
}

func TestRunScript_SyntaxError(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.RunScript("let = ;", core.SourceContextNone, "bad.js")
	if err == nil {
		t.Fatal("expected syntax error")
	}
	if s := core.StatusOf(err); s != core.StatusSyntaxError {
		t.Errorf("status = %v, want %v", s, core.StatusSyntaxError)
	}
}

func TestRunScript_Throw(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.RunScript("throw new TypeError('boom')", core.SourceContextNone, "throw.js")
	if err == nil {
		t.Fatal("expected exception")
	}
	ee, ok := err.(*core.EngineError)
	if !ok {
		t.Fatalf("error type = %T, want *core.EngineError", err)
	}
	if ee.Status != core.StatusScriptException || ee.Name != "TypeError" || ee.Message != "boom" {
		t.Errorf("got status=%v name=%q message=%q", ee.Status, ee.Name, ee.Message)
	}
}

func TestSerializeScript_RoundTrip(t *testing.T) {
	e := newTestEngine(t)
	src := "var base = 20; base * 2 + 2"

	size, err := e.SerializeScript(src, nil)
	if err != nil {
		t.Fatalf("size probe: %v", err)
	}
	if size <= 0 {
		t.Fatalf("size = %d, want > 0", size)
	}
	buf := make([]byte, size)
	n, err := e.SerializeScript(src, buf)
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	if n != size {
		t.Fatalf("wrote %d bytes, probe said %d", n, size)
	}

	fresh := newTestEngine(t)
	v, err := fresh.RunSerializedScript(src, buf, core.SourceContextNone, "cached.js")
	if err != nil {
		t.Fatalf("RunSerializedScript: %v", err)
	}
	if v.String() != "42" {
		t.Errorf("result = %s, want 42", v)
	}
}

func TestSerializeScript_DestTooSmall(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.SerializeScript("1", make([]byte, 1))
	if core.StatusOf(err) != core.StatusInvalidArgument {
		t.Errorf("status = %v, want invalid argument", core.StatusOf(err))
	}
}

func TestSerializeScript_SyntaxError(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.SerializeScript("function (", nil); err == nil {
		t.Fatal("expected size probe to fail on invalid source")
	}
}

func TestRunSerializedScript_Stale(t *testing.T) {
	e := newTestEngine(t)
	src := "7 * 6"
	size, err := e.SerializeScript(src, nil)
	if err != nil {
		t.Fatalf("size probe: %v", err)
	}
	buf := make([]byte, size)
	if _, err := e.SerializeScript(src, buf); err != nil {
		t.Fatalf("fill: %v", err)
	}

	stale := map[string]struct {
		src string
		bc  []byte
	}{
		"truncated":      {src, buf[:len(buf)/2]},
		"random":         {src, []byte{0xde, 0xad, 0xbe, 0xef, 1, 2, 3, 4}},
		"source changed": {"7 * 7", buf},
		"flipped byte":   {src, flipLast(buf)},
	}
	for name, tc := range stale {
		_, err := e.RunSerializedScript(tc.src, tc.bc, core.SourceContextNone, "stale.js")
		if core.StatusOf(err) != core.StatusBadSerializedScript {
			t.Errorf("%s: status = %v, want bad serialized script (err=%v)", name, core.StatusOf(err), err)
		}
	}
}

func flipLast(b []byte) []byte {
	out := append([]byte(nil), b...)
	out[len(out)-1] ^= 0xFF
	return out
}

func TestPromiseContinuations(t *testing.T) {
	e := newTestEngine(t)

	var raised []core.ContinuationHandle
	e.SetPromiseContinuationCallback(func(h core.ContinuationHandle) {
		if err := e.AddRef(h); err != nil {
			t.Errorf("AddRef: %v", err)
		}
		raised = append(raised, h)
	})

	if _, err := e.RunScript(`
		var order = [];
		Promise.resolve().then(function() { order.push(1); }).then(function() { order.push(3); });
		Promise.resolve().then(function() { order.push(2); });
	`, core.SourceContextNone, "promises.js"); err != nil {
		t.Fatalf("RunScript: %v", err)
	}

	for i := 0; i < 100 && len(raised) > 0; i++ {
		h := raised[0]
		raised = raised[1:]
		if _, err := e.Call(h, e.Undefined()); err != nil {
			t.Fatalf("Call: %v", err)
		}
		if err := e.Release(h); err != nil {
			t.Fatalf("Release: %v", err)
		}
	}

	v, err := e.RunScript("order.join(',')", core.SourceContextNone, "check.js")
	if err != nil {
		t.Fatalf("reading order: %v", err)
	}
	if v.String() != "1,2,3" {
		t.Errorf("order = %s, want 1,2,3", v)
	}
	if live := e.conts.Live(); live != 0 {
		t.Errorf("live handles = %d, want 0", live)
	}
}

func TestPromiseContinuations_NoReceiverLeavesJobsPending(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.RunScript(`var done = false; Promise.resolve().then(function() { done = true; });`,
		core.SourceContextNone, "p.js"); err != nil {
		t.Fatalf("RunScript: %v", err)
	}
	v, err := e.RunScript("done", core.SourceContextNone, "check.js")
	if err != nil {
		t.Fatalf("RunScript: %v", err)
	}
	if v.String() != "false" {
		t.Errorf("done = %s, want false", v)
	}
}

func TestCall_ReleasedHandle(t *testing.T) {
	e := newTestEngine(t)
	var got core.ContinuationHandle
	e.SetPromiseContinuationCallback(func(h core.ContinuationHandle) { got = h })
	if _, err := e.RunScript("Promise.resolve().then(function() {})", core.SourceContextNone, "p.js"); err != nil {
		t.Fatalf("RunScript: %v", err)
	}
	if got == nil {
		t.Fatal("no continuation raised")
	}
	// No AddRef was taken, so the engine disposed the handle after the callback.
	if _, err := e.Call(got); core.StatusOf(err) != core.StatusHandleReleased {
		t.Errorf("status = %v, want handle released", core.StatusOf(err))
	}
}

func TestInterrupt(t *testing.T) {
	e := newTestEngine(t)
	timer := time.AfterFunc(50*time.Millisecond, e.Interrupt)
	defer timer.Stop()

	_, err := e.RunScript("for (;;) {}", core.SourceContextNone, "loop.js")
	if core.StatusOf(err) != core.StatusInterrupted {
		t.Errorf("status = %v, want interrupted (err=%v)", core.StatusOf(err), err)
	}
}

func TestClearInterrupt(t *testing.T) {
	e := newTestEngine(t)
	const loop = "var last = 0; for (var i = 0; i < 200000; i++) last = i; last"

	// An interrupt that lands while no script runs aborts the next raw entry.
	e.Interrupt()
	if _, err := e.RunScript(loop, core.SourceContextNone, "stale.js"); core.StatusOf(err) != core.StatusInterrupted {
		t.Fatalf("status = %v, want interrupted (err=%v)", core.StatusOf(err), err)
	}

	e.Interrupt()
	e.ClearInterrupt()
	v, err := e.RunScript(loop, core.SourceContextNone, "cleared.js")
	if err != nil {
		t.Fatalf("RunScript after ClearInterrupt: %v", err)
	}
	if v.String() != "199999" {
		t.Errorf("last = %s, want 199999", v)
	}
}

func TestExtractCAPI(t *testing.T) {
	vm, err := quickjs.NewVM()
	if err != nil {
		t.Fatalf("NewVM: %v", err)
	}
	defer vm.Close()

	api, err := extractCAPI(vm)
	if err != nil {
		t.Fatalf("extractCAPI: %v", err)
	}
	if api.ctx == 0 || api.rt == 0 || api.tls == nil {
		t.Fatalf("api = %+v, want all handles set", api)
	}
	if api.jobPending() {
		t.Error("fresh VM reports pending jobs")
	}
}

func TestStartDebugging_Idempotent(t *testing.T) {
	var events []core.DebugEvent
	e, err := New(core.EngineConfig{DebugSink: sinkFunc(func(ev core.DebugEvent) { events = append(events, ev) })})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	if _, err := e.RunScript("1", core.SourceContextNone, "before.js"); err != nil {
		t.Fatalf("RunScript: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("events before StartDebugging = %d, want 0", len(events))
	}
	if err := e.StartDebugging(); err != nil {
		t.Fatalf("StartDebugging: %v", err)
	}
	if err := e.StartDebugging(); err != nil {
		t.Fatalf("second StartDebugging: %v", err)
	}
	if _, err := e.RunScript("1", core.SourceContextNone, "after.js"); err != nil {
		t.Fatalf("RunScript: %v", err)
	}
	if len(events) != 2 || events[0].Kind != core.DebugSessionStarted || events[1].URL != "after.js" {
		t.Errorf("events = %+v", events)
	}
}

type sinkFunc func(core.DebugEvent)

func (f sinkFunc) Emit(ev core.DebugEvent) { f(ev) }

func TestClose(t *testing.T) {
	e, err := New(core.EngineConfig{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := e.RunScript("1", core.SourceContextNone, "x.js"); core.StatusOf(err) != core.StatusRuntimeClosed {
		t.Errorf("status = %v, want runtime closed", core.StatusOf(err))
	}
}
