//go:build v8

package v8engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cryguy/jshost/internal/artifact"
	"github.com/cryguy/jshost/internal/core"
	v8 "github.com/tommie/v8go"
)

// Name is the backend name reported by Engine.Name.
const Name = "v8"

// serializeFilename is the script origin used when producing code caches.
const serializeFilename = "serialized.js"

// Engine implements core.Engine on a V8 isolate with a single context.
type Engine struct {
	iso    *v8.Isolate
	ctx    *v8.Context
	conts  *core.Continuations
	debug  *core.Debugger
	memo   artifact.Memo
	target artifact.Target
	export *v8.Function

	// checkpointRaised is set while a microtask checkpoint continuation is
	// outstanding.
	checkpointRaised bool
	closed           bool
}

var _ core.Engine = (*Engine)(nil)

// New creates a V8 engine.
func New(cfg core.EngineConfig) (*Engine, error) {
	var iso *v8.Isolate
	if cfg.MemoryLimitMB > 0 {
		heapSize := uint64(cfg.MemoryLimitMB) * 1024 * 1024
		iso = v8.NewIsolate(v8.WithResourceConstraints(heapSize/2, heapSize))
	} else {
		iso = v8.NewIsolate()
	}
	ctx := v8.NewContext(iso)

	fnVal, err := ctx.RunScript(core.ExportScript, "export.js")
	if err != nil {
		ctx.Close()
		iso.Dispose()
		return nil, fmt.Errorf("installing value exporter: %w", err)
	}
	export, err := fnVal.AsFunction()
	if err != nil {
		ctx.Close()
		iso.Dispose()
		return nil, fmt.Errorf("installing value exporter: %w", err)
	}

	e := &Engine{
		iso:    iso,
		ctx:    ctx,
		conts:  core.NewContinuations(),
		debug:  core.NewDebugger(Name, cfg.DebugSink),
		target: artifact.Target{Engine: Name, Version: v8.Version()},
		export: export,
	}
	e.conts.OnAbandon(func() { e.checkpointRaised = false })
	return e, nil
}

// Name returns "v8".
func (e *Engine) Name() string { return Name }

// SerializeScript compiles text and returns the sealed code cache size,
// copying the artifact into dest when given.
func (e *Engine) SerializeScript(text string, dest []byte) (int, error) {
	if e.closed {
		return 0, core.Errorf(core.StatusRuntimeClosed, "engine is closed")
	}
	data, ok := e.memo.Get(text)
	if !ok {
		script, err := e.iso.CompileUnboundScript(text, serializeFilename, v8.CompileOptions{})
		if err != nil {
			return 0, toEngineError(err)
		}
		cache := script.CreateCodeCache()
		if cache == nil || len(cache.Bytes) == 0 {
			return 0, core.Errorf(core.StatusNotSupported, "V8 produced no code cache")
		}
		data, err = artifact.Seal(e.target, text, cache.Bytes)
		if err != nil {
			return 0, &core.EngineError{Status: core.StatusInvalidArgument, Message: err.Error(), Err: err}
		}
		e.memo.Put(text, data)
	}
	if dest == nil {
		return len(data), nil
	}
	if len(dest) < len(data) {
		return 0, core.Errorf(core.StatusInvalidArgument, "destination holds %d bytes, artifact needs %d", len(dest), len(data))
	}
	e.memo.Reset()
	return copy(dest, data), nil
}

// RunScript compiles and runs text in the engine context.
func (e *Engine) RunScript(text string, _ core.SourceContext, url string) (core.Value, error) {
	if e.closed {
		return core.Value{}, core.Errorf(core.StatusRuntimeClosed, "engine is closed")
	}
	e.debug.Emit(core.DebugEvent{Kind: core.DebugScriptRun, URL: url})
	val, err := e.ctx.RunScript(text, url)
	if err != nil {
		return core.Value{}, e.fault(url, toEngineError(err))
	}
	out, err := e.exportValue(val)
	e.raiseCheckpoint()
	return out, err
}

// RunSerializedScript runs text using the code cache carried by bytecode.
// A code cache V8 rejects is reported as StatusBadSerializedScript.
func (e *Engine) RunSerializedScript(text string, bytecode []byte, _ core.SourceContext, url string) (core.Value, error) {
	if e.closed {
		return core.Value{}, core.Errorf(core.StatusRuntimeClosed, "engine is closed")
	}
	payload, err := artifact.Open(e.target, text, bytecode)
	if err != nil {
		e.debug.Emit(core.DebugEvent{Kind: core.DebugBytecodeRejected, URL: url, Message: err.Error()})
		return core.Value{}, &core.EngineError{Status: core.StatusBadSerializedScript, Message: err.Error(), Err: err}
	}

	opts := v8.CompileOptions{CachedData: &v8.CompilerCachedData{Bytes: payload}}
	script, err := e.iso.CompileUnboundScript(text, url, opts)
	if err != nil {
		return core.Value{}, e.fault(url, toEngineError(err))
	}
	if opts.CachedData.Rejected {
		e.debug.Emit(core.DebugEvent{Kind: core.DebugBytecodeRejected, URL: url, Message: "code cache rejected"})
		return core.Value{}, core.Errorf(core.StatusBadSerializedScript, "V8 rejected the code cache for %s", url)
	}
	e.debug.Emit(core.DebugEvent{Kind: core.DebugBytecodeAccepted, URL: url})

	val, err := script.Run(e.ctx)
	if err != nil {
		return core.Value{}, e.fault(url, toEngineError(err))
	}
	out, err := e.exportValue(val)
	e.raiseCheckpoint()
	return out, err
}

// SetPromiseContinuationCallback installs the continuation receiver.
func (e *Engine) SetPromiseContinuationCallback(cb core.ContinuationCallback) {
	e.conts.SetCallback(cb)
}

// StartDebugging starts streaming debug events to the configured sink.
func (e *Engine) StartDebugging() error {
	if e.closed {
		return core.Errorf(core.StatusRuntimeClosed, "engine is closed")
	}
	e.debug.Start()
	return nil
}

// AddRef takes a reference on a continuation handle.
func (e *Engine) AddRef(h core.ContinuationHandle) error { return e.conts.AddRef(h) }

// Release drops a reference on a continuation handle.
func (e *Engine) Release(h core.ContinuationHandle) error { return e.conts.Release(h) }

// Undefined returns the undefined value.
func (e *Engine) Undefined() core.Value { return core.Undefined }

// Call runs the microtask checkpoint behind a continuation handle.
func (e *Engine) Call(h core.ContinuationHandle, _ ...core.Value) (core.Value, error) {
	if h != nil {
		e.debug.Emit(core.DebugEvent{Kind: core.DebugContinuation, Handle: h.ID()})
	}
	if err := e.conts.Invoke(h); err != nil {
		return core.Value{}, err
	}
	return core.Undefined, nil
}

// Interrupt terminates the running script. Safe to call from any goroutine.
func (e *Engine) Interrupt() {
	e.iso.TerminateExecution()
}

// ClearInterrupt consumes a pending termination by entering the isolate
// with a trivial script.
func (e *Engine) ClearInterrupt() {
	if e.closed {
		return
	}
	_, _ = e.ctx.RunScript("undefined", "clear-interrupt.js")
}

// Close disposes the context and isolate.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.conts.Close()
	e.ctx.Close()
	e.iso.Dispose()
	return nil
}

// raiseCheckpoint raises a continuation that drains V8's microtask queue.
// V8 does not expose whether microtasks are pending, so one is raised after
// every script entry unless one is already outstanding.
func (e *Engine) raiseCheckpoint() {
	if e.closed || e.checkpointRaised || !e.conts.HasCallback() {
		return
	}
	e.checkpointRaised = true
	e.conts.Raise(func() error {
		e.checkpointRaised = false
		e.ctx.PerformMicrotaskCheckpoint()
		return nil
	})
}

func (e *Engine) exportValue(val *v8.Value) (core.Value, error) {
	if val == nil || val.IsUndefined() {
		return core.Undefined, nil
	}
	out, err := e.export.Call(v8.Undefined(e.iso), val)
	if err != nil {
		return core.Value{}, toEngineError(err)
	}
	v, err := core.DecodeExport(out.String())
	if err != nil {
		return core.Value{}, &core.EngineError{Status: core.StatusScriptException, Message: err.Error(), Err: err}
	}
	return v, nil
}

func (e *Engine) fault(url string, ee *core.EngineError) *core.EngineError {
	e.debug.Emit(core.DebugEvent{Kind: core.DebugScriptFault, URL: url, Message: ee.Error()})
	return ee
}

// toEngineError converts a v8go error into an EngineError.
func toEngineError(err error) *core.EngineError {
	ee := &core.EngineError{Status: core.StatusScriptException, Message: err.Error(), Err: err}
	var jsErr *v8.JSError
	if errors.As(err, &jsErr) {
		ee.Message = jsErr.Message
		ee.Stack = jsErr.StackTrace
		if name, msg, ok := strings.Cut(jsErr.Message, ": "); ok && strings.HasSuffix(name, "Error") {
			ee.Name, ee.Message = name, msg
		}
	}
	switch {
	case ee.Name == "SyntaxError":
		ee.Status = core.StatusSyntaxError
	case strings.Contains(err.Error(), "terminated"):
		ee.Status = core.StatusInterrupted
	case strings.Contains(err.Error(), "out of memory"):
		ee.Status = core.StatusOutOfMemory
	}
	return ee
}
