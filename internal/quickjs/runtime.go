//go:build !v8

package quickjs

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/cryguy/jshost/internal/artifact"
	"github.com/cryguy/jshost/internal/core"
	lib "modernc.org/libquickjs"
	"modernc.org/quickjs"
)

// Name is the backend name reported by Engine.Name.
const Name = "quickjs"

// Globals used to move values between the C API and the Go wrapper.
const (
	resultGlobal    = "__jshost_result"
	exceptionGlobal = "__jshost_exception"
)

// serializeFilename is recorded in bytecode produced by SerializeScript.
const serializeFilename = "serialized.js"

// Engine implements core.Engine on a single QuickJS VM.
type Engine struct {
	vm     *quickjs.VM
	api    capi
	conts  *core.Continuations
	debug  *core.Debugger
	memo   artifact.Memo
	target artifact.Target

	// jobRaised is set while a continuation for the job queue is
	// outstanding, so at most one is in flight at a time.
	jobRaised bool
	closed    bool
}

var _ core.Engine = (*Engine)(nil)

// New creates a QuickJS engine.
func New(cfg core.EngineConfig) (*Engine, error) {
	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, fmt.Errorf("creating QuickJS VM: %w", err)
	}
	if cfg.MemoryLimitMB > 0 {
		vm.SetMemoryLimit(uintptr(cfg.MemoryLimitMB) * 1024 * 1024)
	}

	api, err := extractCAPI(vm)
	if err != nil {
		vm.Close()
		return nil, fmt.Errorf("quickjs: reaching C API: %w", err)
	}

	e := &Engine{
		vm:     vm,
		api:    api,
		conts:  core.NewContinuations(),
		debug:  core.NewDebugger(Name, cfg.DebugSink),
		target: artifact.Target{Engine: Name, Version: Version()},
	}
	e.conts.OnAbandon(func() { e.jobRaised = false })
	return e, nil
}

var (
	versionOnce sync.Once
	version     string
)

// Version returns the modernc.org/quickjs module version linked into the
// binary. Bytecode is only portable between identical versions.
func Version() string {
	versionOnce.Do(func() {
		version = "devel"
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, dep := range bi.Deps {
				if dep.Path == "modernc.org/quickjs" {
					version = dep.Version
					break
				}
			}
		}
	})
	return version
}

// Name returns "quickjs".
func (e *Engine) Name() string { return Name }

// SerializeScript compiles text without running it and returns the sealed
// bytecode artifact size, copying the artifact into dest when given.
func (e *Engine) SerializeScript(text string, dest []byte) (int, error) {
	if e.closed {
		return 0, core.Errorf(core.StatusRuntimeClosed, "engine is closed")
	}
	data, ok := e.memo.Get(text)
	if !ok {
		var err error
		data, err = e.serialize(text)
		if err != nil {
			return 0, err
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

func (e *Engine) serialize(text string) ([]byte, error) {
	fn, ok, err := e.api.eval(text, serializeFilename, jsEvalTypeGlobal|jsEvalFlagCompileOnly)
	if err != nil {
		return nil, core.Errorf(core.StatusOutOfMemory, "%v", err)
	}
	if !ok {
		return nil, e.takeException()
	}
	payload, ok := e.api.writeBytecode(fn)
	e.api.free(fn)
	if !ok {
		return nil, e.takeException()
	}
	data, err := artifact.Seal(e.target, text, payload)
	if err != nil {
		return nil, &core.EngineError{Status: core.StatusInvalidArgument, Message: err.Error(), Err: err}
	}
	return data, nil
}

// RunScript evaluates text in the global scope.
func (e *Engine) RunScript(text string, _ core.SourceContext, url string) (core.Value, error) {
	if e.closed {
		return core.Value{}, core.Errorf(core.StatusRuntimeClosed, "engine is closed")
	}
	e.debug.Emit(core.DebugEvent{Kind: core.DebugScriptRun, URL: url})

	v, ok, err := e.api.eval(text, url, jsEvalTypeGlobal)
	if err != nil {
		return core.Value{}, core.Errorf(core.StatusOutOfMemory, "%v", err)
	}
	if !ok {
		return core.Value{}, e.fault(url, e.takeException())
	}
	out, err := e.export(v)
	e.raisePendingJobs()
	return out, err
}

// RunSerializedScript validates the artifact against text and runs its
// bytecode.
func (e *Engine) RunSerializedScript(text string, bytecode []byte, _ core.SourceContext, url string) (core.Value, error) {
	if e.closed {
		return core.Value{}, core.Errorf(core.StatusRuntimeClosed, "engine is closed")
	}
	payload, err := artifact.Open(e.target, text, bytecode)
	if err != nil {
		e.debug.Emit(core.DebugEvent{Kind: core.DebugBytecodeRejected, URL: url, Message: err.Error()})
		return core.Value{}, &core.EngineError{Status: core.StatusBadSerializedScript, Message: err.Error(), Err: err}
	}

	fn, ok := e.api.readBytecode(payload)
	if !ok {
		ee := e.takeException()
		ee.Status = core.StatusBadSerializedScript
		e.debug.Emit(core.DebugEvent{Kind: core.DebugBytecodeRejected, URL: url, Message: ee.Message})
		return core.Value{}, ee
	}
	e.debug.Emit(core.DebugEvent{Kind: core.DebugBytecodeAccepted, URL: url})

	v, ok := e.api.evalFunction(fn)
	if !ok {
		return core.Value{}, e.fault(url, e.takeException())
	}
	out, err := e.export(v)
	e.raisePendingJobs()
	return out, err
}

// SetPromiseContinuationCallback installs the continuation receiver.
func (e *Engine) SetPromiseContinuationCallback(cb core.ContinuationCallback) {
	e.conts.SetCallback(cb)
	e.raisePendingJobs()
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

// Call runs the job behind a continuation handle. QuickJS jobs take no
// arguments; args are accepted for contract compatibility and ignored.
func (e *Engine) Call(h core.ContinuationHandle, _ ...core.Value) (core.Value, error) {
	if h != nil {
		e.debug.Emit(core.DebugEvent{Kind: core.DebugContinuation, Handle: h.ID()})
	}
	if err := e.conts.Invoke(h); err != nil {
		return core.Value{}, err
	}
	return core.Undefined, nil
}

// Interrupt aborts the running script. Safe to call from any goroutine.
func (e *Engine) Interrupt() {
	e.vm.Interrupt()
}

// ClearInterrupt resets the wrapper's interrupt flag. Raw C API entry points
// skip that reset, so a late Interrupt would otherwise abort the next one.
func (e *Engine) ClearInterrupt() {
	if e.closed {
		return
	}
	_, _ = e.vm.Eval("undefined", quickjs.EvalGlobal)
}

// Close disposes the VM.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.conts.Close()
	e.vm.Close()
	return nil
}

// raisePendingJobs raises one continuation for the QuickJS job queue when
// jobs are pending and none is outstanding. Running it executes exactly one
// job and re-raises while jobs remain, so jobs reach the host queue in the
// order QuickJS enqueued them.
func (e *Engine) raisePendingJobs() {
	if e.closed || e.jobRaised || !e.conts.HasCallback() || !e.api.jobPending() {
		return
	}
	e.jobRaised = true
	e.conts.Raise(e.runNextJob)
}

func (e *Engine) runNextJob() error {
	e.jobRaised = false
	defer e.raisePendingJobs()
	if !e.api.jobPending() {
		return nil
	}
	if !e.api.executeJob() {
		return e.fault("", e.takeException())
	}
	return nil
}

// export converts a C value into a core.Value, consuming v.
func (e *Engine) export(v lib.TJSValue) (core.Value, error) {
	if err := e.api.stash(resultGlobal, v); err != nil {
		return core.Value{}, core.Errorf(core.StatusOutOfMemory, "%v", err)
	}
	s, err := e.evalString(fmt.Sprintf(`(function() {
		var v = globalThis[%q];
		delete globalThis[%q];
		return %s(v);
	})()`, resultGlobal, resultGlobal, core.ExportScript))
	if err != nil {
		return core.Value{}, &core.EngineError{Status: core.StatusScriptException, Message: err.Error(), Err: err}
	}
	val, err := core.DecodeExport(s)
	if err != nil {
		return core.Value{}, &core.EngineError{Status: core.StatusScriptException, Message: err.Error(), Err: err}
	}
	return val, nil
}

// evalString evaluates JavaScript through the Go wrapper and returns the
// result as a Go string.
func (e *Engine) evalString(js string) (string, error) {
	result, err := e.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", nil
	}
	return fmt.Sprint(result), nil
}

type jsException struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Stack   string `json:"stack"`
}

// takeException converts the pending exception into an EngineError.
func (e *Engine) takeException() *core.EngineError {
	exc := e.api.exception()
	if err := e.api.stash(exceptionGlobal, exc); err != nil {
		return core.Errorf(core.StatusScriptException, "unreadable exception: %v", err)
	}
	s, err := e.evalString(fmt.Sprintf(`(function() {
		var e = globalThis[%q];
		delete globalThis[%q];
		if (e instanceof Error) {
			return JSON.stringify({name: e.name, message: String(e.message), stack: String(e.stack || '')});
		}
		return JSON.stringify({name: '', message: String(e), stack: ''});
	})()`, exceptionGlobal, exceptionGlobal))
	if err != nil {
		return &core.EngineError{Status: statusFromMessage("", err.Error()), Message: err.Error(), Err: err}
	}
	var je jsException
	if err := json.Unmarshal([]byte(s), &je); err != nil {
		return &core.EngineError{Status: core.StatusScriptException, Message: s, Err: err}
	}
	return &core.EngineError{
		Status:  statusFromMessage(je.Name, je.Message),
		Name:    je.Name,
		Message: je.Message,
		Stack:   je.Stack,
		Err:     errors.New(je.Message),
	}
}

func (e *Engine) fault(url string, ee *core.EngineError) *core.EngineError {
	e.debug.Emit(core.DebugEvent{Kind: core.DebugScriptFault, URL: url, Message: ee.Error()})
	return ee
}

// statusFromMessage maps QuickJS error names and messages to a status.
func statusFromMessage(name, msg string) core.Status {
	switch {
	case name == "SyntaxError":
		return core.StatusSyntaxError
	case strings.Contains(msg, "interrupted"):
		return core.StatusInterrupted
	case strings.Contains(msg, "out of memory"):
		return core.StatusOutOfMemory
	default:
		return core.StatusScriptException
	}
}
