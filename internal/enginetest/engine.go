// Package enginetest provides a scriptable in-memory core.Engine for tests.
package enginetest

import (
	"bytes"
	"errors"
	"sync"

	"github.com/cryguy/jshost/internal/core"
)

// Calls counts engine method invocations.
type Calls struct {
	SerializeScript     int
	RunScript           int
	RunSerializedScript int
	StartDebugging      int
	AddRef              int
	Release             int
	Call                int
	Interrupt           int
	ClearInterrupt      int
	Close               int
}

// Total is the sum of all counted calls.
func (c Calls) Total() int {
	return c.SerializeScript + c.RunScript + c.RunSerializedScript + c.StartDebugging +
		c.AddRef + c.Release + c.Call + c.Interrupt + c.ClearInterrupt + c.Close
}

// Engine is a fake core.Engine. By default RunScript returns the source
// text as a string value, SerializeScript produces "bc:" + text and
// RunSerializedScript accepts exactly that artifact. Each behavior can be
// replaced through the exported func fields.
type Engine struct {
	RunFunc           func(text, url string) (core.Value, error)
	SerializeFunc     func(text string, dest []byte) (int, error)
	RunSerializedFunc func(text string, bytecode []byte, url string) (core.Value, error)
	StartFunc         func() error

	Calls Calls

	mu     sync.Mutex
	conts  *core.Continuations
	closed bool
}

var _ core.Engine = (*Engine)(nil)

// ErrClosed is returned by every call after Close.
var ErrClosed = core.Errorf(core.StatusRuntimeClosed, "fake engine is closed")

// New returns a fake engine with default behaviors.
func New() *Engine {
	return &Engine{conts: core.NewContinuations()}
}

// Artifact is the bytecode the default SerializeScript produces for text.
func Artifact(text string) []byte { return []byte("bc:" + text) }

func (e *Engine) Name() string { return "fake" }

func (e *Engine) SerializeScript(text string, dest []byte) (int, error) {
	e.Calls.SerializeScript++
	if e.closed {
		return 0, ErrClosed
	}
	if e.SerializeFunc != nil {
		return e.SerializeFunc(text, dest)
	}
	art := Artifact(text)
	if dest == nil {
		return len(art), nil
	}
	if len(dest) < len(art) {
		return 0, core.Errorf(core.StatusInvalidArgument, "destination too small")
	}
	return copy(dest, art), nil
}

func (e *Engine) RunScript(text string, _ core.SourceContext, url string) (core.Value, error) {
	e.Calls.RunScript++
	if e.closed {
		return core.Value{}, ErrClosed
	}
	if e.RunFunc != nil {
		return e.RunFunc(text, url)
	}
	return core.Value{Type: "string", Export: text}, nil
}

func (e *Engine) RunSerializedScript(text string, bytecode []byte, _ core.SourceContext, url string) (core.Value, error) {
	e.Calls.RunSerializedScript++
	if e.closed {
		return core.Value{}, ErrClosed
	}
	if e.RunSerializedFunc != nil {
		return e.RunSerializedFunc(text, bytecode, url)
	}
	if !bytes.Equal(bytecode, Artifact(text)) {
		return core.Value{}, core.Errorf(core.StatusBadSerializedScript, "artifact does not match source")
	}
	if e.RunFunc != nil {
		return e.RunFunc(text, url)
	}
	return core.Value{Type: "string", Export: text}, nil
}

func (e *Engine) SetPromiseContinuationCallback(cb core.ContinuationCallback) {
	e.conts.SetCallback(cb)
}

func (e *Engine) StartDebugging() error {
	e.Calls.StartDebugging++
	if e.closed {
		return ErrClosed
	}
	if e.StartFunc != nil {
		return e.StartFunc()
	}
	return nil
}

func (e *Engine) AddRef(h core.ContinuationHandle) error {
	e.Calls.AddRef++
	return e.conts.AddRef(h)
}

func (e *Engine) Release(h core.ContinuationHandle) error {
	e.Calls.Release++
	return e.conts.Release(h)
}

func (e *Engine) Undefined() core.Value { return core.Undefined }

func (e *Engine) Call(h core.ContinuationHandle, _ ...core.Value) (core.Value, error) {
	e.Calls.Call++
	if err := e.conts.Invoke(h); err != nil {
		return core.Value{}, err
	}
	return core.Undefined, nil
}

func (e *Engine) Interrupt() {
	e.mu.Lock()
	e.Calls.Interrupt++
	e.mu.Unlock()
}

func (e *Engine) ClearInterrupt() { e.Calls.ClearInterrupt++ }

// Interrupts returns how many times Interrupt was called. Interrupt may run
// on another goroutine, so read it through here.
func (e *Engine) Interrupts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Calls.Interrupt
}

func (e *Engine) Close() error {
	e.Calls.Close++
	if e.closed {
		return nil
	}
	e.closed = true
	e.conts.Close()
	return nil
}

// Raise raises a continuation that runs fn when invoked, the way a backend
// does when a Promise job becomes pending.
func (e *Engine) Raise(fn func() error) {
	e.conts.Raise(fn)
}

// Live returns the number of continuation handles still referenced.
func (e *Engine) Live() int { return e.conts.Live() }

// Throw returns a script exception carrying msg, as a failing Call or
// RunScript would.
func Throw(msg string) error {
	return &core.EngineError{Status: core.StatusScriptException, Name: "Error", Message: msg, Err: errors.New(msg)}
}
