package core

// SourceContext is the engine's cookie for a source unit. Scripts run by the
// adapter are not associated with a debugger source context.
type SourceContext uint64

// SourceContextNone marks a script that has no source context.
const SourceContextNone = ^SourceContext(0)

// ContinuationHandle is an opaque, reference-counted engine reference to a
// zero-argument callable that advances the engine's Promise job queue.
type ContinuationHandle interface {
	// ID identifies the handle for logging and debugging. IDs are unique
	// per engine instance.
	ID() uint64
}

// ContinuationCallback receives Promise continuations raised by the engine.
// The handle is only guaranteed to stay alive for the duration of the call
// unless the receiver takes a reference with Engine.AddRef.
type ContinuationCallback func(h ContinuationHandle)

// Engine is the contract every embedded JavaScript backend (QuickJS, V8)
// satisfies. All methods must be called from the goroutine that owns the
// engine; implementations do no locking of their own.
type Engine interface {
	// Name returns the backend name ("quickjs", "v8", ...).
	Name() string

	// SerializeScript compiles text into a portable bytecode artifact. With
	// a nil dest it only reports the artifact size. With a non-nil dest it
	// fills dest and returns the number of bytes written; dest shorter than
	// the artifact is a StatusInvalidArgument error.
	SerializeScript(text string, dest []byte) (int, error)

	// RunScript compiles and runs text in the engine's global context.
	RunScript(text string, sourceContext SourceContext, url string) (Value, error)

	// RunSerializedScript runs a previously serialized artifact. A stale or
	// corrupted artifact is reported as StatusBadSerializedScript.
	RunSerializedScript(text string, bytecode []byte, sourceContext SourceContext, url string) (Value, error)

	// SetPromiseContinuationCallback installs the single receiver of
	// Promise continuations. A nil callback detaches the receiver.
	SetPromiseContinuationCallback(cb ContinuationCallback)

	// StartDebugging begins a debug session. Starting an already started
	// session is a no-op.
	StartDebugging() error

	// AddRef takes an additional reference on a continuation handle.
	AddRef(h ContinuationHandle) error

	// Release drops a reference taken with AddRef.
	Release(h ContinuationHandle) error

	// Undefined returns the engine's undefined value.
	Undefined() Value

	// Call invokes a continuation handle with the given arguments.
	Call(h ContinuationHandle, args ...Value) (Value, error)

	// Interrupt asks the engine to abort the currently running script. It is
	// the only method that may be called from another goroutine.
	Interrupt()

	// ClearInterrupt drops an interrupt that arrived after the script it
	// targeted had already returned, so it cannot abort the next entry.
	ClearInterrupt()

	// Close tears the engine down. Handles become invalid.
	Close() error
}
