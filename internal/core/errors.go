package core

import (
	"errors"
	"fmt"
)

// Status is the raw engine status attached to every engine failure.
type Status int

const (
	StatusOK Status = iota
	StatusInvalidArgument
	StatusSyntaxError
	StatusScriptException
	// StatusBadSerializedScript reports a bytecode artifact the engine
	// cannot use: corrupted, truncated, produced by another engine version
	// or compiled from different source. It is the only recoverable status.
	StatusBadSerializedScript
	StatusInterrupted
	StatusOutOfMemory
	StatusRuntimeClosed
	StatusHandleReleased
	StatusNotSupported
)

var statusNames = map[Status]string{
	StatusOK:                  "ok",
	StatusInvalidArgument:     "invalid argument",
	StatusSyntaxError:         "syntax error",
	StatusScriptException:     "script exception",
	StatusBadSerializedScript: "bad serialized script",
	StatusInterrupted:         "interrupted",
	StatusOutOfMemory:         "out of memory",
	StatusRuntimeClosed:       "runtime closed",
	StatusHandleReleased:      "handle released",
	StatusNotSupported:        "not supported",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// EngineError is the error type every backend returns from a failed engine
// call.
type EngineError struct {
	Status  Status
	Name    string // JS error name (SyntaxError, TypeError, ...) when known
	Message string
	Stack   string
	Err     error // underlying library error, if any
}

func (e *EngineError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: %s: %s", e.Status, e.Name, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Status, e.Message)
}

func (e *EngineError) Unwrap() error { return e.Err }

// Errorf builds an EngineError with a formatted message.
func Errorf(status Status, format string, args ...any) *EngineError {
	return &EngineError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// StatusOf extracts the engine status from err. A nil error is StatusOK and
// an error that did not come from an engine is StatusScriptException.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Status
	}
	return StatusScriptException
}
