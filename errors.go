package jshost

import (
	"errors"
	"fmt"

	"github.com/cryguy/jshost/internal/core"
)

// ErrInvalidArgument is returned for caller mistakes detected before the
// engine is touched, such as empty source text.
var ErrInvalidArgument = errors.New("jshost: invalid argument")

// EngineFault reports a failed engine call. Status carries the raw engine
// status; Message and Stack are the engine's description of the failure.
type EngineFault struct {
	Status  core.Status
	Name    string
	Message string
	Stack   string
	URL     string
	Err     error
}

func (f *EngineFault) Error() string {
	msg := f.Message
	if f.Name != "" {
		msg = f.Name + ": " + msg
	}
	if f.URL != "" {
		return fmt.Sprintf("jshost: %s (%s): %s", f.URL, f.Status, msg)
	}
	return fmt.Sprintf("jshost: %s: %s", f.Status, msg)
}

func (f *EngineFault) Unwrap() error { return f.Err }

// faultFrom converts an engine error into an EngineFault. It returns nil
// for a nil error.
func faultFrom(url string, err error) *EngineFault {
	if err == nil {
		return nil
	}
	var f *EngineFault
	if errors.As(err, &f) {
		return f
	}
	fault := &EngineFault{Status: core.StatusOf(err), Message: err.Error(), URL: url, Err: err}
	var ee *core.EngineError
	if errors.As(err, &ee) {
		fault.Name = ee.Name
		fault.Message = ee.Message
		fault.Stack = ee.Stack
	}
	return fault
}

// closedFault is returned by operations attempted after Close.
func closedFault(url string) *EngineFault {
	return &EngineFault{Status: core.StatusRuntimeClosed, Message: "runtime is closed", URL: url}
}
