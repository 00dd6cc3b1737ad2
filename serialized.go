package jshost

import (
	"fmt"

	"github.com/cryguy/jshost/internal/core"
)

// OutcomeKind tags an Outcome.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	// OutcomeCacheMiss means the bytecode could not be used. The caller
	// should evaluate the source and recompile.
	OutcomeCacheMiss
	OutcomeHardError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeCacheMiss:
		return "cache miss"
	case OutcomeHardError:
		return "error"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the result of ExecuteSerialized. Value is set for
// OutcomeSuccess and Fault for OutcomeHardError.
type Outcome struct {
	Kind  OutcomeKind
	Value core.Value
	Fault *EngineFault
}

// ExecuteSerialized runs src from a previously compiled artifact. A stale,
// corrupted or missing artifact yields OutcomeCacheMiss with a nil error.
// Every other engine failure yields OutcomeHardError and the same fault as
// the error. Nothing is retried.
func (r *Runtime) ExecuteSerialized(src SourceBuffer, bc *BytecodeBuffer) (Outcome, error) {
	text, err := r.sourceText(src)
	if err != nil {
		return Outcome{}, err
	}
	if bc.Len() == 0 {
		return Outcome{Kind: OutcomeCacheMiss}, nil
	}
	if r.isClosed() {
		f := closedFault(src.URL)
		return Outcome{Kind: OutcomeHardError, Fault: f}, f
	}

	disarm := r.watchdog()
	v, err := r.engine.RunSerializedScript(text, bc.data, core.SourceContextNone, src.URL)
	disarm()
	if err == nil {
		return Outcome{Kind: OutcomeSuccess, Value: v}, nil
	}
	if core.StatusOf(err) == core.StatusBadSerializedScript {
		r.logger.Debug().Err(err).Str("url", src.URL).Msg("serialized script rejected")
		return Outcome{Kind: OutcomeCacheMiss}, nil
	}
	f := faultFrom(src.URL, err)
	return Outcome{Kind: OutcomeHardError, Fault: f}, f
}
