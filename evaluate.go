package jshost

import "github.com/cryguy/jshost/internal/core"

// Evaluate compiles and runs src in the engine's global context and returns
// the completion value. Empty source fails with ErrInvalidArgument before
// the engine is called; any engine failure is returned as *EngineFault.
// Engine state changed by a failing script is not rolled back.
func (r *Runtime) Evaluate(src SourceBuffer) (core.Value, error) {
	text, err := r.sourceText(src)
	if err != nil {
		return core.Value{}, err
	}
	if r.isClosed() {
		return core.Value{}, closedFault(src.URL)
	}

	disarm := r.watchdog()
	v, err := r.engine.RunScript(text, core.SourceContextNone, src.URL)
	disarm()
	if err != nil {
		return core.Value{}, faultFrom(src.URL, err)
	}
	return v, nil
}
