package core

import "time"

// Debugger is the per-engine debug session state shared by the backends.
// Events are dropped until Start is called.
type Debugger struct {
	engine  string
	sink    DebugSink
	started bool
}

// NewDebugger returns a stopped debugger that will report to sink.
func NewDebugger(engine string, sink DebugSink) *Debugger {
	return &Debugger{engine: engine, sink: sink}
}

// Start begins the session. It is idempotent.
func (d *Debugger) Start() {
	if d.started {
		return
	}
	d.started = true
	d.Emit(DebugEvent{Kind: DebugSessionStarted})
}

// Started reports whether Start has been called.
func (d *Debugger) Started() bool { return d.started }

// Emit forwards ev to the sink when a session is running.
func (d *Debugger) Emit(ev DebugEvent) {
	if !d.started || d.sink == nil {
		return
	}
	ev.Engine = d.engine
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	d.sink.Emit(ev)
}
