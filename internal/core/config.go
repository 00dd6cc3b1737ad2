package core

import "time"

// EngineConfig holds backend construction options.
type EngineConfig struct {
	MemoryLimitMB int       // per-engine heap limit, 0 for the engine default
	DebugSink     DebugSink // receives debug events once debugging starts; may be nil
}

// DebugEventKind classifies events emitted during a debug session.
type DebugEventKind string

const (
	DebugSessionStarted   DebugEventKind = "session.started"
	DebugScriptRun        DebugEventKind = "script.run"
	DebugScriptFault      DebugEventKind = "script.fault"
	DebugBytecodeAccepted DebugEventKind = "bytecode.accepted"
	DebugBytecodeRejected DebugEventKind = "bytecode.rejected"
	DebugContinuation     DebugEventKind = "continuation.invoke"
)

// DebugEvent is a single debug session event.
type DebugEvent struct {
	Kind    DebugEventKind `json:"kind"`
	Engine  string         `json:"engine"`
	URL     string         `json:"url,omitempty"`
	Message string         `json:"message,omitempty"`
	Handle  uint64         `json:"handle,omitempty"`
	Time    time.Time      `json:"time"`
}

// DebugSink consumes debug events. Emit is called on the engine goroutine
// and must not block on engine work.
type DebugSink interface {
	Emit(ev DebugEvent)
}
