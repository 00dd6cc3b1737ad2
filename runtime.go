package jshost

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cryguy/jshost/internal/core"
	"github.com/cryguy/jshost/internal/textenc"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

// Runtime adapts one embedded engine instance to the host. Script entry
// points (Evaluate, CompileToBytecode, ExecuteSerialized) and queued
// continuations must all run on the goroutine that owns the engine.
type Runtime struct {
	cfg    Config
	engine core.Engine
	logger zerolog.Logger

	mu         sync.Mutex
	closed     bool
	installed  bool
	dropLogged bool
}

// New creates a runtime on the backend selected at build time (QuickJS by
// default, V8 with -tags v8), installs Promise continuation handling and
// starts a debug session when configured.
func New(cfg Config) (*Runtime, error) {
	engine, err := newBackend(cfg.engineConfig())
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return NewWithEngine(cfg, engine)
}

// NewWithEngine is New for a caller-supplied engine. The runtime takes
// ownership of engine and closes it on failure.
func NewWithEngine(cfg Config, engine core.Engine) (*Runtime, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: nil engine", ErrInvalidArgument)
	}
	r := &Runtime{
		cfg:    cfg,
		engine: engine,
		logger: cfg.logger().With().Str("engine", engine.Name()).Logger(),
	}
	r.InstallPromiseContinuationHandling()
	if err := r.StartIfConfigured(); err != nil {
		return nil, multierror.Append(err, engine.Close()).ErrorOrNil()
	}
	return r, nil
}

// Engine returns the backend name.
func (r *Runtime) Engine() string { return r.engine.Name() }

// Close tears down the engine and closes the debug sink when it is an
// io.Closer. Queued continuations that run afterwards are released without
// being invoked.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	var result *multierror.Error
	if err := r.engine.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("closing engine: %w", err))
	}
	if c, ok := r.cfg.DebugSink.(io.Closer); ok {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing debug sink: %w", err))
		}
	}
	return result.ErrorOrNil()
}

func (r *Runtime) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// sourceText normalizes src and rejects empty text.
func (r *Runtime) sourceText(src SourceBuffer) (string, error) {
	text := textenc.ToNativeText(src.Text)
	if text == "" {
		return "", fmt.Errorf("%w: script can't be empty (%s)", ErrInvalidArgument, src.URL)
	}
	return text, nil
}

// watchdog interrupts the engine once the configured execution timeout
// elapses. The returned func disarms it and, when the timer has fired,
// clears the interrupt so it cannot leak into the next engine entry.
func (r *Runtime) watchdog() func() {
	if r.cfg.ExecutionTimeout <= 0 {
		return func() {}
	}
	var (
		mu       sync.Mutex
		disarmed bool
		fired    bool
	)
	timer := time.AfterFunc(r.cfg.ExecutionTimeout, func() {
		mu.Lock()
		defer mu.Unlock()
		if disarmed {
			return
		}
		fired = true
		r.logger.Warn().Dur("timeout", r.cfg.ExecutionTimeout).Msg("interrupting script")
		r.engine.Interrupt()
	})
	return func() {
		timer.Stop()
		mu.Lock()
		disarmed = true
		late := fired
		mu.Unlock()
		if late {
			r.engine.ClearInterrupt()
		}
	}
}
