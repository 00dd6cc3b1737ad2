package eventloop

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
)

// ErrClosed is returned by RunUntilIdle after Close.
var ErrClosed = errors.New("eventloop: closed")

// Task is a unit of work run on the loop goroutine. A non-nil error is
// handed to the loop's ErrorHandler.
type Task func() error

// ErrorHandler decides what a failed task means for the loop. Returning
// true stops the loop and makes Run return err.
type ErrorHandler func(err error) (stop bool)

// Option configures a Loop.
type Option func(*Loop)

// WithErrorHandler sets the handler for task errors. The default logs the
// error and keeps running.
func WithErrorHandler(h ErrorHandler) Option {
	return func(l *Loop) { l.onError = h }
}

// WithLogger sets the loop logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Loop) { l.logger = logger.With().Str("component", "eventloop").Logger() }
}

// WithLockedThread pins the goroutine draining the loop to its OS thread
// while it drains. Engines with OS-thread affinity (V8) need this.
func WithLockedThread() Option {
	return func(l *Loop) { l.lockThread = true }
}

// Loop is a FIFO task queue whose tasks all run on the single goroutine
// that calls RunUntilIdle. That goroutine owns the engine; tasks may be
// posted from any goroutine.
type Loop struct {
	mu         sync.Mutex
	tasks      []Task
	closed     bool
	onError    ErrorHandler
	logger     zerolog.Logger
	lockThread bool
	ran        uint64
}

// New creates a Loop.
func New(opts ...Option) *Loop {
	l := &Loop{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(l)
	}
	if l.onError == nil {
		l.onError = func(err error) bool {
			l.logger.Warn().Err(err).Msg("task failed")
			return false
		}
	}
	return l
}

// RunOnQueue appends task to the queue. It never blocks. Tasks posted after
// Close are dropped.
func (l *Loop) RunOnQueue(task func() error) {
	if task == nil {
		return
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.logger.Debug().Msg("dropping task posted after close")
		return
	}
	l.tasks = append(l.tasks, task)
	l.mu.Unlock()
}

// RunUntilIdle executes tasks, including tasks posted by running tasks,
// until the queue is empty, ctx is done, or the error handler asks to stop.
func (l *Loop) RunUntilIdle(ctx context.Context) error {
	if l.lockThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	return l.drain(ctx)
}

func (l *Loop) drain(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		task, ok, err := l.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := l.runTask(task); err != nil && l.onError(err) {
			return err
		}
	}
}

// next pops the oldest task.
func (l *Loop) next() (Task, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, false, ErrClosed
	}
	if len(l.tasks) == 0 {
		return nil, false, nil
	}
	task := l.tasks[0]
	l.tasks[0] = nil
	l.tasks = l.tasks[1:]
	l.ran++
	return task, true, nil
}

func (l *Loop) runTask(task Task) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("eventloop: task panicked: %v", p)
		}
	}()
	return task()
}

// HasPending returns true if tasks are waiting to run.
func (l *Loop) HasPending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks) > 0
}

// Len returns the number of queued tasks.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}

// Ran returns the number of tasks started so far.
func (l *Loop) Ran() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ran
}

// Reset drops all queued tasks without running them.
func (l *Loop) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tasks = nil
}

// Close drops queued tasks and rejects new ones. A running RunUntilIdle
// returns ErrClosed once the current task finishes.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.tasks = nil
}
