package jshost

import "github.com/cryguy/jshost/internal/core"

// continuationBridge receives Promise continuations from the engine and
// hands them to the runtime's task queue.
type continuationBridge struct {
	r *Runtime
}

// InstallPromiseContinuationHandling registers the runtime as the engine's
// Promise continuation receiver. New calls it; later calls do nothing.
func (r *Runtime) InstallPromiseContinuationHandling() {
	r.mu.Lock()
	if r.installed || r.closed {
		r.mu.Unlock()
		return
	}
	r.installed = true
	r.mu.Unlock()

	b := &continuationBridge{r: r}
	r.engine.SetPromiseContinuationCallback(b.schedule)
}

// schedule takes a reference on h and enqueues its invocation. Without a
// task queue the continuation is dropped and never invoked.
func (b *continuationBridge) schedule(h core.ContinuationHandle) {
	r := b.r
	queue := r.cfg.TaskQueue
	if queue == nil {
		r.logDroppedContinuation()
		return
	}
	if err := r.engine.AddRef(h); err != nil {
		r.logger.Debug().Err(err).Uint64("handle", h.ID()).Msg("continuation reference failed")
		return
	}
	queue.RunOnQueue(func() error { return b.run(h) })
}

// run invokes h once and releases the reference taken by schedule, even
// when the call fails or panics. A closed runtime only releases.
func (b *continuationBridge) run(h core.ContinuationHandle) error {
	r := b.r
	defer func() {
		if err := r.engine.Release(h); err != nil && core.StatusOf(err) != core.StatusRuntimeClosed {
			r.logger.Debug().Err(err).Uint64("handle", h.ID()).Msg("continuation release failed")
		}
	}()
	if r.isClosed() {
		return nil
	}

	undefined := r.engine.Undefined()
	disarm := r.watchdog()
	_, err := r.engine.Call(h, undefined)
	disarm()
	if err != nil {
		return faultFrom("", err)
	}
	return nil
}

func (r *Runtime) logDroppedContinuation() {
	r.mu.Lock()
	first := !r.dropLogged
	r.dropLogged = true
	r.mu.Unlock()
	if first {
		r.logger.Debug().Msg("no task queue configured, dropping Promise continuations")
	}
}
