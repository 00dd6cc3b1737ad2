package core

// continuation is the backend-side record behind a ContinuationHandle.
type continuation struct {
	id   uint64
	refs int
	ran  bool
	run  func() error
}

func (c *continuation) ID() uint64 { return c.id }

// Continuations tracks the continuation handles raised by one engine. The
// engine holds one reference while the callback runs; a receiver that wants
// the handle to outlive the callback must AddRef it. A handle whose count
// drops to zero is disposed and can no longer be called.
//
// Like the engines that embed it, Continuations is confined to the engine
// goroutine.
type Continuations struct {
	nextID  uint64
	live    map[uint64]*continuation
	cb      ContinuationCallback
	abandon func()
	closed  bool
}

// NewContinuations returns an empty handle table.
func NewContinuations() *Continuations {
	return &Continuations{live: make(map[uint64]*continuation)}
}

// SetCallback installs the receiver of raised continuations.
func (c *Continuations) SetCallback(cb ContinuationCallback) { c.cb = cb }

// OnAbandon sets a hook called when a handle is disposed without ever
// having been invoked, for example when the receiver dropped it.
func (c *Continuations) OnAbandon(fn func()) { c.abandon = fn }

// HasCallback reports whether a receiver is installed.
func (c *Continuations) HasCallback() bool { return c.cb != nil }

// Raise creates a handle for run and hands it to the receiver. Without a
// receiver the continuation is discarded.
func (c *Continuations) Raise(run func() error) {
	if c.closed || c.cb == nil {
		return
	}
	c.nextID++
	h := &continuation{id: c.nextID, refs: 1, run: run}
	c.live[h.id] = h
	c.cb(h)
	c.drop(h)
}

// AddRef takes an extra reference on h.
func (c *Continuations) AddRef(h ContinuationHandle) error {
	cont, err := c.lookup(h)
	if err != nil {
		return err
	}
	cont.refs++
	return nil
}

// Release drops a reference on h.
func (c *Continuations) Release(h ContinuationHandle) error {
	cont, err := c.lookup(h)
	if err != nil {
		return err
	}
	c.drop(cont)
	return nil
}

// Invoke runs the continuation behind h.
func (c *Continuations) Invoke(h ContinuationHandle) error {
	if c.closed {
		return Errorf(StatusRuntimeClosed, "engine is closed")
	}
	cont, err := c.lookup(h)
	if err != nil {
		return err
	}
	cont.ran = true
	return cont.run()
}

// Live returns the number of handles still referenced.
func (c *Continuations) Live() int { return len(c.live) }

// Close disposes every handle. Later calls fail with StatusRuntimeClosed.
func (c *Continuations) Close() {
	c.closed = true
	c.cb = nil
	c.live = make(map[uint64]*continuation)
}

func (c *Continuations) lookup(h ContinuationHandle) (*continuation, error) {
	if h == nil {
		return nil, Errorf(StatusInvalidArgument, "nil continuation handle")
	}
	if c.closed {
		return nil, Errorf(StatusRuntimeClosed, "engine is closed")
	}
	cont, ok := c.live[h.ID()]
	if !ok {
		return nil, Errorf(StatusHandleReleased, "continuation %d has been released", h.ID())
	}
	return cont, nil
}

func (c *Continuations) drop(cont *continuation) {
	cont.refs--
	if cont.refs > 0 {
		return
	}
	delete(c.live, cont.id)
	if !cont.ran && c.abandon != nil {
		c.abandon()
	}
}
