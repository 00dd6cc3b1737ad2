package jshost

// TaskQueue is the host's scheduling primitive. RunOnQueue enqueues task
// without blocking; tasks run in FIFO order on the goroutine that owns the
// engine. What a returned error means is up to the queue.
//
// *eventloop.Loop satisfies TaskQueue.
type TaskQueue interface {
	RunOnQueue(task func() error)
}
