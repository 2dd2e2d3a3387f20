package stream

import (
	"context"
	"sync"
)

// Dispatcher runs delivery callbacks on the goroutine that owns render
// state. Dispatch must not block on that goroutine, since the render loop
// may itself be waiting for a session to stop.
type Dispatcher interface {
	Dispatch(fn func())
}

// DirectDispatcher runs callbacks on the session goroutine.
type DirectDispatcher struct{}

// Dispatch calls fn.
func (DirectDispatcher) Dispatch(fn func()) { fn() }

// RenderQueue collects callbacks for a render loop to run. It never
// blocks the sender. The zero value is ready to use.
type RenderQueue struct {
	mu      sync.Mutex
	pending []func()
	notify  chan struct{}
}

func (q *RenderQueue) ready() chan struct{} {
	if q.notify == nil {
		q.notify = make(chan struct{}, 1)
	}
	return q.notify
}

// Dispatch queues fn.
func (q *RenderQueue) Dispatch(fn func()) {
	q.mu.Lock()
	q.pending = append(q.pending, fn)
	ready := q.ready()
	q.mu.Unlock()

	select {
	case ready <- struct{}{}:
	default:
	}
}

// Ready returns a channel that receives after callbacks are queued. The
// render loop selects on it and then calls Drain.
func (q *RenderQueue) Ready() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ready()
}

// Drain runs every queued callback in order on the calling goroutine and
// returns how many ran.
func (q *RenderQueue) Drain() int {
	q.mu.Lock()
	fns := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// Run drains the queue whenever callbacks arrive until ctx is done.
func (q *RenderQueue) Run(ctx context.Context) error {
	ready := q.Ready()
	for {
		select {
		case <-ctx.Done():
			q.Drain()
			return ctx.Err()
		case <-ready:
			q.Drain()
		}
	}
}
