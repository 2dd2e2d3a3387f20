package stream

import (
	"context"
	"sync"

	"github.com/gogpu/anatomy/selection"
)

// Controller runs at most one session at a time. Consecutive sessions
// share its selection store, so colors stay unique across reloads.
//
// The receiver must not call Start or Wait from a callback run on the
// session goroutine (DirectDispatcher); those calls would wait for the
// session that is delivering to them.
type Controller struct {
	deps Deps
	opts []Option

	// startMu serializes Start so two sessions never overlap.
	startMu sync.Mutex

	mu      sync.Mutex
	gen     uint64
	session *Session
	done    chan struct{}
	err     error
}

// NewController returns a controller that starts sessions with deps and
// opts. A nil deps.Colors gets a fresh store.
func NewController(deps Deps, opts ...Option) *Controller {
	if deps.Colors == nil {
		deps.Colors = selection.NewStore()
	}
	return &Controller{deps: deps, opts: opts}
}

// Store returns the live selection store. Readers should use snapshots
// from delivered results instead.
func (c *Controller) Store() *selection.Store {
	return c.deps.Colors
}

// Start cancels the running session, waits for it to stop, and starts a
// new one loading sources. Each started session gets the next generation,
// so receivers can drop deliveries still queued from older sessions.
func (c *Controller) Start(ctx context.Context, sources []LayerSource) (*Session, error) {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	prev, prevDone := c.session, c.done
	c.mu.Unlock()
	if prev != nil {
		prev.Cancel()
		<-prevDone
	}

	c.mu.Lock()
	gen := c.gen + 1
	c.mu.Unlock()
	opts := append(c.opts[:len(c.opts):len(c.opts)], WithGeneration(gen))
	s, err := NewSession(sources, c.deps, opts...)
	if err != nil {
		return nil, err
	}
	done := make(chan struct{})
	c.mu.Lock()
	c.gen = gen
	c.session, c.done, c.err = s, done, nil
	c.mu.Unlock()

	go func() {
		defer close(done)
		err := s.Run(ctx)
		c.mu.Lock()
		if c.session == s {
			c.err = err
		}
		c.mu.Unlock()
	}()
	return s, nil
}

// Cancel asks the running session to stop without waiting.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.Cancel()
	}
}

// Wait blocks until the current session stops and returns its Run error.
// It returns nil if no session was started.
func (c *Controller) Wait() error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != done {
		// A newer session replaced the one waited for.
		return ErrCancelled
	}
	return c.err
}

// Active reports whether a session is running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Session returns the most recent session, or nil.
func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}
