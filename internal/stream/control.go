package stream

import (
	"sync"
	"sync/atomic"
)

// Control is the StreamControl handle: cancel()/pause()/resume(),
// observable via atomic flags so the producer can check them between items
// without taking a lock, and can suspend cooperatively while paused.
type Control struct {
	cancelled atomic.Bool
	paused    atomic.Bool

	mu     sync.Mutex
	resume *sync.Cond
}

// NewControl constructs a running, unpaused, uncancelled control handle.
func NewControl() *Control {
	c := &Control{}
	c.resume = sync.NewCond(&c.mu)
	return c
}

// Cancel requests the producer stop. Cancellation is cooperative: after
// cancel() the producer must emit at most one additional Data and then
// Complete. The producer is responsible for honoring that, Cancel
// only sets the flag and wakes a paused producer so it can observe it.
func (c *Control) Cancel() {
	c.cancelled.Store(true)
	c.Resume()
}

// Pause suspends the producer at its next checkpoint.
func (c *Control) Pause() { c.paused.Store(true) }

// Resume clears the pause flag and wakes any producer parked in
// WaitWhilePaused.
func (c *Control) Resume() {
	c.paused.Store(false)
	c.mu.Lock()
	c.resume.Broadcast()
	c.mu.Unlock()
}

// IsCancelled reports whether Cancel has been called.
func (c *Control) IsCancelled() bool { return c.cancelled.Load() }

// IsPaused reports whether the stream is currently paused.
func (c *Control) IsPaused() bool { return c.paused.Load() }

// WaitWhilePaused parks the calling goroutine (the producer) until Resume or
// Cancel is called. It is the single suspension point a producer needs
// between items.
func (c *Control) WaitWhilePaused() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.paused.Load() && !c.cancelled.Load() {
		c.resume.Wait()
	}
}
