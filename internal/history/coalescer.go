package history

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultWindow is the quiet period after the last mutation before a capture runs.
const DefaultWindow = 200 * time.Millisecond

// Coalescer merges bursts of mutation events into one trailing capture.
//
// Every Trigger re-arms a timer for window; the capture callback runs once the
// events stop for that long. A generation counter invalidates timers that were
// superseded or cancelled, so a callback racing with Trigger or TakePending
// never fires twice.
type Coalescer struct {
	clock   clockwork.Clock
	window  time.Duration
	capture func()

	mu            sync.Mutex
	timer         clockwork.Timer
	generation    uint64
	pending       bool
	lastTriggerAt time.Time
	stopped       bool
}

// NewCoalescer creates a Coalescer that calls capture after window of quiet.
// A nil clock selects the real clock. A non-positive window captures
// synchronously on every Trigger.
func NewCoalescer(clock clockwork.Clock, window time.Duration, capture func()) *Coalescer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Coalescer{
		clock:   clock,
		window:  window,
		capture: capture,
	}
}

// Trigger records a mutation event and (re)arms the trailing capture.
func (c *Coalescer) Trigger() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.lastTriggerAt = c.clock.Now()

	if c.window <= 0 {
		c.mu.Unlock()
		c.capture()
		return
	}

	c.generation++
	gen := c.generation
	c.pending = true
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = c.clock.AfterFunc(c.window, func() { c.expire(gen) })
	c.mu.Unlock()
}

// expire must not touch the clock: fake clocks may run it while holding their own lock.
func (c *Coalescer) expire(gen uint64) {
	c.mu.Lock()
	if c.stopped || !c.pending || gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.pending = false
	c.timer = nil
	c.mu.Unlock()

	c.capture()
}

// TakePending cancels the armed capture and reports whether one was pending.
// Callers use it to run the capture synchronously before a page switch, save
// or undo.
func (c *Coalescer) TakePending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pending {
		return false
	}
	c.cancelLocked()
	return true
}

// Pending reports whether a capture is armed.
func (c *Coalescer) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// LastTrigger returns the time of the most recent Trigger.
func (c *Coalescer) LastTrigger() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastTriggerAt
}

// Cancel drops any armed capture without running it.
func (c *Coalescer) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
}

// Stop cancels any armed capture and ignores further triggers.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
	c.stopped = true
}

func (c *Coalescer) cancelLocked() {
	c.generation++
	c.pending = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
