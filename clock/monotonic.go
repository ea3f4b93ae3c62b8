package clock

import (
	"time"

	"github.com/aristanetworks/goarista/monotime"
)

// Monotonic is a Clock driven by the runtime monotonic clock.
//
// Tick 0 is the moment NewMonotonic was called.
type Monotonic struct {
	origin uint64 // monotime nanoseconds at creation
	res    time.Duration
}

// NewMonotonic creates a Monotonic clock with the given tick duration.
// If res <= 0, DefaultResolution is used.
func NewMonotonic(res time.Duration) *Monotonic {
	return &Monotonic{
		origin: monotime.Now(),
		res:    resolutionOrDefault(res),
	}
}

func (c *Monotonic) Now() Tick {
	return Tick(c.elapsed() / uint64(c.res))
}

func (c *Monotonic) Resolution() time.Duration { return c.res }

func (c *Monotonic) After(at Tick) <-chan Tick {
	ch := make(chan Tick, 1)
	c.arm(at, ch)
	return ch
}

func (c *Monotonic) arm(at Tick, ch chan Tick) {
	now := c.Now()
	if !now.Before(at) {
		ch <- now
		return
	}
	// Sleep to the start of the target tick. The timer may fire a little early relative to our
	// tick boundary (different rounding); re-arm until the tick is actually reached.
	wait := time.Duration(at.Sub(now))*c.res - time.Duration(c.elapsed()%uint64(c.res))
	if wait <= 0 {
		wait = c.res
	}
	time.AfterFunc(wait, func() { c.arm(at, ch) })
}

func (c *Monotonic) elapsed() uint64 {
	return uint64(monotime.Since(c.origin))
}
