package clock

import (
	"sync"
	"time"
)

// Manual is a virtual Clock. Time moves only when Set or Advance is called.
//
// It is intended for deterministic tests of periodic behavior.
// The zero value is not usable; use NewManual.
type Manual struct {
	res time.Duration

	mu      sync.Mutex
	now     Tick
	waiters []manualWaiter
}

type manualWaiter struct {
	at Tick
	ch chan Tick
}

// NewManual creates a Manual clock at tick 0.
// If res <= 0, DefaultResolution is used.
func NewManual(res time.Duration) *Manual {
	return &Manual{res: resolutionOrDefault(res)}
}

func (c *Manual) Now() Tick {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Manual) Resolution() time.Duration { return c.res }

func (c *Manual) After(at Tick) <-chan Tick {
	ch := make(chan Tick, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.now.Before(at) {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, manualWaiter{at: at, ch: ch})
	return ch
}

// Advance moves the clock forward by n ticks and fires every waiter that became due.
func (c *Manual) Advance(n Ticks) Tick {
	c.mu.Lock()
	now := c.now.Add(n)
	c.mu.Unlock()
	return c.Set(now)
}

// Set moves the clock to t and fires every waiter that became due.
//
// Moving backwards is allowed (to simulate odd sources) but no waiter fires in that case.
func (c *Manual) Set(t Tick) Tick {
	c.mu.Lock()
	c.now = t
	kept := c.waiters[:0]
	var fire []manualWaiter
	for _, w := range c.waiters {
		if t.Before(w.at) {
			kept = append(kept, w)
			continue
		}
		fire = append(fire, w)
	}
	for i := len(kept); i < len(c.waiters); i++ {
		c.waiters[i] = manualWaiter{}
	}
	c.waiters = kept
	c.mu.Unlock()

	for _, w := range fire {
		w.ch <- t
	}
	return t
}

// Waiters returns the number of pending After channels.
//
// Tests use it to wait until a goroutine is parked on the clock.
func (c *Manual) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}
