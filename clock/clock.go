// Package clock provides the tick-based time source used by the scheduler and the stopwatch.
//
// # Ticks
//
// A Tick is an instant on a free-running 32-bit counter. It wraps around; all comparisons and
// subtractions are modular, so they stay correct across a wrap as long as the two instants are
// less than 2^31 ticks apart (about 24 days at the default 1ms resolution).
//
// A Ticks value is an elapsed count. It is 64-bit and does not wrap in practice.
//
// # Implementations
//
//   - Monotonic: real time, backed by the runtime monotonic clock.
//   - Manual: virtual time for tests; time only moves when Set/Advance is called.
package clock

import (
	"context"
	"math"
	"time"
)

// DefaultResolution is the tick duration used when none is configured.
const DefaultResolution = time.Millisecond

// Tick is an instant of a Clock, in ticks since the clock's origin (mod 2^32).
type Tick uint32

// Ticks is an elapsed number of ticks.
type Ticks uint64

// Add returns t advanced by n ticks (mod 2^32).
func (t Tick) Add(n Ticks) Tick {
	return t + Tick(uint32(n))
}

// Sub returns the number of ticks from u to t.
//
// The subtraction is modular: if the counter wrapped between u and t the result is still the
// true distance. Callers must not pass u "after" t.
func (t Tick) Sub(u Tick) Ticks {
	return Ticks(uint32(t - u))
}

// Before reports whether t is strictly before u.
func (t Tick) Before(u Tick) bool {
	return int32(t-u) < 0
}

// Clock is a monotonic tick source.
//
// Implementations must be safe for concurrent use.
type Clock interface {
	// Now returns the current tick.
	Now() Tick

	// Resolution returns the duration of one tick. It is always > 0.
	Resolution() time.Duration

	// After returns a channel that receives the current tick once Now() has reached at.
	// If at is not in the future, the channel is ready immediately.
	// The channel is buffered; an abandoned channel does not leak a goroutine.
	After(at Tick) <-chan Tick
}

// SleepUntil blocks until c reaches at or ctx is done.
func SleepUntil(ctx context.Context, c Clock, at Tick) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !c.Now().Before(at) {
		return nil
	}
	select {
	case <-c.After(at):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Seconds converts an elapsed tick count into seconds using c's resolution.
func Seconds(c Clock, n Ticks) float64 {
	return Duration(c, n).Seconds()
}

// Duration converts an elapsed tick count into a time.Duration, saturating at the maximum.
func Duration(c Clock, n Ticks) time.Duration {
	res := c.Resolution()
	if n > Ticks(math.MaxInt64/int64(res)) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(n) * res
}

// TicksFor converts d into ticks, rounding up. Any positive d yields at least one tick.
// Non-positive d yields zero.
func TicksFor(c Clock, d time.Duration) Ticks {
	if d <= 0 {
		return 0
	}
	res := c.Resolution()
	n := d / res
	if d%res != 0 {
		n++
	}
	return Ticks(n)
}

func resolutionOrDefault(res time.Duration) time.Duration {
	if res <= 0 {
		return DefaultResolution
	}
	return res
}
