// Package stopwatch holds the shared stopwatch state and its transactional operations.
//
// The state is a single record (mode, accumulated ticks, last resume tick) guarded by one
// mutex. Every operation that touches more than one field does so inside one critical section,
// and Snapshot copies all fields under the same lock, so no reader ever observes a half-applied
// transition (for example Running paired with a stale resume tick).
//
// The three periodic tasks use it as follows:
//
//	st := stopwatch.New()
//	st.Apply(stopwatch.Run, now)   // input task
//	st.Accumulate(now)             // time task
//	snap := st.Snapshot()          // display task
//
// No method blocks beyond the mutex; callers must never hold external locks or perform I/O
// while calling into State.
package stopwatch

import (
	"fmt"
	"sync"

	"github.com/evan-idocoding/zwatch/clock"
)

// Mode is the persistent stopwatch mode.
type Mode uint8

const (
	Stopped Mode = iota
	Running
)

func (m Mode) String() string {
	switch m {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// Snapshot is a consistent copy of the state.
type Snapshot struct {
	Mode        Mode
	Accumulated clock.Ticks
	// LastResume is meaningful only when Mode == Running.
	LastResume clock.Tick

	// Revision increases by one on every change. Zero means "never changed".
	Revision uint64
	Resumes  uint64
	Clears   uint64
}

// State is the shared stopwatch record.
//
// It is safe for concurrent use. The zero value is a stopped stopwatch at zero.
type State struct {
	mu sync.Mutex

	mode        Mode
	accumulated clock.Ticks
	lastResume  clock.Tick

	revision uint64
	resumes  uint64
	clears   uint64
}

// New returns a stopped stopwatch with nothing accumulated.
func New() *State {
	return &State{}
}

// Apply performs cmd at tick now and reports whether the state changed.
//
//   - Run: Stopped -> Running and the resume tick becomes now. Already running is a no-op,
//     so elapsed time since the previous resume is never truncated.
//   - Stop: mode becomes Stopped. Nothing is folded; accumulated and the resume tick stay.
//   - Clear: accumulated becomes 0. While running the resume tick also becomes now, so the
//     interval before the clear is never folded in afterwards. Mode never changes.
//   - None (or any unknown command): no change.
func (s *State) Apply(cmd Command, now clock.Tick) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	switch cmd {
	case Run:
		if s.mode != Running {
			s.mode = Running
			s.lastResume = now
			s.resumes++
			changed = true
		}
	case Stop:
		if s.mode != Stopped {
			s.mode = Stopped
			changed = true
		}
	case Clear:
		s.accumulated = 0
		if s.mode == Running {
			s.lastResume = now
		}
		s.clears++
		changed = true
	}
	if changed {
		s.revision++
	}
	return s.snapshotLocked(), changed
}

// Accumulate folds the ticks elapsed since the last resume into the accumulated total and
// moves the resume tick to now. It returns the folded delta; zero when stopped.
func (s *State) Accumulate(now clock.Tick) clock.Ticks {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != Running {
		return 0
	}
	if now.Before(s.lastResume) {
		// A resume/clear stamped a newer tick than this run observed. Nothing has elapsed
		// since that resume from this caller's point of view.
		return 0
	}
	delta := now.Sub(s.lastResume)
	s.accumulated += delta
	s.lastResume = now
	if delta != 0 {
		s.revision++
	}
	return delta
}

// Snapshot returns a consistent copy of the state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() Snapshot {
	return Snapshot{
		Mode:        s.mode,
		Accumulated: s.accumulated,
		LastResume:  s.lastResume,
		Revision:    s.revision,
		Resumes:     s.resumes,
		Clears:      s.clears,
	}
}
