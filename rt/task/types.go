package task

import (
	"context"
	"fmt"
	"time"

	"github.com/evan-idocoding/zwatch/clock"
	"github.com/evan-idocoding/zwatch/rt/safego"
)

// Func is the user-provided function executed by a task.
//
// Returning a non-nil error is reported via the configured error handler (unless filtered).
type Func func(context.Context) error

// Task is a task definition that can be registered to a Manager.
type Task interface {
	every() everyTask
}

// Handle is a registered task handle.
type Handle interface {
	// Name returns the configured name (may be empty).
	Name() string

	// Priority returns the configured priority. Higher runs first within one dispatch.
	Priority() int

	// Period returns the current period.
	Period() time.Duration

	// SetPeriod changes the period at runtime.
	//
	// If the manager is running, the next boundary becomes now + period; the old schedule is
	// discarded. Returns ErrInvalidPeriod for d <= 0 and ErrClosed after Shutdown.
	SetPeriod(d time.Duration) error

	// Status returns a snapshot of the task's current status.
	Status() Status
}

// State is the high-level lifecycle state of a task.
type State int

const (
	StateNotStarted State = iota
	StateIdle
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// DispatchMode controls how due runs are executed.
type DispatchMode int

const (
	// DispatchSerial runs due tasks inline on the dispatcher goroutine, in priority order.
	// A run that overruns its period delays every lower-priority task in the same dispatch.
	DispatchSerial DispatchMode = iota
	// DispatchConcurrent starts each due run in its own goroutine, in priority order.
	// A task whose previous run is still in flight at its next boundary is skipped.
	DispatchConcurrent
)

func (d DispatchMode) String() string {
	switch d {
	case DispatchSerial:
		return "serial"
	case DispatchConcurrent:
		return "concurrent"
	default:
		return fmt.Sprintf("DispatchMode(%d)", int(d))
	}
}

// ParseDispatchMode parses "serial" or "concurrent".
func ParseDispatchMode(s string) (DispatchMode, error) {
	switch s {
	case "serial", "":
		return DispatchSerial, nil
	case "concurrent":
		return DispatchConcurrent, nil
	default:
		return 0, fmt.Errorf("task: unknown dispatch mode %q", s)
	}
}

// Status is a task state snapshot.
type Status struct {
	Name     string
	Tags     []safego.Tag
	Priority int
	State    State

	Period      time.Duration
	PeriodTicks clock.Ticks

	Running int

	RunCount     uint64
	FailCount    uint64
	SuccessCount uint64
	// CanceledCount counts context cancellation / deadline exceeded that is filtered by
	// reportContextCancel=false (not reported, and not treated as success or failure).
	CanceledCount uint64
	// Missed counts period boundaries that passed without a run because a dispatch came late.
	// The scheduler never catches up on them.
	Missed uint64
	// Skipped counts boundaries dropped because the previous run was still in flight
	// (DispatchConcurrent only).
	Skipped uint64

	LastStarted  time.Time
	LastFinished time.Time
	LastSuccess  time.Time

	LastDuration time.Duration
	// LastError is the most recent failure ("panic" for panics). It is not cleared on success.
	LastError string

	// NextRun is the next boundary tick. Meaningful only while the manager is running.
	NextRun clock.Tick
}

// Snapshot is a point-in-time view of all tasks in a Manager.
type Snapshot struct {
	// Now is the clock tick at which the snapshot was taken.
	Now   clock.Tick
	Tasks []Status
}

// Get finds a task status by name.
func (s Snapshot) Get(name string) (Status, bool) {
	for _, st := range s.Tasks {
		if st.Name == name {
			return st, true
		}
	}
	return Status{}, false
}

// Runner is a small lifecycle interface implemented by Manager for app assembly.
type Runner interface {
	Start(context.Context) error
	Shutdown(context.Context) error
	Wait()
}

// RunStartInfo is passed to OnRunStart hooks.
type RunStartInfo struct {
	Name     string
	Tags     []safego.Tag
	Priority int

	ScheduledAt clock.Tick
	StartedAt   time.Time
}

// RunFinishInfo is passed to OnRunFinish hooks.
type RunFinishInfo struct {
	Name     string
	Tags     []safego.Tag
	Priority int

	ScheduledAt clock.Tick
	StartedAt   time.Time
	FinishedAt  time.Time
	Duration    time.Duration

	Err      string
	Panicked bool
}
