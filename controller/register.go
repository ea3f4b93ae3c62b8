package controller

import (
	"fmt"
	"time"

	"github.com/evan-idocoding/zwatch/rt/task"
)

// Task names used for registration, ops and tuning keys.
const (
	TaskAccumulate = "stopwatch.accumulate"
	TaskInput      = "stopwatch.input"
	TaskDisplay    = "stopwatch.display"
)

// TaskPlan is the period and priority of one task.
type TaskPlan struct {
	Period   time.Duration
	Priority int
}

// Plan holds the scheduling parameters of the three tasks.
type Plan struct {
	Accumulate TaskPlan
	Input      TaskPlan
	Display    TaskPlan
}

// DefaultPlan runs every task each 100ms, accumulate before input before display.
func DefaultPlan() Plan {
	return Plan{
		Accumulate: TaskPlan{Period: 100 * time.Millisecond, Priority: 3},
		Input:      TaskPlan{Period: 100 * time.Millisecond, Priority: 2},
		Display:    TaskPlan{Period: 100 * time.Millisecond, Priority: 1},
	}
}

// Handles are the registered task handles.
type Handles struct {
	Accumulate task.Handle
	Input      task.Handle
	Display    task.Handle
}

// Lookup returns the handle registered under name.
func (h Handles) Lookup(name string) (task.Handle, bool) {
	switch name {
	case TaskAccumulate:
		return h.Accumulate, h.Accumulate != nil
	case TaskInput:
		return h.Input, h.Input != nil
	case TaskDisplay:
		return h.Display, h.Display != nil
	default:
		return nil, false
	}
}

// Register adds the three tasks to m. All of them run once at start and then every period.
func (c *Controller) Register(m *task.Manager, p Plan, opts ...task.Option) (Handles, error) {
	var h Handles
	entries := []struct {
		name string
		plan TaskPlan
		fn   task.Func
		dst  *task.Handle
	}{
		{TaskAccumulate, p.Accumulate, c.Accumulate, &h.Accumulate},
		{TaskInput, p.Input, c.HandleInput, &h.Input},
		{TaskDisplay, p.Display, c.Display, &h.Display},
	}
	for _, e := range entries {
		topts := append([]task.Option{
			task.WithName(e.name),
			task.WithPriority(e.plan.Priority),
			task.WithStartImmediately(true),
		}, opts...)
		th, err := m.Add(task.Every(e.plan.Period, e.fn), topts...)
		if err != nil {
			return Handles{}, fmt.Errorf("controller: register %s: %w", e.name, err)
		}
		*e.dst = th
	}
	return h, nil
}
