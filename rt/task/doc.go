// Package task schedules periodic tasks on a tick clock with priorities.
//
// # Design highlights
//
//   - Manager: holds tasks, runs one dispatcher loop, and coordinates graceful shutdown.
//   - Every task: runs once per period, fixed-rate ("delay until" the next boundary).
//   - Priorities: tasks due in the same dispatch run highest priority first.
//   - Clock: any clock.Clock; tests drive a clock.Manual and call Dispatch directly.
//   - Panic/error reporting: safego-style handlers and tags; by default logged with slog.
//
// # Lifecycle
//
// Manager must be started explicitly:
//
//	m := task.NewManager(task.WithLogger(logger))
//	h, _ := m.Add(task.Every(100*time.Millisecond, accumulate),
//		task.WithName("stopwatch.accumulate"),
//		task.WithPriority(3),
//	)
//	_ = m.Start(ctx)
//	defer m.Shutdown(context.Background())
//
// Start is not idempotent: calling Start more than once returns ErrAlreadyStarted.
//
// Shutdown is safe to call even if Start was never called; it marks all registered tasks as stopped
// for observability. During/after Shutdown, Add and Handle.SetPeriod return ErrClosed.
//
// # Scheduling
//
// Each task has a next boundary tick. The first boundary is the Start tick (or the Add tick for
// tasks added later) when WithStartImmediately(true) is set, otherwise one period after it.
//
// When the dispatcher wakes it runs every task whose boundary is not in the future. After a run
// is claimed the boundary moves to the first multiple of the period strictly after now, so a late
// dispatch never produces a burst of catch-up runs. Boundaries jumped over are counted in
// Status.Missed.
//
// # Dispatch modes
//
// DispatchSerial (default) runs due tasks one after another on the dispatcher goroutine. This is
// cooperative scheduling: a task that overruns delays lower-priority tasks in the same dispatch,
// and nothing preempts it.
//
// DispatchConcurrent starts each due run in its own goroutine (still in priority order). A task
// whose previous run has not finished at its next boundary is skipped (Status.Skipped).
//
// # Hooks
//
// Manager and task options may provide OnRunStart/OnRunFinish hooks.
//
// Hooks are called synchronously on the task execution path. They must be fast and must not
// block.
//
// # Observability
//
// Task status can be observed via Handle.Status() or Manager.Snapshot(), which is designed for
// consumption by an ops layer:
//
//	snap := m.Snapshot()
//	if st, ok := snap.Get("stopwatch.display"); ok {
//		_ = st.Missed
//		_ = st.NextRun
//	}
//
// # Names and lookup
//
// Task names are optional. If a task is named (WithName), the name is:
//   - normalized by strings.TrimSpace
//   - validated against [A-Za-z0-9._-]
//   - unique within the Manager
//
// Named tasks can be looked up by name:
//
//	h, ok := m.Lookup("stopwatch.display")
//	_ = h
package task
