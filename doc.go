// Package zwatch assembles a console stopwatch driven by three periodic tasks over one shared,
// mutex-guarded state:
//
//   - stopwatch.accumulate (priority 3): folds elapsed ticks into the total while running
//   - stopwatch.input (priority 2): reads at most one command line per period
//   - stopwatch.display (priority 1): prints the accumulated seconds, one line per period
//
// Commands are single letters on the input stream: "r" runs, "s" stops, "c" clears. Anything
// else is ignored.
//
// # Quick start
//
//	cfg, err := config.Load("zwatch.yaml") // "" means defaults
//	if err != nil {
//		return err
//	}
//	svc, err := zwatch.NewService(cfg)
//	if err != nil {
//		return err
//	}
//	return svc.Run(context.Background())
//
// # Console
//
// Input comes from stdin or a serial port (input.source), output goes to stdout or the same
// port (output.sink). The port is opened once in NewService and closed on shutdown. A line
// reader goroutine owns the blocking read; the input task only polls its queue, so no task
// ever blocks on the console.
//
// # Ops surface
//
// When ops.addr is set, an HTTP server serves the ops subtree under "/-/":
//
//   - reads: /healthz, /readyz, /stopwatch, /tasks, /tuning, /tuning/overrides, /log/level
//   - writes: /stopwatch/command, /tasks/period, /tuning/set, /tuning/reset, /log/level/set
//
// Writes require ops.token (as "Authorization: Bearer <token>" or X-Access-Token). Without a
// token every write is rejected with 403.
//
// # Runtime tuning
//
// NewService registers log.level, display.precision and tasks.<name>.period. Setting a period
// reschedules the task from now.
//
// # Service lifecycle
//
// Service provides Start/Wait/Shutdown/Run:
//   - Start: OnStart hooks, then the tasks, then the ops server (not idempotent)
//   - Wait: waits until the service fully stops (idempotent)
//   - Shutdown: ops server, tasks, OnShutdown hooks, console; bounded by shutdown_timeout
//   - Run: Start → wait for ctx.Done, a signal, or (with input.exit_on_eof) the end of input → Shutdown → Wait
//
// # Building blocks
//
//   - github.com/evan-idocoding/zwatch/stopwatch: the shared state and command parsing
//   - github.com/evan-idocoding/zwatch/controller: the three task bodies and their registration
//   - github.com/evan-idocoding/zwatch/clock: tick clocks (monotonic and manual)
//   - github.com/evan-idocoding/zwatch/console: line reader, sinks and the serial port
//   - github.com/evan-idocoding/zwatch/config: YAML configuration
//   - github.com/evan-idocoding/zwatch/rt/task: fixed-rate priority scheduler
//   - github.com/evan-idocoding/zwatch/rt/tuning: runtime-tunable parameters
//   - github.com/evan-idocoding/zwatch/rt/safego: panic/error observable goroutine runner
//   - github.com/evan-idocoding/zwatch/admin, ops, httpx: the ops HTTP surface
package zwatch
