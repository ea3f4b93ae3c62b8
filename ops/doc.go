// Package ops provides net/http handlers for the zwatch operational endpoints.
//
// Handlers do not choose routing paths or make authorization decisions; the admin package
// mounts them and applies guards.
//
// # Formats
//
// Handlers render text by default. The default can be changed by options and overridden per
// request with ?format=text or ?format=json.
//
// Text output is line-based and greppable: section<TAB>key<TAB>value. JSON output is
// structured for tooling.
//
// # Handlers
//
//   - health: HealthzHandler (liveness), ReadyzHandler (readiness checks)
//   - stopwatch: StopwatchHandler (state snapshot), StopwatchCommandHandler (run/stop/clear)
//   - tasks: TasksSnapshotHandler, TaskPeriodHandler (rt/task integration)
//   - tuning: TuningSnapshotHandler, TuningOverridesHandler, TuningSetHandler, TuningResetHandler
//   - logging: LogLevelGetHandler, LogLevelSetHandler
package ops
