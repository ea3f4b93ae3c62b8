package admin

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/evan-idocoding/zwatch/clock"
	"github.com/evan-idocoding/zwatch/ops"
	"github.com/evan-idocoding/zwatch/rt/task"
	"github.com/evan-idocoding/zwatch/rt/tuning"
	"github.com/evan-idocoding/zwatch/stopwatch"
)

// --- health ---

type HealthzSpec struct {
	Guard Guard
	Path  string // default "/healthz"
}

func EnableHealthz(spec HealthzSpec) Option {
	return func(b *Builder) {
		b.mount("healthz", spec.Path, "/healthz", spec.Guard, func(*Builder) http.Handler { return ops.HealthzHandler() })
	}
}

type ReadyzSpec struct {
	Guard  Guard
	Path   string // default "/readyz"
	Checks []ops.ReadyCheck
}

func EnableReadyz(spec ReadyzSpec) Option {
	return func(b *Builder) {
		b.mount("readyz", spec.Path, "/readyz", spec.Guard, func(*Builder) http.Handler { return ops.ReadyzHandler(spec.Checks) })
	}
}

// --- stopwatch ---

type StopwatchSpec struct {
	Guard Guard
	Path  string // default "/stopwatch"
	State *stopwatch.State
	Clock clock.Clock
}

func EnableStopwatch(spec StopwatchSpec) Option {
	return func(b *Builder) {
		requireStopwatch(spec.State, spec.Clock, "stopwatch")
		b.mount("stopwatch", spec.Path, "/stopwatch", spec.Guard, func(*Builder) http.Handler { return ops.StopwatchHandler(spec.State, spec.Clock) })
	}
}

type StopwatchCommandSpec struct {
	Guard Guard
	Path  string // default "/stopwatch/command"
	State *stopwatch.State
	Clock clock.Clock
}

func EnableStopwatchCommand(spec StopwatchCommandSpec) Option {
	return func(b *Builder) {
		requireStopwatch(spec.State, spec.Clock, "stopwatch.command")
		b.mount("stopwatch.command", spec.Path, "/stopwatch/command", spec.Guard, func(b *Builder) http.Handler {
			return ops.StopwatchCommandHandler(spec.State, spec.Clock, b.logger)
		})
	}
}

// --- tasks ---

type TasksSnapshotSpec struct {
	Guard Guard
	Path  string // default "/tasks"
	Mgr   *task.Manager
}

func EnableTasksSnapshot(spec TasksSnapshotSpec) Option {
	return func(b *Builder) {
		requireManager(spec.Mgr, "tasks")
		b.mount("tasks", spec.Path, "/tasks", spec.Guard, func(*Builder) http.Handler { return ops.TasksSnapshotHandler(spec.Mgr) })
	}
}

type TaskPeriodSpec struct {
	Guard Guard
	Path  string // default "/tasks/period"
	Mgr   *task.Manager
	// Allow lists the task names that may be changed. Empty means deny-all.
	Allow []string
}

func EnableTaskPeriod(spec TaskPeriodSpec) Option {
	return func(b *Builder) {
		requireManager(spec.Mgr, "tasks.period")
		allow := nonEmpty(spec.Allow)
		guard := spec.Guard
		if len(allow) == 0 && guard != nil {
			guard = DenyAll()
		}
		b.mount("tasks.period", spec.Path, "/tasks/period", guard, func(*Builder) http.Handler { return ops.TaskPeriodHandler(spec.Mgr, allow) })
	}
}

// --- log level ---

type LogLevelGetSpec struct {
	Guard Guard
	Path  string // default "/log/level"
	Var   *slog.LevelVar
}

func EnableLogLevelGet(spec LogLevelGetSpec) Option {
	return func(b *Builder) {
		if spec.Var == nil {
			panic("admin: log.level: nil slog.LevelVar")
		}
		b.mount("log.level", spec.Path, "/log/level", spec.Guard, func(*Builder) http.Handler { return ops.LogLevelGetHandler(spec.Var) })
	}
}

type LogLevelSetSpec struct {
	Guard Guard
	Path  string // default "/log/level/set"
	Var   *slog.LevelVar
	// Enum is the tuning variable bound to Var.
	Enum *tuning.EnumVar
}

func EnableLogLevelSet(spec LogLevelSetSpec) Option {
	return func(b *Builder) {
		if spec.Var == nil || spec.Enum == nil {
			panic("admin: log.level.set: nil level variable")
		}
		b.mount("log.level.set", spec.Path, "/log/level/set", spec.Guard, func(*Builder) http.Handler { return ops.LogLevelSetHandler(spec.Enum, spec.Var) })
	}
}

// --- tuning ---

// TuningSpec mounts the tuning reads at Path (default "/tuning") and Path+"/overrides".
type TuningSpec struct {
	Guard Guard
	Path  string
	T     *tuning.Tuning
}

func EnableTuning(spec TuningSpec) Option {
	return func(b *Builder) {
		requireTuning(spec.T, "tuning")
		base := tuningBase(spec.Path)
		b.mount("tuning", base, "", spec.Guard, func(*Builder) http.Handler { return ops.TuningSnapshotHandler(spec.T) })
		b.mount("tuning.overrides", base+"/overrides", "", spec.Guard, func(*Builder) http.Handler { return ops.TuningOverridesHandler(spec.T) })
	}
}

// TuningWriteSpec mounts Path+"/set" and Path+"/reset" (Path default "/tuning").
type TuningWriteSpec struct {
	Guard Guard
	Path  string
	T     *tuning.Tuning
}

func EnableTuningWrite(spec TuningWriteSpec) Option {
	return func(b *Builder) {
		requireTuning(spec.T, "tuning.write")
		base := tuningBase(spec.Path)
		b.mount("tuning.set", base+"/set", "", spec.Guard, func(*Builder) http.Handler { return ops.TuningSetHandler(spec.T) })
		b.mount("tuning.reset", base+"/reset", "", spec.Guard, func(*Builder) http.Handler { return ops.TuningResetHandler(spec.T) })
	}
}

func tuningBase(path string) string {
	if path == "" {
		return "/tuning"
	}
	return path
}

func requireStopwatch(st *stopwatch.State, clk clock.Clock, capName string) {
	if st == nil || clk == nil {
		panic(fmt.Sprintf("admin: %s: nil stopwatch state or clock", capName))
	}
}

func requireManager(m *task.Manager, capName string) {
	if m == nil {
		panic("admin: " + capName + ": nil task.Manager")
	}
}

func requireTuning(t *tuning.Tuning, capName string) {
	if t == nil {
		panic("admin: " + capName + ": nil tuning.Tuning")
	}
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
