package zwatch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/evan-idocoding/zwatch/admin"
	"github.com/evan-idocoding/zwatch/clock"
	"github.com/evan-idocoding/zwatch/ops"
	"github.com/evan-idocoding/zwatch/rt/task"
	"github.com/evan-idocoding/zwatch/rt/tuning"
	"github.com/evan-idocoding/zwatch/stopwatch"
)

// OpsSpec configures NewOpsHandler.
//
// Assembly errors are fail-fast and will panic.
type OpsSpec struct {
	Logger *slog.Logger

	// ReadGuard is required. It protects all read endpoints.
	ReadGuard admin.Guard
	// WriteGuard protects the write endpoints. nil disables all writes.
	WriteGuard admin.Guard

	// State and Clock are required.
	State *stopwatch.State
	Clock clock.Clock

	// ReadyChecks are optional. /readyz is enabled regardless of checks (empty => ok).
	ReadyChecks []ops.ReadyCheck

	// Tasks enables /tasks when non-nil, and /tasks/period when writes are enabled.
	Tasks *task.Manager
	// TaskPeriodAllow lists the tasks /tasks/period may change; empty => deny-all.
	TaskPeriodAllow []string

	// Tuning enables /tuning and /tuning/overrides, plus /tuning/set and /tuning/reset when
	// writes are enabled.
	Tuning *tuning.Tuning

	// LogLevelVar enables /log/level. With LogLevel and writes, /log/level/set too.
	LogLevelVar *slog.LevelVar
	LogLevel    *tuning.EnumVar
}

// NewOpsHandler assembles the ops subtree. Paths are fixed; for other layouts use
// admin.New with admin.EnableXxx directly.
func NewOpsHandler(spec OpsSpec) http.Handler {
	if spec.ReadGuard == nil {
		panic("zwatch: NewOpsHandler: nil ReadGuard")
	}

	opts := make([]admin.Option, 0, 12)
	if spec.Logger != nil {
		opts = append(opts, admin.WithLogger(spec.Logger))
	}

	// Always-enabled reads.
	opts = append(opts,
		admin.EnableHealthz(admin.HealthzSpec{Guard: spec.ReadGuard}),
		admin.EnableReadyz(admin.ReadyzSpec{Guard: spec.ReadGuard, Checks: spec.ReadyChecks}),
		admin.EnableStopwatch(admin.StopwatchSpec{Guard: spec.ReadGuard, State: spec.State, Clock: spec.Clock}),
	)

	// Optional reads.
	if spec.Tasks != nil {
		opts = append(opts, admin.EnableTasksSnapshot(admin.TasksSnapshotSpec{Guard: spec.ReadGuard, Mgr: spec.Tasks}))
	}
	if spec.Tuning != nil {
		opts = append(opts, admin.EnableTuning(admin.TuningSpec{Guard: spec.ReadGuard, T: spec.Tuning}))
	}
	if spec.LogLevelVar != nil {
		opts = append(opts, admin.EnableLogLevelGet(admin.LogLevelGetSpec{Guard: spec.ReadGuard, Var: spec.LogLevelVar}))
	}

	// Writes.
	if w := spec.WriteGuard; w != nil {
		opts = append(opts, admin.EnableStopwatchCommand(admin.StopwatchCommandSpec{Guard: w, State: spec.State, Clock: spec.Clock}))
		if spec.Tasks != nil {
			opts = append(opts, admin.EnableTaskPeriod(admin.TaskPeriodSpec{Guard: w, Mgr: spec.Tasks, Allow: spec.TaskPeriodAllow}))
		}
		if spec.Tuning != nil {
			opts = append(opts, admin.EnableTuningWrite(admin.TuningWriteSpec{Guard: w, T: spec.Tuning}))
		}
		if spec.LogLevelVar != nil && spec.LogLevel != nil {
			opts = append(opts, admin.EnableLogLevelSet(admin.LogLevelSetSpec{Guard: w, Var: spec.LogLevelVar, Enum: spec.LogLevel}))
		}
	}

	return admin.New(opts...)
}

func (s *Service) readyChecks() []ops.ReadyCheck {
	return []ops.ReadyCheck{
		{Name: "scheduler", Func: func(context.Context) error {
			if !s.Tasks.Running() {
				return errSchedulerStopped
			}
			return nil
		}},
		{Name: "input", Func: func(context.Context) error {
			if s.Input.Failed() {
				return s.Input.Err()
			}
			return nil
		}},
	}
}

var errSchedulerStopped = errors.New("scheduler not running")

// --- net/http assembly internals ---

const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultIdleTimeout       = 60 * time.Second
)

func newHTTPServerWithDefaults(addr string, handler http.Handler) *http.Server {
	if strings.TrimSpace(addr) == "" {
		panic("zwatch: newHTTPServerWithDefaults: empty addr")
	}
	if handler == nil {
		panic("zwatch: newHTTPServerWithDefaults: nil handler")
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}
}

// mountPrefix routes requests under prefix to subtree with the prefix stripped (keeping a
// leading "/"), and everything else to fallback. The base path without the trailing slash
// ("/-") is redirected to prefix with HTTP 307.
func mountPrefix(prefix string, subtree, fallback http.Handler) http.Handler {
	prefix = normalizeMountPrefixOrPanic(prefix)
	base := strings.TrimSuffix(prefix, "/")
	if subtree == nil || fallback == nil {
		panic("zwatch: mountPrefix: nil handler")
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == base {
			target := prefix
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}
			http.Redirect(w, r, target, http.StatusTemporaryRedirect)
			return
		}
		rest, ok := strings.CutPrefix(path, base)
		if !ok || !strings.HasPrefix(rest, "/") {
			fallback.ServeHTTP(w, r)
			return
		}
		r2 := r.Clone(r.Context())
		r2.URL.Path = rest
		r2.URL.RawPath = ""
		subtree.ServeHTTP(w, r2)
	})
}

func normalizeMountPrefixOrPanic(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if !strings.HasPrefix(prefix, "/") || prefix == "/" {
		panic("zwatch: mountPrefix: invalid prefix: " + prefix)
	}
	if strings.ContainsAny(prefix, " \t\r\n?#") || strings.Contains(prefix, "//") {
		panic("zwatch: mountPrefix: invalid prefix: " + prefix)
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}
