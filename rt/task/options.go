package task

import (
	"log/slog"

	"github.com/evan-idocoding/zwatch/clock"
	"github.com/evan-idocoding/zwatch/rt/safego"
)

type taskConfig struct {
	name     string
	tags     []safego.Tag
	priority int

	startImmediately bool

	onError             safego.ErrorHandler
	onPanic             safego.PanicHandler
	reportContextCancel bool

	onRunStart  func(info RunStartInfo)
	onRunFinish func(info RunFinishInfo)
}

type Option func(*taskConfig)

// WithName sets a human-friendly task name.
//
// Notes:
//   - Name is optional (empty means unnamed).
//   - Name is normalized by strings.TrimSpace.
//   - Non-empty names must match [A-Za-z0-9._-].
//   - Non-empty names are unique within a Manager; Add returns ErrDuplicateName on duplicates.
func WithName(name string) Option {
	return func(c *taskConfig) { c.name = name }
}

// WithTags appends tags for error/panic reports and hooks.
func WithTags(tags ...safego.Tag) Option {
	return func(c *taskConfig) {
		if len(tags) == 0 {
			return
		}
		c.tags = append(c.tags, tags...)
	}
}

// WithPriority sets the task priority. When several tasks are due in the same dispatch, higher
// priority runs first; equal priorities run in registration order. Default is 0.
func WithPriority(p int) Option {
	return func(c *taskConfig) { c.priority = p }
}

// WithStartImmediately controls whether the first run happens at Start/Add (true) or one
// period later (false, default).
func WithStartImmediately(v bool) Option {
	return func(c *taskConfig) { c.startImmediately = v }
}

// WithErrorHandler sets the error handler. If not set, errors are logged at error level.
func WithErrorHandler(h safego.ErrorHandler) Option {
	return func(c *taskConfig) { c.onError = h }
}

// WithPanicHandler sets the panic handler. If not set, panics are logged with their stack.
func WithPanicHandler(h safego.PanicHandler) Option {
	return func(c *taskConfig) { c.onPanic = h }
}

// WithReportContextCancel controls whether context.Canceled and context.DeadlineExceeded are reported.
func WithReportContextCancel(report bool) Option {
	return func(c *taskConfig) { c.reportContextCancel = report }
}

// WithOnRunStart sets a hook to observe run starts. Hooks are called synchronously.
func WithOnRunStart(fn func(info RunStartInfo)) Option {
	return func(c *taskConfig) { c.onRunStart = fn }
}

// WithOnRunFinish sets a hook to observe run finishes. Hooks are called synchronously.
func WithOnRunFinish(fn func(info RunFinishInfo)) Option {
	return func(c *taskConfig) { c.onRunFinish = fn }
}

type managerConfig struct {
	clock    clock.Clock
	dispatch DispatchMode
	logger   *slog.Logger

	onRunStart  func(info RunStartInfo)
	onRunFinish func(info RunFinishInfo)

	onError             safego.ErrorHandler
	onPanic             safego.PanicHandler
	reportContextCancel bool
}

type ManagerOption func(*managerConfig)

// WithClock sets the clock that drives scheduling. Default is clock.NewMonotonic(0).
func WithClock(c clock.Clock) ManagerOption {
	return func(cfg *managerConfig) { cfg.clock = c }
}

// WithDispatch sets the dispatch mode. Default is DispatchSerial.
func WithDispatch(d DispatchMode) ManagerOption {
	return func(cfg *managerConfig) { cfg.dispatch = d }
}

// WithLogger sets the logger used for default error/panic reports. Default is slog.Default().
func WithLogger(l *slog.Logger) ManagerOption {
	return func(cfg *managerConfig) { cfg.logger = l }
}

// WithManagerOnRunStart sets a global hook for all tasks in this manager.
func WithManagerOnRunStart(fn func(info RunStartInfo)) ManagerOption {
	return func(c *managerConfig) { c.onRunStart = fn }
}

// WithManagerOnRunFinish sets a global hook for all tasks in this manager.
func WithManagerOnRunFinish(fn func(info RunFinishInfo)) ManagerOption {
	return func(c *managerConfig) { c.onRunFinish = fn }
}

// WithManagerErrorHandler sets a default error handler for tasks added to this manager.
func WithManagerErrorHandler(h safego.ErrorHandler) ManagerOption {
	return func(c *managerConfig) { c.onError = h }
}

// WithManagerPanicHandler sets a default panic handler for tasks added to this manager.
func WithManagerPanicHandler(h safego.PanicHandler) ManagerOption {
	return func(c *managerConfig) { c.onPanic = h }
}

// WithManagerReportContextCancel sets the default reportContextCancel for tasks added to this manager.
func WithManagerReportContextCancel(report bool) ManagerOption {
	return func(c *managerConfig) { c.reportContextCancel = report }
}
