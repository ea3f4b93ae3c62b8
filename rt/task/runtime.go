package task

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/evan-idocoding/zwatch/clock"
	"github.com/evan-idocoding/zwatch/rt/safego"
)

type taskRuntime struct {
	m *Manager

	fn       Func
	name     string
	tags     []safego.Tag
	priority int

	startImmediately bool

	onError             safego.ErrorHandler
	onPanic             safego.PanicHandler
	reportContextCancel bool

	// hooks: both manager-global and task-local (both run)
	onRunStartGlobal  func(info RunStartInfo)
	onRunFinishGlobal func(info RunFinishInfo)
	onRunStartLocal   func(info RunStartInfo)
	onRunFinishLocal  func(info RunFinishInfo)

	mu sync.Mutex

	period      time.Duration
	periodTicks clock.Ticks
	next        clock.Tick

	state   State
	running int

	runCount      uint64
	failCount     uint64
	successCount  uint64
	canceledCount uint64
	missed        uint64
	skipped       uint64

	lastStarted  time.Time
	lastFinished time.Time
	lastSuccess  time.Time
	lastDuration time.Duration
	lastError    string
}

func taskConfigFrom(m *Manager, opts []Option) taskConfig {
	c := taskConfig{
		onError:             m.cfg.onError,
		onPanic:             m.cfg.onPanic,
		reportContextCancel: m.cfg.reportContextCancel,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return c
}

func newTaskRuntime(m *Manager, def everyTask, ticks clock.Ticks, c taskConfig) *taskRuntime {
	return &taskRuntime{
		m:                   m,
		fn:                  def.fn,
		name:                c.name,
		tags:                safego.CloneTags(c.tags),
		priority:            c.priority,
		startImmediately:    c.startImmediately,
		onError:             c.onError,
		onPanic:             c.onPanic,
		reportContextCancel: c.reportContextCancel,
		onRunStartGlobal:    m.cfg.onRunStart,
		onRunFinishGlobal:   m.cfg.onRunFinish,
		onRunStartLocal:     c.onRunStart,
		onRunFinishLocal:    c.onRunFinish,
		period:              def.period,
		periodTicks:         ticks,
		state:               StateNotStarted,
	}
}

func (tr *taskRuntime) Name() string { return tr.name }

func (tr *taskRuntime) Priority() int { return tr.priority }

func (tr *taskRuntime) Period() time.Duration {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.period
}

func (tr *taskRuntime) SetPeriod(d time.Duration) error {
	ticks := clock.TicksFor(tr.m.cfg.clock, d)
	if ticks == 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPeriod, d)
	}
	if tr.m.managerState() >= managerStopping {
		return ErrClosed
	}

	tr.mu.Lock()
	tr.period = d
	tr.periodTicks = ticks
	active := tr.state == StateIdle || tr.state == StateRunning
	if active {
		tr.next = tr.m.cfg.clock.Now().Add(ticks)
	}
	tr.mu.Unlock()

	if active {
		tr.m.wake()
	}
	return nil
}

func (tr *taskRuntime) Status() Status {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	return Status{
		Name:     tr.name,
		Tags:     safego.CloneTags(tr.tags),
		Priority: tr.priority,
		State:    tr.state,

		Period:      tr.period,
		PeriodTicks: tr.periodTicks,

		Running: tr.running,

		RunCount:      tr.runCount,
		FailCount:     tr.failCount,
		SuccessCount:  tr.successCount,
		CanceledCount: tr.canceledCount,
		Missed:        tr.missed,
		Skipped:       tr.skipped,

		LastStarted:  tr.lastStarted,
		LastFinished: tr.lastFinished,
		LastSuccess:  tr.lastSuccess,
		LastDuration: tr.lastDuration,
		LastError:    tr.lastError,

		NextRun: tr.next,
	}
}

// activate sets the first boundary relative to base.
func (tr *taskRuntime) activate(base clock.Tick) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.state != StateNotStarted {
		return
	}
	tr.state = StateIdle
	tr.next = base
	if !tr.startImmediately {
		tr.next = base.Add(tr.periodTicks)
	}
}

// pendingBoundary returns the next boundary of an active task.
func (tr *taskRuntime) pendingBoundary() (clock.Tick, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.state != StateIdle && tr.state != StateRunning {
		return 0, false
	}
	return tr.next, true
}

// claim reports whether the task is due at now and, if so, reserves a run and advances the
// next boundary. Fixed-rate, no catch-up: the new boundary is the first one strictly after now;
// whole periods jumped over are counted as missed.
func (tr *taskRuntime) claim(now clock.Tick, mode DispatchMode) (clock.Tick, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.state != StateIdle && tr.state != StateRunning {
		return 0, false
	}
	if now.Before(tr.next) {
		return 0, false
	}
	at := tr.next
	behind := now.Sub(at) / tr.periodTicks
	tr.missed += uint64(behind)
	tr.next = at.Add((behind + 1) * tr.periodTicks)

	if mode == DispatchConcurrent && tr.running > 0 {
		tr.skipped++
		return 0, false
	}
	tr.running++
	tr.state = StateRunning
	return at, true
}

// release gives back a run reserved by claim that will not execute.
func (tr *taskRuntime) release() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.running > 0 {
		tr.running--
	}
	tr.settleStateLocked()
}

func (tr *taskRuntime) setState(state State) {
	tr.mu.Lock()
	tr.state = state
	tr.mu.Unlock()
}

// settleStateLocked derives the task state from the manager state. tr.mu must be held.
func (tr *taskRuntime) settleStateLocked() {
	switch st := tr.m.managerState(); {
	case st == managerStopped:
		tr.state = StateStopped
	case st >= managerStopping:
		tr.state = StateStopping
	case tr.running > 0:
		tr.state = StateRunning
	default:
		tr.state = StateIdle
	}
}

// run executes one claimed run.
func (tr *taskRuntime) run(ctx context.Context, scheduledAt clock.Tick) {
	startedAt := time.Now()
	tr.mu.Lock()
	tr.runCount++
	tr.lastStarted = startedAt
	tr.mu.Unlock()

	tr.callOnRunStart(ctx, RunStartInfo{
		Name:        tr.name,
		Tags:        safego.CloneTags(tr.tags),
		Priority:    tr.priority,
		ScheduledAt: scheduledAt,
		StartedAt:   startedAt,
	})

	var (
		rawErr     error
		filteredCC bool
		panicked   bool
	)
	defer func() {
		if p := recover(); p != nil {
			panicked = true
			tr.reportPanic(ctx, p)
		}
		finishedAt := time.Now()
		dur := finishedAt.Sub(startedAt)

		tr.mu.Lock()
		if tr.running > 0 {
			tr.running--
		}
		tr.lastFinished = finishedAt
		tr.lastDuration = dur

		switch {
		case panicked:
			tr.failCount++
			tr.lastError = "panic"
		case rawErr != nil && !filteredCC:
			tr.failCount++
			tr.lastError = rawErr.Error()
		case rawErr == nil:
			tr.successCount++
			tr.lastSuccess = finishedAt
		default:
			tr.canceledCount++
		}
		tr.settleStateLocked()
		tr.mu.Unlock()

		info := RunFinishInfo{
			Name:        tr.name,
			Tags:        safego.CloneTags(tr.tags),
			Priority:    tr.priority,
			ScheduledAt: scheduledAt,
			StartedAt:   startedAt,
			FinishedAt:  finishedAt,
			Duration:    dur,
			Panicked:    panicked,
		}
		if rawErr != nil && !filteredCC {
			info.Err = rawErr.Error()
		}
		tr.callOnRunFinish(ctx, info)
	}()

	rawErr = tr.fn(ctx)
	if rawErr == nil {
		return
	}
	if tr.shouldReportError(rawErr) {
		tr.reportError(ctx, rawErr)
		return
	}
	filteredCC = true
}

func (tr *taskRuntime) shouldReportError(err error) bool {
	if tr.reportContextCancel {
		return true
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (tr *taskRuntime) reportError(ctx context.Context, err error) {
	info := safego.ErrorInfo{
		Name: tr.name,
		Tags: safego.CloneTags(tr.tags),
		Err:  err,
	}
	if tr.onError == nil {
		safego.LogError(ctx, tr.m.cfg.logger, "task", info)
		return
	}
	defer func() {
		if p := recover(); p != nil {
			tr.logPanic(ctx, fmt.Sprintf("task: error handler panicked: %v", p))
		}
	}()
	tr.onError(ctx, info)
}

func (tr *taskRuntime) reportPanic(ctx context.Context, p any) {
	info := safego.PanicInfo{
		Name:  tr.name,
		Tags:  safego.CloneTags(tr.tags),
		Value: p,
		Stack: debug.Stack(),
	}
	if tr.onPanic == nil {
		safego.LogPanic(ctx, tr.m.cfg.logger, "task", info)
		return
	}
	defer func() {
		if p := recover(); p != nil {
			tr.logPanic(ctx, fmt.Sprintf("task: panic handler panicked: %v", p))
		}
	}()
	tr.onPanic(ctx, info)
}

func (tr *taskRuntime) logPanic(ctx context.Context, v any) {
	safego.LogPanic(ctx, tr.m.cfg.logger, "task", safego.PanicInfo{
		Name:  tr.name,
		Tags:  safego.CloneTags(tr.tags),
		Value: v,
		Stack: debug.Stack(),
	})
}

func (tr *taskRuntime) callOnRunStart(ctx context.Context, info RunStartInfo) {
	callHookNoPanic(ctx, tr, tr.onRunStartGlobal, info)
	callHookNoPanic(ctx, tr, tr.onRunStartLocal, info)
}

func (tr *taskRuntime) callOnRunFinish(ctx context.Context, info RunFinishInfo) {
	callHookNoPanic(ctx, tr, tr.onRunFinishGlobal, info)
	callHookNoPanic(ctx, tr, tr.onRunFinishLocal, info)
}

func callHookNoPanic[T any](ctx context.Context, tr *taskRuntime, h func(T), info T) {
	if h == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			tr.logPanic(ctx, fmt.Sprintf("task: hook panicked: %v", p))
		}
	}()
	h(info)
}
