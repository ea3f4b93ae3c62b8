package task

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/evan-idocoding/zwatch/clock"
)

type managerState int32

const (
	managerNotStarted managerState = iota
	managerRunning
	managerStopping
	managerStopped
)

// Manager schedules periodic tasks on a clock.Clock and coordinates their lifecycles.
//
// It is safe for concurrent use. The zero value is not usable; use NewManager.
type Manager struct {
	state atomic.Int32 // managerState

	cfg managerConfig

	mu    sync.Mutex
	tasks []*taskRuntime // registration order
	names map[string]Handle

	startMu sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc

	dispatchMu sync.Mutex
	kick       chan struct{}

	wg sync.WaitGroup // dispatcher loop + concurrent runs
}

// NewManager creates a new Manager.
func NewManager(opts ...ManagerOption) *Manager {
	var cfg managerConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.clock == nil {
		cfg.clock = clock.NewMonotonic(0)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return &Manager{
		cfg:   cfg,
		names: make(map[string]Handle),
		kick:  make(chan struct{}, 1),
	}
}

// Clock returns the clock driving this manager.
func (m *Manager) Clock() clock.Clock { return m.cfg.clock }

// Add registers a task and returns its handle.
//
// It can be called before or after Start. A task added before Start gets its first boundary
// at the Start tick; after Start, at the Add tick (plus one period unless WithStartImmediately).
// If called during/after Shutdown, it returns ErrClosed.
func (m *Manager) Add(t Task, opts ...Option) (Handle, error) {
	if t == nil {
		panic("task: Add called with nil Task")
	}
	def := t.every()
	if def.fn == nil {
		panic("task: task Func is nil")
	}

	c := taskConfigFrom(m, opts)
	c.name = normalizeName(c.name)
	if err := validateName(c.name); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidName, c.name, err)
	}
	ticks := clock.TicksFor(m.cfg.clock, def.period)
	if ticks == 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPeriod, def.period)
	}

	m.startMu.RLock()
	st := managerState(m.state.Load())
	if st >= managerStopping {
		m.startMu.RUnlock()
		return nil, ErrClosed
	}

	tr := newTaskRuntime(m, def, ticks, c)

	m.mu.Lock()
	if c.name != "" {
		if _, exists := m.names[c.name]; exists {
			m.mu.Unlock()
			m.startMu.RUnlock()
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, c.name)
		}
		m.names[c.name] = tr
	}
	m.tasks = append(m.tasks, tr)
	m.mu.Unlock()

	if st == managerRunning {
		tr.activate(m.cfg.clock.Now())
	}
	m.startMu.RUnlock()

	if st == managerRunning {
		m.wake()
	}
	return tr, nil
}

// MustAdd is like Add but panics on error.
//
// It is intended for initialization-time wiring where an error indicates a programming/configuration
// mistake (for example, invalid name or duplicate name).
func (m *Manager) MustAdd(t Task, opts ...Option) Handle {
	h, err := m.Add(t, opts...)
	if err != nil {
		panic(err)
	}
	return h
}

// Start activates all tasks and starts the dispatcher loop.
//
// Start is not idempotent: calling it more than once returns ErrAlreadyStarted.
// If ctx is nil, it is treated as context.Background().
func (m *Manager) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	m.startMu.Lock()
	if managerState(m.state.Load()) != managerNotStarted {
		m.startMu.Unlock()
		return ErrAlreadyStarted
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	base := m.cfg.clock.Now()
	m.state.Store(int32(managerRunning))
	loopCtx := m.ctx

	m.mu.Lock()
	tasks := append([]*taskRuntime(nil), m.tasks...)
	m.mu.Unlock()
	for _, tr := range tasks {
		tr.activate(base)
	}
	m.wg.Add(1)
	m.startMu.Unlock()

	go func() {
		defer m.wg.Done()
		m.loop(loopCtx)
	}()
	return nil
}

// Shutdown stops dispatching, cancels task contexts, and waits for running tasks to finish.
//
// Shutdown is safe to call multiple times. It is also safe to call without a prior Start; in that case,
// it marks tasks as stopped for observability and returns nil.
//
// If ctx is nil, it is treated as context.Background().
func (m *Manager) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	m.startMu.Lock()
	switch managerState(m.state.Load()) {
	case managerNotStarted:
		m.state.Store(int32(managerStopped))
		m.startMu.Unlock()
		m.markAll(StateStopped)
		return nil
	case managerRunning:
		m.state.Store(int32(managerStopping))
		cancel := m.cancel
		m.startMu.Unlock()
		m.markAll(StateStopping)
		if cancel != nil {
			cancel()
		}
	case managerStopping:
		// A previous Shutdown timed out. Wait again with the new ctx.
		m.startMu.Unlock()
	default:
		m.startMu.Unlock()
		return nil
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.state.Store(int32(managerStopped))
		m.markAll(StateStopped)
		return nil
	case <-ctx.Done():
		// Keep state as stopping; caller can call Wait or Shutdown again.
		return ctx.Err()
	}
}

// Wait waits until the dispatcher loop and all concurrent runs have exited.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Dispatch runs every task whose boundary has been reached at the current clock tick and
// returns the number of runs started.
//
// Due tasks run in priority order (higher first, ties in registration order). Each task's
// next boundary advances by whole periods past now; skipped boundaries count as Missed.
// In DispatchSerial mode the runs have finished when Dispatch returns.
//
// The dispatcher loop calls Dispatch on every wake-up. Callers driving a clock.Manual may call
// it directly; concurrent calls are serialized. Before Start and after Shutdown it returns 0.
func (m *Manager) Dispatch() int {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	m.startMu.RLock()
	if managerState(m.state.Load()) != managerRunning {
		m.startMu.RUnlock()
		return 0
	}
	ctx := m.ctx
	now := m.cfg.clock.Now()
	m.mu.Lock()
	tasks := append([]*taskRuntime(nil), m.tasks...)
	m.mu.Unlock()
	m.startMu.RUnlock()

	var due []dueRun
	for _, tr := range tasks {
		if at, ok := tr.claim(now, m.cfg.dispatch); ok {
			due = append(due, dueRun{tr: tr, at: at})
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].tr.priority > due[j].tr.priority
	})

	for i, d := range due {
		if m.cfg.dispatch == DispatchConcurrent {
			if !m.goRun(ctx, d) {
				releaseAll(due[i:])
				return i
			}
			continue
		}
		if ctx.Err() != nil {
			releaseAll(due[i:])
			return i
		}
		d.tr.run(ctx, d.at)
	}
	return len(due)
}

func releaseAll(runs []dueRun) {
	for _, d := range runs {
		d.tr.release()
	}
}

type dueRun struct {
	tr *taskRuntime
	at clock.Tick
}

func (m *Manager) goRun(ctx context.Context, d dueRun) bool {
	m.startMu.RLock()
	if managerState(m.state.Load()) != managerRunning {
		m.startMu.RUnlock()
		return false
	}
	m.wg.Add(1)
	m.startMu.RUnlock()
	go func() {
		defer m.wg.Done()
		d.tr.run(ctx, d.at)
	}()
	return true
}

func (m *Manager) loop(ctx context.Context) {
	for {
		m.Dispatch()

		var wake <-chan clock.Tick
		if next, ok := m.nextBoundary(); ok {
			wake = m.cfg.clock.After(next)
		}
		select {
		case <-ctx.Done():
			return
		case <-wake:
		case <-m.kick:
		}
	}
}

// nextBoundary returns the earliest pending boundary among active tasks.
func (m *Manager) nextBoundary() (clock.Tick, bool) {
	m.mu.Lock()
	tasks := append([]*taskRuntime(nil), m.tasks...)
	m.mu.Unlock()

	var (
		best  clock.Tick
		found bool
	)
	for _, tr := range tasks {
		next, ok := tr.pendingBoundary()
		if !ok {
			continue
		}
		if !found || next.Before(best) {
			best, found = next, true
		}
	}
	return best, found
}

// wake makes the dispatcher loop recompute its next boundary.
func (m *Manager) wake() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

func (m *Manager) markAll(state State) {
	m.mu.Lock()
	tasks := append([]*taskRuntime(nil), m.tasks...)
	m.mu.Unlock()
	for _, tr := range tasks {
		tr.setState(state)
	}
}

// Snapshot returns a point-in-time view of all tasks, in registration order.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	tasks := append([]*taskRuntime(nil), m.tasks...)
	m.mu.Unlock()

	out := make([]Status, 0, len(tasks))
	for _, tr := range tasks {
		out = append(out, tr.Status())
	}
	return Snapshot{Now: m.cfg.clock.Now(), Tasks: out}
}

// Running reports whether the manager has been started and not yet shut down.
func (m *Manager) Running() bool {
	return m.managerState() == managerRunning
}

// Lookup finds a task handle by name.
//
// Name is normalized by strings.TrimSpace. Empty names are not indexed and always return (nil, false).
func (m *Manager) Lookup(name string) (Handle, bool) {
	if m == nil {
		return nil, false
	}
	name = normalizeName(name)
	if name == "" {
		return nil, false
	}
	m.mu.Lock()
	h, ok := m.names[name]
	m.mu.Unlock()
	return h, ok
}

func (m *Manager) managerState() managerState {
	return managerState(m.state.Load())
}
