package zwatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/evan-idocoding/zwatch/admin"
	"github.com/evan-idocoding/zwatch/clock"
	"github.com/evan-idocoding/zwatch/config"
	"github.com/evan-idocoding/zwatch/console"
	"github.com/evan-idocoding/zwatch/controller"
	"github.com/evan-idocoding/zwatch/rt/task"
	"github.com/evan-idocoding/zwatch/rt/tuning"
	"github.com/evan-idocoding/zwatch/rt/tuning/tuningslog"
	"github.com/evan-idocoding/zwatch/stopwatch"
)

var (
	// ErrAlreadyStarted indicates Start/Run was called more than once.
	ErrAlreadyStarted = errors.New("zwatch: service already started")
	// ErrNotStarted indicates Wait was called before Start.
	ErrNotStarted = errors.New("zwatch: service not started")
)

// Tuning keys registered by NewService. Task periods are registered as
// "tasks.<accumulate|input|display>.period".
const (
	KeyLogLevel         = "log.level"
	KeyDisplayPrecision = "display.precision"
)

// OpsPrefix is where the ops subtree is mounted on the ops server.
const OpsPrefix = "/-/"

// Service is an assembled stopwatch: state, the three periodic tasks, console endpoints and
// the optional ops server.
type Service struct {
	Config *config.Config
	Logger *slog.Logger

	Clock      clock.Clock
	State      *stopwatch.State
	Controller *controller.Controller
	Tasks      *task.Manager
	Handles    controller.Handles
	Input      *console.LineReader

	Tuning      *tuning.Tuning
	LogLevel    *tuning.EnumVar
	LogLevelVar *slog.LevelVar
	Precision   *tuning.Int64Var
	Periods     map[string]*tuning.DurationVar // by task name

	// OpsHandler serves the ops subtree under OpsPrefix. It is assembled even when the ops
	// server is disabled. OpsServer is nil when ops.addr is empty.
	OpsHandler http.Handler
	OpsServer  *http.Server

	// --- internals ---

	hooks           Hooks
	signals         SignalSpec
	shutdownTimeout time.Duration

	port       console.Port
	stopReader context.CancelFunc

	mu        sync.Mutex
	started   bool
	startCtx  context.Context
	startStop context.CancelFunc
	stopping  bool
	listener  net.Listener

	primaryErr error

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	shutdownErr  error

	doneCh  chan struct{}
	waitErr error
}

// Hooks integrate caller resources into the service lifecycle.
type Hooks struct {
	// OnStart runs before the tasks start. Any error fails Start/Run.
	OnStart []func(context.Context) error

	// OnShutdown runs after the tasks have stopped. Errors are aggregated.
	OnShutdown []func(context.Context) error

	// OnServeError is called when the ops server exits unexpectedly. The stopwatch keeps
	// running.
	OnServeError func(err error)
}

type SignalSpec struct {
	// Disable disables signal handling in Run().
	Disable bool

	// Signals declares which signals Run() listens to. Empty means SIGINT, SIGTERM and SIGHUP
	// on Unix, os.Interrupt elsewhere.
	Signals []os.Signal
}

// Option configures NewService.
type Option func(*options)

type options struct {
	logOutput  io.Writer
	stdin      io.Reader
	stdout     io.Writer
	clock      clock.Clock
	openSerial func(console.SerialConfig) (console.Port, error)
	hooks      Hooks
	signals    SignalSpec
}

// WithLogOutput sets where log records go. Default is os.Stderr.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

// WithStdin replaces os.Stdin as the console input.
func WithStdin(r io.Reader) Option {
	return func(o *options) { o.stdin = r }
}

// WithStdout replaces os.Stdout as the console output.
func WithStdout(w io.Writer) Option {
	return func(o *options) { o.stdout = w }
}

// WithClock replaces the monotonic clock built from clock.resolution.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithSerialOpener replaces console.OpenSerial.
func WithSerialOpener(fn func(console.SerialConfig) (console.Port, error)) Option {
	return func(o *options) { o.openSerial = fn }
}

func WithHooks(h Hooks) Option {
	return func(o *options) { o.hooks = h }
}

func WithSignals(s SignalSpec) Option {
	return func(o *options) { o.signals = s }
}

// NewService assembles a Service from cfg. A nil cfg means config.Default().
//
// Configuration errors and a serial port that cannot be opened are returned. Nothing runs
// until Start, except the console reader, which starts buffering input right away.
func NewService(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{
		logOutput:  os.Stderr,
		stdin:      os.Stdin,
		stdout:     os.Stdout,
		openSerial: console.OpenSerial,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	s := &Service{
		Config:          cfg,
		hooks:           o.hooks,
		signals:         o.signals,
		shutdownTimeout: cfg.ShutdownTimeout,
		shutdownCh:      make(chan struct{}),
		doneCh:          make(chan struct{}),
	}

	// ---- logging & tuning ----

	level, _ := tuningslog.ParseLevel(cfg.Log.Level)
	s.Tuning = tuning.New()
	ev, lv, err := tuningslog.LevelVar(s.Tuning, KeyLogLevel, level)
	if err != nil {
		return nil, fmt.Errorf("zwatch: %w", err)
	}
	s.LogLevel, s.LogLevelVar = ev, lv
	s.Logger = newLogger(o.logOutput, cfg.Log.Format, lv)

	s.Precision, err = s.Tuning.Int64(KeyDisplayPrecision, int64(cfg.Output.Precision),
		tuning.WithMin[int64](0), tuning.WithMax[int64](9))
	if err != nil {
		return nil, fmt.Errorf("zwatch: %w", err)
	}

	// ---- clock & scheduler ----

	s.Clock = o.clock
	if s.Clock == nil {
		s.Clock = clock.NewMonotonic(cfg.Clock.Resolution)
	}
	dispatch, _ := task.ParseDispatchMode(cfg.Tasks.Dispatch)
	s.Tasks = task.NewManager(
		task.WithClock(s.Clock),
		task.WithDispatch(dispatch),
		task.WithLogger(s.Logger),
	)

	// ---- console ----

	in, out := o.stdin, o.stdout
	if cfg.UsesSerial() {
		port, err := o.openSerial(cfg.SerialPort())
		if err != nil {
			return nil, fmt.Errorf("zwatch: %w", err)
		}
		s.port = port
		if cfg.Input.Source == config.EndpointSerial {
			in = port
		}
		if cfg.Output.Sink == config.EndpointSerial {
			out = port
		}
	}
	readerCtx, stopReader := context.WithCancel(context.Background())
	s.stopReader = stopReader
	s.Input = console.NewLineReader(readerCtx, in,
		console.WithMaxLine(cfg.Input.MaxLine),
		console.WithQueueSize(cfg.Input.QueueSize),
		console.WithLogger(s.Logger),
	)

	// From here on, failures release the console.
	fail := func(err error) (*Service, error) {
		s.releaseConsole()
		return nil, fmt.Errorf("zwatch: %w", err)
	}

	// ---- stopwatch ----

	s.State = stopwatch.New()
	s.Controller = controller.New(s.State, s.Clock, s.Input, console.NewWriterSink(out),
		controller.WithLogger(s.Logger),
		controller.WithPrecision(func() int { return int(s.Precision.Get()) }),
	)
	s.Handles, err = s.Controller.Register(s.Tasks, cfg.Plan())
	if err != nil {
		return fail(err)
	}
	if err := s.registerPeriods(); err != nil {
		return fail(err)
	}

	// ---- ops ----

	s.OpsHandler = mountPrefix(OpsPrefix, NewOpsHandler(OpsSpec{
		Logger:      s.Logger,
		ReadGuard:   admin.AllowAll(),
		WriteGuard:  admin.Tokens(cfg.Ops.Token),
		State:       s.State,
		Clock:       s.Clock,
		Tasks:       s.Tasks,
		Tuning:      s.Tuning,
		LogLevel:    s.LogLevel,
		LogLevelVar: s.LogLevelVar,
		ReadyChecks: s.readyChecks(),
		TaskPeriodAllow: []string{
			controller.TaskAccumulate,
			controller.TaskInput,
			controller.TaskDisplay,
		},
	}), http.NotFoundHandler())
	if cfg.Ops.Addr != "" {
		s.OpsServer = newHTTPServerWithDefaults(cfg.Ops.Addr, s.OpsHandler)
	}
	return s, nil
}

// registerPeriods binds one tuning duration per task. Setting it reschedules the task.
func (s *Service) registerPeriods() error {
	s.Periods = make(map[string]*tuning.DurationVar, 3)
	for _, p := range []struct {
		key string
		h   task.Handle
		def time.Duration
	}{
		{"tasks.accumulate.period", s.Handles.Accumulate, s.Config.Tasks.Accumulate.Period},
		{"tasks.input.period", s.Handles.Input, s.Config.Tasks.Input.Period},
		{"tasks.display.period", s.Handles.Display, s.Config.Tasks.Display.Period},
	} {
		h := p.h
		v, err := s.Tuning.Duration(p.key, p.def,
			tuning.WithMin(config.MinTaskPeriod),
			tuning.WithMax(config.MaxTaskPeriod),
			tuning.WithOnChange(func(d time.Duration) {
				if err := h.SetPeriod(d); err != nil {
					s.Logger.Warn("zwatch: apply task period", "task", h.Name(), "period", d, "err", err)
					return
				}
				s.Logger.Info("zwatch: task period changed", "task", h.Name(), "period", d)
			}),
		)
		if err != nil {
			return err
		}
		s.Periods[h.Name()] = v
	}
	return nil
}

// Run is equivalent to Start → wait for exit condition → Shutdown → return.
//
// Exit conditions: ctx done, a signal, a failed start, or the end of input when
// input.exit_on_eof is set. It is NOT idempotent.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.Start(ctx); err != nil {
		return err
	}

	sigCh, stopSignals := s.runSignalWatcher()
	defer stopSignals()

	select {
	case <-s.doneCh:
		return s.Wait()
	case <-ctx.Done():
		s.recordPrimary(ctx.Err())
		_ = s.Shutdown(context.Background())
		return s.Wait()
	case sig := <-sigCh:
		s.Logger.Info("zwatch: signal received, shutting down", "signal", sig.String())
		_ = s.Shutdown(context.Background())
		return s.Wait()
	}
}

// Start runs the OnStart hooks, starts the tasks and then the ops server. It is NOT idempotent.
func (s *Service) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.startCtx, s.startStop = context.WithCancel(ctx)
	s.mu.Unlock()

	for i, h := range s.hooks.OnStart {
		if h == nil {
			continue
		}
		if err := safeCallHook(s.startCtx, h); err != nil {
			err = fmt.Errorf("zwatch: OnStart[%d]: %w", i, err)
			s.recordPrimary(err)
			s.initiateShutdown()
			return err
		}
	}

	if err := s.Tasks.Start(s.startCtx); err != nil {
		s.recordPrimary(err)
		s.initiateShutdown()
		return err
	}

	if s.OpsServer != nil {
		if err := s.startOpsServer(); err != nil {
			s.recordPrimary(err)
			s.initiateShutdown()
			return err
		}
	}

	if s.Config.Input.ExitOnEOF {
		go s.watchInput(s.startCtx)
	}
	s.Logger.Info("zwatch: started",
		"input", s.Config.Input.Source,
		"output", s.Config.Output.Sink,
		"ops", s.OpsAddr(),
	)
	return nil
}

// Wait waits until the service fully stops.
//
// It is idempotent. If Start was never called, it returns ErrNotStarted.
func (s *Service) Wait() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	ch := s.doneCh
	s.mu.Unlock()

	<-ch

	s.mu.Lock()
	err := s.waitErr
	s.mu.Unlock()
	return err
}

// Shutdown triggers shutdown and waits for it. It is idempotent.
//
// If Start was never called, Shutdown releases the console and returns nil.
func (s *Service) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		s.releaseConsole()
		return nil
	}
	shutdownCh := s.shutdownCh
	s.mu.Unlock()

	s.initiateShutdown()

	select {
	case <-shutdownCh:
		s.mu.Lock()
		err := s.shutdownErr
		s.mu.Unlock()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OpsAddr returns the bound ops server address, or "" when it is not listening.
func (s *Service) OpsAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Service) startOpsServer() error {
	addr := s.OpsServer.Addr
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("zwatch: ops listen %q: %w", addr, err)
	}

	// Record the listener first, so shutdown can close it even if it begins before Serve
	// starts tracking listeners.
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	srv := s.OpsServer
	go func() {
		s.onServeExit(srv.Serve(ln))
	}()
	return nil
}

func (s *Service) onServeExit(err error) {
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return
	}
	s.mu.Lock()
	stopping := s.stopping
	s.mu.Unlock()
	if stopping {
		return
	}
	s.Logger.Error("zwatch: ops server exited", "err", err)
	if s.hooks.OnServeError != nil {
		s.hooks.OnServeError(err)
	}
}

// watchInput shuts the service down once the input stream has ended and its last lines have
// been handled and displayed.
func (s *Service) watchInput(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-s.Input.Done():
	}
	if s.Input.Failed() {
		s.recordPrimary(fmt.Errorf("zwatch: input: %w", s.Input.Err()))
		s.initiateShutdown()
		return
	}
	for s.Input.Pending() > 0 {
		if err := s.sleep(ctx, s.Handles.Input.Period()); err != nil {
			return
		}
	}
	// The last line taken may still be in flight; give it one input and one display period.
	if err := s.sleep(ctx, s.Handles.Input.Period()+s.Handles.Display.Period()); err != nil {
		return
	}
	s.Logger.Info("zwatch: input ended, shutting down")
	s.initiateShutdown()
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	return clock.SleepUntil(ctx, s.Clock, s.Clock.Now().Add(clock.TicksFor(s.Clock, d)))
}

func (s *Service) recordPrimary(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	if s.primaryErr == nil {
		s.primaryErr = err
	}
	s.mu.Unlock()
}

func (s *Service) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		go s.doShutdown()
	})
}

func (s *Service) doShutdown() {
	s.mu.Lock()
	stop := s.startStop
	s.stopping = true
	ln := s.listener
	s.mu.Unlock()
	if stop != nil {
		stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	var errs []error

	// 1) ops server, only if it bound.
	if ln != nil {
		if err := s.OpsServer.Shutdown(ctx); err != nil {
			_ = s.OpsServer.Close()
			errs = append(errs, fmt.Errorf("ops server shutdown: %w", err))
		}
		_ = ln.Close()
	}

	// 2) tasks
	if err := s.Tasks.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tasks shutdown: %w", err))
	}

	// 3) OnShutdown hooks (sequential; best-effort run all)
	for i, h := range s.hooks.OnShutdown {
		if h == nil {
			continue
		}
		if err := safeCallHook(ctx, h); err != nil {
			errs = append(errs, fmt.Errorf("OnShutdown[%d]: %w", i, err))
		}
	}

	// 4) console, after the last display.
	if err := s.releaseConsole(); err != nil {
		errs = append(errs, fmt.Errorf("serial close: %w", err))
	}

	shutdownErr := errors.Join(errs...)

	s.mu.Lock()
	s.shutdownErr = shutdownErr
	primary := s.primaryErr
	s.waitErr = errors.Join(primary, shutdownErr)
	s.mu.Unlock()

	snap := s.State.Snapshot()
	s.Logger.Info("zwatch: stopped",
		"mode", snap.Mode.String(),
		"seconds", clock.Seconds(s.Clock, snap.Accumulated),
	)

	close(s.shutdownCh)
	close(s.doneCh)
}

// releaseConsole stops handing input to the controller and closes the serial port. os.Stdin
// is left open; its reader goroutine ends with the process.
func (s *Service) releaseConsole() error {
	if s.stopReader != nil {
		s.stopReader()
	}
	s.mu.Lock()
	port := s.port
	s.port = nil
	s.mu.Unlock()
	if port == nil {
		return nil
	}
	return port.Close()
}

func (s *Service) runSignalWatcher() (<-chan os.Signal, func()) {
	if s.signals.Disable {
		return nil, func() {}
	}
	sigs := s.signals.Signals
	if len(sigs) == 0 {
		sigs = defaultSignals()
	}
	if len(sigs) == 0 {
		return nil, func() {}
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	return ch, func() { signal.Stop(ch) }
}

func newLogger(w io.Writer, format string, level slog.Leveler) *slog.Logger {
	hopts := &slog.HandlerOptions{Level: level}
	if format == config.FormatJSON {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

func safeCallHook(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx)
}
