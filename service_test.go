package zwatch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/evan-idocoding/zwatch/clock"
	"github.com/evan-idocoding/zwatch/config"
	"github.com/evan-idocoding/zwatch/console"
	"github.com/evan-idocoding/zwatch/controller"
	"github.com/evan-idocoding/zwatch/stopwatch"
)

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *syncBuffer) lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Split(strings.TrimSuffix(b.b.String(), "\n"), "\n")
}

type fakePort struct {
	io.Reader
	out    syncBuffer
	mu     sync.Mutex
	closed bool
}

func (p *fakePort) Write(b []byte) (int, error) { return p.out.Write(b) }
func (p *fakePort) Flush() error                { return nil }
func (p *fakePort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *fakePort) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// newTestService builds a Service on a manual clock with quiet logs, no signal handling and
// the given input. The input reader has drained in before it returns.
func newTestService(t *testing.T, cfg *config.Config, in string, opts ...Option) (*Service, *clock.Manual, *syncBuffer) {
	t.Helper()
	clk := clock.NewManual(time.Millisecond)
	out := &syncBuffer{}
	base := []Option{
		WithLogOutput(io.Discard),
		WithSignals(SignalSpec{Disable: true}),
		WithStdin(strings.NewReader(in)),
		WithStdout(out),
		WithClock(clk),
	}
	s, err := NewService(cfg, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	<-s.Input.Done()
	return s, clk, out
}

func startService(t *testing.T, s *Service) {
	t.Helper()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Tasks.Dispatch()
}

func step(s *Service, clk *clock.Manual, n int) {
	for i := 0; i < n; i++ {
		clk.Advance(100)
		s.Tasks.Dispatch()
	}
}

func TestService_WaitBeforeStart_ErrNotStarted(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestService(t, nil, "")
	if err := s.Wait(); err != ErrNotStarted {
		t.Fatalf("err=%v, want %v", err, ErrNotStarted)
	}
}

func TestService_ShutdownBeforeStart_OK(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestService(t, nil, "")
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("err=%v, want nil", err)
	}
}

func TestService_StartShutdownWait_OK(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestService(t, nil, "")
	startService(t, s)
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown err=%v", err)
	}
	if err := s.Wait(); err != nil {
		t.Fatalf("Wait err=%v", err)
	}
	if err := s.Start(context.Background()); err != ErrAlreadyStarted {
		t.Fatalf("Start(again) err=%v, want %v", err, ErrAlreadyStarted)
	}
	if s.Tasks.Running() {
		t.Fatalf("scheduler still running after Shutdown")
	}
}

func TestNewService_InvalidConfig(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Output.Precision = 12
	if _, err := NewService(cfg, WithLogOutput(io.Discard)); !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("err=%v, want %v", err, config.ErrInvalid)
	}
}

func TestService_RunsTheStopwatch(t *testing.T) {
	t.Parallel()
	s, clk, out := newTestService(t, nil, "r\n")
	startService(t, s)
	step(s, clk, 3)

	want := []string{"0.000000", "0.100000", "0.200000", "0.300000"}
	if got := out.lines(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("output=%v, want %v", got, want)
	}
	if got := s.State.Snapshot().Mode; got != stopwatch.Running {
		t.Fatalf("mode=%v, want %v", got, stopwatch.Running)
	}
}

func TestService_StartHookErrorFailsStart(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	s, _, _ := newTestService(t, nil, "", WithHooks(Hooks{
		OnStart: []func(context.Context) error{func(context.Context) error { return boom }},
	}))
	if err := s.Start(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Start err=%v, want %v", err, boom)
	}
	if err := s.Wait(); !errors.Is(err, boom) {
		t.Fatalf("Wait err=%v, want %v", err, boom)
	}
}

func TestService_ShutdownHooksRun(t *testing.T) {
	t.Parallel()
	var ran bool
	s, _, _ := newTestService(t, nil, "", WithHooks(Hooks{
		OnShutdown: []func(context.Context) error{
			func(context.Context) error { ran = true; return nil },
			func(context.Context) error { panic("bad hook") },
		},
	}))
	startService(t, s)
	err := s.Shutdown(context.Background())
	if err == nil || !strings.Contains(err.Error(), "OnShutdown[1]: panic: bad hook") {
		t.Fatalf("err=%v, want OnShutdown[1] panic", err)
	}
	if !ran {
		t.Fatalf("first OnShutdown hook did not run")
	}
}

func TestService_TuningPrecisionAppliesToDisplay(t *testing.T) {
	t.Parallel()
	s, clk, out := newTestService(t, nil, "r\n")
	startService(t, s)
	if err := s.Tuning.SetFromString(KeyDisplayPrecision, "2"); err != nil {
		t.Fatalf("set precision: %v", err)
	}
	step(s, clk, 1)
	if got := out.lines(); got[len(got)-1] != "0.10" {
		t.Fatalf("last line=%q, want %q", got[len(got)-1], "0.10")
	}
	if err := s.Tuning.SetFromString(KeyDisplayPrecision, "10"); err == nil {
		t.Fatalf("precision 10 accepted")
	}
}

func TestService_TuningPeriodReschedules(t *testing.T) {
	t.Parallel()
	s, clk, out := newTestService(t, nil, "")
	startService(t, s)
	if err := s.Tuning.SetFromString("tasks.display.period", "250ms"); err != nil {
		t.Fatalf("set period: %v", err)
	}
	if got := s.Handles.Display.Period(); got != 250*time.Millisecond {
		t.Fatalf("display period=%v, want 250ms", got)
	}
	if got := s.Periods[controller.TaskDisplay].Get(); got != 250*time.Millisecond {
		t.Fatalf("tuned period=%v, want 250ms", got)
	}
	before := len(out.lines())
	step(s, clk, 2) // 200ms: not yet due
	if got := len(out.lines()); got != before {
		t.Fatalf("lines=%d, want %d", got, before)
	}
	step(s, clk, 1)
	if got := len(out.lines()); got != before+1 {
		t.Fatalf("lines=%d, want %d", got, before+1)
	}
	if err := s.Tuning.SetFromString("tasks.input.period", "2h"); err == nil {
		t.Fatalf("period above the maximum accepted")
	}
}

func TestService_SerialConsole(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Input.Source = config.EndpointSerial
	cfg.Output.Sink = config.EndpointSerial
	cfg.Serial.Device = "/dev/ttyTEST"

	port := &fakePort{Reader: strings.NewReader("r\n")}
	var opened console.SerialConfig
	stdout := &syncBuffer{}
	s, clk, _ := newTestService(t, cfg, "c\n",
		WithStdout(stdout),
		WithSerialOpener(func(c console.SerialConfig) (console.Port, error) {
			opened = c
			return port, nil
		}),
	)
	if opened.Device != "/dev/ttyTEST" || opened.Baud != cfg.Serial.Baud {
		t.Fatalf("opened=%+v, want device /dev/ttyTEST baud %d", opened, cfg.Serial.Baud)
	}
	startService(t, s)
	step(s, clk, 1)

	want := []string{"0.000000", "0.100000"}
	if got := port.out.lines(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("port output=%v, want %v", got, want)
	}
	if got := stdout.lines(); len(got) != 1 || got[0] != "" {
		t.Fatalf("stdout=%v, want nothing", got)
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !port.isClosed() {
		t.Fatalf("serial port not closed on shutdown")
	}
}

func TestNewService_SerialOpenError(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Input.Source = config.EndpointSerial
	cfg.Serial.Device = "/dev/missing"
	noPort := errors.New("no such port")
	_, err := NewService(cfg,
		WithLogOutput(io.Discard),
		WithSerialOpener(func(console.SerialConfig) (console.Port, error) { return nil, noPort }),
	)
	if !errors.Is(err, noPort) {
		t.Fatalf("err=%v, want %v", err, noPort)
	}
}

func TestService_ExitOnEOF(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Input.ExitOnEOF = true
	cfg.Tasks.Accumulate.Period = 10 * time.Millisecond
	cfg.Tasks.Input.Period = 10 * time.Millisecond
	cfg.Tasks.Display.Period = 10 * time.Millisecond

	out := &syncBuffer{}
	s, err := NewService(cfg,
		WithLogOutput(io.Discard),
		WithSignals(SignalSpec{Disable: true}),
		WithStdin(strings.NewReader("r\n")),
		WithStdout(out),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run err=%v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		_ = s.Shutdown(context.Background())
		t.Fatalf("Run did not return after end of input")
	}

	if got := s.State.Snapshot().Mode; got != stopwatch.Running {
		t.Fatalf("mode=%v, want %v", got, stopwatch.Running)
	}
	lines := out.lines()
	prev := -1.0
	for _, l := range lines {
		v, err := strconv.ParseFloat(l, 64)
		if err != nil {
			t.Fatalf("line %q: %v", l, err)
		}
		if v < prev {
			t.Fatalf("output went backwards: %v", lines)
		}
		prev = v
	}
	if len(lines) < 2 {
		t.Fatalf("lines=%v, want at least two", lines)
	}
}

func TestService_RunStopsOnContextCancel(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestService(t, nil, "")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run err=%v, want %v", err, context.Canceled)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

func do(h http.Handler, method, target string, hdr ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "http://zwatch.test"+target, nil)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	return rw
}

func TestService_OpsHandler(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Ops.Token = "secret"
	s, clk, out := newTestService(t, cfg, "")
	h := s.OpsHandler
	auth := []string{"Authorization", "Bearer secret"}

	if rw := do(h, http.MethodGet, "/-/readyz"); rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz before start status=%d, want 503", rw.Code)
	}
	startService(t, s)
	if rw := do(h, http.MethodGet, "/-/readyz"); rw.Code != http.StatusOK {
		t.Fatalf("readyz status=%d, want 200, body=%s", rw.Code, rw.Body.String())
	}

	if rw := do(h, http.MethodPost, "/-/stopwatch/command?cmd=r"); rw.Code != http.StatusForbidden {
		t.Fatalf("command without token status=%d, want 403", rw.Code)
	}
	if rw := do(h, http.MethodPost, "/-/stopwatch/command?cmd=r", auth...); rw.Code != http.StatusOK {
		t.Fatalf("command status=%d, want 200, body=%s", rw.Code, rw.Body.String())
	}
	step(s, clk, 1)
	if got := out.lines(); got[len(got)-1] != "0.100000" {
		t.Fatalf("last line=%q, want 0.100000", got[len(got)-1])
	}

	rw := do(h, http.MethodGet, "/-/stopwatch")
	if rw.Code != http.StatusOK || !strings.Contains(rw.Body.String(), "stopwatch\tmode\trunning\n") {
		t.Fatalf("stopwatch status=%d body=%q", rw.Code, rw.Body.String())
	}

	rw = do(h, http.MethodPost, "/-/tuning/set?key=tasks.display.period&value=200ms", auth...)
	if rw.Code != http.StatusOK {
		t.Fatalf("tuning set status=%d, body=%s", rw.Code, rw.Body.String())
	}
	if got := s.Handles.Display.Period(); got != 200*time.Millisecond {
		t.Fatalf("display period=%v, want 200ms", got)
	}

	rw = do(h, http.MethodPost, "/-/log/level/set?level=debug", auth...)
	if rw.Code != http.StatusOK || s.LogLevel.Get() != "debug" {
		t.Fatalf("log level set status=%d level=%q", rw.Code, s.LogLevel.Get())
	}

	rw = do(h, http.MethodGet, "/-/tasks")
	if rw.Code != http.StatusOK || !strings.Contains(rw.Body.String(), "task.stopwatch.display\tperiod\t200ms\n") {
		t.Fatalf("tasks status=%d body=%q", rw.Code, rw.Body.String())
	}

	if rw := do(h, http.MethodGet, "/-"); rw.Code != http.StatusTemporaryRedirect || rw.Header().Get("Location") != "/-/" {
		t.Fatalf("base status=%d location=%q, want 307 to /-/", rw.Code, rw.Header().Get("Location"))
	}
	if rw := do(h, http.MethodGet, "/elsewhere"); rw.Code != http.StatusNotFound {
		t.Fatalf("outside prefix status=%d, want 404", rw.Code)
	}
}

func TestService_OpsWritesDeniedWithoutToken(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestService(t, nil, "")
	for _, target := range []string{
		"/-/stopwatch/command?cmd=c",
		"/-/tuning/set?key=display.precision&value=1",
		"/-/log/level/set?level=error",
		"/-/tasks/period?name=stopwatch.display&period=1s",
	} {
		rw := do(s.OpsHandler, http.MethodPost, target, "Authorization", "Bearer ")
		if rw.Code != http.StatusForbidden {
			t.Fatalf("%s status=%d, want 403", target, rw.Code)
		}
	}
}

func TestService_OpsServerListens(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Ops.Addr = "127.0.0.1:0"
	s, _, _ := newTestService(t, cfg, "")
	if s.OpsServer == nil {
		t.Fatalf("OpsServer=nil with ops.addr set")
	}
	startService(t, s)
	addr := s.OpsAddr()
	if addr == "" {
		t.Fatalf("OpsAddr empty after Start")
	}

	c := &http.Client{Timeout: 2 * time.Second}
	resp, err := c.Get("http://" + addr + "/-/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok\n" {
		t.Fatalf("healthz status=%d body=%q", resp.StatusCode, body)
	}

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, err := c.Get("http://" + addr + "/-/healthz"); err == nil {
		t.Fatalf("ops server still serving after Shutdown")
	}
}

func TestMountPrefix_InvalidPanics(t *testing.T) {
	t.Parallel()
	for _, p := range []string{"", "/", "x/", "/a b/", "/a//b/"} {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("prefix %q: expected panic", p)
				}
			}()
			mountPrefix(p, http.NotFoundHandler(), http.NotFoundHandler())
		}()
	}
}
