package ops

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/evan-idocoding/zwatch/clock"
	"github.com/evan-idocoding/zwatch/rt/task"
	"github.com/evan-idocoding/zwatch/rt/tuning"
	"github.com/evan-idocoding/zwatch/rt/tuning/tuningslog"
	"github.com/evan-idocoding/zwatch/stopwatch"
)

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	h := HealthzHandler()
	if rr := serve(h, http.MethodGet, "/"); rr.Code != http.StatusOK || rr.Body.String() != "ok\n" {
		t.Fatalf("GET code=%d body=%q", rr.Code, rr.Body.String())
	}
	if rr := serve(h, http.MethodHead, "/"); rr.Code != http.StatusOK || rr.Body.Len() != 0 {
		t.Fatalf("HEAD code=%d body=%q", rr.Code, rr.Body.String())
	}
	rr := serve(h, http.MethodPost, "/?format=json")
	if rr.Code != http.StatusMethodNotAllowed || rr.Header().Get("Allow") != "GET, HEAD" {
		t.Fatalf("POST code=%d allow=%q", rr.Code, rr.Header().Get("Allow"))
	}
	if resp := decode[errorResponse](t, rr); resp.OK || resp.Error != "method not allowed" {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	ok := ReadyCheck{Name: "ok", Func: func(context.Context) error { return nil }}
	bad := ReadyCheck{Name: "input", Func: func(context.Context) error { return errors.New("closed") }}
	slow := ReadyCheck{Name: "slow", Timeout: 10 * time.Millisecond, Func: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	boom := ReadyCheck{Name: "boom", Func: func(context.Context) error { panic("x") }}

	if rr := serve(ReadyzHandler([]ReadyCheck{ok}), http.MethodGet, "/"); rr.Code != http.StatusOK {
		t.Fatalf("code=%d, want 200", rr.Code)
	}

	rr := serve(ReadyzHandler([]ReadyCheck{ok, bad}), http.MethodGet, "/")
	if rr.Code != http.StatusServiceUnavailable || rr.Body.String() != "fail input: closed\n" {
		t.Fatalf("code=%d body=%q", rr.Code, rr.Body.String())
	}

	rep := RunReadyzChecks(context.Background(), []ReadyCheck{slow, boom})
	if rep.OK || !rep.Checks[0].TimedOut || rep.Checks[1].Error != "panic: x" {
		t.Fatalf("report=%+v", rep)
	}
}

func TestReadyz_PanicsOnBadCheck(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	ReadyzHandler([]ReadyCheck{{Name: "nil"}})
}

func TestStopwatchHandler(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(time.Millisecond)
	st := stopwatch.New()
	st.Apply(stopwatch.Run, 0)
	clk.Advance(1500)
	st.Accumulate(clk.Now())

	h := StopwatchHandler(st, clk)
	rr := serve(h, http.MethodGet, "/")
	body := rr.Body.String()
	for _, want := range []string{"stopwatch\tmode\trunning\n", "stopwatch\taccumulated_ticks\t1500\n", "stopwatch\tseconds\t1.5\n"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body=%q missing %q", body, want)
		}
	}

	resp := decode[stopwatchResponse](t, serve(h, http.MethodGet, "/?format=json"))
	if !resp.OK || resp.Stopwatch.Accumulated != 1500 || resp.Stopwatch.Now != 1500 || resp.Changed != nil {
		t.Fatalf("resp=%+v", resp)
	}
	if rr := serve(h, http.MethodPost, "/"); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST code=%d", rr.Code)
	}
}

func TestStopwatchCommandHandler(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(time.Millisecond)
	st := stopwatch.New()
	h := StopwatchCommandHandler(st, clk, slog.New(slog.DiscardHandler), WithDefaultFormat(FormatJSON))

	clk.Advance(10)
	resp := decode[stopwatchResponse](t, serve(h, http.MethodPost, "/?cmd=run"))
	if resp.Changed == nil || !*resp.Changed || resp.Stopwatch.Mode != "running" || resp.Stopwatch.LastResume != 10 {
		t.Fatalf("run resp=%+v", resp)
	}
	resp = decode[stopwatchResponse](t, serve(h, http.MethodPost, "/?cmd=r"))
	if *resp.Changed {
		t.Fatalf("second run changed state")
	}
	if rr := serve(h, http.MethodPost, "/?cmd=x"); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad cmd code=%d", rr.Code)
	}
	if rr := serve(h, http.MethodGet, "/?cmd=s"); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET code=%d", rr.Code)
	}
	if st.Snapshot().Mode != stopwatch.Running {
		t.Fatalf("GET applied a command")
	}
}

func newTestManager(t *testing.T) (*task.Manager, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Millisecond)
	m := task.NewManager(task.WithClock(clk), task.WithLogger(slog.New(slog.DiscardHandler)))
	m.MustAdd(task.Every(100*time.Millisecond, func(context.Context) error { return nil }),
		task.WithName("stopwatch.display"), task.WithPriority(1))
	m.MustAdd(task.Every(100*time.Millisecond, func(context.Context) error { return errors.New("nope") }),
		task.WithName("stopwatch.input"), task.WithPriority(2))
	m.MustAdd(task.Every(time.Second, func(context.Context) error { return nil }))
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m, clk
}

func TestTasksSnapshotHandler(t *testing.T) {
	t.Parallel()

	m, clk := newTestManager(t)
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	clk.Advance(100)
	m.Dispatch()

	h := TasksSnapshotHandler(m)
	body := serve(h, http.MethodGet, "/").Body.String()
	for _, want := range []string{
		"scheduler\tnow\t100\n",
		"task.stopwatch.display\tpriority\t1\n",
		"task.stopwatch.display\tsuccess_count\t1\n",
		"task.stopwatch.input\tfail_count\t1\n",
		"task.stopwatch.input\tlast_error\tnope\n",
		"task.stopwatch.input\tnext_run\t200\n",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("body=%q missing %q", body, want)
		}
	}

	resp := decode[tasksResponse](t, serve(h, http.MethodGet, "/?format=json"))
	if len(resp.Tasks) != 2 {
		t.Fatalf("tasks=%d, want 2 named", len(resp.Tasks))
	}
	if resp.Tasks[0].Name != "stopwatch.display" || resp.Tasks[0].Period != 100*time.Millisecond {
		t.Fatalf("task[0]=%+v", resp.Tasks[0])
	}
}

func TestTaskPeriodHandler(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	h := TaskPeriodHandler(m, []string{"stopwatch.display"})

	rr := serve(h, http.MethodPost, "/?name=stopwatch.display&period=1s")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "new_period\t1s") {
		t.Fatalf("code=%d body=%q", rr.Code, rr.Body.String())
	}
	if th, _ := m.Lookup("stopwatch.display"); th.Period() != time.Second {
		t.Fatalf("period=%s, want 1s", th.Period())
	}

	cases := []struct {
		target string
		code   int
	}{
		{"/?name=stopwatch.input&period=1s", http.StatusForbidden},
		{"/?period=1s", http.StatusBadRequest},
		{"/?name=stopwatch.display", http.StatusBadRequest},
		{"/?name=stopwatch.display&period=soon", http.StatusBadRequest},
		{"/?name=stopwatch.display&period=-1s", http.StatusBadRequest},
	}
	for _, tc := range cases {
		if rr := serve(h, http.MethodPost, tc.target); rr.Code != tc.code {
			t.Fatalf("%s: code=%d, want %d", tc.target, rr.Code, tc.code)
		}
	}

	open := TaskPeriodHandler(m, nil)
	if rr := serve(open, http.MethodPost, "/?name=missing&period=1s"); rr.Code != http.StatusNotFound {
		t.Fatalf("missing: code=%d", rr.Code)
	}
	_ = m.Shutdown(context.Background())
	if rr := serve(open, http.MethodPost, "/?name=stopwatch.input&period=1s"); rr.Code != http.StatusConflict {
		t.Fatalf("closed: code=%d", rr.Code)
	}
}

func TestLogLevelHandlers(t *testing.T) {
	t.Parallel()

	tu := tuning.New()
	ev, lv, err := tuningslog.LevelVar(tu, "log.level", slog.LevelInfo)
	if err != nil {
		t.Fatal(err)
	}
	get := LogLevelGetHandler(lv)
	set := LogLevelSetHandler(ev, lv)

	if body := serve(get, http.MethodGet, "/").Body.String(); !strings.Contains(body, "log\tlevel\tinfo\n") {
		t.Fatalf("body=%q", body)
	}
	rr := serve(set, http.MethodPost, "/?level=WARNING")
	if rr.Code != http.StatusOK || rr.Body.String() != "log\told_level\tinfo\nlog\tnew_level\twarn\n" {
		t.Fatalf("code=%d body=%q", rr.Code, rr.Body.String())
	}
	if lv.Level() != slog.LevelWarn || ev.Get() != "warn" {
		t.Fatalf("level=%v enum=%q", lv.Level(), ev.Get())
	}
	if rr := serve(set, http.MethodPost, "/?level=trace"); rr.Code != http.StatusBadRequest {
		t.Fatalf("trace: code=%d", rr.Code)
	}
	if rr := serve(set, http.MethodGet, "/?level=info"); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET set: code=%d", rr.Code)
	}
}

func TestTuningHandlers(t *testing.T) {
	t.Parallel()

	tu := tuning.New()
	prec, err := tu.Int64("display.precision", 6, tuning.WithMin[int64](0), tuning.WithMax[int64](9))
	if err != nil {
		t.Fatal(err)
	}

	set := TuningSetHandler(tu)
	rr := serve(set, http.MethodPost, "/?key=display.precision&value=3")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "tuning.display.precision\tvalue\t3\n") {
		t.Fatalf("code=%d body=%q", rr.Code, rr.Body.String())
	}
	if prec.Get() != 3 {
		t.Fatalf("precision=%d, want 3", prec.Get())
	}

	cases := []struct {
		target string
		code   int
	}{
		{"/?key=display.precision&value=12", http.StatusBadRequest},
		{"/?key=display.precision", http.StatusBadRequest},
		{"/?value=1", http.StatusBadRequest},
		{"/?key=nope&value=1", http.StatusNotFound},
	}
	for _, tc := range cases {
		if rr := serve(set, http.MethodPost, tc.target); rr.Code != tc.code {
			t.Fatalf("%s: code=%d, want %d", tc.target, rr.Code, tc.code)
		}
	}

	ov := decode[tuningOverridesResponse](t, serve(TuningOverridesHandler(tu), http.MethodGet, "/?format=json"))
	if len(ov.Overrides) != 1 || ov.Overrides[0].Value != "3" {
		t.Fatalf("overrides=%+v", ov)
	}

	reset := TuningResetHandler(tu)
	if rr := serve(reset, http.MethodPost, "/?key=display.precision&to=last"); rr.Code != http.StatusOK || prec.Get() != 6 {
		t.Fatalf("reset last: code=%d value=%d", rr.Code, prec.Get())
	}
	if rr := serve(reset, http.MethodPost, "/?key=display.precision&to=last"); rr.Code != http.StatusConflict {
		t.Fatalf("second reset last: code=%d, want 409", rr.Code)
	}
	if rr := serve(reset, http.MethodPost, "/?key=display.precision&to=yesterday"); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad target: code=%d", rr.Code)
	}

	snap := decode[tuningSnapshotResponse](t, serve(TuningSnapshotHandler(tu), http.MethodGet, "/?format=json"))
	if len(snap.Items) != 1 || snap.Items[0].Key != "display.precision" {
		t.Fatalf("snapshot=%+v", snap)
	}
	if body := serve(TuningOverridesHandler(tu), http.MethodGet, "/").Body.String(); body != "" {
		t.Fatalf("overrides after reset=%q, want empty", body)
	}
}
