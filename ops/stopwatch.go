package ops

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/evan-idocoding/zwatch/clock"
	"github.com/evan-idocoding/zwatch/stopwatch"
)

// StopwatchView is the rendered stopwatch state.
type StopwatchView struct {
	Mode        string  `json:"mode"`
	Accumulated uint64  `json:"accumulated_ticks"`
	Seconds     float64 `json:"seconds"`
	LastResume  uint32  `json:"last_resume"`
	Now         uint32  `json:"now"`
	Revision    uint64  `json:"revision"`
	Resumes     uint64  `json:"resumes"`
	Clears      uint64  `json:"clears"`
}

// NewStopwatchView converts a snapshot taken at now.
func NewStopwatchView(clk clock.Clock, snap stopwatch.Snapshot, now clock.Tick) StopwatchView {
	return StopwatchView{
		Mode:        snap.Mode.String(),
		Accumulated: uint64(snap.Accumulated),
		Seconds:     clock.Seconds(clk, snap.Accumulated),
		LastResume:  uint32(snap.LastResume),
		Now:         uint32(now),
		Revision:    snap.Revision,
		Resumes:     snap.Resumes,
		Clears:      snap.Clears,
	}
}

type stopwatchResponse struct {
	OK        bool          `json:"ok"`
	Stopwatch StopwatchView `json:"stopwatch"`
	Changed   *bool         `json:"changed,omitempty"`
}

// StopwatchHandler returns a handler that outputs the stopwatch state. GET/HEAD only.
//
// seconds reflects the folded total; time since the last accumulate run is not included.
func StopwatchHandler(st *stopwatch.State, clk clock.Clock, opts ...Option) http.Handler {
	if st == nil || clk == nil {
		panic("ops: nil stopwatch state or clock")
	}
	cfg := applyOptions(opts)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		format := formatFromRequest(r, cfg.format)
		if !readOnly(w, r, format) {
			return
		}
		v := NewStopwatchView(clk, st.Snapshot(), clk.Now())
		write(w, r, format, http.StatusOK, stopwatchResponse{OK: true, Stopwatch: v}, renderStopwatchText(v, nil))
	})
}

// StopwatchCommandHandler returns a handler that applies a command.
//
// POST only. Query: ?cmd=r|s|c (or run/stop/clear; only the first byte counts).
// Applied transitions are logged at info on logger (nil means slog.Default()).
func StopwatchCommandHandler(st *stopwatch.State, clk clock.Clock, logger *slog.Logger, opts ...Option) http.Handler {
	if st == nil || clk == nil {
		panic("ops: nil stopwatch state or clock")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg := applyOptions(opts)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		format := formatFromRequest(r, cfg.format)
		if !allowMethods(w, r, format, http.MethodPost) {
			return
		}
		raw, _ := queryRequired(r, "cmd")
		cmd := stopwatch.ParseCommand([]byte(raw))
		if cmd == stopwatch.None {
			writeError(w, r, format, http.StatusBadRequest, "invalid cmd (want one of: r, s, c)")
			return
		}
		now := clk.Now()
		snap, changed := st.Apply(cmd, now)
		if changed {
			logger.InfoContext(r.Context(), "stopwatch: "+cmd.String(),
				"mode", snap.Mode.String(),
				"accumulated", uint64(snap.Accumulated),
				"tick", uint32(now),
				"via", "ops",
			)
		}
		v := NewStopwatchView(clk, snap, now)
		write(w, r, format, http.StatusOK,
			stopwatchResponse{OK: true, Stopwatch: v, Changed: &changed},
			renderStopwatchText(v, &changed))
	})
}

func renderStopwatchText(v StopwatchView, changed *bool) string {
	var t textLines
	if changed != nil {
		t.add("stopwatch", "changed", strconv.FormatBool(*changed))
	}
	t.add("stopwatch", "mode", v.Mode)
	t.addUint("stopwatch", "accumulated_ticks", v.Accumulated)
	t.add("stopwatch", "seconds", strconv.FormatFloat(v.Seconds, 'f', -1, 64))
	t.addUint("stopwatch", "last_resume", uint64(v.LastResume))
	t.addUint("stopwatch", "now", uint64(v.Now))
	t.addUint("stopwatch", "revision", v.Revision)
	t.addUint("stopwatch", "resumes", v.Resumes)
	t.addUint("stopwatch", "clears", v.Clears)
	return t.String()
}
