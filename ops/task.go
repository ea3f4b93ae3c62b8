package ops

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/evan-idocoding/zwatch/rt/task"
)

// TaskStatus is the rendered status of one task.
type TaskStatus struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	State    string `json:"state"`

	// Period is encoded as nanoseconds in JSON.
	Period      time.Duration `json:"period"`
	PeriodTicks uint64        `json:"period_ticks"`
	NextRun     uint32        `json:"next_run"`
	Running     int           `json:"running"`

	RunCount      uint64 `json:"run_count"`
	SuccessCount  uint64 `json:"success_count"`
	FailCount     uint64 `json:"fail_count"`
	CanceledCount uint64 `json:"canceled_count"`
	Missed        uint64 `json:"missed"`
	Skipped       uint64 `json:"skipped"`

	LastStarted  time.Time     `json:"last_started,omitzero"`
	LastFinished time.Time     `json:"last_finished,omitzero"`
	LastSuccess  time.Time     `json:"last_success,omitzero"`
	LastDuration time.Duration `json:"last_duration"`
	LastError    string        `json:"last_error,omitempty"`
}

type tasksResponse struct {
	OK    bool         `json:"ok"`
	Now   uint32       `json:"now"`
	Tasks []TaskStatus `json:"tasks"`
}

func toTaskStatus(s task.Status) TaskStatus {
	return TaskStatus{
		Name:          s.Name,
		Priority:      s.Priority,
		State:         s.State.String(),
		Period:        s.Period,
		PeriodTicks:   uint64(s.PeriodTicks),
		NextRun:       uint32(s.NextRun),
		Running:       s.Running,
		RunCount:      s.RunCount,
		SuccessCount:  s.SuccessCount,
		FailCount:     s.FailCount,
		CanceledCount: s.CanceledCount,
		Missed:        s.Missed,
		Skipped:       s.Skipped,
		LastStarted:   s.LastStarted,
		LastFinished:  s.LastFinished,
		LastSuccess:   s.LastSuccess,
		LastDuration:  s.LastDuration,
		LastError:     s.LastError,
	}
}

// TasksSnapshotHandler returns a handler that outputs the scheduler snapshot. GET/HEAD only.
//
// Unnamed tasks are omitted.
func TasksSnapshotHandler(m *task.Manager, opts ...Option) http.Handler {
	if m == nil {
		panic("ops: nil task.Manager")
	}
	cfg := applyOptions(opts)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		format := formatFromRequest(r, cfg.format)
		if !readOnly(w, r, format) {
			return
		}
		snap := m.Snapshot()
		resp := tasksResponse{OK: true, Now: uint32(snap.Now), Tasks: make([]TaskStatus, 0, len(snap.Tasks))}
		for _, s := range snap.Tasks {
			if s.Name == "" {
				continue
			}
			resp.Tasks = append(resp.Tasks, toTaskStatus(s))
		}
		write(w, r, format, http.StatusOK, resp, renderTasksText(resp))
	})
}

func renderTasksText(resp tasksResponse) string {
	var t textLines
	t.addUint("scheduler", "now", uint64(resp.Now))
	for _, s := range resp.Tasks {
		sec := "task." + s.Name
		t.add(sec, "priority", strconv.Itoa(s.Priority))
		t.add(sec, "state", s.State)
		t.add(sec, "period", s.Period.String())
		t.addUint(sec, "next_run", uint64(s.NextRun))
		t.add(sec, "running", strconv.Itoa(s.Running))
		t.addUint(sec, "run_count", s.RunCount)
		t.addUint(sec, "success_count", s.SuccessCount)
		t.addUint(sec, "fail_count", s.FailCount)
		t.addUint(sec, "canceled_count", s.CanceledCount)
		t.addUint(sec, "missed", s.Missed)
		t.addUint(sec, "skipped", s.Skipped)
		t.addTime(sec, "last_success", s.LastSuccess)
		t.add(sec, "last_duration", s.LastDuration.String())
		if s.LastError != "" {
			t.add(sec, "last_error", s.LastError)
		}
	}
	return t.String()
}

type taskPeriodResponse struct {
	OK    bool          `json:"ok"`
	Name  string        `json:"name"`
	Old   time.Duration `json:"old"`
	New   time.Duration `json:"new"`
	Error string        `json:"error,omitempty"`
}

// TaskPeriodHandler returns a handler that changes a task period.
//
// POST only. Query: ?name=<task>&period=<Go duration>. If allow is non-empty, only those
// task names may be changed (403 otherwise).
//
// Responses: 200 applied, 400 bad input, 403 not allowed, 404 unknown task, 409 manager closed.
func TaskPeriodHandler(m *task.Manager, allow []string, opts ...Option) http.Handler {
	if m == nil {
		panic("ops: nil task.Manager")
	}
	allowed := make(map[string]struct{}, len(allow))
	for _, n := range allow {
		if n != "" {
			allowed[n] = struct{}{}
		}
	}
	cfg := applyOptions(opts)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		format := formatFromRequest(r, cfg.format)
		if !allowMethods(w, r, format, http.MethodPost) {
			return
		}
		name, ok := queryRequired(r, "name")
		if !ok {
			writeError(w, r, format, http.StatusBadRequest, "missing name")
			return
		}
		raw, ok := queryRequired(r, "period")
		if !ok {
			writeError(w, r, format, http.StatusBadRequest, "missing period")
			return
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			writeError(w, r, format, http.StatusBadRequest, "invalid period: "+err.Error())
			return
		}
		if len(allowed) > 0 {
			if _, ok := allowed[name]; !ok {
				writeError(w, r, format, http.StatusForbidden, "name not allowed")
				return
			}
		}
		h, ok := m.Lookup(name)
		if !ok {
			writeError(w, r, format, http.StatusNotFound, "task not found")
			return
		}
		old := h.Period()
		if err := h.SetPeriod(d); err != nil {
			code := http.StatusBadRequest
			if errors.Is(err, task.ErrClosed) {
				code = http.StatusConflict
			}
			writeError(w, r, format, code, err.Error())
			return
		}
		var t textLines
		t.add("task."+name, "old_period", old.String())
		t.add("task."+name, "new_period", d.String())
		write(w, r, format, http.StatusOK, taskPeriodResponse{OK: true, Name: name, Old: old, New: d}, t.String())
	})
}
