package ops

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/evan-idocoding/zwatch/rt/tuning"
	"github.com/evan-idocoding/zwatch/rt/tuning/tuningslog"
)

// LogLevelSnapshot is the rendered log level.
type LogLevelSnapshot struct {
	Level      string `json:"level"`
	LevelValue int    `json:"level_value"`
}

func logLevelOf(lv *slog.LevelVar) LogLevelSnapshot {
	l := lv.Level()
	return LogLevelSnapshot{Level: strings.ToLower(l.String()), LevelValue: int(l)}
}

type logLevelResponse struct {
	OK  bool              `json:"ok"`
	Log *LogLevelSnapshot `json:"log,omitempty"`
	Old *LogLevelSnapshot `json:"old,omitempty"`
	New *LogLevelSnapshot `json:"new,omitempty"`
}

// LogLevelGetHandler returns a handler that outputs the current level of lv. GET/HEAD only.
func LogLevelGetHandler(lv *slog.LevelVar, opts ...Option) http.Handler {
	if lv == nil {
		panic("ops: nil slog.LevelVar")
	}
	cfg := applyOptions(opts)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		format := formatFromRequest(r, cfg.format)
		if !readOnly(w, r, format) {
			return
		}
		s := logLevelOf(lv)
		var t textLines
		t.add("log", "level", s.Level)
		t.add("log", "level_value", strconv.Itoa(s.LevelValue))
		write(w, r, format, http.StatusOK, logLevelResponse{OK: true, Log: &s}, t.String())
	})
}

// LogLevelSetHandler returns a handler that sets the log level through the tuning variable
// ev, which is bound to lv (see tuningslog.LevelVar).
//
// POST only. Query: ?level=debug|info|warn|error (case-insensitive; warning and err accepted).
func LogLevelSetHandler(ev *tuning.EnumVar, lv *slog.LevelVar, opts ...Option) http.Handler {
	if ev == nil || lv == nil {
		panic("ops: nil level variable")
	}
	cfg := applyOptions(opts)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		format := formatFromRequest(r, cfg.format)
		if !allowMethods(w, r, format, http.MethodPost) {
			return
		}
		raw, _ := queryRequired(r, "level")
		level, ok := tuningslog.NormalizeLevel(raw)
		if !ok {
			writeError(w, r, format, http.StatusBadRequest, "invalid level (want one of: debug, info, warn, error)")
			return
		}
		old := logLevelOf(lv)
		if err := ev.Set(level); err != nil {
			writeError(w, r, format, http.StatusConflict, err.Error())
			return
		}
		cur := logLevelOf(lv)
		var t textLines
		t.add("log", "old_level", old.Level)
		t.add("log", "new_level", cur.Level)
		write(w, r, format, http.StatusOK, logLevelResponse{OK: true, Old: &old, New: &cur}, t.String())
	})
}
