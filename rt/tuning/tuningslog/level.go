package tuningslog

import (
	"log/slog"
	"strings"

	"github.com/evan-idocoding/zwatch/rt/tuning"
)

var levels = []string{"debug", "info", "warn", "error"}

// LevelVar registers a tuning enum under key and binds it to a new slog.LevelVar.
//
// Accepted values are case-insensitive: debug / info / warn / error, plus the aliases
// warning -> warn and err -> error. The enum stores canonical lowercase values.
// defaultLevel is mapped to the nearest of the four levels at or below it.
func LevelVar(t *tuning.Tuning, key string, defaultLevel slog.Level, opts ...tuning.Option[string]) (*tuning.EnumVar, *slog.LevelVar, error) {
	if t == nil {
		t = tuning.New()
	}

	def := levelToEnum(defaultLevel)
	lv := new(slog.LevelVar)
	lv.Set(enumToLevel(def))

	// lv is updated before user callbacks.
	base := []tuning.Option[string]{
		tuning.WithOnChange(func(s string) { lv.Set(enumToLevel(s)) }),
	}
	ev, err := t.Enum(key, def, levels, NormalizeLevel, append(base, opts...)...)
	if err != nil {
		return nil, nil, err
	}
	return ev, lv, nil
}

// NormalizeLevel maps a user-supplied level name to its canonical lowercase form.
func NormalizeLevel(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "warning":
		s = "warn"
	case "err":
		s = "error"
	}
	switch s {
	case "debug", "info", "warn", "error":
		return s, true
	default:
		return "", false
	}
}

func levelToEnum(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "debug"
	case l < slog.LevelWarn:
		return "info"
	case l < slog.LevelError:
		return "warn"
	default:
		return "error"
	}
}

func enumToLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel parses a level name accepted by NormalizeLevel.
func ParseLevel(s string) (slog.Level, bool) {
	nv, ok := NormalizeLevel(s)
	if !ok {
		return 0, false
	}
	return enumToLevel(nv), true
}
