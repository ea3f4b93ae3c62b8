package ops

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Format controls the response rendering format.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// Option configures a handler.
type Option func(*handlerConfig)

type handlerConfig struct {
	format Format
}

// WithDefaultFormat sets the default response format. Default is FormatText.
func WithDefaultFormat(f Format) Option {
	return func(c *handlerConfig) { c.format = f }
}

func applyOptions(opts []Option) handlerConfig {
	cfg := handlerConfig{format: FormatText}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.format != FormatText && cfg.format != FormatJSON {
		cfg.format = FormatText
	}
	return cfg
}

func formatFromRequest(r *http.Request, def Format) Format {
	if r == nil || r.URL == nil {
		return def
	}
	switch r.URL.Query().Get("format") {
	case "json":
		return FormatJSON
	case "text":
		return FormatText
	default:
		return def
	}
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// write renders body as JSON, or text as-is. HEAD gets headers only.
func write(w http.ResponseWriter, r *http.Request, f Format, code int, body any, text string) {
	w.Header().Set("Cache-Control", "no-store")
	if f == FormatJSON {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.WriteHeader(code)
	if r.Method == http.MethodHead {
		return
	}
	if f == FormatJSON {
		_ = json.NewEncoder(w).Encode(body)
		return
	}
	_, _ = io.WriteString(w, text)
}

func writeError(w http.ResponseWriter, r *http.Request, f Format, code int, msg string) {
	write(w, r, f, code, errorResponse{OK: false, Error: msg}, msg+"\n")
}

// allowMethods writes 405 and returns false unless r uses one of methods.
func allowMethods(w http.ResponseWriter, r *http.Request, f Format, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeError(w, r, f, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func readOnly(w http.ResponseWriter, r *http.Request, f Format) bool {
	return allowMethods(w, r, f, http.MethodGet, http.MethodHead)
}

func queryRequired(r *http.Request, key string) (string, bool) {
	if r.URL == nil {
		return "", false
	}
	v := strings.TrimSpace(r.URL.Query().Get(key))
	return v, v != ""
}

// textLines builds section<TAB>key<TAB>value lines.
type textLines struct {
	b strings.Builder
}

func (t *textLines) add(section, key, value string) {
	t.b.WriteString(section)
	t.b.WriteByte('\t')
	t.b.WriteString(key)
	t.b.WriteByte('\t')
	t.b.WriteString(value)
	t.b.WriteByte('\n')
}

func (t *textLines) addUint(section, key string, v uint64) {
	t.add(section, key, strconv.FormatUint(v, 10))
}

func (t *textLines) addTime(section, key string, v time.Time) {
	if v.IsZero() {
		t.add(section, key, "-")
		return
	}
	t.add(section, key, v.UTC().Format(time.RFC3339Nano))
}

func (t *textLines) String() string { return t.b.String() }
