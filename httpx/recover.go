package httpx

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/evan-idocoding/zwatch/rt/safego"
)

// RecoverOption configures Recover.
type RecoverOption func(*recoverConfig)

type recoverConfig struct {
	logger *slog.Logger
}

// WithRecoverLogger sets the logger panics are reported to. Default is slog.Default().
func WithRecoverLogger(l *slog.Logger) RecoverOption {
	return func(c *recoverConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Recover returns a middleware that contains panics from downstream handlers.
//
// http.ErrAbortHandler is re-panicked. If the response has not started, it writes 500.
func Recover(opts ...RecoverOption) Middleware {
	cfg := recoverConfig{logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return func(next http.Handler) http.Handler {
		if next == nil {
			panic("httpx: nil next handler")
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &startedWriter{ResponseWriter: w}
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if p == http.ErrAbortHandler {
					panic(p)
				}
				safego.LogPanic(r.Context(), cfg.logger, "httpx", safego.PanicInfo{
					Name:  r.Method + " " + r.URL.Path,
					Value: p,
					Stack: debug.Stack(),
				})
				if !sw.started {
					http.Error(sw, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(sw, r)
		})
	}
}

// startedWriter tracks whether the response has started.
type startedWriter struct {
	http.ResponseWriter
	started bool
	status  int
}

func (w *startedWriter) WriteHeader(code int) {
	if !w.started {
		w.started = true
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *startedWriter) Write(p []byte) (int, error) {
	if !w.started {
		w.started = true
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(p)
}

func (w *startedWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
