package httpx

import (
	"log/slog"
	"net/http"
	"time"
)

// AccessLog returns a middleware that logs each request at debug level on l
// (nil means slog.Default()).
func AccessLog(l *slog.Logger) Middleware {
	if l == nil {
		l = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		if next == nil {
			panic("httpx: nil next handler")
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &startedWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r)
			status := sw.status
			if !sw.started {
				status = http.StatusOK
			}
			l.DebugContext(r.Context(), "httpx: request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
			)
		})
	}
}
