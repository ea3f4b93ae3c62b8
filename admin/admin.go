package admin

import (
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/evan-idocoding/zwatch/httpx"
)

// New assembles and returns the admin subtree handler. Assembly errors panic.
func New(opts ...Option) http.Handler {
	b := &Builder{paths: make(map[string]pendingMount), logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b.build()
}

// Option configures admin assembly.
type Option func(*Builder)

// WithLogger sets the logger for panics and access logs. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// Builder collects capabilities. Users configure it only through Options.
type Builder struct {
	paths  map[string]pendingMount
	logger *slog.Logger
}

// pendingMount is built into a handler after every Option has run.
type pendingMount struct {
	guard Guard
	make  func(*Builder) http.Handler
}

func (b *Builder) build() http.Handler {
	mux := http.NewServeMux()
	names := make([]string, 0, len(b.paths))
	for path, pm := range b.paths {
		mux.Handle(path, pm.guard.Middleware()(pm.make(b)))
		names = append(names, path)
	}
	sort.Strings(names)
	index := strings.Join(names, "\n") + "\n"
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(index))
		}
	})

	return httpx.Chain(
		httpx.Recover(httpx.WithRecoverLogger(b.logger)),
		httpx.AccessLog(b.logger),
	).Handler(mux)
}

func (b *Builder) mount(capName, path, def string, g Guard, mk func(*Builder) http.Handler) {
	if b == nil {
		panic("admin: nil builder")
	}
	if g == nil {
		panic("admin: " + capName + ": nil Guard")
	}
	if mk == nil {
		panic("admin: " + capName + ": nil handler")
	}
	if strings.TrimSpace(path) == "" {
		path = def
	}
	path = normalizePath(path)
	if _, exists := b.paths[path]; exists {
		panic("admin: duplicated path: " + path)
	}
	b.paths[path] = pendingMount{guard: g, make: mk}
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	switch {
	case path == "/":
		panic("admin: path / is reserved for the index")
	case !strings.HasPrefix(path, "/"):
		panic("admin: invalid path (must start with '/'): " + path)
	case strings.ContainsAny(path, " \t\r\n?#{}"):
		panic("admin: invalid path (contains whitespace, ?, # or braces): " + path)
	case strings.Contains(path, "//"):
		panic("admin: invalid path (contains //): " + path)
	}
	return path
}
