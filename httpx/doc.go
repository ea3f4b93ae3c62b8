// Package httpx provides the net/http middleware used by the zwatch ops server.
//
// A middleware is a standard wrapper:
//
//	type Middleware func(http.Handler) http.Handler
//
// Chain(a, b, c).Handler(h) returns a(b(c(h))). Nil middlewares are ignored; a nil endpoint
// handler is an assembly error and panics.
//
// Built-in middlewares:
//   - Recover: contains handler panics and reports them through slog.
//   - TokenGuard: admits requests carrying an accepted token; fail-closed.
//   - AccessLog: one slog record per request.
package httpx
