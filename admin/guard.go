package admin

import (
	"net/http"

	"github.com/evan-idocoding/zwatch/httpx"
)

// Guard enforces request admission for a capability. Denied requests get 403.
type Guard interface {
	Middleware() func(http.Handler) http.Handler
}

type guardFunc struct{ mw httpx.Middleware }

func (g guardFunc) Middleware() func(http.Handler) http.Handler {
	if g.mw == nil {
		return httpx.DenyAll()
	}
	return g.mw
}

// AllowAll admits every request.
func AllowAll() Guard {
	return guardFunc{mw: func(next http.Handler) http.Handler { return next }}
}

// DenyAll rejects every request.
func DenyAll() Guard {
	return guardFunc{mw: httpx.DenyAll()}
}

// Tokens admits requests carrying one of tokens (see httpx.TokenGuard). No usable token
// means deny-all.
func Tokens(tokens ...string) Guard {
	return guardFunc{mw: httpx.TokenGuard(tokens...)}
}
