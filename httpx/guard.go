package httpx

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// DefaultTokenHeader is the header read by TokenGuard besides "Authorization: Bearer".
const DefaultTokenHeader = "X-Access-Token"

// TokenGuard returns a middleware that admits requests carrying one of tokens, either as
// "Authorization: Bearer <token>" or in DefaultTokenHeader. Denied requests get 403.
//
// Blank tokens are ignored. With no token left it denies every request.
func TokenGuard(tokens ...string) Middleware {
	var set [][]byte
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			set = append(set, []byte(t))
		}
	}
	return func(next http.Handler) http.Handler {
		if next == nil {
			panic("httpx: nil next handler")
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tok, ok := requestToken(r); ok && containsToken(set, tok) {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

// DenyAll returns a middleware that answers every request with 403.
func DenyAll() Middleware {
	return func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

func requestToken(r *http.Request) (string, bool) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, tok, ok := strings.Cut(auth, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return "", false
		}
		tok = strings.TrimSpace(tok)
		return tok, tok != ""
	}
	vals := r.Header.Values(DefaultTokenHeader)
	if len(vals) != 1 {
		return "", false
	}
	tok := strings.TrimSpace(vals[0])
	return tok, tok != ""
}

func containsToken(set [][]byte, tok string) bool {
	b := []byte(tok)
	found := 0
	for _, t := range set {
		found |= subtle.ConstantTimeCompare(t, b)
	}
	return found == 1
}
