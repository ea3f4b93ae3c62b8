package httpx

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func tagged(tag string, out *[]string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*out = append(*out, tag)
			next.ServeHTTP(w, r)
		})
	}
}

func TestChain_Order(t *testing.T) {
	t.Parallel()

	var got []string
	h := Chain(tagged("a", &got), nil, tagged("b", &got)).
		With(tagged("c", &got)).
		Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { got = append(got, "h") }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if strings.Join(got, ",") != "a,b,c,h" {
		t.Fatalf("order=%v, want a,b,c,h", got)
	}
}

func TestChain_WithDoesNotMutate(t *testing.T) {
	t.Parallel()

	var got []string
	base := Chain(tagged("a", &got))
	_ = base.With(tagged("b", &got))
	if len(base) != 1 {
		t.Fatalf("len(base)=%d, want 1", len(base))
	}
}

func TestChain_NilHandlerPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	Wrap(nil)
}

func TestRecover(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, nil))
	h := Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }),
		Recover(WithRecoverLogger(l)))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/-/x", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("code=%d, want 500", rr.Code)
	}
	if out := buf.String(); !strings.Contains(out, "httpx: panic") || !strings.Contains(out, "value=boom") || !strings.Contains(out, `name="GET /-/x"`) {
		t.Fatalf("log=%q", out)
	}
}

func TestRecover_AfterHeaderKeepsStatus(t *testing.T) {
	t.Parallel()

	h := Wrap(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		panic("late")
	}), Recover(WithRecoverLogger(slog.New(slog.DiscardHandler))))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("code=%d, want 202", rr.Code)
	}
}

func TestRecover_RepanicsAbort(t *testing.T) {
	t.Parallel()

	h := Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic(http.ErrAbortHandler) }), Recover())
	defer func() {
		if p := recover(); p != http.ErrAbortHandler {
			t.Fatalf("recovered %v, want ErrAbortHandler", p)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestTokenGuard(t *testing.T) {
	t.Parallel()

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := Wrap(ok, TokenGuard("s3cret", " "))

	cases := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{"bearer", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusNoContent},
		{"bearer lower", map[string]string{"Authorization": "bearer s3cret"}, http.StatusNoContent},
		{"header", map[string]string{DefaultTokenHeader: "s3cret"}, http.StatusNoContent},
		{"wrong", map[string]string{"Authorization": "Bearer nope"}, http.StatusForbidden},
		{"basic", map[string]string{"Authorization": "Basic s3cret"}, http.StatusForbidden},
		{"missing", nil, http.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		for k, v := range tc.header {
			req.Header.Set(k, v)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != tc.want {
			t.Fatalf("%s: code=%d, want %d", tc.name, rr.Code, tc.want)
		}
	}
}

func TestTokenGuard_EmptyDeniesAll(t *testing.T) {
	t.Parallel()

	h := Wrap(http.NotFoundHandler(), TokenGuard(""))
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer ")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("code=%d, want 403", rr.Code)
	}

	rr = httptest.NewRecorder()
	Wrap(http.NotFoundHandler(), DenyAll()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("DenyAll code=%d, want 403", rr.Code)
	}
}

func TestAccessLog(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := Wrap(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), AccessLog(l))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/-/healthz", nil))

	out := buf.String()
	if !strings.Contains(out, "status=418") || !strings.Contains(out, "path=/-/healthz") {
		t.Fatalf("log=%q", out)
	}
}
