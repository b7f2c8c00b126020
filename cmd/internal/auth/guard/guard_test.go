package guard

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"cmsconsole/cmd/internal/auth/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t *testing.T) *session.Store {
	t.Helper()
	return session.NewStore(session.Scoped(session.NewMemoryBackend(time.Hour), "tab"), testLogger())
}

func readyStore(t *testing.T, token string) *session.Store {
	t.Helper()
	st := newStore(t)
	st.Initialize(context.Background())
	if token != "" {
		if err := st.SaveToken(context.Background(), token); err != nil {
			t.Fatalf("SaveToken: %v", err)
		}
	}
	return st
}

func fixed(st *session.Store) Lookup {
	return func(*http.Request) (*session.Store, bool) { return st, true }
}

// subtree records whether it rendered and echoes the token it saw.
func subtree(rendered *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*rendered = true
		tok, _ := TokenFrom(r.Context())
		_, _ = io.WriteString(w, "subtree:"+tok)
	})
}

func TestDecide(t *testing.T) {
	cases := []struct {
		name string
		snap session.Snapshot
		want Decision
	}{
		{"initializing", session.Snapshot{Phase: session.PhaseInitializing}, Suspend},
		{"ready_absent", session.Snapshot{Phase: session.PhaseReady}, Redirect},
		{"ready_present", session.Snapshot{Phase: session.PhaseReady, Token: "t"}, Allow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Decide(tc.snap); got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestMiddleware_SuspendRendersNothing(t *testing.T) {
	st := newStore(t) // never initialized

	var rendered bool
	h := Middleware(Config{Wait: 20 * time.Millisecond}, fixed(st), testLogger())(subtree(&rendered))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil))

	if rendered {
		t.Fatalf("subtree rendered while initializing")
	}
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d want %d", rr.Code, http.StatusServiceUnavailable)
	}
	if loc := rr.Header().Get("Location"); loc != "" {
		t.Fatalf("redirect issued while initializing: %q", loc)
	}
	if rr.Body.Len() != 0 {
		t.Fatalf("body: got %q want empty", rr.Body.String())
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}
}

func TestMiddleware_SuspendResolvesWhenReady(t *testing.T) {
	st := newStore(t)

	var rendered bool
	h := Middleware(Config{Wait: 2 * time.Second}, fixed(st), testLogger())(subtree(&rendered))

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = st.SaveToken(context.Background(), "late")
	}()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil))

	if rr.Code != http.StatusOK || rr.Body.String() != "subtree:late" {
		t.Fatalf("got %d %q want 200 subtree:late", rr.Code, rr.Body.String())
	}
}

func TestMiddleware_ReadyAbsentRedirects(t *testing.T) {
	st := readyStore(t, "")

	var rendered bool
	h := Middleware(Config{}, fixed(st), testLogger())(subtree(&rendered))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/dashboard/projects", nil))

	if rendered {
		t.Fatalf("subtree rendered without token")
	}
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("status: got %d want %d", rr.Code, http.StatusSeeOther)
	}
	if loc := rr.Header().Get("Location"); loc != "/" {
		t.Fatalf("Location: got %q want /", loc)
	}
}

func TestMiddleware_ReadyPresentAllows(t *testing.T) {
	st := readyStore(t, "abc123")

	var rendered bool
	h := Middleware(Config{}, fixed(st), testLogger())(subtree(&rendered))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil))

	if !rendered || rr.Body.String() != "subtree:abc123" {
		t.Fatalf("got rendered=%v body=%q", rendered, rr.Body.String())
	}
}

func TestMiddleware_ReevaluatesEveryRequest(t *testing.T) {
	st := readyStore(t, "abc")

	var rendered bool
	h := Middleware(Config{}, fixed(st), testLogger())(subtree(&rendered))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("first: got %d want 200", rr.Code)
	}

	if err := st.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil))
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("after logout: got %d want 303", rr.Code)
	}
}

func TestMiddleware_MissingSessionRedirects(t *testing.T) {
	var rendered bool
	lookup := func(*http.Request) (*session.Store, bool) { return nil, false }
	h := Middleware(Config{LoginPath: "/login"}, lookup, testLogger())(subtree(&rendered))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil))

	if rendered || rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/login" {
		t.Fatalf("got rendered=%v status=%d location=%q", rendered, rr.Code, rr.Header().Get("Location"))
	}
}

func TestMiddleware_OnDecision(t *testing.T) {
	var (
		mu  sync.Mutex
		got []Decision
	)
	cfg := Config{
		Wait: 10 * time.Millisecond,
		OnDecision: func(d Decision) {
			mu.Lock()
			got = append(got, d)
			mu.Unlock()
		},
	}

	var rendered bool
	for _, st := range []*session.Store{newStore(t), readyStore(t, ""), readyStore(t, "x")} {
		h := Middleware(cfg, fixed(st), testLogger())(subtree(&rendered))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil))
	}

	mu.Lock()
	defer mu.Unlock()
	want := []Decision{Suspend, Redirect, Allow}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestTokenFrom_Empty(t *testing.T) {
	if _, ok := TokenFrom(context.Background()); ok {
		t.Fatalf("token found on bare context")
	}
	if _, ok := TokenFrom(WithToken(context.Background(), "")); ok {
		t.Fatalf("empty token reported present")
	}
}
