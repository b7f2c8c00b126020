package console

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cmsconsole/cmd/internal/auth/session"
	"cmsconsole/cmd/internal/notify"
)

func loginValues(email, password string) url.Values {
	return url.Values{"email": {email}, "password": {password}}
}

func TestLogin_SuccessSavesTokenAndRedirects(t *testing.T) {
	var calls atomic.Int32
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "a@b.c" || body["password"] != "pw" {
			t.Errorf("credentials: %v", body)
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": "abc123", "message": "ok"})
	}))

	rec := h.post("/", loginValues(" a@b.c ", "pw"))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status: got %d want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/admin/dashboard" {
		t.Fatalf("Location: got %q", loc)
	}
	if calls.Load() != 1 {
		t.Fatalf("upstream calls: got %d want 1", calls.Load())
	}

	if tok, _ := h.store().Token(); tok != "abc123" {
		t.Fatalf("token: got %q want abc123", tok)
	}

	pending := h.notices.Pending(h.tabID)
	if len(pending) != 1 || pending[0].Level != notify.LevelSuccess || pending[0].Text != "ok" {
		t.Fatalf("notices: %+v", pending)
	}

	// The dashboard now renders, showing the notice once.
	dash := h.get("/admin/dashboard")
	if dash.Code != http.StatusOK {
		t.Fatalf("dashboard: got %d", dash.Code)
	}
	if strings.Count(dash.Body.String(), "<span>ok</span>") != 1 {
		t.Fatalf("success notice not rendered once")
	}
	if len(h.notices.Pending(h.tabID)) != 0 {
		t.Fatalf("rendered notice still pending")
	}
}

func TestLogin_DefaultSuccessText(t *testing.T) {
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"accessToken": "xyz"})
	}))

	if rec := h.post("/", loginValues("a@b.c", "pw")); rec.Code != http.StatusSeeOther {
		t.Fatalf("status: got %d", rec.Code)
	}
	if tok, _ := h.store().Token(); tok != "xyz" {
		t.Fatalf("token: got %q want xyz", tok)
	}
	pending := h.notices.Pending(h.tabID)
	if len(pending) != 1 || pending[0].Text != "Login successful" {
		t.Fatalf("notices: %+v", pending)
	}
}

func TestLogin_FailureShowsServerMessage(t *testing.T) {
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
	}))

	rec := h.post("/", loginValues("a@b.c", "wrong"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d want 200", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "" {
		t.Fatalf("unexpected redirect to %q", loc)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Invalid credentials") {
		t.Fatalf("failure message missing")
	}
	if !strings.Contains(body, `value="a@b.c"`) {
		t.Fatalf("email not kept in the form")
	}

	snap := h.store().Snapshot()
	if snap.Token != "" {
		t.Fatalf("token saved on failure: %q", snap.Token)
	}
}

func TestLogin_FailureFallbackText(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"no_token", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{})
		}},
		{"server_error_without_message", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, tc.handler)

			rec := h.post("/", loginValues("a@b.c", "pw"))
			if rec.Code != http.StatusOK {
				t.Fatalf("status: got %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), "Login failed. Please try again.") {
				t.Fatalf("fallback message missing")
			}
			if h.store().State() != session.StateUnauthenticated {
				t.Fatalf("state: got %v", h.store().State())
			}
		})
	}
}

func TestLogin_EmptyFieldsNeverCallUpstream(t *testing.T) {
	var calls atomic.Int32
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusOK, map[string]string{"token": "t"})
	}))

	rec := h.post("/", loginValues("  ", ""))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d want 422", rec.Code)
	}
	body := rec.Body.String()
	for _, msg := range []string{"Please enter your email!", "Please enter your password!"} {
		if !strings.Contains(body, msg) {
			t.Fatalf("missing %q", msg)
		}
	}
	if calls.Load() != 0 {
		t.Fatalf("upstream called %d times", calls.Load())
	}
}

func TestLogin_OverlappingSubmissionsLastResolvedWins(t *testing.T) {
	firstArrived := make(chan struct{})
	releaseFirst := make(chan struct{})

	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] == "first@x.y" {
			close(firstArrived)
			<-releaseFirst
			writeJSON(w, http.StatusOK, map[string]string{"token": "tok-first"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": "tok-second"})
	}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if rec := h.post("/", loginValues("first@x.y", "pw")); rec.Code != http.StatusSeeOther {
			t.Errorf("first: got %d", rec.Code)
		}
	}()

	select {
	case <-firstArrived:
	case <-time.After(2 * time.Second):
		t.Fatalf("first request never reached upstream")
	}

	if rec := h.post("/", loginValues("second@x.y", "pw")); rec.Code != http.StatusSeeOther {
		t.Fatalf("second: got %d", rec.Code)
	}
	if tok, _ := h.store().Token(); tok != "tok-second" {
		t.Fatalf("after second: got %q", tok)
	}

	close(releaseFirst)
	wg.Wait()

	if tok, _ := h.store().Token(); tok != "tok-first" {
		t.Fatalf("final token: got %q want tok-first (last to resolve)", tok)
	}
	if stored, ok := h.persisted(); !ok || stored != "tok-first" {
		t.Fatalf("persisted token: got %q,%v want tok-first", stored, ok)
	}
}
