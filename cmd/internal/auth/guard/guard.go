// Package guard gates the protected console subtree on the tab session's auth state.
package guard

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"cmsconsole/cmd/internal/auth/session"
)

// Decision is the outcome of evaluating a session snapshot.
type Decision uint8

const (
	// Suspend renders nothing; the session is still initializing.
	Suspend Decision = iota
	// Redirect sends the browser to the login route.
	Redirect
	// Allow serves the protected subtree.
	Allow
)

func (d Decision) String() string {
	switch d {
	case Suspend:
		return "suspend"
	case Redirect:
		return "redirect"
	case Allow:
		return "allow"
	default:
		return "unknown"
	}
}

// Decide maps a snapshot to a Decision. It is pure and total.
func Decide(s session.Snapshot) Decision {
	switch s.State() {
	case session.StateAuthenticated:
		return Allow
	case session.StateUnauthenticated:
		return Redirect
	default:
		return Suspend
	}
}

// Lookup returns the Store of the request's tab session, if any.
type Lookup func(r *http.Request) (*session.Store, bool)

// Config controls the Middleware.
type Config struct {
	// Wait bounds how long a request suspends for an initializing session.
	Wait time.Duration

	// LoginPath is the redirect target for unauthenticated sessions.
	LoginPath string

	// RetryAfter is the Retry-After value sent with a suspended response.
	RetryAfter time.Duration

	// OnDecision, if set, observes every final decision.
	OnDecision func(Decision)
}

func (c Config) withDefaults() Config {
	if c.Wait <= 0 {
		c.Wait = 3 * time.Second
	}
	if c.LoginPath == "" {
		c.LoginPath = "/"
	}
	if c.RetryAfter <= 0 {
		c.RetryAfter = time.Second
	}
	return c
}

type tokenKey struct{}

// WithToken returns a copy of ctx carrying token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFrom returns the token placed by Middleware on an allowed request.
func TokenFrom(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(tokenKey{}).(string)
	return tok, ok && tok != ""
}

// Middleware wraps the whole protected subtree and re-evaluates on every request.
func Middleware(cfg Config, lookup Lookup, log *slog.Logger) func(http.Handler) http.Handler {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st, ok := lookup(r)
			if !ok || st == nil {
				finish(cfg, Redirect)
				redirect(w, r, cfg.LoginPath)
				return
			}

			snap := st.Snapshot()
			d := Decide(snap)
			if d == Suspend {
				snap, d = wait(r.Context(), st, cfg.Wait)
			}
			finish(cfg, d)

			switch d {
			case Allow:
				next.ServeHTTP(w, r.WithContext(WithToken(r.Context(), snap.Token)))
			case Redirect:
				log.Debug("guard.redirect", "path", r.URL.Path)
				redirect(w, r, cfg.LoginPath)
			default:
				log.Debug("guard.suspend.timeout", "path", r.URL.Path, "wait_ms", cfg.Wait.Milliseconds())
				suspended(w, cfg.RetryAfter)
			}
		})
	}
}

func wait(ctx context.Context, st *session.Store, d time.Duration) (session.Snapshot, Decision) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-st.Ready():
	case <-timer.C:
	case <-ctx.Done():
	}

	snap := st.Snapshot()
	return snap, Decide(snap)
}

func finish(cfg Config, d Decision) {
	if cfg.OnDecision != nil {
		cfg.OnDecision(d)
	}
}

func redirect(w http.ResponseWriter, r *http.Request, target string) {
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// suspended writes an empty body: neither the subtree nor the login redirect.
func suspended(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int(retryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	w.WriteHeader(http.StatusServiceUnavailable)
}
