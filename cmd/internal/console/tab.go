package console

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strings"

	"cmsconsole/cmd/security/token"
)

// errCSRF is returned when a POST lacks a matching double-submit token.
var errCSRF = errors.New("csrf token mismatch")

type ctxKey uint8

const (
	tabCtxKey ctxKey = iota
	csrfCtxKey
)

// TabFrom returns the tab session id attached by the console's tab middleware.
func TabFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(tabCtxKey).(string)
	return v, ok && v != ""
}

func csrfFrom(ctx context.Context) string {
	v, _ := ctx.Value(csrfCtxKey).(string)
	return v
}

// withTab resolves (or issues) the tab session cookie and the CSRF cookie.
//
// The tab cookie has no Expires, so the browser drops it when the session ends.
func (c *Console) withTab(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tabID := c.cookieValue(r, c.cfg.TabCookieName)
		if !token.ValidTabID(tabID) {
			id, err := token.NewTabID()
			if err != nil {
				c.log.Error("console.tab.issue.fail", "err", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			tabID = id
			c.setCookie(w, c.cfg.TabCookieName, tabID)
		}

		csrf := c.cookieValue(r, c.cfg.CSRFCookieName)
		if csrf == "" {
			v, err := token.NewOpaque(32)
			if err != nil {
				c.log.Error("console.csrf.issue.fail", "err", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			csrf = v
			c.setCookie(w, c.cfg.CSRFCookieName, csrf)
		}

		ctx := context.WithValue(r.Context(), tabCtxKey, tabID)
		ctx = context.WithValue(ctx, csrfCtxKey, csrf)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (c *Console) cookieValue(r *http.Request, name string) string {
	ck, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(ck.Value)
}

func (c *Console) setCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     c.cfg.CookiePath,
		Domain:   c.cfg.CookieDomain,
		HttpOnly: true,
		Secure:   c.cfg.CookieSecure,
		SameSite: c.cfg.CookieSameSite,
	})
}

// parseForm reads a urlencoded or multipart body within the upload limit and checks
// the double-submit CSRF token.
func (c *Console) parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, c.cfg.MaxUploadBytes)

	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var err error
	if mt == "multipart/form-data" {
		err = r.ParseMultipartForm(8 << 20)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		return err
	}

	if !token.Equal(csrfFrom(r.Context()), strings.TrimSpace(r.PostFormValue("_csrf"))) {
		return errCSRF
	}
	return nil
}

// rejectForm answers a parseForm failure.
func (c *Console) rejectForm(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, errCSRF):
		c.log.Info("console.csrf.reject", "path", r.URL.Path)
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.As(err, &maxErr):
		http.Error(w, "request too large", http.StatusRequestEntityTooLarge)
	default:
		http.Error(w, "invalid form", http.StatusBadRequest)
	}
}

// tabOf returns the tab id of a request that passed withTab.
func tabOf(r *http.Request) string {
	id, _ := TabFrom(r.Context())
	return id
}
