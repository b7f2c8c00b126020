package console

import (
	"context"
	"net/http"
	"net/url"

	"cmsconsole/cmd/internal/auth/guard"
	"cmsconsole/cmd/internal/upstream"
)

// failText picks the notice shown when a mutation fails.
type failText func(err error) string

func serverOr(fallback string) failText {
	return func(err error) string { return upstream.MessageOf(err, fallback) }
}

func fixed(msg string) failText {
	return func(error) string { return msg }
}

// listPage is the data of a resource listing with its create/edit form.
type listPage[T any] struct {
	Items   []T
	Editing string
	Form    formView
}

type identified interface {
	ID() string
}

func findByID[T identified](items []T, id string) (T, bool) {
	for _, it := range items {
		if it.ID() == id {
			return it, true
		}
	}
	var zero T
	return zero, false
}

func bearer(r *http.Request) string {
	tok, _ := guard.TokenFrom(r.Context())
	return tok
}

func resourcePath(resource string, id ...string) string {
	p := DashboardPath + "/" + resource
	for _, part := range id {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// fetchFailed reports a failed list or detail read.
func (c *Console) fetchFailed(r *http.Request, resource string, err error, text string) {
	c.log.Warn("console.fetch.fail", "resource", resource, "err", err)
	c.metrics.FetchFailure(resource)
	c.notices.Error(tabOf(r), text)
}

// mutate runs op with the session token, queues the outcome notice and redirects to
// target.
func (c *Console) mutate(w http.ResponseWriter, r *http.Request, target, ok string, fail failText, op func(ctx context.Context, token string) error) {
	tabID := tabOf(r)
	if err := op(r.Context(), bearer(r)); err != nil {
		c.log.Warn("console.mutate.fail", "method", r.Method, "path", r.URL.Path, "err", err)
		c.notices.Error(tabID, fail(err))
	} else {
		c.notices.Success(tabID, ok)
	}
	back(w, r, target)
}

// readContentForm parses and validates a content form. It reports false when it has
// already answered the request.
func (c *Console) readContentForm(w http.ResponseWriter, r *http.Request, spec formSpec, creating bool) (upstream.Form, formState, bool) {
	if err := c.parseForm(w, r); err != nil {
		c.rejectForm(w, r, err)
		return upstream.Form{}, formState{}, false
	}
	form, state, err := spec.read(r, creating, c.cfg.MaxUploadBytes)
	if err != nil {
		c.log.Info("console.form.read.fail", "path", r.URL.Path, "err", err)
		http.Error(w, "invalid upload", http.StatusBadRequest)
		return upstream.Form{}, formState{}, false
	}
	return form, state, true
}
