package console

import (
	"errors"
	"net/http"
	"strings"

	"cmsconsole/cmd/internal/auth/session"
	"cmsconsole/cmd/internal/upstream"
)

const (
	msgEmailRequired    = "Please enter your email!"
	msgPasswordRequired = "Please enter your password!"
	msgLoginSucceeded   = "Login successful"
	msgLoginFailed      = "Login failed. Please try again."
)

type loginForm struct {
	Email  string
	Errors map[string]string
}

func (c *Console) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	c.render(w, r, "login", http.StatusOK, loginForm{})
}

// handleLoginSubmit issues exactly one login call. On success the token is saved to the
// tab session and the browser is sent to the dashboard; on failure the form re-renders
// with the submitted email.
func (c *Console) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := c.parseForm(w, r); err != nil {
		c.rejectForm(w, r, err)
		return
	}

	ctx := r.Context()
	tabID := tabOf(r)

	form := loginForm{
		Email:  strings.TrimSpace(r.PostFormValue("email")),
		Errors: map[string]string{},
	}
	password := r.PostFormValue("password")
	if form.Email == "" {
		form.Errors["email"] = msgEmailRequired
	}
	if strings.TrimSpace(password) == "" {
		form.Errors["password"] = msgPasswordRequired
	}
	if len(form.Errors) > 0 {
		c.render(w, r, "login", http.StatusUnprocessableEntity, form)
		return
	}

	res, err := c.api.Login(ctx, upstream.Credentials{Email: form.Email, Password: password})
	if err != nil {
		c.metrics.Login("failure")
		c.log.Info("console.login.fail", "err", err)
		c.notices.Error(tabID, loginFailureMessage(res, err))
		c.render(w, r, "login", http.StatusOK, form)
		return
	}

	st := c.sessions.Open(tabID)
	if err := st.SaveToken(ctx, res.Token); err != nil {
		if !errors.Is(err, session.ErrPersist) {
			c.metrics.Login("failure")
			c.log.Error("console.login.save.fail", "err", err)
			c.notices.Error(tabID, msgLoginFailed)
			c.render(w, r, "login", http.StatusOK, form)
			return
		}
		// The token is live for this process; only the reload copy is missing.
		c.log.Warn("console.login.persist.fail", "err", err)
	}

	c.metrics.Login("success")
	text := strings.TrimSpace(res.Message)
	if text == "" {
		text = msgLoginSucceeded
	}
	c.notices.Success(tabID, text)
	back(w, r, DashboardPath)
}

func loginFailureMessage(res upstream.LoginResult, err error) string {
	if errors.Is(err, upstream.ErrMissingToken) {
		if msg := strings.TrimSpace(res.Message); msg != "" {
			return msg
		}
		return msgLoginFailed
	}
	return upstream.MessageOf(err, msgLoginFailed)
}

func (c *Console) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := c.parseForm(w, r); err != nil {
		c.rejectForm(w, r, err)
		return
	}

	tabID := tabOf(r)
	if err := c.sessions.Open(tabID).Logout(r.Context()); err != nil {
		c.log.Warn("console.logout.storage.fail", "err", err)
	}
	if c.streams != nil {
		c.streams.DisconnectTab(tabID)
	}
	c.notices.Forget(tabID)

	back(w, r, LoginPath)
}
