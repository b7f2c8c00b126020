package upstream

import (
	"context"
	"net/http"
	"strings"
)

// Credentials is the login request body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult is a successful login.
type LoginResult struct {
	Token   string
	Message string
}

type loginResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"accessToken"`
	Message     string `json:"message"`
}

// Login issues exactly one POST /api/auth/login. It never retries.
//
// The token is read from "token", falling back to "accessToken". A 2xx response without
// either returns ErrMissingToken.
func (c *Client) Login(ctx context.Context, creds Credentials) (LoginResult, error) {
	var resp loginResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", "", creds, &resp, false); err != nil {
		return LoginResult{}, err
	}

	token := strings.TrimSpace(resp.Token)
	if token == "" {
		token = strings.TrimSpace(resp.AccessToken)
	}
	if token == "" {
		return LoginResult{Message: resp.Message}, ErrMissingToken
	}
	return LoginResult{Token: token, Message: resp.Message}, nil
}
