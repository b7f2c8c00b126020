package upstream

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingToken is returned when a login response is 2xx but carries no token.
	ErrMissingToken = errors.New("login response has no token")

	// ErrNoCredentials is returned when an authenticated call is made without a token.
	ErrNoCredentials = errors.New("no bearer token")

	// ErrConfig is returned for invalid client configuration.
	ErrConfig = errors.New("invalid upstream config")
)

// APIError is a non-2xx response from the content API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream status %d", e.Status)
	}
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Message)
}

// MessageOf returns the server-provided message carried by err, or fallback.
func MessageOf(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if msg := strings.TrimSpace(apiErr.Message); msg != "" {
			return msg
		}
	}
	return fallback
}
