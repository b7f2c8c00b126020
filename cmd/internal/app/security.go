package app

import (
	"errors"
	"fmt"
	"net/http"

	"cmsconsole/cmd/security/token"
)

// ValidateSecurityConfig enforces the scope key policy at startup and returns the key.
//
// Without RequireScopeKey a missing key is allowed and tab ids are hashed unkeyed; a key
// that is present must still satisfy the length policy.
func ValidateSecurityConfig(cfg Config) ([]byte, error) {
	key, err := token.ParseScopeKey(cfg.ScopeKey)
	switch {
	case err == nil:
		return key, nil
	case errors.Is(err, token.ErrScopeKeyMissing):
		if cfg.RequireScopeKey {
			return nil, fmt.Errorf("security policy: CMS_REQUIRE_SCOPE_KEY=true but %s is missing", token.ScopeKeyEnv)
		}
		return nil, nil
	case errors.Is(err, token.ErrScopeKeyTooShort):
		return nil, fmt.Errorf("security policy: %s is too short (min %d bytes)", token.ScopeKeyEnv, token.MinScopeKeyBytes)
	case errors.Is(err, token.ErrScopeKeyTooLong):
		return nil, fmt.Errorf("security policy: %s is too long (max 64 bytes)", token.ScopeKeyEnv)
	default:
		return nil, err
	}
}

// contentSecurityPolicy allows the console's inline script and styles and same-origin
// WebSocket connections. Uploaded images are served by the content API.
const contentSecurityPolicy = "default-src 'self'; " +
	"script-src 'self' 'unsafe-inline'; " +
	"style-src 'self' 'unsafe-inline'; " +
	"img-src 'self' data: https:; " +
	"connect-src 'self'; " +
	"form-action 'self'; " +
	"frame-ancestors 'none'; " +
	"base-uri 'none'"

// WithSecurityHeaders sets the response headers every console page carries.
func WithSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", contentSecurityPolicy)
		if r.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000")
		}
		next.ServeHTTP(w, r)
	})
}
