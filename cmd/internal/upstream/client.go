// Package upstream is the HTTP client for the content API the console manages.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the content API used when none is configured.
	DefaultBaseURL = "https://veekites.onrender.com"

	maxResponseBytes = 4 << 20
)

// Config controls the Client.
type Config struct {
	BaseURL string

	// Timeout bounds each call. Zero disables the client-side timeout.
	Timeout time.Duration

	UserAgent string
}

// Client talks to the content API. It is safe for concurrent use.
type Client struct {
	log  *slog.Logger
	base *url.URL
	http *http.Client
	ua   string
}

// New validates cfg and constructs a Client.
func New(cfg Config, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}

	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: base url: %v", ErrConfig, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("%w: base url must be http(s)", ErrConfig)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("%w: base url has no host", ErrConfig)
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = "cmsconsole"
	}

	return &Client{
		log:  log,
		base: base,
		http: &http.Client{Timeout: cfg.Timeout},
		ua:   ua,
	}, nil
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string { return c.base.String() }

func (c *Client) endpoint(path string) string {
	return c.base.String() + path
}

// request describes one API call.
type request struct {
	method      string
	path        string
	token       string
	body        io.Reader
	contentType string

	// authenticated calls fail fast without a token.
	authenticated bool
}

// do issues req and decodes a 2xx JSON body into out (when non-nil).
// Non-2xx responses become *APIError carrying the body's "message", if any.
func (c *Client) do(ctx context.Context, req request, out any) error {
	if req.authenticated && strings.TrimSpace(req.token) == "" {
		return ErrNoCredentials
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.endpoint(req.path), req.body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.ua)
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	if req.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.token)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.log.Warn("upstream.request.fail", "method", req.method, "path", req.path, "err", err)
		return fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	c.log.Debug("upstream.request",
		"method", req.method,
		"path", req.path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: messageField(body)}
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.method, req.path, err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, in, out any, authenticated bool) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	return c.do(ctx, request{
		method:        method,
		path:          path,
		token:         token,
		body:          body,
		contentType:   contentType,
		authenticated: authenticated,
	}, out)
}

func (c *Client) doForm(ctx context.Context, method, path, token string, form Form, out any) error {
	body, contentType, err := form.encode()
	if err != nil {
		return err
	}
	return c.do(ctx, request{
		method:        method,
		path:          path,
		token:         token,
		body:          body,
		contentType:   contentType,
		authenticated: true,
	}, out)
}

// messageField extracts a top-level string "message" from a JSON body.
func messageField(body []byte) string {
	var env struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	if env.Message != "" {
		return env.Message
	}
	return env.Error
}

func escape(id string) string {
	return url.PathEscape(id)
}
