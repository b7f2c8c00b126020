// Package main provides a CI-friendly smoke test for the console's live notice stream.
//
// Against a running console and a reachable content API it validates:
//   - tab and CSRF cookies on the login page
//   - login redirect into the dashboard
//   - handshake + subprotocol selection on the notice stream
//   - hello/ack carrying the pending login notice
//   - notice_dismiss -> notice_dismissed
//   - logout closing the stream
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "cmsconsole/shared/contracts/notices/v1"

	"github.com/coder/websocket"
)

const (
	eventsPath   = "/admin/dashboard/events"
	csrfCookie   = "cms_csrf"
	maxReadBytes = 1 << 20 // 1MiB
)

type smokeClient struct {
	conn   *websocket.Conn
	connID string

	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		baseURL  = flag.String("base", "http://127.0.0.1:8080", "Console base URL")
		origin   = flag.String("origin", "", "Origin header for the WebSocket handshake (default: -base)")
		email    = flag.String("email", "", "Admin email")
		password = flag.String("password", "", "Admin password")
		timeout  = flag.Duration("timeout", 10*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	base, err := validateBaseURL(*baseURL)
	if err != nil {
		fatalf("invalid -base: %v", err)
	}
	if *origin == "" {
		*origin = base.Scheme + "://" + base.Host
	}
	if strings.TrimSpace(*email) == "" || *password == "" {
		fatalf("-email and -password are required")
	}

	root := context.Background()

	jar, err := cookiejar.New(nil)
	if err != nil {
		fatalf("cookie jar: %v", err)
	}
	httpc := &http.Client{
		Jar:     jar,
		Timeout: *timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	csrf := mustOpenTab(httpc, base)
	mustLogin(httpc, base, csrf, *email, *password)

	c := mustConnect(root, base, jar, *origin, *timeout)
	defer closeWS(c.conn)

	ack := c.mustHello(root, *timeout)
	if *verbose {
		fmt.Printf("connected: conn=%s pending=%d\n", c.connID, len(ack.Pending))
	}

	var loginNotice *v1.NoticePayload
	for i := range ack.Pending {
		if ack.Pending[i].Level == "success" {
			loginNotice = &ack.Pending[i]
			break
		}
	}
	if loginNotice == nil {
		fatalf("hello_ack carries no success notice after login (pending=%d)", len(ack.Pending))
	}

	mustWriteWithTimeout(root, c.conn, v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeNoticeDismiss,
		ID:      "smoke-dismiss",
		TS:      time.Now().UTC(),
		Payload: mustJSON(v1.NoticeDismissPayload{ID: loginNotice.ID}),
	}, *timeout)

	env := c.mustReadUntilType(root, v1.TypeNoticeDismissed, *timeout, map[string]struct{}{v1.TypeNotice: {}})
	var dp v1.NoticeDismissedPayload
	if err := json.Unmarshal(env.Payload, &dp); err != nil {
		fatalf("unmarshal notice_dismissed: %v", err)
	}
	if dp.ID != loginNotice.ID || !dp.Removed {
		fatalf("notice_dismissed: got id=%q removed=%v want id=%q removed=true", dp.ID, dp.Removed, loginNotice.ID)
	}

	mustLogout(httpc, base, csrf)
	c.mustClose(root, *timeout)

	fmt.Println("OK: notice stream smoke passed")
}

func validateBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return nil, errors.New("missing host")
	}
	return u, nil
}

func mustOpenTab(httpc *http.Client, base *url.URL) string {
	resp, err := httpc.Get(base.ResolveReference(&url.URL{Path: "/"}).String())
	if err != nil {
		fatalf("GET /: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fatalf("GET /: status %d", resp.StatusCode)
	}

	for _, c := range httpc.Jar.Cookies(base) {
		if c.Name == csrfCookie {
			return c.Value
		}
	}
	fatalf("GET /: no %s cookie issued", csrfCookie)
	return ""
}

func mustLogin(httpc *http.Client, base *url.URL, csrf, email, password string) {
	form := url.Values{
		"email":    {email},
		"password": {password},
		"_csrf":    {csrf},
	}
	resp, err := httpc.PostForm(base.ResolveReference(&url.URL{Path: "/"}).String(), form)
	if err != nil {
		fatalf("POST /: %v", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusSeeOther {
		fatalf("login: status %d (credentials rejected or API unreachable)", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/admin/dashboard" {
		fatalf("login: redirected to %q want /admin/dashboard", loc)
	}
}

func mustLogout(httpc *http.Client, base *url.URL, csrf string) {
	resp, err := httpc.PostForm(base.ResolveReference(&url.URL{Path: "/logout"}).String(), url.Values{"_csrf": {csrf}})
	if err != nil {
		fatalf("POST /logout: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		fatalf("logout: status %d", resp.StatusCode)
	}
}

func mustConnect(parent context.Context, base *url.URL, jar http.CookieJar, origin string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	wsURL := *base
	wsURL.Scheme = "ws"
	if base.Scheme == "https" {
		wsURL.Scheme = "wss"
	}
	wsURL.Path = eventsPath

	h := http.Header{}
	h.Set("Origin", origin)
	for _, c := range jar.Cookies(base) {
		h.Add("Cookie", c.String())
	}

	conn, resp, err := websocket.Dial(ctx, wsURL.String(), &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", wsURL.String(), err)
	}

	if got := conn.Subprotocol(); got != v1.Subprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, v1.Subprotocol)
	}
	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		conn:  conn,
		inbox: make(chan v1.Envelope, 64),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()
	return c
}

func (c *smokeClient) mustHello(parent context.Context, stepTimeout time.Duration) v1.HelloAckPayload {
	mustWriteWithTimeout(parent, c.conn, v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeHello,
		ID:      "smoke-hello",
		TS:      time.Now().UTC(),
		Payload: mustJSON(v1.HelloPayload{}),
	}, stepTimeout)

	env := c.mustReadUntilType(parent, v1.TypeHelloAck, stepTimeout, nil)

	var p v1.HelloAckPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal hello_ack payload: %v", err)
	}
	if strings.TrimSpace(p.ConnID) == "" {
		fatalf("hello_ack missing conn_id")
	}
	c.connID = p.ConnID
	return p
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}

			if mt != websocket.MessageText {
				select {
				case c.errCh <- fmt.Errorf("unsupported message type: %v", mt):
				default:
				}
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}
			if err := env.Validate(); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad envelope: %w", err):
				default:
				}
				return
			}

			select {
			case c.inbox <- env:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration, skipTypes map[string]struct{}) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q: %v", wantType, ctx.Err())
		case err := <-c.errCh:
			fatalf("connection error while waiting for %q: %v", wantType, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q", wantType)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error: code=%q msg=%q", ep.Code, ep.Message)
			}
			if _, ok := skipTypes[env.Type]; ok {
				continue
			}
			fatalf("unexpected envelope type: got=%q want=%q", env.Type, wantType)
		}
	}
}

// mustClose waits for the server to end the stream.
func (c *smokeClient) mustClose(parent context.Context, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("stream still open after logout")
		case <-c.errCh:
			return
		case _, ok := <-c.inbox:
			if !ok {
				return
			}
		}
	}
}

func mustWriteWithTimeout(parent context.Context, conn *websocket.Conn, env v1.Envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
