// Package app wires the console runtime: config, logging, tab storage, HTTP routes and the
// live notice stream.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"cmsconsole/cmd/internal/auth/guard"
	"cmsconsole/cmd/internal/auth/session"
	"cmsconsole/cmd/internal/console"
	"cmsconsole/cmd/internal/notify"
	"cmsconsole/cmd/internal/realtime"
	"cmsconsole/cmd/internal/telemetry"
	"cmsconsole/cmd/internal/upstream"
	"cmsconsole/cmd/security/token"
)

// App is the console server runtime: it owns tab storage, the HTTP server wiring and the
// notice gateway.
type App struct {
	cfg Config
	log Logger

	backend  session.Backend
	sessions *session.Registry
	notices  *notify.Center
	hub      *realtime.Hub
	metrics  *telemetry.Metrics
	console  *console.Console
}

// New constructs a fully wired App from config and logger. It opens the storage backend;
// the caller owns the App and must Run it (which closes the backend) or call Close.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	scopeKey, err := ValidateSecurityConfig(cfg)
	if err != nil {
		return nil, err
	}
	if scopeKey == nil {
		log.Warn("security.scope_key.missing", "env", token.ScopeKeyEnv)
	}

	sameSite, err := ParseSameSite(cfg.CookieSameSite)
	if err != nil {
		return nil, err
	}

	api, err := upstream.New(upstream.Config{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.APITimeout,
	}, log)
	if err != nil {
		return nil, err
	}

	backend, err := session.OpenBackend(ctx, cfg.Storage.Backend())
	if err != nil {
		return nil, fmt.Errorf("open tab storage: %w", err)
	}

	var metrics *telemetry.Metrics
	if cfg.MetricsEnabled {
		metrics = telemetry.New()
	}

	notices := notify.NewCenter(notify.Options{
		Observe: func(l notify.Level) { metrics.Notice(string(l)) },
	}, log)

	hub := realtime.NewHub(log)
	notices.SetPublisher(hub)

	sessions := session.NewRegistry(backend, func(tabID string) string {
		return token.ScopeHex(tabID, scopeKey)
	}, session.RegistryConfig{
		Idle: cfg.SessionIdle,
		OnEvict: func(tabID string) {
			hub.DisconnectTab(tabID)
			notices.Forget(tabID)
		},
	}, log)
	metrics.TrackTabSessions(sessions.Len)

	gwCfg := realtime.DefaultGatewayConfig()
	gwCfg.AllowedOrigins = cfg.WSAllowedOrigins
	gwCfg.OriginRequired = cfg.WSOriginRequired
	gwCfg.DevInsecure = cfg.WSDevInsecure

	gateway := realtime.NewGateway(log, hub, notices, func(r *http.Request) (string, bool) {
		return console.TabFrom(r.Context())
	}, gwCfg)
	gateway.OnStream = metrics.WSConnected

	ccfg := console.DefaultConfig()
	ccfg.CookieSecure = cfg.CookieSecure
	ccfg.CookieDomain = cfg.CookieDomain
	ccfg.CookieSameSite = sameSite
	ccfg.MaxUploadBytes = cfg.MaxUploadBytes
	ccfg.MaxGalleryFiles = cfg.MaxGalleryFiles
	ccfg.Guard.Wait = cfg.GuardWait
	ccfg.Guard.OnDecision = func(d guard.Decision) {
		log.Debug("guard.decision", "decision", d.String())
	}

	cons, err := console.New(log, ccfg, api, sessions, notices,
		console.WithMetrics(metrics),
		console.WithEvents(gateway, hub),
	)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	return &App{
		cfg:      cfg,
		log:      log,
		backend:  backend,
		sessions: sessions,
		notices:  notices,
		hub:      hub,
		metrics:  metrics,
		console:  cons,
	}, nil
}

// Handler returns the full HTTP handler chain.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.backend, a.metrics, a.console)
	return WithRequestLogging(WithSecurityHeaders(mux), a.log, a.metrics)
}

// Close releases the storage backend.
func (a *App) Close() error {
	return a.backend.Close()
}

// Run starts the HTTP server and background sweepers and blocks until context
// cancellation or a fatal server error.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.HTTPAddr)
	if err != nil {
		_ = a.Close()
		return err
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 30*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	bgCtx, stopBG := context.WithCancel(ctx)
	var bg sync.WaitGroup
	bg.Add(2)
	go func() {
		defer bg.Done()
		a.sessions.Run(bgCtx, a.cfg.SweepInterval)
	}()
	go func() {
		defer bg.Done()
		a.sweepStorage(bgCtx, a.cfg.SweepInterval)
	}()

	a.log.Info("server.start",
		"addr", ln.Addr().String(),
		"storage", session.NormalizeDriver(a.cfg.Storage.Driver),
		"api", a.cfg.APIBaseURL,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case runErr = <-errCh:
		a.log.Error("server.fail", "err", runErr)
	}

	stopBG()
	bg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if runErr == nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			runErr = err
		}
	}

	if err := a.Close(); err != nil {
		a.log.Error("storage.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return runErr
}

// sweepStorage purges expired entries from backends that do not expire on their own.
func (a *App) sweepStorage(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := sweepBackend(ctx, a.backend, now)
			if err != nil {
				a.log.Warn("storage.sweep.fail", "err", err)
				continue
			}
			if n > 0 {
				a.log.Debug("storage.sweep", "removed", n)
			}
		}
	}
}

func sweepBackend(ctx context.Context, b session.Backend, now time.Time) (int64, error) {
	switch sb := b.(type) {
	case *session.MemoryBackend:
		return int64(sb.Sweep(now)), nil
	case *session.BoltBackend:
		n, err := sb.Sweep(now)
		return int64(n), err
	case *session.PostgresBackend:
		return sb.DeleteExpired(ctx)
	default:
		// Redis expires keys itself.
		return 0, nil
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
