// Package console serves the admin console: the public login page and the guarded
// /admin/dashboard subtree.
package console

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"cmsconsole/cmd/internal/auth/guard"
	"cmsconsole/cmd/internal/auth/session"
	"cmsconsole/cmd/internal/notify"
	"cmsconsole/cmd/internal/telemetry"
	"cmsconsole/cmd/internal/upstream"
)

const (
	// LoginPath is the public login route.
	LoginPath = "/"
	// DashboardPath is the root of the protected subtree.
	DashboardPath = "/admin/dashboard"
	// EventsPath streams live notices to an open page.
	EventsPath = DashboardPath + "/events"
)

// API is the subset of the content API the console calls.
type API interface {
	Login(ctx context.Context, creds upstream.Credentials) (upstream.LoginResult, error)

	ListServices(ctx context.Context, token string) ([]upstream.Service, error)
	CreateService(ctx context.Context, token string, form upstream.Form) error
	UpdateService(ctx context.Context, token, id string, form upstream.Form) error
	DeleteService(ctx context.Context, token, id string) error

	ListProjects(ctx context.Context, token string) ([]upstream.Project, error)
	GetProject(ctx context.Context, token, id string) (upstream.Project, error)
	CreateProject(ctx context.Context, token string, form upstream.Form) error
	UpdateProject(ctx context.Context, token, id string, form upstream.Form) error
	DeleteProject(ctx context.Context, token, id string) error

	ListTeam(ctx context.Context, token string) ([]upstream.TeamMember, error)
	CreateTeamMember(ctx context.Context, token string, form upstream.Form) error
	UpdateTeamMember(ctx context.Context, token, id string, form upstream.Form) error
	DeleteTeamMember(ctx context.Context, token, id string) error

	SaveSiteSection(ctx context.Context, token, section string, form upstream.Form) error
}

// Streams closes the live notice streams of a tab session.
type Streams interface {
	DisconnectTab(tabID string)
}

// Config controls cookies, upload limits and the guard.
type Config struct {
	TabCookieName  string
	CSRFCookieName string
	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite

	MaxUploadBytes  int64
	MaxGalleryFiles int

	Guard guard.Config
}

// DefaultConfig returns the defaults used when a field is zero.
func DefaultConfig() Config {
	return Config{
		TabCookieName:   "cms_tab",
		CSRFCookieName:  "cms_csrf",
		CookiePath:      "/",
		CookieSameSite:  http.SameSiteLaxMode,
		MaxUploadBytes:  32 << 20,
		MaxGalleryFiles: 5,
		Guard: guard.Config{
			Wait:       3 * time.Second,
			LoginPath:  LoginPath,
			RetryAfter: time.Second,
		},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TabCookieName == "" {
		c.TabCookieName = d.TabCookieName
	}
	if c.CSRFCookieName == "" {
		c.CSRFCookieName = d.CSRFCookieName
	}
	if c.CookiePath == "" {
		c.CookiePath = d.CookiePath
	}
	if c.CookieSameSite == 0 {
		c.CookieSameSite = d.CookieSameSite
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = d.MaxUploadBytes
	}
	if c.MaxGalleryFiles <= 0 {
		c.MaxGalleryFiles = d.MaxGalleryFiles
	}
	if c.Guard.LoginPath == "" {
		c.Guard.LoginPath = LoginPath
	}
	return c
}

// Console owns the console routes.
type Console struct {
	log      *slog.Logger
	cfg      Config
	api      API
	sessions *session.Registry
	notices  *notify.Center

	metrics *telemetry.Metrics
	events  http.Handler
	streams Streams

	pages pageSet
}

// Option configures optional Console dependencies.
type Option func(*Console)

// WithMetrics records logins, guard decisions and fetch failures.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Console) {
		if c == nil || m == nil {
			return
		}
		c.metrics = m
	}
}

// WithEvents mounts the live notice stream at EventsPath. streams is told to drop a
// tab's streams on logout.
func WithEvents(h http.Handler, streams Streams) Option {
	return func(c *Console) {
		if c == nil || h == nil {
			return
		}
		c.events = h
		c.streams = streams
	}
}

// New constructs a Console.
func New(log *slog.Logger, cfg Config, api API, sessions *session.Registry, notices *notify.Center, opts ...Option) (*Console, error) {
	if log == nil {
		log = slog.Default()
	}
	if api == nil {
		return nil, errors.New("console: nil api")
	}
	if sessions == nil {
		return nil, errors.New("console: nil session registry")
	}
	if notices == nil {
		notices = notify.NewCenter(notify.Options{}, log)
	}

	pages, err := parsePages()
	if err != nil {
		return nil, err
	}

	c := &Console{
		log:      log,
		cfg:      cfg.withDefaults(),
		api:      api,
		sessions: sessions,
		notices:  notices,
		pages:    pages,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	return c, nil
}

// Register wires the console routes onto mux.
func (c *Console) Register(mux *http.ServeMux) {
	if c == nil || mux == nil {
		return
	}

	mux.Handle("GET /{$}", c.withTab(http.HandlerFunc(c.handleLoginPage)))
	mux.Handle("POST /{$}", c.withTab(http.HandlerFunc(c.handleLoginSubmit)))
	mux.Handle("POST /logout", c.withTab(http.HandlerFunc(c.handleLogout)))

	protected := http.NewServeMux()
	protected.HandleFunc("GET /admin/dashboard", c.handleDashboard)
	protected.HandleFunc("GET /admin/dashboard/{$}", c.handleDashboard)

	protected.HandleFunc("GET /admin/dashboard/services", c.handleServices)
	protected.HandleFunc("POST /admin/dashboard/services", c.handleServiceCreate)
	protected.HandleFunc("GET /admin/dashboard/services/{id}", c.handleServices)
	protected.HandleFunc("POST /admin/dashboard/services/{id}", c.handleServiceUpdate)
	protected.HandleFunc("POST /admin/dashboard/services/{id}/delete", c.handleServiceDelete)

	protected.HandleFunc("GET /admin/dashboard/projects", c.handleProjects)
	protected.HandleFunc("POST /admin/dashboard/projects", c.handleProjectCreate)
	protected.HandleFunc("GET /admin/dashboard/projects/{id}", c.handleProjectDetail)
	protected.HandleFunc("GET /admin/dashboard/projects/{id}/edit", c.handleProjects)
	protected.HandleFunc("POST /admin/dashboard/projects/{id}", c.handleProjectUpdate)
	protected.HandleFunc("POST /admin/dashboard/projects/{id}/delete", c.handleProjectDelete)

	protected.HandleFunc("GET /admin/dashboard/team", c.handleTeam)
	protected.HandleFunc("POST /admin/dashboard/team", c.handleTeamCreate)
	protected.HandleFunc("GET /admin/dashboard/team/{id}", c.handleTeam)
	protected.HandleFunc("POST /admin/dashboard/team/{id}", c.handleTeamUpdate)
	protected.HandleFunc("POST /admin/dashboard/team/{id}/delete", c.handleTeamDelete)

	protected.HandleFunc("GET /admin/dashboard/site-management", c.handleSite)
	protected.HandleFunc("POST /admin/dashboard/site-management/{section}", c.handleSiteSave)

	if c.events != nil {
		protected.Handle("GET "+EventsPath, c.events)
	}

	// The guard wraps the subtree as one unit.
	gcfg := c.cfg.Guard
	observe := gcfg.OnDecision
	gcfg.OnDecision = func(d guard.Decision) {
		c.metrics.GuardDecision(d.String())
		if observe != nil {
			observe(d)
		}
	}
	gated := c.withTab(guard.Middleware(gcfg, c.lookupStore, c.log)(protected))

	mux.Handle(DashboardPath, gated)
	mux.Handle(DashboardPath+"/", gated)
}

// Handler returns a mux serving only the console routes.
func (c *Console) Handler() http.Handler {
	mux := http.NewServeMux()
	c.Register(mux)
	return mux
}

func (c *Console) lookupStore(r *http.Request) (*session.Store, bool) {
	tabID, ok := TabFrom(r.Context())
	if !ok {
		return nil, false
	}
	return c.sessions.Open(tabID), true
}
