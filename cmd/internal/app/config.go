package app

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"cmsconsole/cmd/internal/auth/session"
	"cmsconsole/cmd/internal/upstream"
	"cmsconsole/cmd/security/token"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names the optional YAML config file.
const ConfigFileEnv = "CMS_CONFIG_FILE"

// Config contains all runtime configuration.
//
// Sources, lowest precedence first: defaults, the YAML file named by CMS_CONFIG_FILE,
// then CMS_* environment variables (a .env file is loaded into the environment first).
type Config struct {
	HTTPAddr  string `yaml:"http_addr"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	MaxHeaderBytes    int           `yaml:"max_header_bytes"`

	// Content API. A zero APITimeout disables the client-side timeout.
	APIBaseURL string        `yaml:"api_base_url"`
	APITimeout time.Duration `yaml:"api_timeout"`

	Storage StorageConfig `yaml:"storage"`

	SessionIdle   time.Duration `yaml:"session_idle"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	GuardWait     time.Duration `yaml:"guard_wait"`

	CookieSecure   bool   `yaml:"cookie_secure"`
	CookieDomain   string `yaml:"cookie_domain"`
	CookieSameSite string `yaml:"cookie_same_site"`

	MaxUploadBytes  int64 `yaml:"max_upload_bytes"`
	MaxGalleryFiles int   `yaml:"max_gallery_files"`

	// ScopeKey keys the tab id hash. It is read from the environment only.
	ScopeKey        string `yaml:"-"`
	RequireScopeKey bool   `yaml:"require_scope_key"`

	WSAllowedOrigins []string `yaml:"ws_allowed_origins"`
	WSOriginRequired bool     `yaml:"ws_origin_required"`
	WSDevInsecure    bool     `yaml:"ws_dev_insecure"`

	MetricsEnabled bool `yaml:"metrics_enabled"`
}

// StorageConfig selects the tab storage backend.
type StorageConfig struct {
	Driver string        `yaml:"driver"`
	TTL    time.Duration `yaml:"ttl"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisUsername string `yaml:"redis_username"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`

	DatabaseURL string `yaml:"database_url"`
	DBMaxConns  int32  `yaml:"db_max_conns"`
	DBMinConns  int32  `yaml:"db_min_conns"`

	BoltPath string `yaml:"bolt_path"`
}

// Backend converts the storage section into a session.BackendConfig.
func (s StorageConfig) Backend() session.BackendConfig {
	return session.BackendConfig{
		Driver:        s.Driver,
		TTL:           s.TTL,
		RedisAddr:     s.RedisAddr,
		RedisUsername: s.RedisUsername,
		RedisPassword: s.RedisPassword,
		RedisDB:       s.RedisDB,
		RedisPrefix:   s.RedisPrefix,
		DatabaseURL:   s.DatabaseURL,
		DBMaxConns:    s.DBMaxConns,
		DBMinConns:    s.DBMinConns,
		BoltPath:      s.BoltPath,
	}
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:  "0.0.0.0:8080",
		LogLevel:  "info",
		LogFormat: "auto",

		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		MaxHeaderBytes:    1 << 20,

		APIBaseURL: upstream.DefaultBaseURL,
		APITimeout: 15 * time.Second,

		Storage: StorageConfig{
			Driver:      session.DriverMemory,
			TTL:         12 * time.Hour,
			RedisPrefix: "cms:tab:",
			DBMaxConns:  10,
			BoltPath:    "cmsconsole.db",
		},

		SessionIdle:   30 * time.Minute,
		SweepInterval: time.Minute,
		GuardWait:     3 * time.Second,

		CookieSameSite: "lax",

		MaxUploadBytes:  32 << 20,
		MaxGalleryFiles: 5,

		WSAllowedOrigins: []string{"http://localhost:8080", "http://127.0.0.1:8080"},
		WSOriginRequired: true,

		MetricsEnabled: true,
	}
}

// LoadConfig builds Config from defaults, the optional YAML file and the environment,
// then validates it.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := DefaultConfig()

	if path := EnvString(ConfigFileEnv, ""); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	f, err := os.Open(path) // #nosec G304 -- operator-supplied config path.
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = EnvString("CMS_HTTP_ADDR", c.HTTPAddr)
	c.LogLevel = EnvString("CMS_LOG_LEVEL", c.LogLevel)
	c.LogFormat = EnvString("CMS_LOG_FORMAT", c.LogFormat)

	c.ReadHeaderTimeout = EnvDuration("CMS_HTTP_READ_HEADER_TIMEOUT", c.ReadHeaderTimeout)
	c.ReadTimeout = EnvDuration("CMS_HTTP_READ_TIMEOUT", c.ReadTimeout)
	c.WriteTimeout = EnvDuration("CMS_HTTP_WRITE_TIMEOUT", c.WriteTimeout)
	c.IdleTimeout = EnvDuration("CMS_HTTP_IDLE_TIMEOUT", c.IdleTimeout)
	c.ShutdownTimeout = EnvDuration("CMS_SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.MaxHeaderBytes = EnvInt("CMS_HTTP_MAX_HEADER_BYTES", c.MaxHeaderBytes)

	c.APIBaseURL = EnvString("CMS_API_BASE_URL", c.APIBaseURL)
	c.APITimeout = EnvDurationOrZero("CMS_API_TIMEOUT", c.APITimeout)

	c.Storage.Driver = EnvString("CMS_STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.TTL = EnvDuration("CMS_STORAGE_TTL", c.Storage.TTL)
	c.Storage.RedisAddr = EnvString("CMS_REDIS_ADDR", c.Storage.RedisAddr)
	c.Storage.RedisUsername = EnvString("CMS_REDIS_USERNAME", c.Storage.RedisUsername)
	c.Storage.RedisPassword = EnvString("CMS_REDIS_PASSWORD", c.Storage.RedisPassword)
	c.Storage.RedisDB = EnvInt("CMS_REDIS_DB", c.Storage.RedisDB)
	c.Storage.RedisPrefix = EnvString("CMS_REDIS_PREFIX", c.Storage.RedisPrefix)
	c.Storage.DatabaseURL = EnvString("CMS_DATABASE_URL", c.Storage.DatabaseURL)
	c.Storage.DBMaxConns = EnvInt32("CMS_DB_MAX_CONNS", c.Storage.DBMaxConns)
	c.Storage.DBMinConns = EnvInt32("CMS_DB_MIN_CONNS", c.Storage.DBMinConns)
	c.Storage.BoltPath = EnvString("CMS_BOLT_PATH", c.Storage.BoltPath)

	c.SessionIdle = EnvDuration("CMS_SESSION_IDLE", c.SessionIdle)
	c.SweepInterval = EnvDuration("CMS_SWEEP_INTERVAL", c.SweepInterval)
	c.GuardWait = EnvDuration("CMS_GUARD_WAIT", c.GuardWait)

	c.CookieSecure = EnvBool("CMS_COOKIE_SECURE", c.CookieSecure)
	c.CookieDomain = EnvString("CMS_COOKIE_DOMAIN", c.CookieDomain)
	c.CookieSameSite = EnvString("CMS_COOKIE_SAMESITE", c.CookieSameSite)

	c.MaxUploadBytes = int64(EnvInt("CMS_MAX_UPLOAD_BYTES", int(c.MaxUploadBytes)))
	c.MaxGalleryFiles = EnvInt("CMS_MAX_GALLERY_FILES", c.MaxGalleryFiles)

	c.ScopeKey = EnvString(token.ScopeKeyEnv, c.ScopeKey)
	c.RequireScopeKey = EnvBool("CMS_REQUIRE_SCOPE_KEY", c.RequireScopeKey)

	c.WSAllowedOrigins = EnvList("CMS_WS_ALLOWED_ORIGINS", c.WSAllowedOrigins)
	c.WSOriginRequired = EnvBool("CMS_WS_ORIGIN_REQUIRED", c.WSOriginRequired)
	c.WSDevInsecure = EnvBool("CMS_WS_DEV_INSECURE", c.WSDevInsecure)

	c.MetricsEnabled = EnvBool("CMS_METRICS_ENABLED", c.MetricsEnabled)
}

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("http_addr is empty"))
	}

	switch session.NormalizeDriver(c.Storage.Driver) {
	case session.DriverMemory, session.DriverBolt:
	case session.DriverRedis:
		if strings.TrimSpace(c.Storage.RedisAddr) == "" {
			errs = append(errs, errors.New("storage driver redis requires CMS_REDIS_ADDR"))
		}
	case session.DriverPostgres:
		if strings.TrimSpace(c.Storage.DatabaseURL) == "" {
			errs = append(errs, errors.New("storage driver postgres requires CMS_DATABASE_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}

	if u, err := url.Parse(strings.TrimSpace(c.APIBaseURL)); err != nil || u.Host == "" ||
		(u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("api_base_url %q is not an absolute http(s) URL", c.APIBaseURL))
	}

	sameSite, err := ParseSameSite(c.CookieSameSite)
	if err != nil {
		errs = append(errs, err)
	} else if sameSite == http.SameSiteNoneMode && !c.CookieSecure {
		errs = append(errs, errors.New("cookie_same_site none requires cookie_secure"))
	}

	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "", "auto", "json", "pretty":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// ParseSameSite maps lax, strict and none to their cookie modes. Empty means lax.
func ParseSameSite(s string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("unknown cookie SameSite mode %q", s)
	}
}
