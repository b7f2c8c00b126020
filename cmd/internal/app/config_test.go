package app

import (
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("Validate(defaults): %v", err)
	}
}

func TestLoadConfig_Precedence(t *testing.T) {
	dir := chdirTemp(t)

	yamlPath := filepath.Join(dir, "console.yaml")
	yamlBody := `
http_addr: "127.0.0.1:9000"
log_level: debug
api_timeout: 5s
storage:
  driver: bolt
  bolt_path: /var/lib/cms/tabs.db
  ttl: 2h
ws_allowed_origins:
  - https://admin.example.com
`
	if err := os.WriteFile(yamlPath, []byte(yamlBody), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	t.Setenv(ConfigFileEnv, yamlPath)
	t.Setenv("CMS_LOG_LEVEL", "warn")
	t.Setenv("CMS_API_TIMEOUT", "0")
	t.Setenv("CMS_COOKIE_SECURE", "true")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.HTTPAddr != "127.0.0.1:9000" {
		t.Fatalf("HTTPAddr from file: got %q", cfg.HTTPAddr)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("LogLevel: env must win over file, got %q", cfg.LogLevel)
	}
	if cfg.APITimeout != 0 {
		t.Fatalf("APITimeout: got %v want 0 (disabled)", cfg.APITimeout)
	}
	if cfg.Storage.Driver != "bolt" || cfg.Storage.BoltPath != "/var/lib/cms/tabs.db" || cfg.Storage.TTL != 2*time.Hour {
		t.Fatalf("storage from file: got %+v", cfg.Storage)
	}
	if !cfg.CookieSecure {
		t.Fatalf("CookieSecure from env not applied")
	}
	if !reflect.DeepEqual(cfg.WSAllowedOrigins, []string{"https://admin.example.com"}) {
		t.Fatalf("WSAllowedOrigins: got %v", cfg.WSAllowedOrigins)
	}
	if cfg.GuardWait != DefaultConfig().GuardWait {
		t.Fatalf("GuardWait: default lost, got %v", cfg.GuardWait)
	}
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := chdirTemp(t)

	// godotenv never overrides variables that are already set; register cleanup for the one it sets.
	t.Setenv("CMS_HTTP_ADDR", "")
	_ = os.Unsetenv("CMS_HTTP_ADDR")

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("CMS_HTTP_ADDR=127.0.0.1:7070\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:7070" {
		t.Fatalf("HTTPAddr from .env: got %q", cfg.HTTPAddr)
	}
}

func TestLoadConfig_RejectsUnknownYAMLField(t *testing.T) {
	dir := chdirTemp(t)

	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("http_adr: typo\n"), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	t.Setenv(ConfigFileEnv, path)

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "unknown_driver", mutate: func(c *Config) { c.Storage.Driver = "etcd" }, wantErr: "unknown storage driver"},
		{name: "redis_without_addr", mutate: func(c *Config) { c.Storage.Driver = "redis" }, wantErr: "CMS_REDIS_ADDR"},
		{name: "postgres_without_url", mutate: func(c *Config) { c.Storage.Driver = "postgres" }, wantErr: "CMS_DATABASE_URL"},
		{name: "relative_api_url", mutate: func(c *Config) { c.APIBaseURL = "/api" }, wantErr: "api_base_url"},
		{name: "bad_same_site", mutate: func(c *Config) { c.CookieSameSite = "loose" }, wantErr: "SameSite"},
		{name: "none_needs_secure", mutate: func(c *Config) { c.CookieSameSite = "none" }, wantErr: "cookie_secure"},
		{name: "bad_log_format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: "log format"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("got %v want error containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestParseSameSite(t *testing.T) {
	cases := map[string]http.SameSite{
		"":       http.SameSiteLaxMode,
		"Lax":    http.SameSiteLaxMode,
		"strict": http.SameSiteStrictMode,
		" none ": http.SameSiteNoneMode,
	}
	for in, want := range cases {
		got, err := ParseSameSite(in)
		if err != nil || got != want {
			t.Fatalf("ParseSameSite(%q)=%v,%v want=%v", in, got, err, want)
		}
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("CMS_TEST_LIST", " a, ,b ,")
	if got := EnvList("CMS_TEST_LIST", nil); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("EnvList: got %v", got)
	}

	t.Setenv("CMS_TEST_DUR", "0")
	if got := EnvDurationOrZero("CMS_TEST_DUR", time.Second); got != 0 {
		t.Fatalf("EnvDurationOrZero(0): got %v", got)
	}
	if got := EnvDuration("CMS_TEST_DUR", time.Second); got != time.Second {
		t.Fatalf("EnvDuration(0): got %v want default", got)
	}

	t.Setenv("CMS_TEST_DUR", "-1s")
	if got := EnvDurationOrZero("CMS_TEST_DUR", time.Second); got != time.Second {
		t.Fatalf("EnvDurationOrZero(negative): got %v want default", got)
	}
}

func TestValidateSecurityConfig(t *testing.T) {
	key, err := ValidateSecurityConfig(Config{})
	if err != nil || key != nil {
		t.Fatalf("optional missing key: got %v,%v", key, err)
	}

	if _, err := ValidateSecurityConfig(Config{RequireScopeKey: true}); err == nil {
		t.Fatalf("required missing key: expected error")
	}

	if _, err := ValidateSecurityConfig(Config{ScopeKey: "short"}); err == nil {
		t.Fatalf("short key: expected error")
	}

	key, err = ValidateSecurityConfig(Config{ScopeKey: "0123456789abcdef0123", RequireScopeKey: true})
	if err != nil || string(key) != "0123456789abcdef0123" {
		t.Fatalf("valid key: got %q,%v", key, err)
	}
}
