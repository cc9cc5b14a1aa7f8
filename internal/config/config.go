// Package config loads environment-based configuration for the portal.
// Missing required OAuth settings are a fatal startup error; nothing
// downstream re-validates them.
package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"runtime"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all environment-based configuration for the portal.
type Config struct {
	// Microsoft app registration (required).
	ClientID string `env:"AZURE_CLIENT_ID"`
	TenantID string `env:"AZURE_TENANT_ID"`

	// Redirect URI registered with the identity provider. Must be an
	// absolute URL; its path is the callback route the server handles.
	RedirectURI string `env:"REDIRECT_URI"`

	// Requested scopes, space separated. Order is preserved in the
	// authorize URL.
	Scopes []string `env:"OAUTH_SCOPES" envSeparator:" " envDefault:"openid profile email"`

	// Base URL of the auth backend that exchanges codes for tokens.
	BackendBaseURL string `env:"BACKEND_BASE_URL"`

	// Optional YAML file overriding backend endpoint paths and the
	// exchange dialect. Paths vary across backend revisions, so they are
	// configuration rather than constants.
	EndpointsFile string `env:"ENDPOINTS_FILE"`

	// Where the session database lives. Defaults to
	// ~/.fundquest-portal/session.db when empty.
	SessionDBPath string `env:"SESSION_DB_PATH"`

	// HTTP server settings.
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":3000"`

	// Seconds an error page waits before redirecting back to login.
	ErrorRedirectSeconds int `env:"ERROR_REDIRECT_SECONDS" envDefault:"3"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing the client configuration to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("AZURE_CLIENT_ID is required")
	}

	if c.TenantID == "" {
		return fmt.Errorf("AZURE_TENANT_ID is required")
	}

	if c.RedirectURI == "" {
		return fmt.Errorf("REDIRECT_URI is required")
	}

	u, err := url.Parse(c.RedirectURI)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("REDIRECT_URI must be an absolute URL, got %q", c.RedirectURI)
	}

	if c.BackendBaseURL == "" {
		return fmt.Errorf("BACKEND_BASE_URL is required")
	}

	if _, err := url.Parse(c.BackendBaseURL); err != nil {
		return fmt.Errorf("BACKEND_BASE_URL is not a valid URL: %w", err)
	}

	if len(c.Scopes) == 0 {
		return fmt.Errorf("OAUTH_SCOPES must name at least one scope")
	}

	if c.ErrorRedirectSeconds < 0 {
		return fmt.Errorf("ERROR_REDIRECT_SECONDS must not be negative")
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// DefaultSessionDBPath returns the default session database location:
// ~/.fundquest-portal/session.db
func DefaultSessionDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".fundquest-portal", "session.db"), nil
}

// Endpoint dialects. The envelope dialect posts {"authCode": ...} and
// expects a {success, data: {...}} body; the raw dialect posts
// {"code": ...} and gets the bare token string back.
const (
	DialectEnvelope = "envelope"
	DialectRaw      = "raw"
)

// Endpoints holds the backend path for each auth operation plus the
// exchange dialect. Backend revisions expose different paths, so
// deployments override these via ENDPOINTS_FILE.
type Endpoints struct {
	Exchange string `yaml:"exchange"`
	Refresh  string `yaml:"refresh"`
	Logout   string `yaml:"logout"`
	Profile  string `yaml:"profile"`
	Dialect  string `yaml:"dialect"`
}

// DefaultEndpoints returns the endpoint set of the current backend
// revision.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Exchange: "/api/v1/auth/microsoft/verify",
		Refresh:  "/api/v1/auth/refresh",
		Logout:   "/api/v1/auth/logout",
		Profile:  "/api/v1/user/profile",
		Dialect:  DialectEnvelope,
	}
}

// LoadEndpoints reads the endpoint override file at path. An empty path
// returns the defaults. Fields left empty in the file keep their default
// value, so a file may override just the dialect or a single path.
func LoadEndpoints(path string) (Endpoints, error) {
	eps := DefaultEndpoints()
	if path == "" {
		return eps, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return eps, fmt.Errorf("reading endpoints file: %w", err)
	}

	var override Endpoints
	if err := yaml.Unmarshal(data, &override); err != nil {
		return eps, fmt.Errorf("parsing endpoints file: %w", err)
	}

	if override.Exchange != "" {
		eps.Exchange = override.Exchange
	}

	if override.Refresh != "" {
		eps.Refresh = override.Refresh
	}

	if override.Logout != "" {
		eps.Logout = override.Logout
	}

	if override.Profile != "" {
		eps.Profile = override.Profile
	}

	if override.Dialect != "" {
		eps.Dialect = override.Dialect
	}

	if eps.Dialect != DialectEnvelope && eps.Dialect != DialectRaw {
		return eps, fmt.Errorf("unknown exchange dialect %q (want %q or %q)", eps.Dialect, DialectEnvelope, DialectRaw)
	}

	return eps, nil
}
