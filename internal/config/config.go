// Package config loads the process configuration once at startup. The struct
// is passed by reference to every component that needs it; there is no global
// mutable state.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultDBPath         = "stravasync.db"
	defaultSessionTTL     = 30 // minutes
	defaultStravaBaseURL  = "https://www.strava.com"
	defaultStravaTimeout  = 10 * time.Second
	defaultSMTPPort       = 587
	defaultConfigFileName = "stravasync.yaml"
)

// Config is the root configuration document.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Session  SessionConfig  `yaml:"session"`
	Strava   StravaConfig   `yaml:"strava"`
	Email    EmailConfig    `yaml:"email"`
}

// ServerConfig controls the listen address.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
}

// Addr returns the host:port pair to listen on.
func (c ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// DatabaseConfig controls the SQLite file location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SessionConfig controls session token signing.
type SessionConfig struct {
	Secret        string `yaml:"secret"`
	ExpireMinutes int    `yaml:"expire_minutes"`
}

// TTL returns the session token lifetime.
func (c SessionConfig) TTL() time.Duration {
	return time.Duration(c.ExpireMinutes) * time.Minute
}

// StravaConfig holds the OAuth application credentials and endpoints.
// BaseURL and APIBaseURL exist so tests can point at a local server.
type StravaConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
	BaseURL      string `yaml:"base_url"`
	APIBaseURL   string `yaml:"api_base_url"`
	Timeout      string `yaml:"timeout"`
}

// RequestTimeout returns the bounded timeout for outbound Strava calls.
func (c StravaConfig) RequestTimeout() time.Duration {
	if c.Timeout == "" {
		return defaultStravaTimeout
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return defaultStravaTimeout
	}
	return d
}

// EmailConfig controls the verification mail sender. Disabled by default:
// registration then auto-verifies and returns the code in the response.
type EmailConfig struct {
	Enabled  bool   `yaml:"enabled"`
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variable overrides, in that order of precedence.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server:   ServerConfig{Host: "127.0.0.1", Port: "8080"},
		Database: DatabaseConfig{Path: defaultDBPath},
		Session:  SessionConfig{ExpireMinutes: defaultSessionTTL},
		Strava:   StravaConfig{BaseURL: defaultStravaBaseURL},
		Email:    EmailConfig{SMTPPort: defaultSMTPPort},
	}

	if path == "" {
		path = defaultConfigFileName
	}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Running without a config file is fine; env vars fill the gaps.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(cfg)

	if cfg.Strava.APIBaseURL == "" {
		cfg.Strava.APIBaseURL = cfg.Strava.BaseURL + "/api/v3"
	}
	if cfg.Session.Secret == "" {
		return nil, fmt.Errorf("session secret is required (set session.secret or SESSION_SECRET)")
	}
	if cfg.Session.ExpireMinutes <= 0 {
		cfg.Session.ExpireMinutes = defaultSessionTTL
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setFromEnv(&cfg.Server.Host, "HOST")
	setFromEnv(&cfg.Server.Port, "PORT")
	setFromEnv(&cfg.Database.Path, "STRAVASYNC_DB")
	setFromEnv(&cfg.Session.Secret, "SESSION_SECRET")
	setFromEnv(&cfg.Strava.ClientID, "STRAVA_CLIENT_ID")
	setFromEnv(&cfg.Strava.ClientSecret, "STRAVA_CLIENT_SECRET")
	setFromEnv(&cfg.Strava.RedirectURI, "STRAVA_REDIRECT_URI")
	setFromEnv(&cfg.Email.SMTPHost, "SMTP_HOST")
	setFromEnv(&cfg.Email.Username, "SMTP_USERNAME")
	setFromEnv(&cfg.Email.Password, "SMTP_PASSWORD")
	setFromEnv(&cfg.Email.From, "SMTP_FROM")
}

func setFromEnv(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}
