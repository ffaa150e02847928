// Package config loads the probe configuration from probe.yaml, an optional
// .env file, and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file name looked up in the working directory.
const DefaultFile = "probe.yaml"

// DefaultCookieName is the cookie the API under test reads its session token from.
const DefaultCookieName = "auth-token"

// AuthConfig controls how session tokens are fabricated.
type AuthConfig struct {
	JWTSecret   string        `yaml:"jwt_secret"`
	CookieName  string        `yaml:"cookie_name"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
	EmailDomain string        `yaml:"email_domain"`
}

// LogConfig controls the logrus logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// DatabaseConfig points at the Postgres store backing the API under test.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RESTConfig points at a Supabase/PostgREST data API in front of that store.
type RESTConfig struct {
	URL string `yaml:"url"`
	Key string `yaml:"key"`
}

// MetricsConfig controls the optional Pushgateway export.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

// ReportConfig controls the end-of-run summary.
type ReportConfig struct {
	Categories []string `yaml:"categories"`
	JSONPath   string   `yaml:"json_path"`
}

// TwinConfig controls the local API simulation.
type TwinConfig struct {
	Port        int           `yaml:"port"`
	OTPTTL      time.Duration `yaml:"otp_ttl"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// Config is the full probe configuration.
type Config struct {
	BaseURL       string         `yaml:"base_url"`
	Timeout       time.Duration  `yaml:"timeout"`
	PassThreshold float64        `yaml:"pass_threshold"`
	Suites        []string       `yaml:"suites"`
	TwinAdminURL  string         `yaml:"twin_admin_url"`
	Auth          AuthConfig     `yaml:"auth"`
	Log           LogConfig      `yaml:"log"`
	Database      DatabaseConfig `yaml:"database"`
	REST          RESTConfig     `yaml:"rest"`
	Metrics       MetricsConfig  `yaml:"metrics"`
	Report        ReportConfig   `yaml:"report"`
	Twin          TwinConfig     `yaml:"twin"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		BaseURL:       "http://localhost:3000",
		PassThreshold: 0.8,
		Suites:        []string{"auth", "chat", "refund", "kyc", "admin"},
		Auth: AuthConfig{
			CookieName:  DefaultCookieName,
			TokenTTL:    time.Hour,
			EmailDomain: "example.com",
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{
			Job: "apiprobe",
		},
		Report: ReportConfig{
			Categories: []string{"OTP", "Auth", "Chat", "Refund", "KYC", "Admin"},
		},
		Twin: TwinConfig{
			Port:        3000,
			OTPTTL:      10 * time.Minute,
			MaxAttempts: 5,
		},
	}
}

// Load reads path (if it exists), loads a .env file from the working
// directory (if any), and applies environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// defaults
	default:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&c.BaseURL, "PROBE_BASE_URL")
	setString(&c.Auth.JWTSecret, "PROBE_JWT_SECRET")
	setString(&c.Database.URL, "PROBE_DATABASE_URL")
	setString(&c.REST.URL, "SUPABASE_URL")
	setString(&c.REST.Key, "SUPABASE_SERVICE_KEY")
	setString(&c.Metrics.PushgatewayURL, "PROBE_PUSHGATEWAY_URL")
	setString(&c.TwinAdminURL, "PROBE_TWIN_ADMIN_URL")
	setString(&c.Log.Level, "PROBE_LOG_LEVEL")

	if v := os.Getenv("PROBE_PASS_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("PROBE_PASS_THRESHOLD: %w", err)
		}
		c.PassThreshold = f
	}
	return nil
}

// fillDefaults restores defaults for fields a partial file left empty.
func (c *Config) fillDefaults() {
	def := Default()
	if c.Auth.CookieName == "" {
		c.Auth.CookieName = def.Auth.CookieName
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = def.Auth.TokenTTL
	}
	if c.Auth.EmailDomain == "" {
		c.Auth.EmailDomain = def.Auth.EmailDomain
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = def.Metrics.Job
	}
	if c.Twin.OTPTTL == 0 {
		c.Twin.OTPTTL = def.Twin.OTPTTL
	}
	if c.Twin.MaxAttempts == 0 {
		c.Twin.MaxAttempts = def.Twin.MaxAttempts
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

// Validate checks the configuration for values the runner cannot work with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url: scheme must be http or https, got %q", u.Scheme)
	}
	if c.PassThreshold < 0 || c.PassThreshold > 1 {
		return fmt.Errorf("pass_threshold must be between 0.0 and 1.0, got %v", c.PassThreshold)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.Log.Format != "" && c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}
