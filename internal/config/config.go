// Package config provides configuration loading for psabridge.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Duration wraps time.Duration for text-based config parsing ("15m", "10s").
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Secret wraps strings that should never appear in logs or serialized output.
// Use Value() to access the actual secret value.
type Secret string

// String implements fmt.Stringer. Always returns the redacted value.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer for %#v formatting.
func (s Secret) GoString() string {
	return "Secret([REDACTED])"
}

// MarshalJSON implements json.Marshaler. Secrets are redacted in JSON too.
func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Value returns the actual secret value.
func (s Secret) Value() string {
	return string(s)
}

// Config is the root psabridge configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Autotask AutotaskConfig `koanf:"autotask"`
	Cache    CacheConfig    `koanf:"cache"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig configures the HTTP front door used in daemon mode.
type ServerConfig struct {
	HTTPPort        int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// AutotaskConfig holds Autotask REST API credentials and client tuning.
//
// Authentication uses static header credentials (ApiIntegrationCode,
// UserName, Secret); there is no OAuth flow.
type AutotaskConfig struct {
	// BaseURL is the zone-specific API base, e.g.
	// https://webservices2.autotask.net/atservicesrest/v1.0
	BaseURL string `koanf:"base_url"`

	// Username is the API user (typically an email-style key).
	Username string `koanf:"username"`

	// Secret is the API user's secret.
	Secret Secret `koanf:"secret"`

	// IntegrationCode identifies the integration vendor.
	IntegrationCode Secret `koanf:"integration_code"`

	// RequestTimeout bounds each outbound API call.
	RequestTimeout Duration `koanf:"request_timeout"`

	// RateLimit is the sustained outbound requests-per-second budget.
	RateLimit float64 `koanf:"rate_limit"`

	// RateBurst is the burst allowance for the outbound limiter.
	RateBurst int `koanf:"rate_burst"`
}

// CacheConfig tunes the reference-data cache.
type CacheConfig struct {
	// RefreshInterval is the period between background refreshes.
	RefreshInterval Duration `koanf:"refresh_interval"`

	// ResourceTimeout bounds the live resource-set fetch. On expiry the
	// resource set is cleared (fail-closed).
	ResourceTimeout Duration `koanf:"resource_timeout"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// NewDefaultConfig returns config with production defaults. Credentials are
// intentionally empty and must come from the config file or environment.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        9180,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Autotask: AutotaskConfig{
			RequestTimeout: Duration(30 * time.Second),
			RateLimit:      5,
			RateBurst:      10,
		},
		Cache: CacheConfig{
			RefreshInterval: Duration(15 * time.Minute),
			ResourceTimeout: Duration(10 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port must be 1-65535, got %d", c.Server.HTTPPort)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	if c.Autotask.BaseURL == "" {
		return fmt.Errorf("autotask.base_url is required")
	}
	if !strings.HasPrefix(c.Autotask.BaseURL, "https://") && !strings.HasPrefix(c.Autotask.BaseURL, "http://") {
		return fmt.Errorf("autotask.base_url must be an http(s) URL, got %q", c.Autotask.BaseURL)
	}
	if c.Autotask.Username == "" {
		return fmt.Errorf("autotask.username is required")
	}
	if c.Autotask.Secret == "" {
		return fmt.Errorf("autotask.secret is required")
	}
	if c.Autotask.IntegrationCode == "" {
		return fmt.Errorf("autotask.integration_code is required")
	}
	if c.Autotask.RequestTimeout.Duration() <= 0 {
		return fmt.Errorf("autotask.request_timeout must be > 0")
	}
	if c.Autotask.RateLimit <= 0 {
		return fmt.Errorf("autotask.rate_limit must be > 0, got %v", c.Autotask.RateLimit)
	}
	if c.Autotask.RateBurst < 1 {
		return fmt.Errorf("autotask.rate_burst must be >= 1, got %d", c.Autotask.RateBurst)
	}

	if c.Cache.RefreshInterval.Duration() < time.Minute {
		return fmt.Errorf("cache.refresh_interval must be >= 1m, got %s", c.Cache.RefreshInterval.Duration())
	}
	if c.Cache.ResourceTimeout.Duration() <= 0 {
		return fmt.Errorf("cache.resource_timeout must be > 0")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug|info|warn|error, got %q", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	return nil
}
