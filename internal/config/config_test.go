package config

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Autotask.BaseURL = "https://webservices2.autotask.net/atservicesrest/v1.0"
	cfg.Autotask.Username = "api-user@example.com"
	cfg.Autotask.Secret = "s3cret"
	cfg.Autotask.IntegrationCode = "INTEG123"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing base url",
			mutate:  func(c *Config) { c.Autotask.BaseURL = "" },
			wantErr: "base_url is required",
		},
		{
			name:    "non-http base url",
			mutate:  func(c *Config) { c.Autotask.BaseURL = "ftp://example.com" },
			wantErr: "must be an http(s) URL",
		},
		{
			name:    "missing username",
			mutate:  func(c *Config) { c.Autotask.Username = "" },
			wantErr: "username is required",
		},
		{
			name:    "missing secret",
			mutate:  func(c *Config) { c.Autotask.Secret = "" },
			wantErr: "secret is required",
		},
		{
			name:    "missing integration code",
			mutate:  func(c *Config) { c.Autotask.IntegrationCode = "" },
			wantErr: "integration_code is required",
		},
		{
			name:    "zero rate limit",
			mutate:  func(c *Config) { c.Autotask.RateLimit = 0 },
			wantErr: "rate_limit must be > 0",
		},
		{
			name:    "refresh interval too short",
			mutate:  func(c *Config) { c.Cache.RefreshInterval = Duration(time.Second) },
			wantErr: "refresh_interval must be >= 1m",
		},
		{
			name:    "zero resource timeout",
			mutate:  func(c *Config) { c.Cache.ResourceTimeout = 0 },
			wantErr: "resource_timeout must be > 0",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.HTTPPort = 70000 },
			wantErr: "http_port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("15m")))
	assert.Equal(t, 15*time.Minute, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("not-a-duration")))
	assert.Error(t, d.UnmarshalText([]byte("-5s")))
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("hunter2")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "hunter2", s.Value())

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "hunter2")

	assert.Equal(t, "", Secret("").String())
}

func TestDefaultsAreSane(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, 15*time.Minute, cfg.Cache.RefreshInterval.Duration())
	assert.Equal(t, 10*time.Second, cfg.Cache.ResourceTimeout.Duration())
	assert.Equal(t, "json", cfg.Logging.Format)

	// Defaults alone must not validate: credentials are required.
	assert.Error(t, cfg.Validate())
}
