package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYAML = `
autotask:
  base_url: https://webservices2.autotask.net/atservicesrest/v1.0
  username: api-user@example.com
  secret: s3cret
  integration_code: INTEG123
cache:
  refresh_interval: 5m
logging:
  level: debug
  format: console
`

func writeConfigFile(t *testing.T, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, testYAML, 0o600)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "api-user@example.com", cfg.Autotask.Username)
	assert.Equal(t, "s3cret", cfg.Autotask.Secret.Value())
	assert.Equal(t, 5*time.Minute, cfg.Cache.RefreshInterval.Duration())
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Unset fields keep defaults.
	assert.Equal(t, 10*time.Second, cfg.Cache.ResourceTimeout.Duration())
	assert.Equal(t, 9180, cfg.Server.HTTPPort)
}

func TestLoadRejectsWorldReadableFile(t *testing.T) {
	path := writeConfigFile(t, testYAML, 0o644)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permissions")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, testYAML, 0o600)

	t.Setenv("AUTOTASK_USERNAME", "override@example.com")
	t.Setenv("CACHE_REFRESH_INTERVAL", "30m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "override@example.com", cfg.Autotask.Username)
	assert.Equal(t, 30*time.Minute, cfg.Cache.RefreshInterval.Duration())
}

func TestLoadInvalidConfigFails(t *testing.T) {
	path := writeConfigFile(t, "autotask:\n  base_url: https://example.com\n", 0o600)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}
