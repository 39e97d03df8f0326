package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.HTTPPort)
	assert.Equal(t, "accounts.db", cfg.Database.Path)
	assert.Equal(t, "https://back.zaiwenai.com", cfg.Upstream.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.Upstream.PollInterval)
}

func TestLoad_FromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  http_port: 9000
  metrics_port: 0
database:
  path: /var/lib/zaiwen2api/accounts.db
upstream:
  base_url: http://127.0.0.1:8081
  poll_interval: 500ms
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, 0, cfg.Server.MetricsPort)
	assert.Equal(t, "/var/lib/zaiwen2api/accounts.db", cfg.Database.Path)
	assert.Equal(t, "http://127.0.0.1:8081", cfg.Upstream.BaseURL)
	assert.Equal(t, 500*time.Millisecond, cfg.Upstream.PollInterval)
	assert.Equal(t, "debug", cfg.Log.Level)
	// 文件未覆盖的字段保留默认值
	assert.Equal(t, 180*time.Second, cfg.Upstream.Timeout)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.HTTPPort)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 9000\n"), 0o644))

	t.Setenv("ZAIWEN2API_SERVER_HTTP_PORT", "9100")
	t.Setenv("ZAIWEN2API_UPSTREAM_TIMEOUT", "90s")
	t.Setenv("ZAIWEN2API_LOG_OUTPUT_PATHS", "stdout, /var/log/zaiwen2api.log")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.HTTPPort)
	assert.Equal(t, 90*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, []string{"stdout", "/var/log/zaiwen2api.log"}, cfg.Log.OutputPaths)
}

func TestLoad_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_SERVER_HTTP_PORT", "7070")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.HTTPPort)
}

func TestLoad_ValidatorRejects(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error { return assert.AnError }).
		Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Server.HTTPPort = 0
	assert.ErrorContains(t, cfg.Validate(), "invalid HTTP port")

	cfg = DefaultConfig()
	cfg.Upstream.BaseURL = ""
	assert.ErrorContains(t, cfg.Validate(), "base_url")

	cfg = DefaultConfig()
	cfg.Upstream.PollTimeout = time.Second
	cfg.Upstream.PollInterval = 2 * time.Second
	assert.ErrorContains(t, cfg.Validate(), "poll_timeout")
}
