package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/grovetools/cncctl/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("CNCCTL_HOST", "")
	t.Setenv("CNCCTL_PORT", "")
	return dir
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadFromDefaultsWithoutFile(t *testing.T) {
	dir := isolate(t)

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, "", cfg.Path)
	assert.Equal(t, "bbctrl.local", cfg.Controller.Host)
	assert.Equal(t, "/websocket", cfg.Controller.WebsocketPath)
	assert.Equal(t, 2*time.Second, cfg.Controller.ReconnectInterval)
	assert.Equal(t, 250*time.Millisecond, cfg.Toolpath.RetryInitial)
	assert.Equal(t, 30*time.Second, cfg.Alerts.ErrorTimeout)
	assert.True(t, cfg.Upgrade.AutoCheck)
}

func TestLoadFromLayers(t *testing.T) {
	dir := isolate(t)

	write(t, filepath.Join(dir, "xdg", "cncctl", "cncctl.yml"), `
controller:
  host: global.local
  port: 8080
alerts:
  error_timeout: 10s
`)
	write(t, filepath.Join(dir, "cncctl.yml"), `
controller:
  host: shop.local
toolpath:
  retry_initial: 0s
  max_attempts: 20
upgrade:
  auto_check: false
logging:
  level: debug
`)
	write(t, filepath.Join(dir, "cncctl.override.yml"), `
controller:
  secure: true
`)

	sub := filepath.Join(dir, "jobs", "today")
	require.NoError(t, os.MkdirAll(sub, 0755))

	cfg, err := LoadFrom(sub)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "cncctl.yml"), cfg.Path)
	assert.Equal(t, "shop.local", cfg.Controller.Host)
	assert.Equal(t, 8080, cfg.Controller.Port, "global value survives a partial project section")
	assert.True(t, cfg.Controller.Secure)
	assert.Equal(t, 10*time.Second, cfg.Alerts.ErrorTimeout)
	assert.Equal(t, time.Duration(0), cfg.Toolpath.RetryInitial)
	assert.Equal(t, 20, cfg.Toolpath.MaxAttempts)
	assert.False(t, cfg.Upgrade.AutoCheck)

	var logCfg struct {
		Level string `yaml:"level"`
	}
	require.NoError(t, cfg.UnmarshalExtension("logging", &logCfg))
	assert.Equal(t, "debug", logCfg.Level)

	assert.Equal(t, "https://shop.local:8080/api", cfg.Controller.APIURL())
	assert.Equal(t, "wss://shop.local:8080/websocket", cfg.Controller.WebsocketURL())
}

func TestLoadTOML(t *testing.T) {
	dir := isolate(t)
	write(t, filepath.Join(dir, "cncctl.toml"), `
[controller]
host = "10.0.0.5"
reconnect_interval = "500ms"
`)

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", cfg.Controller.Host)
	assert.Equal(t, 500*time.Millisecond, cfg.Controller.ReconnectInterval)
}

func TestEnvironment(t *testing.T) {
	dir := isolate(t)
	write(t, filepath.Join(dir, ".env"), "SHOP_HOST=from-dotenv.local\n")
	write(t, filepath.Join(dir, "cncctl.yml"), `
controller:
  host: ${SHOP_HOST}
  api_path: ${API_PATH:-/api}
`)

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv.local", cfg.Controller.Host)
	assert.Equal(t, "/api", cfg.Controller.APIPath)

	t.Setenv("CNCCTL_HOST", "env.local")
	t.Setenv("CNCCTL_PORT", "9000")
	cfg, err = LoadFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, "env.local:9000", cfg.Controller.Address())
}

func TestLoadErrors(t *testing.T) {
	dir := isolate(t)

	_, err := Load(filepath.Join(dir, "missing.yml"))
	assert.True(t, errors.Is(err, errors.ErrCodeConfigNotFound))

	write(t, filepath.Join(dir, "bad.yml"), "controller: [unterminated")
	_, err = Load(filepath.Join(dir, "bad.yml"))
	assert.True(t, errors.Is(err, errors.ErrCodeConfigInvalid))

	write(t, filepath.Join(dir, "unknown.yml"), "controller:\n  hostname: x\n")
	_, err = Load(filepath.Join(dir, "unknown.yml"))
	assert.True(t, errors.Is(err, errors.ErrCodeConfigValidation))
}

func TestLoadFromBytes(t *testing.T) {
	isolate(t)
	cfg, err := LoadFromBytes([]byte("alerts:\n  error_timeout: 1m\n"))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.Alerts.ErrorTimeout)
}
