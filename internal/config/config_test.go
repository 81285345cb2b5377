package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileWithDefaults(t *testing.T) {
	// Given: a config file that sets only a few fields
	path := writeConfig(t, `
log-level: debug
store:
  driver: redis
redis:
  addr: redis:6379
auth:
  secret: s3cret
`)

	// When: loading it
	cfg, err := Load(path)

	// Then: file values win and the rest comes from defaults
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, StoreRedis, cfg.Store.Driver)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 10*time.Second, cfg.Session.HeartbeatInterval)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
http:
  addr: ":9000"
auth:
  secret: from-file
`)
	t.Setenv("HTTP_ADDR", ":9191")
	t.Setenv("AUTH_SECRET", "from-env")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, ":9191", cfg.HTTP.Addr)
	assert.Equal(t, "from-env", cfg.Auth.Secret)
}

func TestLoad_EnvOnlyWhenFileMissing(t *testing.T) {
	t.Setenv("AUTH_SECRET", "env-only")
	t.Setenv("SESSION_IDLE_TIMEOUT", "30s")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))

	require.NoError(t, err)
	assert.Equal(t, "env-only", cfg.Auth.Secret)
	assert.Equal(t, 30*time.Second, cfg.Session.IdleTimeout)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
}

func TestValidate(t *testing.T) {
	t.Run("Unknown store driver", func(t *testing.T) {
		path := writeConfig(t, "store:\n  driver: mongo\nauth:\n  secret: x\n")
		_, err := Load(path)
		assert.ErrorIs(t, err, ErrUnknownStore)
	})

	t.Run("Unknown exporter", func(t *testing.T) {
		path := writeConfig(t, "telemetry:\n  exporter: zipkin\nauth:\n  secret: x\n")
		_, err := Load(path)
		assert.ErrorIs(t, err, ErrUnknownExporter)
	})

	t.Run("Missing secret", func(t *testing.T) {
		path := writeConfig(t, "log-level: info\n")
		_, err := Load(path)
		assert.ErrorIs(t, err, ErrMissingSecret)
	})
}
