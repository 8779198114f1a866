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
	path := filepath.Join(t.TempDir(), "sessiond.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	cfg.Store.Secret = "test-secret"
	require.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
http:
  address: ":9090"
  upstreamUrl: "http://localhost:3000"
identity:
  baseUrl: "http://identity.internal"
  timeout: 5s
store:
  secret: "s3cret"
  backend: redis
  redisAddr: "localhost:6379"
  retention: 48h
cookies:
  accessMaxAge: 30m
  refreshMaxAge: 72h
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Address)
	assert.Equal(t, "http://localhost:3000", cfg.HTTP.UpstreamURL)
	assert.Equal(t, "http://identity.internal", cfg.Identity.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Identity.Timeout)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, 48*time.Hour, cfg.Store.Retention)
	assert.Equal(t, 30*time.Minute, cfg.Cookies.AccessMaxAge)

	// Unset fields keep their defaults.
	assert.Equal(t, 3, cfg.Identity.RetryAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Store.SweepInterval)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
http:
  address: ":9090"
store:
  secret: "from-file"
`)
	t.Setenv("SESSIOND_HTTP_ADDRESS", ":7070")
	t.Setenv("SESSIOND_STORE_SECRET", "from-env")
	t.Setenv("SESSIOND_IDENTITY_TIMEOUT", "2s")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTP.Address)
	assert.Equal(t, "from-env", cfg.Store.Secret)
	assert.Equal(t, 2*time.Second, cfg.Identity.Timeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"EmptyAddress", func(c *Config) { c.HTTP.Address = "" }, "http.address"},
		{"EmptyIdentityURL", func(c *Config) { c.Identity.BaseURL = "" }, "identity.baseUrl"},
		{"ZeroTimeout", func(c *Config) { c.Identity.Timeout = 0 }, "identity.timeout"},
		{"EmptySecret", func(c *Config) { c.Store.Secret = "" }, "store.secret"},
		{"UnknownBackend", func(c *Config) { c.Store.Backend = "etcd" }, "store.backend"},
		{"RedisWithoutAddr", func(c *Config) { c.Store.Backend = "redis"; c.Store.RedisAddr = "" }, "store.redisAddr"},
		{"BoltWithoutDataDir", func(c *Config) { c.Store.DataDir = "" }, "store.dataDir"},
		{"NegativeRetention", func(c *Config) { c.Store.Retention = -time.Hour }, "store.retention"},
		{"RefreshShorterThanAccess", func(c *Config) { c.Cookies.RefreshMaxAge = time.Minute }, "refreshMaxAge"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Store.Secret = "test-secret"
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
