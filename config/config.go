// Package config aggregates runtime configuration for the session gateway,
// loaded from a YAML file with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Identity IdentityConfig `yaml:"identity"`
	Store    StoreConfig    `yaml:"store"`
	Cookies  CookieConfig   `yaml:"cookies"`
}

// HTTPConfig controls the gateway's own listener.
type HTTPConfig struct {
	Address      string        `yaml:"address"`
	UpstreamURL  string        `yaml:"upstreamUrl"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

// IdentityConfig points at the identity service and tunes its client.
type IdentityConfig struct {
	BaseURL       string        `yaml:"baseUrl"`
	Timeout       time.Duration `yaml:"timeout"`
	RetryAttempts int           `yaml:"retryAttempts"`
	RetryBackoff  time.Duration `yaml:"retryBackoff"`
	TokenTTLMins  int           `yaml:"tokenTtlMins"`
}

// StoreConfig configures the encrypted record store.
type StoreConfig struct {
	// Secret seeds the store's cipher and checksum keys.
	Secret string `yaml:"secret"`
	// Backend is "bolt" or "redis".
	Backend       string        `yaml:"backend"`
	DataDir       string        `yaml:"dataDir"`
	RedisAddr     string        `yaml:"redisAddr"`
	Retention     time.Duration `yaml:"retention"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

// CookieConfig sets the auth cookie lifetimes.
type CookieConfig struct {
	AccessMaxAge  time.Duration `yaml:"accessMaxAge"`
	RefreshMaxAge time.Duration `yaml:"refreshMaxAge"`
}

// Load reads configuration from a YAML file and environment variables. The
// file path comes from SESSIOND_CONFIG, falling back to sessiond.yaml in the
// working directory if it exists. Environment variables win over the file.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("SESSIOND_CONFIG"); path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat("sessiond.yaml"); err == nil {
		if err := hydrateFromFile(cfg, "sessiond.yaml"); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFile reads configuration from the given YAML file plus environment
// overrides.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := hydrateFromFile(cfg, path); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SESSIOND_HTTP_ADDRESS"); v != "" {
		cfg.HTTP.Address = v
	}
	if v := os.Getenv("SESSIOND_UPSTREAM_URL"); v != "" {
		cfg.HTTP.UpstreamURL = v
	}
	if v := os.Getenv("SESSIOND_IDENTITY_URL"); v != "" {
		cfg.Identity.BaseURL = v
	}
	if v := os.Getenv("SESSIOND_IDENTITY_TIMEOUT"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Identity.Timeout = parsed
		}
	}
	if v := os.Getenv("SESSIOND_IDENTITY_RETRY_ATTEMPTS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Identity.RetryAttempts = parsed
		}
	}
	if v := os.Getenv("SESSIOND_IDENTITY_RETRY_BACKOFF"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Identity.RetryBackoff = parsed
		}
	}
	if v := os.Getenv("SESSIOND_TOKEN_TTL_MINS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Identity.TokenTTLMins = parsed
		}
	}
	if v := os.Getenv("SESSIOND_STORE_SECRET"); v != "" {
		cfg.Store.Secret = v
	}
	if v := os.Getenv("SESSIOND_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("SESSIOND_DATA_DIR"); v != "" {
		cfg.Store.DataDir = v
	}
	if v := os.Getenv("SESSIOND_REDIS_ADDR"); v != "" {
		cfg.Store.RedisAddr = v
	}
	if v := os.Getenv("SESSIOND_STORE_RETENTION"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Store.Retention = parsed
		}
	}
	if v := os.Getenv("SESSIOND_STORE_SWEEP_INTERVAL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Store.SweepInterval = parsed
		}
	}
	if v := os.Getenv("SESSIOND_COOKIE_ACCESS_MAX_AGE"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Cookies.AccessMaxAge = parsed
		}
	}
	if v := os.Getenv("SESSIOND_COOKIE_REFRESH_MAX_AGE"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Cookies.RefreshMaxAge = parsed
		}
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Identity: IdentityConfig{
			BaseURL:       "https://dummyjson.com",
			Timeout:       10 * time.Second,
			RetryAttempts: 3,
			RetryBackoff:  time.Second,
			TokenTTLMins:  60,
		},
		Store: StoreConfig{
			Backend:       "bolt",
			DataDir:       "./data",
			Retention:     24 * time.Hour,
			SweepInterval: 5 * time.Minute,
		},
		Cookies: CookieConfig{
			AccessMaxAge:  time.Hour,
			RefreshMaxAge: 7 * 24 * time.Hour,
		},
	}
}

// Validate ensures the configuration is safe to use.
func (c *Config) Validate() error {
	if c.HTTP.Address == "" {
		return errors.New("http.address cannot be empty")
	}
	if c.Identity.BaseURL == "" {
		return errors.New("identity.baseUrl cannot be empty")
	}
	if c.Identity.Timeout <= 0 {
		return errors.New("identity.timeout must be positive")
	}
	if c.Identity.RetryAttempts <= 0 {
		return errors.New("identity.retryAttempts must be positive")
	}
	if c.Identity.RetryBackoff <= 0 {
		return errors.New("identity.retryBackoff must be positive")
	}
	if c.Identity.TokenTTLMins <= 0 {
		return errors.New("identity.tokenTtlMins must be positive")
	}
	if strings.TrimSpace(c.Store.Secret) == "" {
		return errors.New("store.secret cannot be empty")
	}
	switch c.Store.Backend {
	case "bolt":
		if strings.TrimSpace(c.Store.DataDir) == "" {
			return errors.New("store.dataDir cannot be empty with the bolt backend")
		}
	case "redis":
		if strings.TrimSpace(c.Store.RedisAddr) == "" {
			return errors.New("store.redisAddr cannot be empty with the redis backend")
		}
	default:
		return fmt.Errorf("store.backend must be bolt or redis, got %q", c.Store.Backend)
	}
	if c.Store.Retention <= 0 {
		return errors.New("store.retention must be positive")
	}
	if c.Store.SweepInterval <= 0 {
		return errors.New("store.sweepInterval must be positive")
	}
	if c.Cookies.AccessMaxAge <= 0 {
		return errors.New("cookies.accessMaxAge must be positive")
	}
	if c.Cookies.RefreshMaxAge <= c.Cookies.AccessMaxAge {
		return errors.New("cookies.refreshMaxAge must exceed cookies.accessMaxAge")
	}
	return nil
}
