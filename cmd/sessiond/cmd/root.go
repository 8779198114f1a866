package cmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/pawsy/sessiond/config"
	"github.com/pawsy/sessiond/identity"
	"github.com/pawsy/sessiond/securestore"
	boltstore "github.com/pawsy/sessiond/securestore/bolt"
	redisstore "github.com/pawsy/sessiond/securestore/redis"
	"github.com/pawsy/sessiond/session"
)

// Version is stamped at build time.
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "sessiond",
	Short: "sessiond is a session gateway for the storefront",
	Long: `A session gateway that fronts the storefront: it authenticates against
the identity service, guards page routes, and keeps session state in an
encrypted, tamper-evident store.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the YAML config file")
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, nil))
}

func newGateway(cfg *config.Config, logger *slog.Logger) *identity.Client {
	return identity.New(cfg.Identity.BaseURL,
		identity.WithHTTPClient(&http.Client{Timeout: cfg.Identity.Timeout}),
		identity.WithRetryPolicy(identity.RetryPolicy{
			Attempts:  cfg.Identity.RetryAttempts,
			BaseDelay: cfg.Identity.RetryBackoff,
		}),
		identity.WithTokenTTL(cfg.Identity.TokenTTLMins),
		identity.WithLogger(logger),
	)
}

// newStore opens the configured backend and wraps it in the encrypted store.
// The returned closer releases the backend.
func newStore(cfg *config.Config, logger *slog.Logger) (*securestore.Store, func() error, error) {
	backend, closer, err := newBackend(cfg)
	if err != nil {
		return nil, nil, err
	}

	store, err := securestore.New(backend, cfg.Store.Secret,
		securestore.WithRetention(cfg.Store.Retention),
		securestore.WithSweepInterval(cfg.Store.SweepInterval),
		securestore.WithProtectedKeys(session.ProtectedKeys()),
		securestore.WithLogger(logger),
	)
	if err != nil {
		closer()
		return nil, nil, fmt.Errorf("opening secure store: %w", err)
	}
	return store, closer, nil
}

func newBackend(cfg *config.Config) (securestore.Backend, func() error, error) {
	switch cfg.Store.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Store.RedisAddr})
		return redisstore.New(client), client.Close, nil
	default:
		if err := os.MkdirAll(cfg.Store.DataDir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		backend, err := boltstore.NewFromFile(filepath.Join(cfg.Store.DataDir, "session.db"), nil)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open session storage: %w", err)
		}
		return backend, backend.Close, nil
	}
}

// newManager wires the full client-side session stack for CLI commands.
func newManager(cfg *config.Config) (*session.Manager, func() error, error) {
	logger := newLogger()
	store, closer, err := newStore(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	m := session.NewManager(newGateway(cfg, logger), store, session.WithLogger(logger))
	return m, closer, nil
}
