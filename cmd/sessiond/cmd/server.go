package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/pawsy/sessiond/api"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the session gateway server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger()

		store, closeStore, err := newStore(cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		a := api.New(newGateway(cfg, logger),
			api.WithLogger(logger),
			api.WithCookieConfig(api.CookieConfig{
				AccessMaxAge:  cfg.Cookies.AccessMaxAge,
				RefreshMaxAge: cfg.Cookies.RefreshMaxAge,
			}),
		)

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		r.Mount("/api", a.Router())

		if cfg.HTTP.UpstreamURL != "" {
			upstream, err := url.Parse(cfg.HTTP.UpstreamURL)
			if err != nil {
				return fmt.Errorf("invalid upstream URL: %w", err)
			}
			proxy := httputil.NewSingleHostReverseProxy(upstream)
			r.Handle("/*", a.Gatekeeper(proxy))
		}

		server := &http.Server{
			Addr:              cfg.HTTP.Address,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.HTTP.ReadTimeout,
			WriteTimeout:      cfg.HTTP.WriteTimeout,
			IdleTimeout:       60 * time.Second,
		}

		// The sweep and external-change loop stops with the server.
		runCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go store.Run(runCtx)

		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		fmt.Printf("Starting server on %s (backend: %s)...\n", cfg.HTTP.Address, cfg.Store.Backend)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Printf("\nReceived %s, shutting down...\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
