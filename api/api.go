// Package api exposes the session gateway over HTTP: the auth endpoints the
// storefront calls and the per-request gatekeeper middleware that fronts the
// upstream application.
package api

import (
	"context"
	_ "embed"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/pawsy/sessiond/identity"
)

// Gateway is the slice of the identity client the handlers depend on.
type Gateway interface {
	Login(ctx context.Context, creds identity.Credentials) (*identity.User, *identity.TokenPair, error)
	Me(ctx context.Context, accessToken string) (*identity.User, error)
	Refresh(ctx context.Context, refreshToken string) (*identity.TokenPair, error)
	Logout(ctx context.Context)
}

// API holds the dependencies needed by the REST handlers and the gatekeeper.
type API struct {
	gateway Gateway
	cookies CookieConfig
	routes  RouteConfig
	logger  *slog.Logger
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger. If not set, a default JSON logger
// writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) { a.logger = logger }
}

// WithCookieConfig overrides the cookie lifetimes.
func WithCookieConfig(cfg CookieConfig) Option {
	return func(a *API) { a.cookies = cfg }
}

// WithRouteConfig overrides the gatekeeper path policy.
func WithRouteConfig(cfg RouteConfig) Option {
	return func(a *API) { a.routes = cfg }
}

// New creates a new API instance over the given identity gateway.
func New(gateway Gateway, opts ...Option) *API {
	a := &API{
		gateway: gateway,
		cookies: DefaultCookieConfig,
		routes:  DefaultRouteConfig,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return a
}

// Router returns a chi.Router with the auth routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/openapi.yaml",
		Path:    "api/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/openapi.yaml",
		Path:    "api/redoc",
	}, nil))

	r.Post("/auth/login", a.Login)
	r.Post("/auth/logout", a.Logout)
	r.Get("/auth/me", a.Me)
	r.Post("/auth/refresh", a.Refresh)

	return r
}
