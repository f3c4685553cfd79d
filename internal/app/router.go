package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/havenlist/havenlist/internal/auth"
	"github.com/havenlist/havenlist/internal/observability"
	"github.com/havenlist/havenlist/internal/properties"
	"github.com/havenlist/havenlist/internal/rbac"
	"github.com/havenlist/havenlist/internal/token"
	"github.com/havenlist/havenlist/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	Codec             *token.Codec
	AuthHandler       *auth.Handler
	RBACHandler       *rbac.Handler
	UsersHandler      *users.Handler
	PropertiesHandler *properties.Handler
	Metrics           *observability.Metrics
}

// NewRouter assembles the chi router with the full middleware chain.
func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  p.Logger,
		Config:  p.Config,
		Metrics: p.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", p.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", p.AuthHandler.MountRoutes)

		// Everything below carries claims when a valid credential is
		// presented; individual routes enforce their capability.
		r.Group(func(r chi.Router) {
			r.Use(rbac.Authenticator(p.Codec, p.Logger))
			p.RBACHandler.MountRoutes(r)
			r.Route("/users", p.UsersHandler.MountRoutes)
			r.Route("/properties", p.PropertiesHandler.MountRoutes)
		})
	})

	return r
}
