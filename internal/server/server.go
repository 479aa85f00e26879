// Package server assembles the public HTTP API: the sign-in flow, the
// session endpoints and the admin revoke route, behind the router-wide
// origin guard.
package server

import (
	"net/http"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/middleware"
	"github.com/MrEthical07/authgate/oauthflow"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// AdminRole is required on the admin routes.
const AdminRole = "admin"

type options struct {
	logger     *zap.Logger
	trustProxy bool
}

// Option configures [New].
type Option func(*options)

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTrustProxy takes the client address from X-Forwarded-For and
// X-Real-IP. Enable it only behind a proxy that sets those headers.
func WithTrustProxy(trust bool) Option {
	return func(o *options) {
		o.trustProxy = trust
	}
}

type handlers struct {
	engine *authgate.Engine
	logger *zap.Logger
}

// New returns the API router for engine.
func New(engine *authgate.Engine, opts ...Option) http.Handler {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.Named("http")

	h := &handlers{engine: engine, logger: logger}
	flow := oauthflow.New(engine, oauthflow.WithLogger(o.logger))

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if o.trustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(
		middleware.ClientIP,
		requestLogger(logger),
		recoverer(logger),
		middleware.RequireOrigin(engine),
	)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	r.Get("/healthz", h.healthz)

	session := middleware.RequireSession(engine)
	r.Route("/auth", func(r chi.Router) {
		r.With(session).Get("/logout", h.logout)
		r.With(session).Get("/validate", h.validate)
		r.With(middleware.RequireSession(engine, middleware.WithoutAutoExtend())).Get("/session", h.session)
		r.With(session).Get("/sessions", h.sessions)
		r.With(session).Post("/sessions/revoke-all", h.revokeAll)

		flow.Routes(r)
	})

	adminOnly := middleware.Chain(session, middleware.RequireRoles(AdminRole))
	r.With(adminOnly).Post("/admin/users/{userID}/sessions/revoke", h.revokeUser)

	return r
}
