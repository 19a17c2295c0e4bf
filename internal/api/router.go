package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/geniusgrid/internal/api/middleware"
	"github.com/kiranshivaraju/geniusgrid/internal/api/response"
)

// Permissions checked by the admin routes.
const (
	PermTenantWrite = "tenant.write"
	PermRolesWrite  = "roles.write"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth           *mw.Auth
	LoginThrottle  *mw.LoginThrottle
	AllowedOrigins []string

	// Instrument wraps every request; MetricsHandler serves /metrics. Both are optional.
	Instrument     func(http.Handler) http.Handler
	MetricsHandler http.Handler

	HealthHandler http.HandlerFunc

	SignupHandler  http.HandlerFunc
	LoginHandler   http.HandlerFunc
	ProfileHandler http.HandlerFunc
	LogoutHandler  http.HandlerFunc

	GetTenantHandler    http.HandlerFunc
	UpdateTenantHandler http.HandlerFunc
	ListRolesHandler    http.HandlerFunc
	CreateRoleHandler   http.HandlerFunc
	AssignRoleHandler   http.HandlerFunc

	ListCompaniesHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	if deps.Instrument != nil {
		r.Use(deps.Instrument)
	}
	r.Use(mw.CORS(deps.AllowedOrigins))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, response.CodeNotFound, "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	// Public
	r.Get("/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Post("/auth/signup", orNotImplemented(deps.SignupHandler))
	r.With(deps.LoginThrottle.Limit).Post("/auth/login", orNotImplemented(deps.LoginHandler))

	// Legacy reads accept X-Tenant-ID when no token is sent.
	r.With(deps.Auth.Optional).Get("/companies", orNotImplemented(deps.ListCompaniesHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)

		r.Get("/auth/profile", orNotImplemented(deps.ProfileHandler))
		r.Post("/auth/logout", orNotImplemented(deps.LogoutHandler))

		r.Route("/admin", func(r chi.Router) {
			r.Get("/tenant", orNotImplemented(deps.GetTenantHandler))
			r.With(deps.Auth.RequirePermission(PermTenantWrite)).
				Patch("/tenant", orNotImplemented(deps.UpdateTenantHandler))

			r.Get("/roles", orNotImplemented(deps.ListRolesHandler))
			r.With(deps.Auth.RequirePermission(PermRolesWrite)).
				Post("/roles", orNotImplemented(deps.CreateRoleHandler))
			r.With(deps.Auth.RequirePermission(PermRolesWrite)).
				Post("/user-roles", orNotImplemented(deps.AssignRoleHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
