package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/geniusgrid/internal/api/response"
	"github.com/kiranshivaraju/geniusgrid/internal/auth"
)

// SessionResolver turns a bearer token into a session.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*auth.Session, error)
}

// Auth provides authentication and permission-checking middleware.
type Auth struct {
	resolver SessionResolver
}

// NewAuth creates a new Auth middleware.
func NewAuth(r SessionResolver) *Auth {
	return &Auth{resolver: r}
}

// Authenticate requires a valid bearer token and stores the resolved session
// in the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			response.Error(w, http.StatusUnauthorized,
				response.CodeUnauthenticated, "Missing or invalid Authorization header", nil)
			return
		}
		a.resolve(w, r, token, next)
	})
}

// Optional resolves a bearer token when one is sent and passes anonymous
// requests through untouched. A token that is sent but invalid is rejected.
func (a *Auth) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := extractBearerToken(r)
		if token == "" {
			response.Error(w, http.StatusUnauthorized,
				response.CodeUnauthenticated, "Missing or invalid Authorization header", nil)
			return
		}
		a.resolve(w, r, token, next)
	})
}

func (a *Auth) resolve(w http.ResponseWriter, r *http.Request, token string, next http.Handler) {
	sess, err := a.resolver.ResolveSession(r.Context(), token)
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		response.Error(w, http.StatusUnauthorized,
			response.CodeUnauthenticated, "Invalid or expired token", nil)
		return
	case err != nil:
		slog.Error("resolve session failed", "error", err)
		response.Internal(w)
		return
	}

	if info, ok := requestInfoFrom(r.Context()); ok {
		info.TenantID = sess.Principal.TenantID.String()
		info.UserID = sess.Principal.UserID.String()
	}
	next.ServeHTTP(w, r.WithContext(SetSession(r.Context(), sess)))
}

// RequirePermission returns middleware that checks whether the authenticated
// principal holds perm. It must run after Authenticate.
func (a *Auth) RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := GetPrincipal(r)
			if !ok {
				response.Error(w, http.StatusUnauthorized,
					response.CodeUnauthenticated, "Authentication required", nil)
				return
			}
			if !p.Can(perm) {
				response.Error(w, http.StatusForbidden,
					response.CodeForbidden, "Insufficient permissions", map[string]string{"required": perm})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
