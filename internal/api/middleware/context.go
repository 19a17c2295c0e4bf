package middleware

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/geniusgrid/internal/auth"
	"github.com/kiranshivaraju/geniusgrid/pkg/models"
)

type contextKey string

const sessionKey contextKey = "session"

// SetSession attaches an authenticated session to ctx.
func SetSession(ctx context.Context, s *auth.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// GetSession returns the session attached by Authenticate or Optional.
func GetSession(r *http.Request) (*auth.Session, bool) {
	s, ok := r.Context().Value(sessionKey).(*auth.Session)
	return s, ok && s != nil && s.Principal != nil
}

// GetPrincipal returns the authenticated principal, if any.
func GetPrincipal(r *http.Request) (*models.Principal, bool) {
	s, ok := GetSession(r)
	if !ok {
		return nil, false
	}
	return s.Principal, true
}
