package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	mw "github.com/kiranshivaraju/geniusgrid/internal/api/middleware"
	"github.com/kiranshivaraju/geniusgrid/internal/api/response"
	"github.com/kiranshivaraju/geniusgrid/internal/auth"
	"github.com/kiranshivaraju/geniusgrid/internal/metrics"
	"github.com/kiranshivaraju/geniusgrid/internal/tenant"
	"github.com/kiranshivaraju/geniusgrid/pkg/models"
)

// Provisioner creates a tenant and its first administrator.
type Provisioner interface {
	Provision(ctx context.Context, req tenant.SignupRequest) (*tenant.Result, error)
}

// Authenticator checks credentials and issues session tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password, slug string) (*models.Principal, error)
	IssueToken(p *models.Principal) (string, time.Time, error)
}

// TokenRevoker denylists a token id until it would have expired.
type TokenRevoker interface {
	RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error
}

// AuthObserver counts authentication outcomes.
type AuthObserver interface {
	LoginAttempt(result string)
	SignupAttempt(result string)
	TokenRevoked()
}

// sessionResponse is returned by signup and login.
type sessionResponse struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
	User      *models.Principal `json:"user"`
	TenantID  string            `json:"tenant_id"`
	Slug      string            `json:"slug"`
}

// NewSignupHandler returns an http.HandlerFunc for POST /auth/signup.
func NewSignupHandler(p Provisioner, obs AuthObserver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TenantName  string `json:"tenantName"`
			Slug        string `json:"slug"`
			Region      string `json:"region"`
			Plan        string `json:"plan"`
			Email       string `json:"email"`
			Password    string `json:"password"`
			DisplayName string `json:"displayName"`
		}
		if err := response.Decode(w, r, &req); err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, err.Error(), nil)
			return
		}

		res, err := p.Provision(r.Context(), tenant.SignupRequest{
			TenantName:  req.TenantName,
			Slug:        req.Slug,
			Region:      req.Region,
			Plan:        req.Plan,
			Email:       req.Email,
			Password:    req.Password,
			DisplayName: req.DisplayName,
		})
		if err != nil {
			var verr *tenant.ValidationError
			switch {
			case errors.As(err, &verr):
				obs.SignupAttempt(metrics.ResultRejected)
				response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest,
					verr.Error(), map[string]string{"field": verr.Field})
			case errors.Is(err, tenant.ErrDuplicateSlug):
				obs.SignupAttempt(metrics.ResultRejected)
				response.Error(w, http.StatusConflict, response.CodeDuplicateSlug,
					"That workspace slug is already taken", nil)
			case errors.Is(err, tenant.ErrDuplicateEmail):
				obs.SignupAttempt(metrics.ResultRejected)
				response.Error(w, http.StatusConflict, response.CodeDuplicateEmail,
					"That email is already registered", nil)
			case errors.Is(err, tenant.ErrProvisionFailed):
				obs.SignupAttempt(metrics.ResultError)
				slog.Error("signup failed", "error", err, "slug", req.Slug)
				response.Error(w, http.StatusInternalServerError, response.CodeProvisionFailed,
					"Could not create the workspace", nil)
			default:
				obs.SignupAttempt(metrics.ResultError)
				slog.Error("signup failed", "error", err, "slug", req.Slug)
				response.Internal(w)
			}
			return
		}

		obs.SignupAttempt(metrics.ResultSuccess)
		response.Created(w, sessionResponse{
			Token:     res.Token,
			ExpiresAt: res.ExpiresAt.UTC(),
			User:      res.Principal,
			TenantID:  res.Tenant.ID.String(),
			Slug:      res.Tenant.Slug,
		})
	}
}

// NewLoginHandler returns an http.HandlerFunc for POST /auth/login.
func NewLoginHandler(a Authenticator, obs AuthObserver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
			Slug     string `json:"slug"`
		}
		if err := response.Decode(w, r, &req); err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, err.Error(), nil)
			return
		}

		switch {
		case strings.TrimSpace(req.Email) == "":
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "email is required", nil)
			return
		case req.Password == "":
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "password is required", nil)
			return
		case strings.TrimSpace(req.Slug) == "":
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "slug is required", nil)
			return
		}

		p, err := a.Authenticate(r.Context(), req.Email, req.Password, req.Slug)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			obs.LoginAttempt(metrics.ResultRejected)
			response.Error(w, http.StatusUnauthorized, response.CodeInvalidCredentials,
				"Invalid email, password or workspace", nil)
			return
		}
		if err != nil {
			obs.LoginAttempt(metrics.ResultError)
			slog.Error("login failed", "error", err)
			response.Internal(w)
			return
		}

		token, exp, err := a.IssueToken(p)
		if err != nil {
			obs.LoginAttempt(metrics.ResultError)
			slog.Error("issue token failed", "error", err, "user_id", p.UserID)
			response.Internal(w)
			return
		}

		obs.LoginAttempt(metrics.ResultSuccess)
		response.JSON(w, sessionResponse{
			Token:     token,
			ExpiresAt: exp.UTC(),
			User:      p,
			TenantID:  p.TenantID.String(),
			Slug:      auth.NormalizeSlug(req.Slug),
		})
	}
}

// NewProfileHandler returns an http.HandlerFunc for GET /auth/profile.
func NewProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := mw.GetPrincipal(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, response.CodeUnauthenticated, "Authentication required", nil)
			return
		}
		response.JSON(w, p)
	}
}

// NewLogoutHandler returns an http.HandlerFunc for POST /auth/logout. The
// presented token stays revoked until its own expiry.
func NewLogoutHandler(revoker TokenRevoker, obs AuthObserver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := mw.GetSession(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, response.CodeUnauthenticated, "Authentication required", nil)
			return
		}

		if err := revoker.RevokeToken(r.Context(), sess.TokenID, time.Until(sess.ExpiresAt)); err != nil {
			slog.Error("revoke token failed", "error", err, "user_id", sess.Principal.UserID)
			response.Internal(w)
			return
		}

		obs.TokenRevoked()
		response.NoContent(w)
	}
}
