package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/geniusgrid/internal/store"
	"github.com/kiranshivaraju/geniusgrid/pkg/models"
)

// AdminRole is the display label for the tenant administrator role.
const AdminRole = "Admin"

// timingPassword is hashed once per Resolver so that logins for unknown
// tenants or users still pay for one bcrypt comparison.
const timingPassword = "geniusgrid-timing-equalizer"

// CredentialStore is the read side of the store the resolver depends on.
type CredentialStore interface {
	GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*models.User, error)
	ListUserRoles(ctx context.Context, userID uuid.UUID) ([]*models.Role, error)
}

// RevocationList reports whether a token id was revoked before its expiry.
type RevocationList interface {
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Session is a Principal together with the token it was resolved from.
type Session struct {
	Principal *models.Principal
	TokenID   string
	ExpiresAt time.Time
}

// Resolver turns credentials or bearer tokens into Principals.
type Resolver struct {
	store      CredentialStore
	hasher     Hasher
	codec      *TokenCodec
	revoked    RevocationList
	timingHash string
}

// NewResolver creates a Resolver. revoked may be nil, in which case tokens are valid until expiry.
func NewResolver(s CredentialStore, h Hasher, codec *TokenCodec, revoked RevocationList) (*Resolver, error) {
	timingHash, err := h.Hash(timingPassword)
	if err != nil {
		return nil, fmt.Errorf("prepare timing hash: %w", err)
	}
	return &Resolver{store: s, hasher: h, codec: codec, revoked: revoked, timingHash: timingHash}, nil
}

// Authenticate resolves a slug-qualified email/password login. Unknown
// tenant, suspended tenant, unknown user, disabled user and wrong password
// all return ErrInvalidCredentials.
func (r *Resolver) Authenticate(ctx context.Context, email, password, slug string) (*models.Principal, error) {
	tenant, err := r.store.GetTenantBySlug(ctx, NormalizeSlug(slug))
	if errors.Is(err, store.ErrNotFound) {
		return nil, r.reject(password)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup tenant: %w", err)
	}
	if tenant.Status != models.TenantStatusActive {
		return nil, r.reject(password)
	}

	user, err := r.store.GetUserByEmail(ctx, tenant.ID, NormalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return nil, r.reject(password)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user.Status != models.UserStatusActive {
		return nil, r.reject(password)
	}

	if !r.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return r.buildPrincipal(ctx, user)
}

// ResolveFromToken verifies a bearer token and rebuilds the Principal from
// current store state.
func (r *Resolver) ResolveFromToken(ctx context.Context, token string) (*models.Principal, error) {
	sess, err := r.ResolveSession(ctx, token)
	if err != nil {
		return nil, err
	}
	return sess.Principal, nil
}

// ResolveSession is ResolveFromToken that also returns the token id and expiry.
func (r *Resolver) ResolveSession(ctx context.Context, token string) (*Session, error) {
	claims, err := r.codec.Verify(token)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	if r.revoked != nil {
		revoked, err := r.revoked.IsTokenRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("check token revocation: %w", err)
		}
		if revoked {
			return nil, ErrUnauthenticated
		}
	}

	user, err := r.store.GetUser(ctx, claims.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user.TenantID != claims.TenantID || user.Status != models.UserStatusActive {
		return nil, ErrUnauthenticated
	}

	tenant, err := r.store.GetTenant(ctx, user.TenantID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("lookup tenant: %w", err)
	}
	if tenant.Status != models.TenantStatusActive {
		return nil, ErrUnauthenticated
	}

	p, err := r.buildPrincipal(ctx, user)
	if err != nil {
		return nil, err
	}
	return &Session{Principal: p, TokenID: claims.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// IssueToken signs a session token for p.
func (r *Resolver) IssueToken(p *models.Principal) (string, time.Time, error) {
	token, exp, err := r.codec.Sign(p.UserID, p.TenantID, p.CompanyID)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, exp, nil
}

func (r *Resolver) reject(password string) error {
	r.hasher.Verify(password, r.timingHash)
	return ErrInvalidCredentials
}

func (r *Resolver) buildPrincipal(ctx context.Context, user *models.User) (*models.Principal, error) {
	roles, err := r.store.ListUserRoles(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}
	return NewPrincipal(user, roles), nil
}

// NewPrincipal builds a Principal from a user and its assigned roles.
func NewPrincipal(user *models.User, roles []*models.Role) *models.Principal {
	names := make([]string, 0, len(roles))
	var perms []string
	for _, role := range roles {
		if role.TenantID != user.TenantID {
			continue
		}
		names = append(names, role.Name)
		perms = append(perms, role.Permissions...)
	}

	return &models.Principal{
		UserID:      user.ID,
		TenantID:    user.TenantID,
		CompanyID:   user.CompanyID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Roles:       NormalizeRoles(names),
		Permissions: uniqueSorted(perms),
	}
}

// NormalizeRoles maps "admin" and "administrator" (any case) to AdminRole,
// passes other names through, and drops duplicates keeping first occurrence.
func NormalizeRoles(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		switch strings.ToLower(name) {
		case "admin", "administrator":
			name = AdminRole
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func uniqueSorted(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeSlug lowercases and trims a tenant slug.
func NormalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}
