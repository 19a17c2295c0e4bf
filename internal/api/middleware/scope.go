package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// ErrNoScope is returned when a request carries no usable tenant scope.
var ErrNoScope = errors.New("no tenant scope")

// Legacy scope headers, honoured only on reads that opt in.
const (
	HeaderTenantID  = "X-Tenant-ID"
	HeaderCompanyID = "X-Company-ID"
	HeaderUserID    = "X-User-ID"
)

// ScopeMode selects where a scope may come from.
type ScopeMode int

const (
	// PrincipalOnly accepts only an authenticated principal. Every mutation uses it.
	PrincipalOnly ScopeMode = iota
	// AllowLegacyHeaders falls back to the X-*-ID headers when no principal is present.
	AllowLegacyHeaders
)

// Scope is the tenant, company and actor a request operates on.
type Scope struct {
	TenantID  uuid.UUID
	CompanyID *uuid.UUID
	ActorID   *uuid.UUID
}

// ScopeFromRequest derives the scope for r. A principal always wins and the
// legacy headers are then ignored.
func ScopeFromRequest(r *http.Request, mode ScopeMode) (Scope, error) {
	if p, ok := GetPrincipal(r); ok {
		companyID, actorID := p.CompanyID, p.UserID
		return Scope{TenantID: p.TenantID, CompanyID: &companyID, ActorID: &actorID}, nil
	}
	if mode != AllowLegacyHeaders {
		return Scope{}, ErrNoScope
	}

	tenantID, err := headerUUID(r, HeaderTenantID)
	if err != nil || tenantID == nil {
		return Scope{}, ErrNoScope
	}
	companyID, err := headerUUID(r, HeaderCompanyID)
	if err != nil {
		return Scope{}, ErrNoScope
	}
	actorID, err := headerUUID(r, HeaderUserID)
	if err != nil {
		return Scope{}, ErrNoScope
	}
	return Scope{TenantID: *tenantID, CompanyID: companyID, ActorID: actorID}, nil
}

func headerUUID(r *http.Request, name string) (*uuid.UUID, error) {
	v := strings.TrimSpace(r.Header.Get(name))
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, err
	}
	if id == uuid.Nil {
		return nil, errors.New("nil uuid")
	}
	return &id, nil
}
