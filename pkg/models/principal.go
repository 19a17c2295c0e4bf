package models

import "github.com/google/uuid"

// Principal is the resolved identity of the current request. It is rebuilt
// from the store on every authenticated request and never persisted.
type Principal struct {
	UserID      uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	CompanyID   uuid.UUID `json:"company_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"name"`
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`
}

// Can reports whether the principal holds perm directly or through the wildcard.
func (p *Principal) Can(perm string) bool {
	for _, have := range p.Permissions {
		if have == perm || have == PermissionAll {
			return true
		}
	}
	return false
}

// HasRole reports whether the principal carries the given display role.
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}
