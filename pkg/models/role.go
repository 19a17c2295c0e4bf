package models

import (
	"time"

	"github.com/google/uuid"
)

// PermissionAll grants every permission.
const PermissionAll = "*"

// Role is a named permission set scoped to one tenant.
type Role struct {
	ID          uuid.UUID `db:"role_id"     json:"id"`
	TenantID    uuid.UUID `db:"tenant_id"   json:"tenant_id"`
	Key         *string   `db:"key"         json:"key,omitempty"`
	Name        string    `db:"name"        json:"name"`
	Permissions []string  `db:"permissions" json:"permissions"`
	CreatedAt   time.Time `db:"created_at"  json:"created_at"`
}

// UserRole assigns a role to a user. The pair is unique.
type UserRole struct {
	UserID uuid.UUID `db:"user_id" json:"user_id"`
	RoleID uuid.UUID `db:"role_id" json:"role_id"`
}
