package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	TenantStatusActive    = "active"
	TenantStatusSuspended = "suspended"
)

// Tenant is the top-level isolation boundary. Every other entity belongs to a tenant.
type Tenant struct {
	ID        uuid.UUID `db:"tenant_id"  json:"id"`
	Name      string    `db:"name"       json:"name"`
	Slug      string    `db:"slug"       json:"slug"`
	Region    string    `db:"region"     json:"region"`
	Plan      string    `db:"plan"       json:"plan"`
	Status    string    `db:"status"     json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Company belongs to exactly one tenant. The first one is created at signup.
type Company struct {
	ID        uuid.UUID `db:"company_id" json:"id"`
	TenantID  uuid.UUID `db:"tenant_id"  json:"tenant_id"`
	Name      string    `db:"name"       json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
