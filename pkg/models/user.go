package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// User is an account inside a single tenant and company.
// Email is unique per tenant; only the bcrypt hash of the password is stored.
type User struct {
	ID           uuid.UUID `db:"user_id"       json:"id"`
	TenantID     uuid.UUID `db:"tenant_id"     json:"tenant_id"`
	CompanyID    uuid.UUID `db:"company_id"    json:"company_id"`
	Email        string    `db:"email"         json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	DisplayName  string    `db:"display_name"  json:"display_name"`
	Status       string    `db:"status"        json:"status"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"    json:"updated_at"`
}
