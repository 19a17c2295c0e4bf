package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditLogEntry is an append-only record of a privileged action.
// ActorID is nil for system actions. ID and CreatedAt are assigned by the store.
type AuditLogEntry struct {
	ID         int64           `db:"audit_id"    json:"id"`
	TenantID   uuid.UUID       `db:"tenant_id"   json:"tenant_id"`
	CompanyID  *uuid.UUID      `db:"company_id"  json:"company_id,omitempty"`
	ActorID    *uuid.UUID      `db:"actor_id"    json:"actor_id,omitempty"`
	Action     string          `db:"action"      json:"action"`
	Entity     string          `db:"entity"      json:"entity"`
	EntityID   string          `db:"entity_id"   json:"entity_id"`
	BeforeJSON json.RawMessage `db:"before_json" json:"before_json,omitempty"`
	AfterJSON  json.RawMessage `db:"after_json"  json:"after_json,omitempty"`
	CreatedAt  time.Time       `db:"created_at"  json:"created_at"`
}
