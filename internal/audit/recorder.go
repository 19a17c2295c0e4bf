package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/geniusgrid/pkg/models"
)

// ErrAuditWrite wraps every failure to append an audit entry.
var ErrAuditWrite = errors.New("audit write failed")

const (
	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
	ActionAssign = "ASSIGN"
)

// Appender is the write side of the store used by the recorder.
type Appender interface {
	AppendAuditEntry(ctx context.Context, e *models.AuditLogEntry) error
}

// Entry describes one privileged action. Before and After are marshalled to JSON.
type Entry struct {
	TenantID  uuid.UUID
	CompanyID *uuid.UUID
	ActorID   *uuid.UUID
	Action    string
	Entity    string
	EntityID  string
	Before    any
	After     any
}

// Recorder appends audit entries. Entries are written synchronously, so the
// entries of one tenant land in submission order.
type Recorder struct {
	store Appender
}

func NewRecorder(s Appender) *Recorder {
	return &Recorder{store: s}
}

// Record appends e and returns an error wrapping ErrAuditWrite on failure.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	if e.TenantID == uuid.Nil || e.Action == "" || e.Entity == "" {
		return fmt.Errorf("%w: tenant, action and entity are required", ErrAuditWrite)
	}

	row := &models.AuditLogEntry{
		TenantID:  e.TenantID,
		CompanyID: e.CompanyID,
		ActorID:   e.ActorID,
		Action:    e.Action,
		Entity:    e.Entity,
		EntityID:  e.EntityID,
	}

	var err error
	if row.BeforeJSON, err = marshal(e.Before); err != nil {
		return fmt.Errorf("%w: marshal before: %v", ErrAuditWrite, err)
	}
	if row.AfterJSON, err = marshal(e.After); err != nil {
		return fmt.Errorf("%w: marshal after: %v", ErrAuditWrite, err)
	}

	if err := r.store.AppendAuditEntry(ctx, row); err != nil {
		return fmt.Errorf("%w: %v", ErrAuditWrite, err)
	}
	return nil
}

// RecordBestEffort records e and logs any failure instead of returning it.
func (r *Recorder) RecordBestEffort(ctx context.Context, e Entry) {
	if err := r.Record(ctx, e); err != nil {
		slog.Warn("audit log failed",
			"error", err,
			"tenant_id", e.TenantID,
			"action", e.Action,
			"entity", e.Entity,
			"entity_id", e.EntityID,
		)
	}
}

func marshal(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
