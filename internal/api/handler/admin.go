package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/geniusgrid/internal/api/middleware"
	"github.com/kiranshivaraju/geniusgrid/internal/api/response"
	"github.com/kiranshivaraju/geniusgrid/internal/audit"
	"github.com/kiranshivaraju/geniusgrid/internal/auth"
	"github.com/kiranshivaraju/geniusgrid/internal/store"
	"github.com/kiranshivaraju/geniusgrid/pkg/models"
)

const (
	maxPlanLen     = 32
	maxRoleNameLen = 64
)

// AdminStore is the slice of the store used by the admin handlers.
type AdminStore interface {
	GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	UpdateTenantPlan(ctx context.Context, id uuid.UUID, plan string) (*models.Tenant, error)
	CreateRole(ctx context.Context, r *models.Role) error
	GetRole(ctx context.Context, id, tenantID uuid.UUID) (*models.Role, error)
	ListRoles(ctx context.Context, tenantID uuid.UUID) ([]*models.Role, error)
	GetUserInTenant(ctx context.Context, id, tenantID uuid.UUID) (*models.User, error)
	AssignRole(ctx context.Context, userID, roleID uuid.UUID) (bool, error)
}

// AuditRecorder records privileged mutations without failing them.
type AuditRecorder interface {
	RecordBestEffort(ctx context.Context, e audit.Entry)
}

type roleView struct {
	ID          uuid.UUID `json:"id"`
	Key         *string   `json:"key,omitempty"`
	Name        string    `json:"name"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
}

func newRoleView(r *models.Role) roleView {
	name := r.Name
	if normalized := auth.NormalizeRoles([]string{r.Name}); len(normalized) == 1 {
		name = normalized[0]
	}
	perms := r.Permissions
	if perms == nil {
		perms = []string{}
	}
	return roleView{ID: r.ID, Key: r.Key, Name: name, Permissions: perms, CreatedAt: r.CreatedAt}
}

// principalScope returns the caller's scope or writes a 401.
func principalScope(w http.ResponseWriter, r *http.Request) (mw.Scope, bool) {
	scope, err := mw.ScopeFromRequest(r, mw.PrincipalOnly)
	if err != nil {
		response.Error(w, http.StatusUnauthorized, response.CodeUnauthenticated, "Authentication required", nil)
		return mw.Scope{}, false
	}
	return scope, true
}

// NewGetTenantHandler returns an http.HandlerFunc for GET /admin/tenant.
func NewGetTenantHandler(s AdminStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, ok := principalScope(w, r)
		if !ok {
			return
		}

		t, err := s.GetTenant(r.Context(), scope.TenantID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, response.CodeNotFound, "Tenant not found", nil)
			return
		}
		if err != nil {
			slog.Error("get tenant failed", "error", err, "tenant_id", scope.TenantID)
			response.Internal(w)
			return
		}
		response.JSON(w, t)
	}
}

// NewUpdateTenantHandler returns an http.HandlerFunc for PATCH /admin/tenant.
// Only the plan can change.
func NewUpdateTenantHandler(s AdminStore, rec AuditRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, ok := principalScope(w, r)
		if !ok {
			return
		}

		var req struct {
			Plan string `json:"plan"`
		}
		if err := response.Decode(w, r, &req); err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, err.Error(), nil)
			return
		}
		plan := strings.ToLower(strings.TrimSpace(req.Plan))
		if plan == "" {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "plan is required", nil)
			return
		}
		if len(plan) > maxPlanLen {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "plan is too long", nil)
			return
		}

		before, err := s.GetTenant(r.Context(), scope.TenantID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, response.CodeNotFound, "Tenant not found", nil)
			return
		}
		if err != nil {
			slog.Error("get tenant failed", "error", err, "tenant_id", scope.TenantID)
			response.Internal(w)
			return
		}

		after, err := s.UpdateTenantPlan(r.Context(), scope.TenantID, plan)
		if err != nil {
			slog.Error("update tenant failed", "error", err, "tenant_id", scope.TenantID)
			response.Internal(w)
			return
		}

		rec.RecordBestEffort(r.Context(), audit.Entry{
			TenantID:  scope.TenantID,
			CompanyID: scope.CompanyID,
			ActorID:   scope.ActorID,
			Action:    audit.ActionUpdate,
			Entity:    "tenant",
			EntityID:  scope.TenantID.String(),
			Before:    map[string]string{"plan": before.Plan},
			After:     map[string]string{"plan": after.Plan},
		})
		response.JSON(w, after)
	}
}

// NewListRolesHandler returns an http.HandlerFunc for GET /admin/roles.
func NewListRolesHandler(s AdminStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, ok := principalScope(w, r)
		if !ok {
			return
		}

		roles, err := s.ListRoles(r.Context(), scope.TenantID)
		if err != nil {
			slog.Error("list roles failed", "error", err, "tenant_id", scope.TenantID)
			response.Internal(w)
			return
		}

		views := make([]roleView, 0, len(roles))
		for _, role := range roles {
			views = append(views, newRoleView(role))
		}
		response.List(w, views)
	}
}

// NewCreateRoleHandler returns an http.HandlerFunc for POST /admin/roles.
func NewCreateRoleHandler(s AdminStore, rec AuditRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, ok := principalScope(w, r)
		if !ok {
			return
		}

		var req struct {
			Name        string   `json:"name"`
			Permissions []string `json:"permissions"`
		}
		if err := response.Decode(w, r, &req); err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, err.Error(), nil)
			return
		}

		name := strings.TrimSpace(req.Name)
		if name == "" {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "name is required", nil)
			return
		}
		if len(name) > maxRoleNameLen {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "name is too long", nil)
			return
		}
		perms := make([]string, 0, len(req.Permissions))
		for _, p := range req.Permissions {
			p = strings.TrimSpace(p)
			if p == "" {
				response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "permissions must not be empty strings", nil)
				return
			}
			perms = append(perms, p)
		}

		role := &models.Role{
			ID:          uuid.New(),
			TenantID:    scope.TenantID,
			Name:        name,
			Permissions: perms,
			CreatedAt:   time.Now().UTC(),
		}
		err := s.CreateRole(r.Context(), role)
		if store.IsDuplicate(err, store.ConstraintRoleName) {
			response.Error(w, http.StatusConflict, response.CodeDuplicateRole, "A role with that name already exists", nil)
			return
		}
		if err != nil {
			slog.Error("create role failed", "error", err, "tenant_id", scope.TenantID)
			response.Internal(w)
			return
		}

		rec.RecordBestEffort(r.Context(), audit.Entry{
			TenantID:  scope.TenantID,
			CompanyID: scope.CompanyID,
			ActorID:   scope.ActorID,
			Action:    audit.ActionCreate,
			Entity:    "role",
			EntityID:  role.ID.String(),
			After:     map[string]any{"name": role.Name, "permissions": role.Permissions},
		})
		response.Created(w, newRoleView(role))
	}
}

// NewAssignRoleHandler returns an http.HandlerFunc for POST /admin/user-roles.
// Assigning a role the user already holds succeeds without a new audit entry.
func NewAssignRoleHandler(s AdminStore, rec AuditRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, ok := principalScope(w, r)
		if !ok {
			return
		}

		var req struct {
			UserID string `json:"user_id"`
			RoleID string `json:"role_id"`
		}
		if err := response.Decode(w, r, &req); err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, err.Error(), nil)
			return
		}
		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "user_id must be a valid UUID", nil)
			return
		}
		roleID, err := uuid.Parse(req.RoleID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "role_id must be a valid UUID", nil)
			return
		}

		// Both lookups filter on the caller's tenant, so foreign ids read as missing.
		if _, err := s.GetUserInTenant(r.Context(), userID, scope.TenantID); err != nil {
			writeLookupError(w, err, "User not found", scope.TenantID)
			return
		}
		role, err := s.GetRole(r.Context(), roleID, scope.TenantID)
		if err != nil {
			writeLookupError(w, err, "Role not found", scope.TenantID)
			return
		}

		created, err := s.AssignRole(r.Context(), userID, roleID)
		if err != nil {
			slog.Error("assign role failed", "error", err, "tenant_id", scope.TenantID)
			response.Internal(w)
			return
		}

		if created {
			rec.RecordBestEffort(r.Context(), audit.Entry{
				TenantID:  scope.TenantID,
				CompanyID: scope.CompanyID,
				ActorID:   scope.ActorID,
				Action:    audit.ActionAssign,
				Entity:    "user_role",
				EntityID:  userID.String(),
				After:     map[string]string{"user_id": userID.String(), "role_id": roleID.String(), "role": role.Name},
			})
		}
		response.JSON(w, map[string]any{
			"user_id":  userID,
			"role_id":  roleID,
			"assigned": created,
		})
	}
}

func writeLookupError(w http.ResponseWriter, err error, notFound string, tenantID uuid.UUID) {
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, response.CodeNotFound, notFound, nil)
		return
	}
	slog.Error("lookup failed", "error", err, "tenant_id", tenantID)
	response.Internal(w)
}
