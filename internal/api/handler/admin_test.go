package handler_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/geniusgrid/internal/api/handler"
	"github.com/kiranshivaraju/geniusgrid/internal/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ========================================
// Tenant
// ========================================

func TestGetTenant(t *testing.T) {
	f := newFixture(t)
	res := f.signup(t, "Acme", "acme", "a@acme.com")

	w := do(t, f.authed(handler.NewGetTenantHandler(f.store)), "GET", "/admin/tenant", nil, res.Token)
	require.Equal(t, http.StatusOK, w.Code)

	data := dataOf(t, w)
	assert.Equal(t, res.Tenant.ID.String(), data["id"])
	assert.Equal(t, "acme", data["slug"])
	assert.Equal(t, "free", data["plan"])
}

func TestGetTenant_ScopedToCaller(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "Acme", "acme", "a@acme.com")
	globex := f.signup(t, "Globex", "globex", "g@globex.com")

	w := do(t, f.authed(handler.NewGetTenantHandler(f.store)), "GET", "/admin/tenant", nil, globex.Token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "globex", dataOf(t, w)["slug"])
}

func TestUpdateTenant_PlanAudited(t *testing.T) {
	f := newFixture(t)
	res := f.signup(t, "Acme", "acme", "a@acme.com")
	h := f.withPerm("tenant.write", handler.NewUpdateTenantHandler(f.store, f.recorder))

	w := do(t, h, "PATCH", "/admin/tenant", map[string]string{"plan": "Pro"}, res.Token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "pro", dataOf(t, w)["plan"])

	entries := f.store.AuditEntries()
	require.Len(t, entries, 2)
	last := entries[1]
	assert.Equal(t, audit.ActionUpdate, last.Action)
	assert.Equal(t, "tenant", last.Entity)
	require.NotNil(t, last.ActorID)
	assert.Equal(t, res.Principal.UserID, *last.ActorID)
	assert.JSONEq(t, `{"plan":"free"}`, string(last.BeforeJSON))
	assert.JSONEq(t, `{"plan":"pro"}`, string(last.AfterJSON))
}

func TestUpdateTenant_RequiresPermission(t *testing.T) {
	f := newFixture(t)
	res := f.signup(t, "Acme", "acme", "a@acme.com")
	_, token := f.addMember(t, res, "m@acme.com", "companies.read")
	h := f.withPerm("tenant.write", handler.NewUpdateTenantHandler(f.store, f.recorder))

	w := do(t, h, "PATCH", "/admin/tenant", map[string]string{"plan": "pro"}, token)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", errCode(t, w))
}

func TestUpdateTenant_MissingPlan(t *testing.T) {
	f := newFixture(t)
	res := f.signup(t, "Acme", "acme", "a@acme.com")
	h := f.authed(handler.NewUpdateTenantHandler(f.store, f.recorder))

	w := do(t, h, "PATCH", "/admin/tenant", map[string]string{"plan": "  "}, res.Token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateTenant_WithoutPrincipal(t *testing.T) {
	f := newFixture(t)
	w := do(t, handler.NewUpdateTenantHandler(f.store, f.recorder), "PATCH", "/admin/tenant",
		map[string]string{"plan": "pro"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUpdateTenant_AuditFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	res := f.signup(t, "Acme", "acme", "a@acme.com")
	f.store.FailOn("AppendAuditEntry", errors.New("audit unavailable"))

	w := do(t, f.authed(handler.NewUpdateTenantHandler(f.store, f.recorder)), "PATCH", "/admin/tenant",
		map[string]string{"plan": "pro"}, res.Token)
	assert.Equal(t, http.StatusOK, w.Code)
}

// ========================================
// Roles
// ========================================

func TestListRoles(t *testing.T) {
	f := newFixture(t)
	res := f.signup(t, "Acme", "acme", "a@acme.com")
	f.signup(t, "Globex", "globex", "g@globex.com")

	w := do(t, f.authed(handler.NewListRolesHandler(f.store)), "GET", "/admin/roles", nil, res.Token)
	require.Equal(t, http.StatusOK, w.Code)

	roles := listOf(t, w)
	require.Len(t, roles, 1, "only the caller's tenant roles")
	role := roles[0].(map[string]any)
	assert.Equal(t, "Admin", role["name"])
	assert.Equal(t, "admin", role["key"])
	assert.Equal(t, []any{"*"}, role["permissions"])
}

func TestListRoles_NormalizesAdministrator(t *testing.T) {
	f := newFixture(t)
	res := f.signup(t, "Acme", "acme", "a@acme.com")
	create := f.authed(handler.NewCreateRoleHandler(f.store, f.recorder))
	require.Equal(t, http.StatusCreated,
		do(t, create, "POST", "/admin/roles", map[string]any{"name": "administrator"}, res.Token).Code)

	w := do(t, f.authed(handler.NewListRolesHandler(f.store)), "GET", "/admin/roles", nil, res.Token)
	require.Equal(t, http.StatusOK, w.Code)
	for _, r := range listOf(t, w) {
		assert.Equal(t, "Admin", r.(map[string]any)["name"])
	}
}

func TestCreateRole(t *testing.T) {
	f := newFixture(t)
	res := f.signup(t, "Acme", "acme", "a@acme.com")
	h := f.withPerm("roles.write", handler.NewCreateRoleHandler(f.store, f.recorder))

	w := do(t, h, "POST", "/admin/roles",
		map[string]any{"name": " Sales ", "permissions": []string{"leads.read", "deals.write"}}, res.Token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	data := dataOf(t, w)
	assert.Equal(t, "Sales", data["name"])
	assert.Equal(t, []any{"leads.read", "deals.write"}, data["permissions"])
	assert.NotContains(t, data, "key")

	entries := f.store.AuditEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionCreate, entries[1].Action)
	assert.Equal(t, "role", entries[1].Entity)
	assert.Equal(t, data["id"], entries[1].EntityID)
}

func TestCreateRole_Duplicate(t *testing.T) {
	f := newFixture(t)
	res := f.signup(t, "Acme", "acme", "a@acme.com")
	h := f.authed(handler.NewCreateRoleHandler(f.store, f.recorder))

	w := do(t, h, "POST", "/admin/roles", map[string]any{"name": "Admin"}, res.Token)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DUPLICATE_ROLE", errCode(t, w))
}

func TestCreateRole_SameNameOtherTenant(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "Acme", "acme", "a@acme.com")
	globex := f.signup(t, "Globex", "globex", "g@globex.com")
	h := f.authed(handler.NewCreateRoleHandler(f.store, f.recorder))

	require.Equal(t, http.StatusCreated,
		do(t, h, "POST", "/admin/roles", map[string]any{"name": "Sales"}, globex.Token).Code)
}

func TestCreateRole_Validation(t *testing.T) {
	f := newFixture(t)
	res := f.signup(t, "Acme", "acme", "a@acme.com")
	h := f.authed(handler.NewCreateRoleHandler(f.store, f.recorder))

	tests := []struct {
		name string
		body any
	}{
		{"missing name", map[string]any{"permissions": []string{"x"}}},
		{"blank permission", map[string]any{"name": "Sales", "permissions": []string{" "}}},
		{"unknown field", map[string]any{"name": "Sales", "tenant_id": uuid.NewString()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, "POST", "/admin/roles", tt.body, res.Token)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestCreateRole_RequiresPermission(t *testing.T) {
	f := newFixture(t)
	res := f.signup(t, "Acme", "acme", "a@acme.com")
	_, token := f.addMember(t, res, "m@acme.com", "roles.read")
	h := f.withPerm("roles.write", handler.NewCreateRoleHandler(f.store, f.recorder))

	w := do(t, h, "POST", "/admin/roles", map[string]any{"name": "Sales"}, token)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

// ========================================
// User roles
// ========================================

func createRole(t *testing.T, f *fixture, token, name string) string {
	t.Helper()
	w := do(t, f.authed(handler.NewCreateRoleHandler(f.store, f.recorder)), "POST", "/admin/roles",
		map[string]any{"name": name, "permissions": []string{"leads.read"}}, token)
	require.Equal(t, http.StatusCreated, w.Code)
	return dataOf(t, w)["id"].(string)
}

func TestAssignRole(t *testing.T) {
	f := newFixture(t)
	res := f.signup(t, "Acme", "acme", "a@acme.com")
	member, _ := f.addMember(t, res, "m@acme.com")
	roleID := createRole(t, f, res.Token, "Sales")
	h := f.withPerm("roles.write", handler.NewAssignRoleHandler(f.store, f.recorder))
	auditBefore := len(f.store.AuditEntries())

	w := do(t, h, "POST", "/admin/user-roles",
		map[string]string{"user_id": member.ID.String(), "role_id": roleID}, res.Token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, dataOf(t, w)["assigned"])

	entries := f.store.AuditEntries()
	require.Len(t, entries, auditBefore+1)
	last := entries[len(entries)-1]
	assert.Equal(t, audit.ActionAssign, last.Action)
	assert.Equal(t, "user_role", last.Entity)

	var after map[string]string
	require.NoError(t, json.Unmarshal(last.AfterJSON, &after))
	assert.Equal(t, roleID, after["role_id"])
	assert.Equal(t, "Sales", after["role"])
}

func TestAssignRole_Idempotent(t *testing.T) {
	f := newFixture(t)
	res := f.signup(t, "Acme", "acme", "a@acme.com")
	member, _ := f.addMember(t, res, "m@acme.com")
	roleID := createRole(t, f, res.Token, "Sales")
	h := f.authed(handler.NewAssignRoleHandler(f.store, f.recorder))
	body := map[string]string{"user_id": member.ID.String(), "role_id": roleID}

	require.Equal(t, http.StatusOK, do(t, h, "POST", "/admin/user-roles", body, res.Token).Code)
	userRoles := f.store.Counts().UserRoles
	auditCount := len(f.store.AuditEntries())

	w := do(t, h, "POST", "/admin/user-roles", body, res.Token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, dataOf(t, w)["assigned"])
	assert.Equal(t, userRoles, f.store.Counts().UserRoles)
	assert.Len(t, f.store.AuditEntries(), auditCount)
}

func TestAssignRole_ForeignUserRejected(t *testing.T) {
	f := newFixture(t)
	res := f.signup(t, "Acme", "acme", "a@acme.com")
	globex := f.signup(t, "Globex", "globex", "g@globex.com")
	roleID := createRole(t, f, res.Token, "Sales")
	h := f.authed(handler.NewAssignRoleHandler(f.store, f.recorder))

	w := do(t, h, "POST", "/admin/user-roles",
		map[string]string{"user_id": globex.Principal.UserID.String(), "role_id": roleID}, res.Token)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errCode(t, w))
}

func TestAssignRole_ForeignRoleRejected(t *testing.T) {
	f := newFixture(t)
	res := f.signup(t, "Acme", "acme", "a@acme.com")
	globex := f.signup(t, "Globex", "globex", "g@globex.com")
	foreignRole := createRole(t, f, globex.Token, "Sales")
	h := f.authed(handler.NewAssignRoleHandler(f.store, f.recorder))

	w := do(t, h, "POST", "/admin/user-roles",
		map[string]string{"user_id": res.Principal.UserID.String(), "role_id": foreignRole}, res.Token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAssignRole_InvalidIDs(t *testing.T) {
	f := newFixture(t)
	res := f.signup(t, "Acme", "acme", "a@acme.com")
	h := f.authed(handler.NewAssignRoleHandler(f.store, f.recorder))

	w := do(t, h, "POST", "/admin/user-roles", map[string]string{"user_id": "nope", "role_id": uuid.NewString()}, res.Token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, "POST", "/admin/user-roles", map[string]string{"user_id": uuid.NewString(), "role_id": "nope"}, res.Token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAssignRole_StoreFailure(t *testing.T) {
	f := newFixture(t)
	res := f.signup(t, "Acme", "acme", "a@acme.com")
	member, _ := f.addMember(t, res, "m@acme.com")
	roleID := createRole(t, f, res.Token, "Sales")
	f.store.FailOn("AssignRole", errors.New("deadlock detected"))

	w := do(t, f.authed(handler.NewAssignRoleHandler(f.store, f.recorder)), "POST", "/admin/user-roles",
		map[string]string{"user_id": member.ID.String(), "role_id": roleID}, res.Token)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
