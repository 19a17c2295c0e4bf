// Package memstore is an in-memory store.Store for tests. It enforces the
// same unique constraints as the migrations, and InTx applies staged writes
// only when the callback succeeds.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/geniusgrid/internal/store"
	"github.com/kiranshivaraju/geniusgrid/pkg/models"
)

// Counts is the number of rows per table.
type Counts struct {
	Tenants   int
	Companies int
	Roles     int
	Users     int
	UserRoles int
	Audit     int
}

// Store implements store.Store in memory. It is safe for concurrent use;
// transactions are serialized.
type Store struct {
	mu      sync.Mutex
	data    *state
	fail    map[string]error
	PingErr error
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{data: newState(), fail: map[string]error{}}
}

// FailOn makes every later call of the named Queries method return err.
// Pass a nil err to clear it.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, method)
		return
	}
	s.fail[method] = err
}

// Counts returns committed row counts.
func (s *Store) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Counts{
		Tenants:   len(s.data.tenants),
		Companies: len(s.data.companies),
		Roles:     len(s.data.roles),
		Users:     len(s.data.users),
		UserRoles: len(s.data.userRoles),
		Audit:     len(s.data.audit),
	}
}

// AuditEntries returns committed audit entries in append order.
func (s *Store) AuditEntries() []models.AuditLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AuditLogEntry, len(s.data.audit))
	for i, e := range s.data.audit {
		out[i] = *e
	}
	return out
}

// SetUserStatus changes a user's status directly.
func (s *Store) SetUserStatus(id uuid.UUID, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.data.users[id]; ok {
		u.Status = status
	}
}

// SetTenantStatus changes a tenant's status directly.
func (s *Store) SetTenantStatus(id uuid.UUID, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.data.tenants[id]; ok {
		t.Status = status
	}
}

func (s *Store) Ping(_ context.Context) error { return s.PingErr }

func (s *Store) InTx(ctx context.Context, fn func(q store.Queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.data.clone()
	if err := fn(&view{st: staged, fail: s.fail}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	s.data = staged
	return nil
}

func (s *Store) with(fn func(v *view) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&view{st: s.data, fail: s.fail})
}

func (s *Store) CreateTenant(ctx context.Context, t *models.Tenant) error {
	return s.with(func(v *view) error { return v.CreateTenant(ctx, t) })
}

func (s *Store) GetTenant(ctx context.Context, id uuid.UUID) (out *models.Tenant, err error) {
	err = s.with(func(v *view) error { out, err = v.GetTenant(ctx, id); return err })
	return out, err
}

func (s *Store) GetTenantBySlug(ctx context.Context, slug string) (out *models.Tenant, err error) {
	err = s.with(func(v *view) error { out, err = v.GetTenantBySlug(ctx, slug); return err })
	return out, err
}

func (s *Store) UpdateTenantPlan(ctx context.Context, id uuid.UUID, plan string) (out *models.Tenant, err error) {
	err = s.with(func(v *view) error { out, err = v.UpdateTenantPlan(ctx, id, plan); return err })
	return out, err
}

func (s *Store) CreateCompany(ctx context.Context, c *models.Company) error {
	return s.with(func(v *view) error { return v.CreateCompany(ctx, c) })
}

func (s *Store) ListCompanies(ctx context.Context, tenantID uuid.UUID) (out []*models.Company, err error) {
	err = s.with(func(v *view) error { out, err = v.ListCompanies(ctx, tenantID); return err })
	return out, err
}

func (s *Store) CreateRole(ctx context.Context, r *models.Role) error {
	return s.with(func(v *view) error { return v.CreateRole(ctx, r) })
}

func (s *Store) GetRole(ctx context.Context, id, tenantID uuid.UUID) (out *models.Role, err error) {
	err = s.with(func(v *view) error { out, err = v.GetRole(ctx, id, tenantID); return err })
	return out, err
}

func (s *Store) ListRoles(ctx context.Context, tenantID uuid.UUID) (out []*models.Role, err error) {
	err = s.with(func(v *view) error { out, err = v.ListRoles(ctx, tenantID); return err })
	return out, err
}

func (s *Store) ListUserRoles(ctx context.Context, userID uuid.UUID) (out []*models.Role, err error) {
	err = s.with(func(v *view) error { out, err = v.ListUserRoles(ctx, userID); return err })
	return out, err
}

func (s *Store) AssignRole(ctx context.Context, userID, roleID uuid.UUID) (created bool, err error) {
	err = s.with(func(v *view) error { created, err = v.AssignRole(ctx, userID, roleID); return err })
	return created, err
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	return s.with(func(v *view) error { return v.CreateUser(ctx, u) })
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (out *models.User, err error) {
	err = s.with(func(v *view) error { out, err = v.GetUser(ctx, id); return err })
	return out, err
}

func (s *Store) GetUserInTenant(ctx context.Context, id, tenantID uuid.UUID) (out *models.User, err error) {
	err = s.with(func(v *view) error { out, err = v.GetUserInTenant(ctx, id, tenantID); return err })
	return out, err
}

func (s *Store) GetUserByEmail(ctx context.Context, tenantID uuid.UUID, email string) (out *models.User, err error) {
	err = s.with(func(v *view) error { out, err = v.GetUserByEmail(ctx, tenantID, email); return err })
	return out, err
}

func (s *Store) AppendAuditEntry(ctx context.Context, e *models.AuditLogEntry) error {
	return s.with(func(v *view) error { return v.AppendAuditEntry(ctx, e) })
}

// --- state ---

type state struct {
	tenants   map[uuid.UUID]*models.Tenant
	companies map[uuid.UUID]*models.Company
	roles     map[uuid.UUID]*models.Role
	users     map[uuid.UUID]*models.User
	userRoles map[models.UserRole]bool
	audit     []*models.AuditLogEntry
}

func newState() *state {
	return &state{
		tenants:   map[uuid.UUID]*models.Tenant{},
		companies: map[uuid.UUID]*models.Company{},
		roles:     map[uuid.UUID]*models.Role{},
		users:     map[uuid.UUID]*models.User{},
		userRoles: map[models.UserRole]bool{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.tenants {
		t := *v
		c.tenants[k] = &t
	}
	for k, v := range s.companies {
		co := *v
		c.companies[k] = &co
	}
	for k, v := range s.roles {
		c.roles[k] = copyRole(v)
	}
	for k, v := range s.users {
		u := *v
		c.users[k] = &u
	}
	for k := range s.userRoles {
		c.userRoles[k] = true
	}
	c.audit = append(c.audit, s.audit...)
	return c
}

func copyRole(r *models.Role) *models.Role {
	out := *r
	out.Permissions = append([]string(nil), r.Permissions...)
	return &out
}

// view runs Queries against one state; the caller holds the lock.
type view struct {
	st   *state
	fail map[string]error
}

func (v *view) CreateTenant(_ context.Context, t *models.Tenant) error {
	if err := v.fail["CreateTenant"]; err != nil {
		return err
	}
	for _, existing := range v.st.tenants {
		if existing.Slug == t.Slug {
			return &store.DuplicateKeyError{Constraint: store.ConstraintTenantSlug}
		}
	}
	cp := *t
	v.st.tenants[t.ID] = &cp
	return nil
}

func (v *view) GetTenant(_ context.Context, id uuid.UUID) (*models.Tenant, error) {
	if err := v.fail["GetTenant"]; err != nil {
		return nil, err
	}
	t, ok := v.st.tenants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (v *view) GetTenantBySlug(_ context.Context, slug string) (*models.Tenant, error) {
	if err := v.fail["GetTenantBySlug"]; err != nil {
		return nil, err
	}
	for _, t := range v.st.tenants {
		if t.Slug == slug {
			cp := *t
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (v *view) UpdateTenantPlan(_ context.Context, id uuid.UUID, plan string) (*models.Tenant, error) {
	if err := v.fail["UpdateTenantPlan"]; err != nil {
		return nil, err
	}
	t, ok := v.st.tenants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	t.Plan = plan
	t.UpdatedAt = time.Now().UTC()
	cp := *t
	return &cp, nil
}

func (v *view) CreateCompany(_ context.Context, c *models.Company) error {
	if err := v.fail["CreateCompany"]; err != nil {
		return err
	}
	if _, ok := v.st.tenants[c.TenantID]; !ok {
		return fmt.Errorf("create company: tenant %s does not exist", c.TenantID)
	}
	cp := *c
	v.st.companies[c.ID] = &cp
	return nil
}

func (v *view) ListCompanies(_ context.Context, tenantID uuid.UUID) ([]*models.Company, error) {
	if err := v.fail["ListCompanies"]; err != nil {
		return nil, err
	}
	var out []*models.Company
	for _, c := range v.st.companies {
		if c.TenantID == tenantID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (v *view) CreateRole(_ context.Context, r *models.Role) error {
	if err := v.fail["CreateRole"]; err != nil {
		return err
	}
	if _, ok := v.st.tenants[r.TenantID]; !ok {
		return fmt.Errorf("create role: tenant %s does not exist", r.TenantID)
	}
	for _, existing := range v.st.roles {
		if existing.TenantID == r.TenantID && existing.Name == r.Name {
			return &store.DuplicateKeyError{Constraint: store.ConstraintRoleName}
		}
	}
	v.st.roles[r.ID] = copyRole(r)
	return nil
}

func (v *view) GetRole(_ context.Context, id, tenantID uuid.UUID) (*models.Role, error) {
	if err := v.fail["GetRole"]; err != nil {
		return nil, err
	}
	r, ok := v.st.roles[id]
	if !ok || r.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return copyRole(r), nil
}

func (v *view) ListRoles(_ context.Context, tenantID uuid.UUID) ([]*models.Role, error) {
	if err := v.fail["ListRoles"]; err != nil {
		return nil, err
	}
	var out []*models.Role
	for _, r := range v.st.roles {
		if r.TenantID == tenantID {
			out = append(out, copyRole(r))
		}
	}
	sortRoles(out)
	return out, nil
}

func (v *view) ListUserRoles(_ context.Context, userID uuid.UUID) ([]*models.Role, error) {
	if err := v.fail["ListUserRoles"]; err != nil {
		return nil, err
	}
	u, ok := v.st.users[userID]
	if !ok {
		return nil, nil
	}
	var out []*models.Role
	for ur := range v.st.userRoles {
		if ur.UserID != userID {
			continue
		}
		if r, ok := v.st.roles[ur.RoleID]; ok && r.TenantID == u.TenantID {
			out = append(out, copyRole(r))
		}
	}
	sortRoles(out)
	return out, nil
}

func (v *view) AssignRole(_ context.Context, userID, roleID uuid.UUID) (bool, error) {
	if err := v.fail["AssignRole"]; err != nil {
		return false, err
	}
	if _, ok := v.st.users[userID]; !ok {
		return false, fmt.Errorf("assign role: user %s does not exist", userID)
	}
	if _, ok := v.st.roles[roleID]; !ok {
		return false, fmt.Errorf("assign role: role %s does not exist", roleID)
	}
	key := models.UserRole{UserID: userID, RoleID: roleID}
	if v.st.userRoles[key] {
		return false, nil
	}
	v.st.userRoles[key] = true
	return true, nil
}

func (v *view) CreateUser(_ context.Context, u *models.User) error {
	if err := v.fail["CreateUser"]; err != nil {
		return err
	}
	if _, ok := v.st.companies[u.CompanyID]; !ok {
		return fmt.Errorf("create user: company %s does not exist", u.CompanyID)
	}
	for _, existing := range v.st.users {
		if existing.TenantID == u.TenantID && existing.Email == u.Email {
			return &store.DuplicateKeyError{Constraint: store.ConstraintUserEmail}
		}
	}
	cp := *u
	v.st.users[u.ID] = &cp
	return nil
}

func (v *view) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	if err := v.fail["GetUser"]; err != nil {
		return nil, err
	}
	u, ok := v.st.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (v *view) GetUserInTenant(ctx context.Context, id, tenantID uuid.UUID) (*models.User, error) {
	u, err := v.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (v *view) GetUserByEmail(_ context.Context, tenantID uuid.UUID, email string) (*models.User, error) {
	if err := v.fail["GetUserByEmail"]; err != nil {
		return nil, err
	}
	for _, u := range v.st.users {
		if u.TenantID == tenantID && strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (v *view) AppendAuditEntry(_ context.Context, e *models.AuditLogEntry) error {
	if err := v.fail["AppendAuditEntry"]; err != nil {
		return err
	}
	e.ID = int64(len(v.st.audit) + 1)
	e.CreatedAt = time.Now().UTC()
	cp := *e
	v.st.audit = append(v.st.audit, &cp)
	return nil
}

func sortRoles(roles []*models.Role) {
	sort.Slice(roles, func(i, j int) bool {
		if roles[i].CreatedAt.Equal(roles[j].CreatedAt) {
			return roles[i].Name < roles[j].Name
		}
		return roles[i].CreatedAt.Before(roles[j].CreatedAt)
	})
}
