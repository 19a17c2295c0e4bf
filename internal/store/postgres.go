package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/geniusgrid/pkg/models"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	*pgQueries
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pgQueries: &pgQueries{q: pool}, pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InTx begins a transaction, hands fn a Queries bound to it, and commits only
// if fn succeeds. The deferred rollback returns the connection to the pool on
// every path and is a no-op after a successful commit.
func (s *PostgresStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := fn(&pgQueries{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type pgQueries struct {
	q querier
}

// --- Tenants ---

const tenantColumns = `tenant_id, name, slug, region, plan, status, created_at, updated_at`

func scanTenant(row pgx.Row) (*models.Tenant, error) {
	var t models.Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.Region, &t.Plan, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *pgQueries) CreateTenant(ctx context.Context, t *models.Tenant) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO tenant (tenant_id, name, slug, region, plan, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.Name, t.Slug, t.Region, t.Plan, t.Status, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return wrapWriteError("create tenant", err)
	}
	return nil
}

func (s *pgQueries) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	t, err := scanTenant(s.q.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenant WHERE tenant_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

func (s *pgQueries) GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	t, err := scanTenant(s.q.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenant WHERE slug = $1`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant by slug: %w", err)
	}
	return t, nil
}

func (s *pgQueries) UpdateTenantPlan(ctx context.Context, id uuid.UUID, plan string) (*models.Tenant, error) {
	t, err := scanTenant(s.q.QueryRow(ctx,
		`UPDATE tenant SET plan = $2, updated_at = NOW() WHERE tenant_id = $1
		 RETURNING `+tenantColumns, id, plan))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update tenant plan: %w", err)
	}
	return t, nil
}

// --- Companies ---

func (s *pgQueries) CreateCompany(ctx context.Context, c *models.Company) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO company (company_id, tenant_id, name, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.TenantID, c.Name, c.CreatedAt)
	if err != nil {
		return wrapWriteError("create company", err)
	}
	return nil
}

func (s *pgQueries) ListCompanies(ctx context.Context, tenantID uuid.UUID) ([]*models.Company, error) {
	rows, err := s.q.Query(ctx,
		`SELECT company_id, tenant_id, name, created_at
		 FROM company WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()

	var companies []*models.Company
	for rows.Next() {
		var c models.Company
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		companies = append(companies, &c)
	}
	return companies, rows.Err()
}

// --- Roles ---

func (s *pgQueries) CreateRole(ctx context.Context, r *models.Role) error {
	perms := r.Permissions
	if perms == nil {
		perms = []string{}
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO role (role_id, tenant_id, key, name, permissions, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.TenantID, r.Key, r.Name, perms, r.CreatedAt)
	if err != nil {
		return wrapWriteError("create role", err)
	}
	return nil
}

func (s *pgQueries) GetRole(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Role, error) {
	var r models.Role
	err := s.q.QueryRow(ctx,
		`SELECT role_id, tenant_id, key, name, permissions, created_at
		 FROM role WHERE role_id = $1 AND tenant_id = $2`, id, tenantID,
	).Scan(&r.ID, &r.TenantID, &r.Key, &r.Name, &r.Permissions, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get role: %w", err)
	}
	return &r, nil
}

func (s *pgQueries) ListRoles(ctx context.Context, tenantID uuid.UUID) ([]*models.Role, error) {
	return s.queryRoles(ctx, "list roles",
		`SELECT role_id, tenant_id, key, name, permissions, created_at
		 FROM role WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
}

// ListUserRoles returns every role assigned to the user. The join keeps only
// roles from the user's own tenant.
func (s *pgQueries) ListUserRoles(ctx context.Context, userID uuid.UUID) ([]*models.Role, error) {
	return s.queryRoles(ctx, "list user roles",
		`SELECT r.role_id, r.tenant_id, r.key, r.name, r.permissions, r.created_at
		 FROM user_role ur
		 JOIN role r ON r.role_id = ur.role_id
		 JOIN app_user u ON u.user_id = ur.user_id AND u.tenant_id = r.tenant_id
		 WHERE ur.user_id = $1
		 ORDER BY r.created_at`, userID)
}

func (s *pgQueries) queryRoles(ctx context.Context, op, sql string, args ...any) ([]*models.Role, error) {
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var roles []*models.Role
	for rows.Next() {
		var r models.Role
		if err := rows.Scan(&r.ID, &r.TenantID, &r.Key, &r.Name, &r.Permissions, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, &r)
	}
	return roles, rows.Err()
}

// AssignRole inserts the (user, role) pair. A duplicate assignment is a no-op;
// the returned bool reports whether a row was created.
func (s *pgQueries) AssignRole(ctx context.Context, userID, roleID uuid.UUID) (bool, error) {
	tag, err := s.q.Exec(ctx,
		`INSERT INTO user_role (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, roleID)
	if err != nil {
		return false, wrapWriteError("assign role", err)
	}
	return tag.RowsAffected() == 1, nil
}

// --- Users ---

const userColumns = `user_id, tenant_id, company_id, email, password_hash, display_name, status, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.TenantID, &u.CompanyID, &u.Email, &u.PasswordHash,
		&u.DisplayName, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *pgQueries) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO app_user (user_id, tenant_id, company_id, email, password_hash, display_name, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.TenantID, u.CompanyID, u.Email, u.PasswordHash, u.DisplayName, u.Status, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return wrapWriteError("create user", err)
	}
	return nil
}

func (s *pgQueries) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(s.q.QueryRow(ctx,
		`SELECT `+userColumns+` FROM app_user WHERE user_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *pgQueries) GetUserInTenant(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.User, error) {
	u, err := scanUser(s.q.QueryRow(ctx,
		`SELECT `+userColumns+` FROM app_user WHERE user_id = $1 AND tenant_id = $2`, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user in tenant: %w", err)
	}
	return u, nil
}

func (s *pgQueries) GetUserByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*models.User, error) {
	u, err := scanUser(s.q.QueryRow(ctx,
		`SELECT `+userColumns+` FROM app_user WHERE tenant_id = $1 AND lower(email) = lower($2)`,
		tenantID, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// --- Audit Log ---

// AppendAuditEntry inserts the entry and fills in the store-assigned id and timestamp.
func (s *pgQueries) AppendAuditEntry(ctx context.Context, e *models.AuditLogEntry) error {
	err := s.q.QueryRow(ctx,
		`INSERT INTO audit_log (tenant_id, company_id, actor_id, action, entity, entity_id, before_json, after_json)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING audit_id, created_at`,
		e.TenantID, e.CompanyID, e.ActorID, e.Action, e.Entity, e.EntityID,
		nullableJSON(e.BeforeJSON), nullableJSON(e.AfterJSON),
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func wrapWriteError(op string, err error) error {
	if constraint, ok := duplicateConstraint(err); ok {
		return &DuplicateKeyError{Constraint: constraint}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// duplicateConstraint checks if a pgx error is a unique constraint violation
// and returns the violated constraint name.
func duplicateConstraint(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
		return pgErr.ConstraintName, true
	}
	return "", false
}
