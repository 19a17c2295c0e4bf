package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/geniusgrid/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Unique constraint names from the migrations. DuplicateKeyError carries one of these.
const (
	ConstraintTenantSlug = "tenant_slug_key"
	ConstraintUserEmail  = "app_user_tenant_email_key"
	ConstraintRoleName   = "role_tenant_name_key"
)

// DuplicateKeyError reports a unique constraint violation. It matches ErrDuplicateKey.
type DuplicateKeyError struct {
	Constraint string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key violation: %s", e.Constraint)
}

func (e *DuplicateKeyError) Is(target error) bool {
	return target == ErrDuplicateKey
}

// IsDuplicate reports whether err is a unique violation of the named constraint.
func IsDuplicate(err error, constraint string) bool {
	var dup *DuplicateKeyError
	return errors.As(err, &dup) && dup.Constraint == constraint
}

// Queries is the set of data operations available both on the pool and inside a transaction.
// Every tenant-owned read takes the tenant id and filters on it.
type Queries interface {
	CreateTenant(ctx context.Context, t *models.Tenant) error
	GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error)
	UpdateTenantPlan(ctx context.Context, id uuid.UUID, plan string) (*models.Tenant, error)

	CreateCompany(ctx context.Context, c *models.Company) error
	ListCompanies(ctx context.Context, tenantID uuid.UUID) ([]*models.Company, error)

	CreateRole(ctx context.Context, r *models.Role) error
	GetRole(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Role, error)
	ListRoles(ctx context.Context, tenantID uuid.UUID) ([]*models.Role, error)
	ListUserRoles(ctx context.Context, userID uuid.UUID) ([]*models.Role, error)
	AssignRole(ctx context.Context, userID, roleID uuid.UUID) (bool, error)

	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserInTenant(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*models.User, error)

	AppendAuditEntry(ctx context.Context, e *models.AuditLogEntry) error
}

// Store is the data access interface. All database operations go through here.
type Store interface {
	Queries
	Ping(ctx context.Context) error

	// InTx runs fn inside one transaction. The transaction commits only if fn
	// returns nil and is rolled back on every other path.
	InTx(ctx context.Context, fn func(q Queries) error) error
}
