package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/geniusgrid/internal/audit"
	"github.com/kiranshivaraju/geniusgrid/internal/auth"
	"github.com/kiranshivaraju/geniusgrid/internal/store"
	"github.com/kiranshivaraju/geniusgrid/pkg/models"
)

const (
	defaultRegion      = "us"
	defaultPlan        = "free"
	defaultDisplayName = "Admin User"
	adminRoleKey       = "admin"
	minPasswordLen     = 8
	maxPasswordLen     = 72 // bcrypt input limit in bytes
	maxSlugLen         = 63
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// TxRunner runs a function inside a single store transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(q store.Queries) error) error
}

// TokenIssuer signs a session token for a Principal.
type TokenIssuer interface {
	IssueToken(p *models.Principal) (string, time.Time, error)
}

// AuditRecorder records audit entries without failing the caller.
type AuditRecorder interface {
	RecordBestEffort(ctx context.Context, e audit.Entry)
}

// SignupRequest is the input to Provision. Region, Plan and DisplayName are optional.
type SignupRequest struct {
	TenantName  string
	Slug        string
	Region      string
	Plan        string
	Email       string
	Password    string
	DisplayName string
}

// Normalize trims every field, lowercases slug and email, and applies defaults.
func (r *SignupRequest) Normalize() {
	r.TenantName = strings.TrimSpace(r.TenantName)
	r.Slug = auth.NormalizeSlug(r.Slug)
	r.Email = auth.NormalizeEmail(r.Email)
	r.DisplayName = strings.TrimSpace(r.DisplayName)
	r.Region = strings.TrimSpace(r.Region)
	r.Plan = strings.TrimSpace(r.Plan)
	if r.Region == "" {
		r.Region = defaultRegion
	}
	if r.Plan == "" {
		r.Plan = defaultPlan
	}
	if r.DisplayName == "" {
		r.DisplayName = defaultDisplayName
	}
}

// Validate checks required fields and formats. Call Normalize first.
func (r *SignupRequest) Validate() error {
	switch {
	case r.TenantName == "":
		return &ValidationError{Field: "tenantName", Message: "is required"}
	case r.Slug == "":
		return &ValidationError{Field: "slug", Message: "is required"}
	case len(r.Slug) > maxSlugLen || !slugPattern.MatchString(r.Slug):
		return &ValidationError{Field: "slug", Message: "must be lowercase letters, digits and single hyphens"}
	case r.Email == "":
		return &ValidationError{Field: "email", Message: "is required"}
	case !strings.Contains(r.Email, "@"):
		return &ValidationError{Field: "email", Message: "must be a valid email address"}
	case r.Password == "":
		return &ValidationError{Field: "password", Message: "is required"}
	case len(r.Password) < minPasswordLen:
		return &ValidationError{Field: "password", Message: fmt.Sprintf("must be at least %d characters", minPasswordLen)}
	case len(r.Password) > maxPasswordLen:
		return &ValidationError{Field: "password", Message: fmt.Sprintf("must be at most %d bytes", maxPasswordLen)}
	}
	return nil
}

// Result is a freshly provisioned tenant and its signed-in administrator.
type Result struct {
	Principal *models.Principal
	Tenant    *models.Tenant
	Company   *models.Company
	Token     string
	ExpiresAt time.Time
}

// Provisioner creates a tenant's root entities as one atomic unit.
type Provisioner struct {
	store  TxRunner
	hasher auth.Hasher
	issuer TokenIssuer
	audit  AuditRecorder
	now    func() time.Time
}

func NewProvisioner(s TxRunner, h auth.Hasher, issuer TokenIssuer, recorder AuditRecorder) *Provisioner {
	return &Provisioner{store: s, hasher: h, issuer: issuer, audit: recorder, now: time.Now}
}

// Provision creates tenant, company, admin role, admin user and the role
// assignment in one transaction, then issues a token. The audit entry is
// written after commit and never affects the outcome.
func (p *Provisioner) Provision(ctx context.Context, req SignupRequest) (*Result, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Hash before opening the transaction so the connection is not held during bcrypt.
	hash, err := p.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvisionFailed, err)
	}

	now := p.now().UTC()
	tenant := &models.Tenant{
		ID:        uuid.New(),
		Name:      req.TenantName,
		Slug:      req.Slug,
		Region:    req.Region,
		Plan:      req.Plan,
		Status:    models.TenantStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	company := &models.Company{
		ID:        uuid.New(),
		TenantID:  tenant.ID,
		Name:      req.TenantName + " HQ",
		CreatedAt: now,
	}
	key := adminRoleKey
	role := &models.Role{
		ID:          uuid.New(),
		TenantID:    tenant.ID,
		Key:         &key,
		Name:        auth.AdminRole,
		Permissions: []string{models.PermissionAll},
		CreatedAt:   now,
	}
	user := &models.User{
		ID:           uuid.New(),
		TenantID:     tenant.ID,
		CompanyID:    company.ID,
		Email:        req.Email,
		PasswordHash: hash,
		DisplayName:  req.DisplayName,
		Status:       models.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = p.store.InTx(ctx, func(q store.Queries) error {
		if err := q.CreateTenant(ctx, tenant); err != nil {
			return err
		}
		if err := q.CreateCompany(ctx, company); err != nil {
			return err
		}
		if err := q.CreateRole(ctx, role); err != nil {
			return err
		}
		if err := q.CreateUser(ctx, user); err != nil {
			return err
		}
		if _, err := q.AssignRole(ctx, user.ID, role.ID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}

	principal := auth.NewPrincipal(user, []*models.Role{role})
	token, exp, err := p.issuer.IssueToken(principal)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvisionFailed, err)
	}

	slog.Info("tenant provisioned", "tenant_id", tenant.ID, "slug", tenant.Slug, "user_id", user.ID)

	p.audit.RecordBestEffort(ctx, audit.Entry{
		TenantID:  tenant.ID,
		CompanyID: &company.ID,
		ActorID:   &user.ID,
		Action:    audit.ActionCreate,
		Entity:    "tenant",
		EntityID:  tenant.ID.String(),
		After: map[string]string{
			"tenant_name": tenant.Name,
			"slug":        tenant.Slug,
			"email":       user.Email,
		},
	})

	return &Result{
		Principal: principal,
		Tenant:    tenant,
		Company:   company,
		Token:     token,
		ExpiresAt: exp,
	}, nil
}

func classify(err error) error {
	switch {
	case store.IsDuplicate(err, store.ConstraintTenantSlug):
		return ErrDuplicateSlug
	case store.IsDuplicate(err, store.ConstraintUserEmail):
		return ErrDuplicateEmail
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrProvisionFailed, err)
	default:
		return fmt.Errorf("%w: %v", ErrProvisionFailed, err)
	}
}
