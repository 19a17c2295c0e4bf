package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/geniusgrid/internal/store"
	"github.com/kiranshivaraju/geniusgrid/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool + cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("geniusgrid_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Run migrations
	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

// seed creates a tenant with one company and one user.
func seed(t *testing.T, s store.Store, slug string) (*models.Tenant, *models.Company, *models.User) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	tn := &models.Tenant{
		ID: uuid.New(), Name: slug, Slug: slug, Region: "us", Plan: "free",
		Status: models.TenantStatusActive, CreatedAt: now, UpdatedAt: now,
	}
	co := &models.Company{ID: uuid.New(), TenantID: tn.ID, Name: slug, CreatedAt: now}
	u := &models.User{
		ID: uuid.New(), TenantID: tn.ID, CompanyID: co.ID, Email: "owner@" + slug + ".com",
		PasswordHash: "$2a$04$hash", DisplayName: "Owner", Status: models.UserStatusActive,
		CreatedAt: now, UpdatedAt: now,
	}

	require.NoError(t, s.InTx(ctx, func(q store.Queries) error {
		if err := q.CreateTenant(ctx, tn); err != nil {
			return err
		}
		if err := q.CreateCompany(ctx, co); err != nil {
			return err
		}
		return q.CreateUser(ctx, u)
	}))
	return tn, co, u
}

func newRole(tenantID uuid.UUID, name string, perms ...string) *models.Role {
	return &models.Role{
		ID: uuid.New(), TenantID: tenantID, Name: name,
		Permissions: perms, CreatedAt: time.Now().UTC(),
	}
}

// --- Connectivity ---

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))

	assert.NoError(t, s.Ping(context.Background()))
}

// --- Tenant Tests ---

func TestTenant_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	tn, _, _ := seed(t, s, "acme")

	got, err := s.GetTenant(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme", got.Slug)
	assert.Equal(t, models.TenantStatusActive, got.Status)

	bySlug, err := s.GetTenantBySlug(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, tn.ID, bySlug.ID)

	_, err = s.GetTenantBySlug(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTenant_DuplicateSlug(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	seed(t, s, "acme")

	now := time.Now().UTC()
	err := s.CreateTenant(context.Background(), &models.Tenant{
		ID: uuid.New(), Name: "Other", Slug: "acme", Region: "us", Plan: "free",
		Status: models.TenantStatusActive, CreatedAt: now, UpdatedAt: now,
	})
	require.Error(t, err)
	assert.True(t, store.IsDuplicate(err, store.ConstraintTenantSlug))
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

func TestTenant_UpdatePlan(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	tn, _, _ := seed(t, s, "acme")

	updated, err := s.UpdateTenantPlan(ctx, tn.ID, "pro")
	require.NoError(t, err)
	assert.Equal(t, "pro", updated.Plan)
	assert.False(t, updated.UpdatedAt.Before(tn.UpdatedAt.Truncate(time.Second)))

	_, err = s.UpdateTenantPlan(ctx, uuid.New(), "pro")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Transaction Tests ---

func TestInTx_RollsBackOnError(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()
	boom := errors.New("boom")

	tenantID := uuid.New()
	err := s.InTx(ctx, func(q store.Queries) error {
		if err := q.CreateTenant(ctx, &models.Tenant{
			ID: tenantID, Name: "Acme", Slug: "acme", Region: "us", Plan: "free",
			Status: models.TenantStatusActive, CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetTenant(ctx, tenantID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// the slug is free again
	seed(t, s, "acme")
}

func TestInTx_RollsBackOnDuplicate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	tn, co, _ := seed(t, s, "acme")

	roleID := uuid.New()
	err := s.InTx(ctx, func(q store.Queries) error {
		if err := q.CreateRole(ctx, &models.Role{ID: roleID, TenantID: tn.ID, Name: "Sales", CreatedAt: time.Now()}); err != nil {
			return err
		}
		now := time.Now().UTC()
		return q.CreateUser(ctx, &models.User{
			ID: uuid.New(), TenantID: tn.ID, CompanyID: co.ID, Email: "owner@acme.com",
			PasswordHash: "x", DisplayName: "Dup", Status: models.UserStatusActive,
			CreatedAt: now, UpdatedAt: now,
		})
	})
	require.Error(t, err)
	assert.True(t, store.IsDuplicate(err, store.ConstraintUserEmail))

	_, err = s.GetRole(ctx, roleID, tn.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Role Tests ---

func TestRole_CreateGetList(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	acme, _, _ := seed(t, s, "acme")
	globex, _, _ := seed(t, s, "globex")

	r := newRole(acme.ID, "Sales", "leads.read", "leads.write")
	require.NoError(t, s.CreateRole(ctx, r))

	got, err := s.GetRole(ctx, r.ID, acme.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"leads.read", "leads.write"}, got.Permissions)

	_, err = s.GetRole(ctx, r.ID, globex.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	roles, err := s.ListRoles(ctx, acme.ID)
	require.NoError(t, err)
	assert.Len(t, roles, 1)

	roles, err = s.ListRoles(ctx, globex.ID)
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestRole_DuplicateNamePerTenant(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	acme, _, _ := seed(t, s, "acme")
	globex, _, _ := seed(t, s, "globex")

	require.NoError(t, s.CreateRole(ctx, newRole(acme.ID, "Admin", "*")))
	require.NoError(t, s.CreateRole(ctx, newRole(globex.ID, "Admin", "*")))

	err := s.CreateRole(ctx, newRole(acme.ID, "Admin"))
	assert.True(t, store.IsDuplicate(err, store.ConstraintRoleName))
}

func TestAssignRole_Idempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	tn, _, u := seed(t, s, "acme")
	r := newRole(tn.ID, "Admin", "*")
	require.NoError(t, s.CreateRole(ctx, r))

	created, err := s.AssignRole(ctx, u.ID, r.ID)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.AssignRole(ctx, u.ID, r.ID)
	require.NoError(t, err)
	assert.False(t, created)

	roles, err := s.ListUserRoles(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "Admin", roles[0].Name)
}

// --- User Tests ---

func TestUser_Lookups(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	acme, _, u := seed(t, s, "acme")
	globex, _, _ := seed(t, s, "globex")

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)
	assert.Equal(t, u.PasswordHash, got.PasswordHash)

	got, err = s.GetUserByEmail(ctx, acme.ID, "OWNER@ACME.COM")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.GetUserByEmail(ctx, globex.ID, u.Email)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.GetUserInTenant(ctx, u.ID, acme.ID)
	require.NoError(t, err)

	_, err = s.GetUserInTenant(ctx, u.ID, globex.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUser_SameEmailDifferentTenants(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	_, _, _ = seed(t, s, "acme")
	globex, co, _ := seed(t, s, "globex")

	now := time.Now().UTC()
	err := s.CreateUser(ctx, &models.User{
		ID: uuid.New(), TenantID: globex.ID, CompanyID: co.ID, Email: "owner@acme.com",
		PasswordHash: "x", DisplayName: "Shared", Status: models.UserStatusActive,
		CreatedAt: now, UpdatedAt: now,
	})
	assert.NoError(t, err)
}

// --- Company Tests ---

func TestListCompanies_TenantScoped(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	acme, co, _ := seed(t, s, "acme")
	seed(t, s, "globex")

	companies, err := s.ListCompanies(ctx, acme.ID)
	require.NoError(t, err)
	require.Len(t, companies, 1)
	assert.Equal(t, co.ID, companies[0].ID)
}

// --- Audit Log Tests ---

func TestAppendAuditEntry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	tn, co, u := seed(t, s, "acme")

	after, err := json.Marshal(map[string]string{"plan": "pro"})
	require.NoError(t, err)

	first := &models.AuditLogEntry{
		TenantID: tn.ID, CompanyID: &co.ID, ActorID: &u.ID,
		Action: "UPDATE", Entity: "tenant", EntityID: tn.ID.String(), AfterJSON: after,
	}
	require.NoError(t, s.AppendAuditEntry(ctx, first))
	assert.NotZero(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	second := &models.AuditLogEntry{
		TenantID: tn.ID, Action: "CREATE", Entity: "tenant", EntityID: tn.ID.String(),
	}
	require.NoError(t, s.AppendAuditEntry(ctx, second))
	assert.Greater(t, second.ID, first.ID)
}
