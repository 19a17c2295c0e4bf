package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/geniusgrid/internal/api/middleware"
	"github.com/kiranshivaraju/geniusgrid/internal/audit"
	"github.com/kiranshivaraju/geniusgrid/internal/auth"
	"github.com/kiranshivaraju/geniusgrid/internal/metrics"
	"github.com/kiranshivaraju/geniusgrid/internal/store/memstore"
	"github.com/kiranshivaraju/geniusgrid/internal/tenant"
	"github.com/kiranshivaraju/geniusgrid/pkg/models"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// ─── fake revocation list ────────────────────────────────────────────────────

type fakeRevoker struct {
	mu      sync.Mutex
	revoked map[string]time.Duration
	err     error
}

func (f *fakeRevoker) RevokeToken(_ context.Context, id string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.revoked == nil {
		f.revoked = map[string]time.Duration{}
	}
	f.revoked[id] = ttl
	return nil
}

func (f *fakeRevoker) IsTokenRevoked(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.revoked[id]
	return ok, nil
}

// ─── fixture ─────────────────────────────────────────────────────────────────

type fixture struct {
	store    *memstore.Store
	hasher   auth.Hasher
	resolver *auth.Resolver
	prov     *tenant.Provisioner
	revoker  *fakeRevoker
	metrics  *metrics.Metrics
	auth     *mw.Auth
	recorder *audit.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := memstore.New()
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	codec := auth.NewTokenCodec("handler-test-secret", time.Hour)
	revoker := &fakeRevoker{}
	resolver, err := auth.NewResolver(s, hasher, codec, revoker)
	require.NoError(t, err)
	recorder := audit.NewRecorder(s)

	return &fixture{
		store:    s,
		hasher:   hasher,
		resolver: resolver,
		prov:     tenant.NewProvisioner(s, hasher, resolver, recorder),
		revoker:  revoker,
		metrics:  metrics.New(),
		auth:     mw.NewAuth(resolver),
		recorder: recorder,
	}
}

func (f *fixture) signup(t *testing.T, name, slug, email string) *tenant.Result {
	t.Helper()
	res, err := f.prov.Provision(context.Background(), tenant.SignupRequest{
		TenantName: name,
		Slug:       slug,
		Email:      email,
		Password:   "pw123456",
	})
	require.NoError(t, err)
	return res
}

// addMember creates a user in the given tenant holding one role with perms and
// returns a token for it.
func (f *fixture) addMember(t *testing.T, res *tenant.Result, email string, perms ...string) (*models.User, string) {
	t.Helper()
	ctx := context.Background()
	hash, err := f.hasher.Hash("pw123456")
	require.NoError(t, err)

	role := &models.Role{
		ID:          uuid.New(),
		TenantID:    res.Tenant.ID,
		Name:        "Member " + email,
		Permissions: perms,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, f.store.CreateRole(ctx, role))
	user := &models.User{
		ID:           uuid.New(),
		TenantID:     res.Tenant.ID,
		CompanyID:    res.Company.ID,
		Email:        email,
		PasswordHash: hash,
		DisplayName:  "Member",
		Status:       models.UserStatusActive,
	}
	require.NoError(t, f.store.CreateUser(ctx, user))
	_, err = f.store.AssignRole(ctx, user.ID, role.ID)
	require.NoError(t, err)

	p, err := f.resolver.Authenticate(ctx, email, "pw123456", res.Tenant.Slug)
	require.NoError(t, err)
	token, _, err := f.resolver.IssueToken(p)
	require.NoError(t, err)
	return user, token
}

func (f *fixture) authed(h http.HandlerFunc) http.Handler {
	return f.auth.Authenticate(h)
}

func (f *fixture) withPerm(perm string, h http.HandlerFunc) http.Handler {
	return f.auth.Authenticate(f.auth.RequirePermission(perm)(h))
}

func do(t *testing.T, h http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func dataOf(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data, ok := body["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %s", w.Body.String())
	return data
}

func listOf(t *testing.T, w *httptest.ResponseRecorder) []any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data, ok := body["data"].([]any)
	require.True(t, ok, "response has no data array: %s", w.Body.String())
	return data
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok, "response has no error object: %s", w.Body.String())
	return errObj["code"].(string)
}
