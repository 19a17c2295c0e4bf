package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/geniusgrid/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	m := metrics.New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/roles/{roleID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"a", "b", "c"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/roles/"+id, nil))
		require.Equal(t, http.StatusTeapot, w.Code)
	}

	count, err := testutil.GatherAndCount(m.Registry(), "geniusgrid_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "one series for all role ids")
}

func TestMiddleware_UnmatchedRoute(t *testing.T) {
	m := metrics.New()
	r := chi.NewRouter()
	r.Use(m.Middleware)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	count, err := testutil.GatherAndCount(m.Registry(), "geniusgrid_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAuthCounters(t *testing.T) {
	m := metrics.New()
	m.LoginAttempt(metrics.ResultSuccess)
	m.LoginAttempt(metrics.ResultRejected)
	m.LoginAttempt(metrics.ResultRejected)
	m.SignupAttempt(metrics.ResultSuccess)
	m.TokenRevoked()

	count, err := testutil.GatherAndCount(m.Registry(), "geniusgrid_auth_logins_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = testutil.GatherAndCount(m.Registry(), "geniusgrid_tenant_signups_total", "geniusgrid_auth_tokens_revoked_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestHandler_ServesExposition(t *testing.T) {
	m := metrics.New()
	m.TokenRevoked()

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "geniusgrid_auth_tokens_revoked_total 1")
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
