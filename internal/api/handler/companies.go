package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/geniusgrid/internal/api/middleware"
	"github.com/kiranshivaraju/geniusgrid/internal/api/response"
	"github.com/kiranshivaraju/geniusgrid/pkg/models"
)

// CompanyLister lists the companies of one tenant.
type CompanyLister interface {
	ListCompanies(ctx context.Context, tenantID uuid.UUID) ([]*models.Company, error)
}

// NewListCompaniesHandler returns an http.HandlerFunc for GET /companies.
// Callers without a token may scope the read with the legacy X-Tenant-ID header.
func NewListCompaniesHandler(s CompanyLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, err := mw.ScopeFromRequest(r, mw.AllowLegacyHeaders)
		if err != nil {
			response.Error(w, http.StatusUnauthorized, response.CodeUnauthenticated,
				"Authentication or a valid X-Tenant-ID header is required", nil)
			return
		}

		companies, err := s.ListCompanies(r.Context(), scope.TenantID)
		if err != nil {
			slog.Error("list companies failed", "error", err, "tenant_id", scope.TenantID)
			response.Internal(w)
			return
		}
		response.List(w, companies)
	}
}
