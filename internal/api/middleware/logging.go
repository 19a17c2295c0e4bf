package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const requestInfoKey contextKey = "request_info"

// requestInfo is filled in by later middleware so the access log can name
// the tenant and user a request ran as.
type requestInfo struct {
	TenantID string
	UserID   string
}

func requestInfoFrom(ctx context.Context) (*requestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey).(*requestInfo)
	return info, ok
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		info := &requestInfo{}

		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestInfoKey, info)))

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		}
		if info.TenantID != "" {
			attrs = append(attrs, "tenant_id", info.TenantID, "user_id", info.UserID)
		}
		slog.Info("request", attrs...)
	})
}
