package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/geniusgrid/internal/api/response"
	"github.com/kiranshivaraju/geniusgrid/internal/auth"
	"github.com/kiranshivaraju/geniusgrid/internal/cache"
)

const (
	defaultAttemptsPerMinute = 10
	throttleWindow           = time.Minute
	maxPeekBytes             = 64 << 10
)

// Counter increments a key inside a fixed expiry window.
type Counter interface {
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// LoginThrottle limits login attempts per client address and tenant slug.
type LoginThrottle struct {
	counter     Counter
	perMinute   int
	onThrottled func()
}

// NewLoginThrottle creates a LoginThrottle. perMinute <= 0 uses the default of 10.
func NewLoginThrottle(c Counter, perMinute int) *LoginThrottle {
	if perMinute <= 0 {
		perMinute = defaultAttemptsPerMinute
	}
	return &LoginThrottle{counter: c, perMinute: perMinute}
}

// OnThrottled registers a callback run for each rejected request.
func (lt *LoginThrottle) OnThrottled(fn func()) *LoginThrottle {
	lt.onThrottled = fn
	return lt
}

// Limit rejects requests over the per-minute budget with 429. Counter errors
// let the request through.
func (lt *LoginThrottle) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := cache.LoginAttemptKey(clientIP(r), peekSlug(r))
		count, err := lt.counter.IncrWithExpiry(r.Context(), key, throttleWindow)
		if err != nil {
			slog.Warn("login throttle unavailable", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		remaining := lt.perMinute - int(count)
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(lt.perMinute))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if count > int64(lt.perMinute) {
			if lt.onThrottled != nil {
				lt.onThrottled()
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(throttleWindow.Seconds())))
			response.Error(w, http.StatusTooManyRequests,
				response.CodeRateLimitExceeded, "Too many login attempts", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// peekSlug reads the slug field from a JSON body and restores the body for
// the handler. The slug is normalized the way login resolves it, so padded or
// cased variants of one tenant share a bucket. Anything unreadable yields an
// empty slug.
func peekSlug(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBytes))
	rest := r.Body
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(body), rest), rest}
	if err != nil {
		return ""
	}

	var probe struct {
		Slug string `json:"slug"`
	}
	if json.Unmarshal(body, &probe) != nil {
		return ""
	}
	return auth.NormalizeSlug(probe.Slug)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
