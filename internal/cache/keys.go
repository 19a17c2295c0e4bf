package cache

import (
	"fmt"
	"strings"
)

func RevokedTokenKey(tokenID string) string {
	return fmt.Sprintf("auth:revoked:%s", tokenID)
}

// LoginAttemptKey buckets login attempts by client address and tenant slug.
func LoginAttemptKey(clientIP, slug string) string {
	return fmt.Sprintf("ratelimit:login:%s:%s", clientIP, strings.ToLower(strings.TrimSpace(slug)))
}
