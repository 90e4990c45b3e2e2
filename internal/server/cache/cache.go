// Package cache defines the ephemeral cache contract and its key namespaces.
// The cache is the fast path for short-lived codes and user projections; the
// durable store remains authoritative when an entry is missing.
package cache

import (
	"context"
	"strconv"
	"time"
)

// Cache is a minimal set-with-expiry/get/delete store. Implementations must
// return common.ErrNotFound from Get when the key is absent or expired.
type Cache interface {
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Key namespaces, one per purpose.
const (
	verificationCodePrefix = "verification_code:"
	resetCodePrefix        = "reset_code:"
	userPrefix             = "user:"
)

// VerificationCodeKey maps a verification code to its owning user id.
func VerificationCodeKey(code string) string {
	return verificationCodePrefix + code
}

// ResetCodeKey maps a password reset code to its owning user id.
func ResetCodeKey(code string) string {
	return resetCodePrefix + code
}

// UserKey holds the cached user projection for a user id.
func UserKey(id int64) string {
	return userPrefix + strconv.FormatInt(id, 10)
}
