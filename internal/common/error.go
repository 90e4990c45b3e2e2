// Package common defines shared constants and sentinel errors used across
// the service. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Orchestrator outcomes. These are recoverable, typed results; the
	// transport layer maps them to status codes.
	ErrConflict             = errors.New("conflict")
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrNotVerified          = errors.New("email not verified")
	ErrInvalidCode          = errors.New("invalid code")
	ErrInvalidOrExpiredCode = errors.New("invalid or expired code")
	ErrUnauthorized         = errors.New("unauthorized")

	// ErrUnavailable marks store/cache connectivity failures so the
	// transport can answer 5xx instead of misreporting an auth failure.
	ErrUnavailable = errors.New("service unavailable")

	// Token lifecycle errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
