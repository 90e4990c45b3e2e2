// Package refreshtokens declares the repository contract for durable refresh
// token rows. Signature validity alone is not sufficient for a refresh: the
// row must also exist and be unexpired.
package refreshtokens

import (
	"context"
	"time"

	"github.com/cooklio/auth-service/internal/server/models"
)

// Repository defines operations for issuing, retrieving, and revoking refresh tokens.
type Repository interface {
	// Create stores a new refresh token row with its absolute expiry.
	Create(ctx context.Context, userID int64, token string, expiresAt time.Time) error

	// Find looks up a non-expired row matching both token and user id.
	// Returns common.ErrNotFound when there is no such row.
	Find(ctx context.Context, userID int64, token string) (*models.RefreshToken, error)

	// Delete removes the row matching token and user id. Deleting a
	// non-existent row is not an error.
	Delete(ctx context.Context, userID int64, token string) error

	// DeleteExpired removes all rows past their expiry and reports how many
	// were deleted.
	DeleteExpired(ctx context.Context) (int64, error)
}
