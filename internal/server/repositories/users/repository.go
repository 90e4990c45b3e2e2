// Package users declares the repository contract for durable user records.
package users

import (
	"context"
	"database/sql"

	"github.com/cooklio/auth-service/internal/server/models"
)

// Update describes a partial update of mutable user fields. A nil pointer
// leaves the column untouched; for the code columns a NullString with
// Valid=false writes NULL (clears the code).
type Update struct {
	FirstName         *string
	LastName          *string
	PasswordHash      *string
	IsVerified        *bool
	VerificationCode  *sql.NullString
	PasswordResetCode *sql.NullString
}

// Repository defines operations on the users table. Lookups keyed on a
// uniqueness constraint (email, username, code) return at most one row and
// common.ErrNotFound when there is no match.
type Repository interface {
	// Create inserts a new, unverified user and returns it with ID and
	// timestamps populated. A duplicate email or username yields
	// common.ErrConflict.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)

	// GetByVerificationCode and GetByPasswordResetCode serve the durable
	// fallback tier of code resolution; no expiry applies on this path.
	GetByVerificationCode(ctx context.Context, code string) (*models.User, error)
	GetByPasswordResetCode(ctx context.Context, code string) (*models.User, error)

	// UpdateFields applies a partial update and returns the updated row,
	// or common.ErrNotFound if the user does not exist.
	UpdateFields(ctx context.Context, id int64, upd Update) (*models.User, error)

	SetVerificationCode(ctx context.Context, id int64, code string) error
	SetPasswordResetCode(ctx context.Context, id int64, code string) error
	ClearPasswordResetCode(ctx context.Context, id int64) error
}
