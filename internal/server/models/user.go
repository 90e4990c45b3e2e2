package models

import "time"

// User is the durable account record. Optional text fields are empty strings
// when absent; VerificationCode and PasswordResetCode are empty once consumed.
type User struct {
	ID                int64
	Email             string
	Username          string
	PasswordHash      string
	FirstName         string
	LastName          string
	IsVerified        bool
	VerificationCode  string
	PasswordResetCode string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Projection returns the partial user view that is safe to hand to clients
// and to keep in the cache.
func (u *User) Projection() *UserProjection {
	return &UserProjection{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

// UserProjection is the denormalized, cacheable copy of user data used to
// avoid store round trips when minting refreshed tokens.
type UserProjection struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}
