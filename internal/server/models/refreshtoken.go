package models

import "time"

// RefreshToken is a durable row tracking one issued refresh token. One row per
// issuance; multiple concurrent sessions per user are allowed.
type RefreshToken struct {
	ID        int64
	UserID    int64
	Token     string
	Expires   time.Time
	CreatedAt time.Time
}
