// Package auth implements the stateless token issuer: a signer/verifier over
// two distinct HMAC secrets, one for access tokens and one for refresh tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cooklio/auth-service/internal/common"
)

// AccessClaims are embedded in access tokens.
type AccessClaims struct {
	jwt.RegisteredClaims
	UserID int64  `json:"userId"`
	Email  string `json:"email"`
}

// RefreshClaims are embedded in refresh tokens. Refresh tokens carry only the
// user id; server-side revocation is handled by the durable token row.
type RefreshClaims struct {
	jwt.RegisteredClaims
	UserID int64 `json:"userId"`
}

// Issuer mints and validates signed tokens with expiry claims. It holds no
// mutable state and is safe for concurrent use.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// IssueAccess mints an access token and returns it with its absolute expiry.
func (i *Issuer) IssueAccess(userID int64, email string) (string, time.Time, error) {
	expiresAt := time.Now().Add(i.accessTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UserID: userID,
		Email:  email,
	})

	signed, err := token.SignedString(i.accessSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// IssueRefresh mints a refresh token and returns it with its absolute expiry,
// which the caller persists alongside the durable token row.
func (i *Issuer) IssueRefresh(userID int64) (string, time.Time, error) {
	expiresAt := time.Now().Add(i.refreshTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UserID: userID,
	})

	signed, err := token.SignedString(i.refreshSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// VerifyAccess validates signature and expiry of an access token and returns
// its claims. Fails with common.ErrTokenExpired or common.ErrInvalidToken.
func (i *Issuer) VerifyAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := i.verify(tokenString, claims, i.accessSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefresh validates signature and expiry of a refresh token and returns
// its claims.
func (i *Issuer) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := i.verify(tokenString, claims, i.refreshSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

func (i *Issuer) verify(tokenString string, claims jwt.Claims, secret []byte) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return common.ErrTokenExpired
		}
		return common.ErrInvalidToken
	}
	if !token.Valid {
		return common.ErrInvalidToken
	}
	return nil
}
