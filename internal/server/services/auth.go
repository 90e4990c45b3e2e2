// Package services contains the server-side business logic. This file
// implements AuthService, the state machine coordinating the credential
// store, the ephemeral cache, the token issuer, and the mail gateway for
// register/login/verify/forgot/reset/refresh/logout.
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/cooklio/auth-service/internal/common"
	"github.com/cooklio/auth-service/internal/dbx"
	"github.com/cooklio/auth-service/internal/logging"
	"github.com/cooklio/auth-service/internal/server/auth"
	"github.com/cooklio/auth-service/internal/server/cache"
	"github.com/cooklio/auth-service/internal/server/config"
	"github.com/cooklio/auth-service/internal/server/mail"
	"github.com/cooklio/auth-service/internal/server/models"
	"github.com/cooklio/auth-service/internal/server/repositories/repomanager"
	"github.com/cooklio/auth-service/internal/server/repositories/users"
)

// User-facing messages. ForgotPassword deliberately returns the same message
// whether or not the email exists, to prevent account enumeration.
const (
	MsgRegistered     = "User registered successfully. Please verify your email using the code sent to your email."
	MsgVerified       = "Email verified successfully"
	MsgForgotPassword = "If the email exists, a password reset link has been sent"
	MsgPasswordReset  = "Password reset successfully"
	MsgLoggedOut      = "Logged out successfully"
)

const codeDigits = 4

// Registration conflicts, distinguishable by the transport layer. Both match
// errors.Is(err, common.ErrConflict).
var (
	ErrEmailExists   = fmt.Errorf("%w: user with this email already exists", common.ErrConflict)
	ErrUsernameTaken = fmt.Errorf("%w: username already taken", common.ErrConflict)
)

// RegisterRequest carries the fields accepted at registration. FirstName and
// LastName are optional.
type RegisterRequest struct {
	Email     string
	Username  string
	Password  string
	FirstName string
	LastName  string
}

type RegisterResult struct {
	Message string
	UserID  int64
}

type LoginResult struct {
	User         *models.UserProjection
	AccessToken  string
	RefreshToken string
}

type RefreshResult struct {
	AccessToken string
}

// AuthService implements the account lifecycle. All operations are safe for
// concurrent use; the only shared state is the store and cache connections.
type AuthService struct {
	db      *sql.DB
	repos   repomanager.RepositoryManager
	cache   cache.Cache
	issuer  *auth.Issuer
	mailer  mail.Mailer
	logger  logging.Logger
	codeTTL time.Duration
	userTTL time.Duration
}

// NewAuthService constructs an AuthService from its collaborators and config.
func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, c cache.Cache,
	issuer *auth.Issuer, mailer mail.Mailer, logger logging.Logger, cfg *config.Config) *AuthService {
	return &AuthService{
		db:      db,
		repos:   m,
		cache:   c,
		issuer:  issuer,
		mailer:  mailer,
		logger:  logger.With("module", "auth_service"),
		codeTTL: cfg.CodeValidityDuration,
		userTTL: cfg.UserCacheValidityDuration,
	}
}

// unavailable marks unexpected store/cache failures so the transport layer
// answers 5xx instead of misreporting an auth failure.
func unavailable(err error) error {
	return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
}

// Register creates an unverified user, persists and caches a 4-digit
// verification code, and sends it by email. The email delivery is
// best-effort: the code stays valid even if delivery fails.
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*RegisterResult, error) {
	usersRepo := s.repos.Users(s.db)

	if _, err := usersRepo.GetByEmail(ctx, req.Email); err == nil {
		return nil, ErrEmailExists
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, unavailable(err)
	}
	if _, err := usersRepo.GetByUsername(ctx, req.Username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, unavailable(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, unavailable(err)
	}

	code, err := common.MakeRandNumericCode(codeDigits)
	if err != nil {
		return nil, unavailable(err)
	}

	var user *models.User
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Users(tx)
		created, err := repo.Create(ctx, &models.User{
			Email:        req.Email,
			Username:     req.Username,
			PasswordHash: string(hash),
			FirstName:    req.FirstName,
			LastName:     req.LastName,
		})
		if err != nil {
			return err
		}
		if err := repo.SetVerificationCode(ctx, created.ID, code); err != nil {
			return err
		}
		created.VerificationCode = code
		user = created
		return nil
	})
	if err != nil {
		// a concurrent registration may win the race between the existence
		// check and the insert; the uniqueness constraint reports it
		if errors.Is(err, common.ErrConflict) {
			return nil, err
		}
		return nil, unavailable(err)
	}

	s.cacheCode(ctx, cache.VerificationCodeKey(code), user.ID)
	s.notify(ctx, user.Email, mail.VerificationSubject, mail.VerificationBody(displayName(user), code))

	return &RegisterResult{Message: MsgRegistered, UserID: user.ID}, nil
}

// Login checks existence, then verified state, then the password, in that
// order, so an unverified account does not leak password validity. On success
// it issues an access/refresh token pair, persists the refresh token row, and
// caches the user projection.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.repos.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrInvalidCredentials
		}
		return nil, unavailable(err)
	}

	if !user.IsVerified {
		return nil, common.ErrNotVerified
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, common.ErrInvalidCredentials
	}

	accessToken, _, err := s.issuer.IssueAccess(user.ID, user.Email)
	if err != nil {
		return nil, unavailable(err)
	}
	refreshToken, refreshExpiry, err := s.issuer.IssueRefresh(user.ID)
	if err != nil {
		return nil, unavailable(err)
	}

	if err := s.repos.RefreshTokens(s.db).Create(ctx, user.ID, refreshToken, refreshExpiry); err != nil {
		return nil, unavailable(err)
	}

	s.cacheProjection(ctx, user)

	return &LoginResult{
		User:         user.Projection(),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// VerifyCode consumes a verification code and marks the owning user verified.
// Codes are single-use: the cache entry is deleted and the stored code
// cleared on success.
func (s *AuthService) VerifyCode(ctx context.Context, code string) (string, error) {
	user, err := s.resolveCode(ctx, code, verificationCode)
	if err != nil {
		return "", err
	}

	verified := true
	_, err = s.repos.Users(s.db).UpdateFields(ctx, user.ID, users.Update{
		IsVerified:       &verified,
		VerificationCode: &sql.NullString{},
	})
	if err != nil {
		return "", unavailable(err)
	}

	s.dropCacheKey(ctx, cache.VerificationCodeKey(code))
	return MsgVerified, nil
}

// ForgotPassword generates and delivers a reset code when the email exists,
// and answers with the same generic message either way.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (string, error) {
	usersRepo := s.repos.Users(s.db)

	user, err := usersRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return MsgForgotPassword, nil
		}
		return "", unavailable(err)
	}

	code, err := common.MakeRandNumericCode(codeDigits)
	if err != nil {
		return "", unavailable(err)
	}

	if err := usersRepo.SetPasswordResetCode(ctx, user.ID, code); err != nil {
		return "", unavailable(err)
	}

	s.cacheCode(ctx, cache.ResetCodeKey(code), user.ID)
	s.notify(ctx, user.Email, mail.PasswordResetSubject, mail.PasswordResetBody(displayName(user), code))

	return MsgForgotPassword, nil
}

// ResetPassword consumes a reset code and replaces the user's password hash.
// The cached user projection is invalidated since the credentials changed.
func (s *AuthService) ResetPassword(ctx context.Context, code, newPassword string) (string, error) {
	user, err := s.resolveCode(ctx, code, resetCode)
	if err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return "", unavailable(err)
	}

	hashStr := string(hash)
	_, err = s.repos.Users(s.db).UpdateFields(ctx, user.ID, users.Update{
		PasswordHash:      &hashStr,
		PasswordResetCode: &sql.NullString{},
	})
	if err != nil {
		return "", unavailable(err)
	}

	s.dropCacheKey(ctx, cache.ResetCodeKey(code))
	s.dropCacheKey(ctx, cache.UserKey(user.ID))
	return MsgPasswordReset, nil
}

// RefreshToken mints a new access token for a structurally valid refresh
// token that is still tracked by an unexpired store row. The refresh token is
// not rotated. All verification failures collapse into ErrUnauthorized.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	claims, err := s.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, common.ErrUnauthorized
	}

	if _, err := s.repos.RefreshTokens(s.db).Find(ctx, claims.UserID, refreshToken); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, unavailable(err)
	}

	proj, err := s.userProjection(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, unavailable(err)
	}

	accessToken, _, err := s.issuer.IssueAccess(proj.ID, proj.Email)
	if err != nil {
		return nil, unavailable(err)
	}
	return &RefreshResult{AccessToken: accessToken}, nil
}

// Logout revokes one refresh token row and invalidates the cached user
// projection. Deleting a non-existent row is not an error.
func (s *AuthService) Logout(ctx context.Context, userID int64, refreshToken string) (string, error) {
	if err := s.repos.RefreshTokens(s.db).Delete(ctx, userID, refreshToken); err != nil {
		return "", unavailable(err)
	}
	s.dropCacheKey(ctx, cache.UserKey(userID))
	return MsgLoggedOut, nil
}

// --- helpers below ---

type codeKind int

const (
	verificationCode codeKind = iota
	resetCode
)

func (k codeKind) cacheKey(code string) string {
	if k == verificationCode {
		return cache.VerificationCodeKey(code)
	}
	return cache.ResetCodeKey(code)
}

func (k codeKind) storedCode(u *models.User) string {
	if k == verificationCode {
		return u.VerificationCode
	}
	return u.PasswordResetCode
}

// resolveCode is the two-tier code lookup: the ephemeral tier is tried first,
// and on a miss the durable tier takes over with weaker guarantees (no
// expiry). On the cache path the stored code must still match the supplied
// one; a divergence deletes the stale entry and fails with ErrInvalidCode.
func (s *AuthService) resolveCode(ctx context.Context, code string, kind codeKind) (*models.User, error) {
	raw, err := s.cache.Get(ctx, kind.cacheKey(code))
	switch {
	case err == nil:
		userID, convErr := strconv.ParseInt(raw, 10, 64)
		if convErr != nil {
			s.dropCacheKey(ctx, kind.cacheKey(code))
			return nil, common.ErrInvalidCode
		}
		user, getErr := s.repos.Users(s.db).GetByID(ctx, userID)
		if getErr != nil && !errors.Is(getErr, common.ErrNotFound) {
			return nil, unavailable(getErr)
		}
		if user == nil || kind.storedCode(user) != code {
			s.dropCacheKey(ctx, kind.cacheKey(code))
			return nil, common.ErrInvalidCode
		}
		return user, nil

	case errors.Is(err, common.ErrNotFound):
		// durable fallback: still works after the cache entry expired
		var user *models.User
		var getErr error
		if kind == verificationCode {
			user, getErr = s.repos.Users(s.db).GetByVerificationCode(ctx, code)
		} else {
			user, getErr = s.repos.Users(s.db).GetByPasswordResetCode(ctx, code)
		}
		if getErr != nil {
			if errors.Is(getErr, common.ErrNotFound) {
				return nil, common.ErrInvalidOrExpiredCode
			}
			return nil, unavailable(getErr)
		}
		return user, nil

	default:
		return nil, unavailable(err)
	}
}

// cacheCode writes a code-to-user mapping. A cache write failure degrades the
// code to its durable fallback path, so it is logged and swallowed.
func (s *AuthService) cacheCode(ctx context.Context, key string, userID int64) {
	if err := s.cache.Set(ctx, key, strconv.FormatInt(userID, 10), s.codeTTL); err != nil {
		s.logger.Warn(ctx, "caching code failed; durable fallback remains", "error", err)
	}
}

func (s *AuthService) cacheProjection(ctx context.Context, user *models.User) {
	data, err := json.Marshal(user.Projection())
	if err == nil {
		err = s.cache.Set(ctx, cache.UserKey(user.ID), string(data), s.userTTL)
	}
	if err != nil {
		s.logger.Warn(ctx, "caching user projection failed", "error", err, "user_id", user.ID)
	}
}

func (s *AuthService) dropCacheKey(ctx context.Context, key string) {
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Warn(ctx, "cache delete failed", "error", err, "key", key)
	}
}

// userProjection resolves the cached projection, falling back to the store
// and repopulating the cache on a miss.
func (s *AuthService) userProjection(ctx context.Context, userID int64) (*models.UserProjection, error) {
	raw, err := s.cache.Get(ctx, cache.UserKey(userID))
	if err == nil {
		proj := &models.UserProjection{}
		if jsonErr := json.Unmarshal([]byte(raw), proj); jsonErr == nil {
			return proj, nil
		}
		// corrupt entry: fall through to the store
	} else if !errors.Is(err, common.ErrNotFound) {
		s.logger.Warn(ctx, "user cache read failed; falling back to store", "error", err)
	}

	user, err := s.repos.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cacheProjection(ctx, user)
	return user.Projection(), nil
}

// notify delivers mail as a best-effort side effect after the durable state
// has been committed; a failure never rolls back the primary response.
func (s *AuthService) notify(ctx context.Context, to, subject, body string) {
	if s.mailer == nil {
		return
	}
	if err := s.mailer.Send(to, subject, body); err != nil {
		s.logger.Warn(ctx, "email delivery failed; code remains valid", "error", err, "to", to)
	}
}

func displayName(u *models.User) string {
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.Username
}
