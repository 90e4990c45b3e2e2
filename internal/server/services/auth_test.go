package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"golang.org/x/crypto/bcrypt"

	"github.com/cooklio/auth-service/internal/common"
	"github.com/cooklio/auth-service/internal/dbx"
	"github.com/cooklio/auth-service/internal/logging"
	"github.com/cooklio/auth-service/internal/server/auth"
	"github.com/cooklio/auth-service/internal/server/cache"
	"github.com/cooklio/auth-service/internal/server/config"
	"github.com/cooklio/auth-service/internal/server/models"
	refreshtokensrepo "github.com/cooklio/auth-service/internal/server/repositories/refreshtokens"
	usersrepo "github.com/cooklio/auth-service/internal/server/repositories/users"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

// --- fakes ---

func cloneUser(u *models.User) *models.User {
	c := *u
	return &c
}

type fakeUsersRepo struct {
	byID   map[int64]*models.User
	nextID int64

	createErr error
	getErr    error
	updateErr error
}

func (f *fakeUsersRepo) Create(_ context.Context, user *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	for _, u := range f.byID {
		if u.Email == user.Email || u.Username == user.Username {
			return nil, fmt.Errorf("%w: duplicate", common.ErrConflict)
		}
	}
	f.nextID++
	c := cloneUser(user)
	c.ID = f.nextID
	c.IsVerified = false
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	f.byID[c.ID] = c
	return cloneUser(c), nil
}

func (f *fakeUsersRepo) GetByID(_ context.Context, id int64) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if u, ok := f.byID[id]; ok {
		return cloneUser(u), nil
	}
	return nil, common.ErrNotFound
}

func (f *fakeUsersRepo) find(match func(*models.User) bool) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.byID {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeUsersRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return f.find(func(u *models.User) bool { return u.Email == email })
}

func (f *fakeUsersRepo) GetByUsername(_ context.Context, username string) (*models.User, error) {
	return f.find(func(u *models.User) bool { return u.Username == username })
}

func (f *fakeUsersRepo) GetByVerificationCode(_ context.Context, code string) (*models.User, error) {
	return f.find(func(u *models.User) bool { return u.VerificationCode != "" && u.VerificationCode == code })
}

func (f *fakeUsersRepo) GetByPasswordResetCode(_ context.Context, code string) (*models.User, error) {
	return f.find(func(u *models.User) bool { return u.PasswordResetCode != "" && u.PasswordResetCode == code })
}

func (f *fakeUsersRepo) UpdateFields(_ context.Context, id int64, upd usersrepo.Update) (*models.User, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	if upd.FirstName != nil {
		u.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		u.LastName = *upd.LastName
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	if upd.IsVerified != nil {
		u.IsVerified = *upd.IsVerified
	}
	if upd.VerificationCode != nil {
		u.VerificationCode = upd.VerificationCode.String
	}
	if upd.PasswordResetCode != nil {
		u.PasswordResetCode = upd.PasswordResetCode.String
	}
	u.UpdatedAt = time.Now()
	return cloneUser(u), nil
}

func (f *fakeUsersRepo) SetVerificationCode(_ context.Context, id int64, code string) error {
	u, ok := f.byID[id]
	if !ok {
		return common.ErrNotFound
	}
	u.VerificationCode = code
	return nil
}

func (f *fakeUsersRepo) SetPasswordResetCode(_ context.Context, id int64, code string) error {
	u, ok := f.byID[id]
	if !ok {
		return common.ErrNotFound
	}
	u.PasswordResetCode = code
	return nil
}

func (f *fakeUsersRepo) ClearPasswordResetCode(_ context.Context, id int64) error {
	u, ok := f.byID[id]
	if !ok {
		return common.ErrNotFound
	}
	u.PasswordResetCode = ""
	return nil
}

type fakeRefreshRepo struct {
	rows map[string]time.Time

	createErr error
	findErr   error
	delErr    error
}

func refreshKey(userID int64, token string) string {
	return fmt.Sprintf("%d|%s", userID, token)
}

func (f *fakeRefreshRepo) Create(_ context.Context, userID int64, token string, expiresAt time.Time) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.rows[refreshKey(userID, token)] = expiresAt
	return nil
}

func (f *fakeRefreshRepo) Find(_ context.Context, userID int64, token string) (*models.RefreshToken, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	exp, ok := f.rows[refreshKey(userID, token)]
	if !ok || exp.Before(time.Now()) {
		return nil, common.ErrNotFound
	}
	return &models.RefreshToken{UserID: userID, Token: token, Expires: exp}, nil
}

func (f *fakeRefreshRepo) Delete(_ context.Context, userID int64, token string) error {
	if f.delErr != nil {
		return f.delErr
	}
	delete(f.rows, refreshKey(userID, token))
	return nil
}

func (f *fakeRefreshRepo) DeleteExpired(_ context.Context) (int64, error) {
	var n int64
	for k, exp := range f.rows {
		if exp.Before(time.Now()) {
			delete(f.rows, k)
			n++
		}
	}
	return n, nil
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	r *fakeRefreshRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) usersrepo.Repository         { return m.u }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokensrepo.Repository {
	return m.r
}

type fakeCache struct {
	data map[string]string

	setErr error
	getErr error
	delErr error
}

func (f *fakeCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.data[key] = value
	return nil
}

func (f *fakeCache) Get(_ context.Context, key string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	v, ok := f.data[key]
	if !ok {
		return "", common.ErrNotFound
	}
	return v, nil
}

func (f *fakeCache) Delete(_ context.Context, key string) error {
	if f.delErr != nil {
		return f.delErr
	}
	delete(f.data, key)
	return nil
}

type sentMail struct {
	to      string
	subject string
	body    string
}

type fakeMailer struct {
	sent    []sentMail
	sendErr error
}

func (f *fakeMailer) Send(to, subject, htmlBody string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: htmlBody})
	return nil
}

// --- environment ---

type authEnv struct {
	svc    *AuthService
	users  *fakeUsersRepo
	tokens *fakeRefreshRepo
	cache  *fakeCache
	mailer *fakeMailer
	mock   sqlmock.Sqlmock
	issuer *auth.Issuer
}

func newAuthEnv(t *testing.T) *authEnv {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	u := &fakeUsersRepo{byID: map[int64]*models.User{}}
	r := &fakeRefreshRepo{rows: map[string]time.Time{}}
	c := &fakeCache{data: map[string]string{}}
	m := &fakeMailer{}

	cfg := &config.Config{}
	cfg.LoadDefaults()

	issuer := auth.NewIssuer(cfg.AccessTokenSecret, cfg.RefreshTokenSecret,
		cfg.AccessTokenValidityDuration, cfg.RefreshTokenValidityDuration)
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	svc := NewAuthService(db, &fakeRepoManager{u: u, r: r}, c, issuer, m, logger, cfg)
	return &authEnv{svc: svc, users: u, tokens: r, cache: c, mailer: m, mock: mock, issuer: issuer}
}

// expectTx arms the sqlmock for one committed Register transaction.
func (e *authEnv) expectTx() {
	e.mock.ExpectBegin()
	e.mock.ExpectCommit()
}

func (e *authEnv) seedUser(t *testing.T, email, username, password string, verified bool) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	u, err := e.users.Create(context.Background(), &models.User{
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	e.users.byID[u.ID].IsVerified = verified
	u.IsVerified = verified
	return u
}

// --- Register ---

func TestRegister_Success(t *testing.T) {
	e := newAuthEnv(t)
	e.expectTx()

	res, err := e.svc.Register(context.Background(), &RegisterRequest{
		Email:    "alice@example.com",
		Username: "alice",
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if res.Message != MsgRegistered {
		t.Fatalf("unexpected message: %q", res.Message)
	}

	stored := e.users.byID[res.UserID]
	if stored == nil {
		t.Fatalf("user not persisted")
	}
	if stored.IsVerified {
		t.Fatalf("new user must start unverified")
	}
	if stored.PasswordHash == "password123" {
		t.Fatalf("password stored in plaintext")
	}
	if len(stored.VerificationCode) != 4 {
		t.Fatalf("verification code not a 4-digit code: %q", stored.VerificationCode)
	}

	if got := e.cache.data[cache.VerificationCodeKey(stored.VerificationCode)]; got != "1" {
		t.Fatalf("code not cached to user id: %q", got)
	}

	if len(e.mailer.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(e.mailer.sent))
	}
	msg := e.mailer.sent[0]
	if msg.to != "alice@example.com" {
		t.Fatalf("email to wrong recipient: %s", msg.to)
	}
	if !strings.Contains(msg.body, stored.VerificationCode) {
		t.Fatalf("email body does not carry the code")
	}

	if err := e.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	e := newAuthEnv(t)
	e.seedUser(t, "alice@example.com", "alice", "pw", true)

	_, err := e.svc.Register(context.Background(), &RegisterRequest{
		Email:    "alice@example.com",
		Username: "alice2",
		Password: "password123",
	})
	if !errors.Is(err, common.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	e := newAuthEnv(t)
	e.seedUser(t, "alice@example.com", "alice", "pw", true)

	_, err := e.svc.Register(context.Background(), &RegisterRequest{
		Email:    "other@example.com",
		Username: "alice",
		Password: "password123",
	})
	if !errors.Is(err, common.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
}

func TestRegister_CacheAndMailFailuresAreNonFatal(t *testing.T) {
	e := newAuthEnv(t)
	e.expectTx()
	e.cache.setErr = errBoom{}
	e.mailer.sendErr = errBoom{}

	res, err := e.svc.Register(context.Background(), &RegisterRequest{
		Email:    "bob@example.com",
		Username: "bob",
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("Register must tolerate cache/mail failures, got %v", err)
	}
	if e.users.byID[res.UserID].VerificationCode == "" {
		t.Fatalf("durable code missing; fallback path would be broken")
	}
}

func TestRegister_StoreError(t *testing.T) {
	e := newAuthEnv(t)
	e.users.getErr = errBoom{}

	_, err := e.svc.Register(context.Background(), &RegisterRequest{
		Email:    "x@example.com",
		Username: "x",
		Password: "password123",
	})
	if !errors.Is(err, common.ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}

// --- Login ---

func TestLogin_UnknownEmail(t *testing.T) {
	e := newAuthEnv(t)

	_, err := e.svc.Login(context.Background(), "ghost@example.com", "whatever")
	if !errors.Is(err, common.ErrInvalidCredentials) {
		t.Fatalf("want ErrInvalidCredentials, got %v", err)
	}
}

func TestLogin_UnverifiedBeforePasswordCheck(t *testing.T) {
	e := newAuthEnv(t)
	e.seedUser(t, "carol@example.com", "carol", "secretpw", false)

	// even with the right password the verified check comes first
	_, err := e.svc.Login(context.Background(), "carol@example.com", "secretpw")
	if !errors.Is(err, common.ErrNotVerified) {
		t.Fatalf("want ErrNotVerified, got %v", err)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	e := newAuthEnv(t)
	e.seedUser(t, "carol@example.com", "carol", "secretpw", true)

	_, err := e.svc.Login(context.Background(), "carol@example.com", "wrong")
	if !errors.Is(err, common.ErrInvalidCredentials) {
		t.Fatalf("want ErrInvalidCredentials, got %v", err)
	}
}

func TestLogin_Success(t *testing.T) {
	e := newAuthEnv(t)
	u := e.seedUser(t, "carol@example.com", "carol", "secretpw", true)

	res, err := e.svc.Login(context.Background(), "carol@example.com", "secretpw")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatalf("empty tokens: %+v", res)
	}
	if res.User == nil || res.User.ID != u.ID || res.User.Email != u.Email {
		t.Fatalf("unexpected projection: %+v", res.User)
	}

	claims, err := e.issuer.VerifyAccess(res.AccessToken)
	if err != nil {
		t.Fatalf("issued access token does not verify: %v", err)
	}
	if claims.UserID != u.ID || claims.Email != u.Email {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, ok := e.tokens.rows[refreshKey(u.ID, res.RefreshToken)]; !ok {
		t.Fatalf("refresh token row not persisted")
	}

	cached, ok := e.cache.data[cache.UserKey(u.ID)]
	if !ok {
		t.Fatalf("user projection not cached")
	}
	if strings.Contains(cached, u.PasswordHash) {
		t.Fatalf("cached projection leaks the password hash")
	}
}

func TestLogin_StoreError(t *testing.T) {
	e := newAuthEnv(t)
	e.users.getErr = errBoom{}

	_, err := e.svc.Login(context.Background(), "carol@example.com", "secretpw")
	if !errors.Is(err, common.ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}

// --- VerifyCode ---

func TestVerifyCode_CachePath(t *testing.T) {
	e := newAuthEnv(t)
	u := e.seedUser(t, "dave@example.com", "dave", "pw", false)
	e.users.byID[u.ID].VerificationCode = "1234"
	e.cache.data[cache.VerificationCodeKey("1234")] = "1"

	msg, err := e.svc.VerifyCode(context.Background(), "1234")
	if err != nil {
		t.Fatalf("VerifyCode error: %v", err)
	}
	if msg != MsgVerified {
		t.Fatalf("unexpected message: %q", msg)
	}

	stored := e.users.byID[u.ID]
	if !stored.IsVerified {
		t.Fatalf("user not marked verified")
	}
	if stored.VerificationCode != "" {
		t.Fatalf("verification code not cleared")
	}
	if _, ok := e.cache.data[cache.VerificationCodeKey("1234")]; ok {
		t.Fatalf("cache entry not consumed")
	}

	// single use: a second attempt must fail
	if _, err := e.svc.VerifyCode(context.Background(), "1234"); !errors.Is(err, common.ErrInvalidOrExpiredCode) {
		t.Fatalf("second use: want ErrInvalidOrExpiredCode, got %v", err)
	}
}

func TestVerifyCode_DurableFallback(t *testing.T) {
	e := newAuthEnv(t)
	u := e.seedUser(t, "dave@example.com", "dave", "pw", false)
	e.users.byID[u.ID].VerificationCode = "5678"
	// no cache entry: simulates an expired cache tier

	msg, err := e.svc.VerifyCode(context.Background(), "5678")
	if err != nil {
		t.Fatalf("fallback VerifyCode error: %v", err)
	}
	if msg != MsgVerified {
		t.Fatalf("unexpected message: %q", msg)
	}
	if !e.users.byID[u.ID].IsVerified {
		t.Fatalf("user not marked verified via fallback")
	}
}

func TestVerifyCode_StaleCacheEntry(t *testing.T) {
	e := newAuthEnv(t)
	u := e.seedUser(t, "dave@example.com", "dave", "pw", false)
	e.users.byID[u.ID].VerificationCode = "9999" // store disagrees with the cache
	e.cache.data[cache.VerificationCodeKey("1234")] = "1"

	_, err := e.svc.VerifyCode(context.Background(), "1234")
	if !errors.Is(err, common.ErrInvalidCode) {
		t.Fatalf("want ErrInvalidCode, got %v", err)
	}
	if _, ok := e.cache.data[cache.VerificationCodeKey("1234")]; ok {
		t.Fatalf("stale cache entry not deleted")
	}
}

func TestVerifyCode_UnknownCode(t *testing.T) {
	e := newAuthEnv(t)

	_, err := e.svc.VerifyCode(context.Background(), "0000")
	if !errors.Is(err, common.ErrInvalidOrExpiredCode) {
		t.Fatalf("want ErrInvalidOrExpiredCode, got %v", err)
	}
}

func TestVerifyCode_CacheError(t *testing.T) {
	e := newAuthEnv(t)
	e.cache.getErr = errBoom{}

	_, err := e.svc.VerifyCode(context.Background(), "1234")
	if !errors.Is(err, common.ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}

// --- ForgotPassword / ResetPassword ---

func TestForgotPassword_SameMessageEitherWay(t *testing.T) {
	e := newAuthEnv(t)
	u := e.seedUser(t, "erin@example.com", "erin", "pw", true)

	known, err := e.svc.ForgotPassword(context.Background(), "erin@example.com")
	if err != nil {
		t.Fatalf("ForgotPassword known: %v", err)
	}
	unknown, err := e.svc.ForgotPassword(context.Background(), "ghost@example.com")
	if err != nil {
		t.Fatalf("ForgotPassword unknown: %v", err)
	}
	if known != unknown || known != MsgForgotPassword {
		t.Fatalf("messages must be byte-identical: %q vs %q", known, unknown)
	}

	// side effects only for the existing account
	code := e.users.byID[u.ID].PasswordResetCode
	if len(code) != 4 {
		t.Fatalf("reset code not set: %q", code)
	}
	if got := e.cache.data[cache.ResetCodeKey(code)]; got != "1" {
		t.Fatalf("reset code not cached: %q", got)
	}
	if len(e.mailer.sent) != 1 || e.mailer.sent[0].to != "erin@example.com" {
		t.Fatalf("exactly one mail to the known address expected: %+v", e.mailer.sent)
	}
}

func TestResetPassword_Success(t *testing.T) {
	e := newAuthEnv(t)
	u := e.seedUser(t, "erin@example.com", "erin", "oldpw", true)
	oldHash := e.users.byID[u.ID].PasswordHash
	e.users.byID[u.ID].PasswordResetCode = "4321"
	e.cache.data[cache.ResetCodeKey("4321")] = "1"
	e.cache.data[cache.UserKey(u.ID)] = `{"id":1,"email":"erin@example.com","username":"erin"}`

	msg, err := e.svc.ResetPassword(context.Background(), "4321", "newpassword")
	if err != nil {
		t.Fatalf("ResetPassword error: %v", err)
	}
	if msg != MsgPasswordReset {
		t.Fatalf("unexpected message: %q", msg)
	}

	stored := e.users.byID[u.ID]
	if stored.PasswordHash == oldHash {
		t.Fatalf("password hash unchanged")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("newpassword")); err != nil {
		t.Fatalf("new password does not match stored hash: %v", err)
	}
	if stored.PasswordResetCode != "" {
		t.Fatalf("reset code not cleared")
	}
	if _, ok := e.cache.data[cache.ResetCodeKey("4321")]; ok {
		t.Fatalf("reset code cache entry not consumed")
	}
	if _, ok := e.cache.data[cache.UserKey(u.ID)]; ok {
		t.Fatalf("cached projection not invalidated after credential change")
	}
}

func TestResetPassword_BadCodeLeavesHash(t *testing.T) {
	e := newAuthEnv(t)
	u := e.seedUser(t, "erin@example.com", "erin", "oldpw", true)
	oldHash := e.users.byID[u.ID].PasswordHash

	_, err := e.svc.ResetPassword(context.Background(), "0000", "newpassword")
	if !errors.Is(err, common.ErrInvalidOrExpiredCode) {
		t.Fatalf("want ErrInvalidOrExpiredCode, got %v", err)
	}
	if e.users.byID[u.ID].PasswordHash != oldHash {
		t.Fatalf("hash must not change on failed reset")
	}
}

// --- RefreshToken / Logout ---

func TestRefreshToken_Success(t *testing.T) {
	e := newAuthEnv(t)
	u := e.seedUser(t, "frank@example.com", "frank", "pw", true)
	refresh, exp, err := e.issuer.IssueRefresh(u.ID)
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	e.tokens.rows[refreshKey(u.ID, refresh)] = exp

	res, err := e.svc.RefreshToken(context.Background(), refresh)
	if err != nil {
		t.Fatalf("RefreshToken error: %v", err)
	}
	claims, err := e.issuer.VerifyAccess(res.AccessToken)
	if err != nil {
		t.Fatalf("new access token does not verify: %v", err)
	}
	if claims.UserID != u.ID || claims.Email != u.Email {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	// the refresh token is not rotated: the same one still works
	if _, err := e.svc.RefreshToken(context.Background(), refresh); err != nil {
		t.Fatalf("second refresh with same token: %v", err)
	}
}

func TestRefreshToken_Garbage(t *testing.T) {
	e := newAuthEnv(t)

	_, err := e.svc.RefreshToken(context.Background(), "not-a-token")
	if !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
}

func TestRefreshToken_ValidSignatureWithoutRow(t *testing.T) {
	e := newAuthEnv(t)
	u := e.seedUser(t, "frank@example.com", "frank", "pw", true)
	refresh, _, err := e.issuer.IssueRefresh(u.ID)
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	// no durable row: token was revoked or never tracked

	_, err = e.svc.RefreshToken(context.Background(), refresh)
	if !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
}

func TestLogout_RevokesRefreshToken(t *testing.T) {
	e := newAuthEnv(t)
	u := e.seedUser(t, "frank@example.com", "frank", "pw", true)
	refresh, exp, err := e.issuer.IssueRefresh(u.ID)
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	e.tokens.rows[refreshKey(u.ID, refresh)] = exp
	e.cache.data[cache.UserKey(u.ID)] = `{"id":1}`

	msg, err := e.svc.Logout(context.Background(), u.ID, refresh)
	if err != nil {
		t.Fatalf("Logout error: %v", err)
	}
	if msg != MsgLoggedOut {
		t.Fatalf("unexpected message: %q", msg)
	}
	if _, ok := e.cache.data[cache.UserKey(u.ID)]; ok {
		t.Fatalf("cached projection not invalidated on logout")
	}

	if _, err := e.svc.RefreshToken(context.Background(), refresh); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("refresh after logout: want ErrUnauthorized, got %v", err)
	}

	// logging out twice is fine
	if _, err := e.svc.Logout(context.Background(), u.ID, refresh); err != nil {
		t.Fatalf("repeat Logout error: %v", err)
	}
}

// --- full lifecycle ---

func TestAccountLifecycle(t *testing.T) {
	e := newAuthEnv(t)
	ctx := context.Background()
	e.expectTx()

	reg, err := e.svc.Register(ctx, &RegisterRequest{
		Email:     "grace@example.com",
		Username:  "grace",
		Password:  "password123",
		FirstName: "Grace",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	// login before verification is refused
	if _, err := e.svc.Login(ctx, "grace@example.com", "password123"); !errors.Is(err, common.ErrNotVerified) {
		t.Fatalf("pre-verify login: want ErrNotVerified, got %v", err)
	}

	code := e.users.byID[reg.UserID].VerificationCode
	if _, err := e.svc.VerifyCode(ctx, code); err != nil {
		t.Fatalf("verify: %v", err)
	}

	login, err := e.svc.Login(ctx, "grace@example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	refreshed, err := e.svc.RefreshToken(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.AccessToken == "" {
		t.Fatalf("empty refreshed access token")
	}

	if _, err := e.svc.Logout(ctx, login.User.ID, login.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := e.svc.RefreshToken(ctx, login.RefreshToken); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("refresh after logout: want ErrUnauthorized, got %v", err)
	}

	if err := e.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}
