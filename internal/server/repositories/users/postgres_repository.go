package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/cooklio/auth-service/internal/common"
	"github.com/cooklio/auth-service/internal/dbx"
	"github.com/cooklio/auth-service/internal/server/models"
)

const userColumns = `id, email, username, password_hash, first_name, last_name,
	is_verified, verification_code, password_reset_code, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var firstName, lastName, verificationCode, resetCode sql.NullString

	err := row.Scan(&user.ID, &user.Email, &user.Username, &user.PasswordHash,
		&firstName, &lastName, &user.IsVerified, &verificationCode, &resetCode,
		&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	user.FirstName = firstName.String
	user.LastName = lastName.String
	user.VerificationCode = verificationCode.String
	user.PasswordResetCode = resetCode.String
	return user, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505), the race-safety backstop behind the
// orchestrator's existence pre-checks.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `INSERT INTO users (email, username, password_hash, first_name, last_name)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING ` + userColumns

	row := r.db.QueryRowContext(ctx, query, user.Email, user.Username,
		user.PasswordHash, nullable(user.FirstName), nullable(user.LastName))

	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: email or username already exists", common.ErrConflict)
		}
		return nil, err
	}
	return created, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, username))
}

func (r *PostgresRepository) GetByVerificationCode(ctx context.Context, code string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE verification_code = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, code))
}

func (r *PostgresRepository) GetByPasswordResetCode(ctx context.Context, code string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE password_reset_code = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, code))
}

// UpdateFields builds an UPDATE from the non-nil fields of upd, always
// touching updated_at.
func (r *PostgresRepository) UpdateFields(ctx context.Context, id int64, upd Update) (*models.User, error) {
	set := make([]string, 0, 6)
	args := []any{id}
	next := 2

	add := func(column string, value any) {
		set = append(set, fmt.Sprintf("%s = $%d", column, next))
		args = append(args, value)
		next++
	}

	if upd.FirstName != nil {
		add("first_name", nullable(*upd.FirstName))
	}
	if upd.LastName != nil {
		add("last_name", nullable(*upd.LastName))
	}
	if upd.PasswordHash != nil {
		add("password_hash", *upd.PasswordHash)
	}
	if upd.IsVerified != nil {
		add("is_verified", *upd.IsVerified)
	}
	if upd.VerificationCode != nil {
		add("verification_code", *upd.VerificationCode)
	}
	if upd.PasswordResetCode != nil {
		add("password_reset_code", *upd.PasswordResetCode)
	}

	if len(set) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}

	query := fmt.Sprintf(
		`UPDATE users SET %s, updated_at = now() WHERE id = $1 RETURNING %s`,
		strings.Join(set, ", "), userColumns)

	return scanUser(r.db.QueryRowContext(ctx, query, args...))
}

func (r *PostgresRepository) SetVerificationCode(ctx context.Context, id int64, code string) error {
	return r.execForUser(ctx,
		`UPDATE users SET verification_code = $2, updated_at = now() WHERE id = $1`, id, code)
}

func (r *PostgresRepository) SetPasswordResetCode(ctx context.Context, id int64, code string) error {
	return r.execForUser(ctx,
		`UPDATE users SET password_reset_code = $2, updated_at = now() WHERE id = $1`, id, code)
}

func (r *PostgresRepository) ClearPasswordResetCode(ctx context.Context, id int64) error {
	return r.execForUser(ctx,
		`UPDATE users SET password_reset_code = NULL, updated_at = now() WHERE id = $1`, id)
}

func (r *PostgresRepository) execForUser(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return common.ErrNotFound
	}
	return nil
}
