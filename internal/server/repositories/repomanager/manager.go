package repomanager

import (
	"context"
	"database/sql"

	"github.com/cooklio/auth-service/internal/dbx"
	"github.com/cooklio/auth-service/internal/server/repositories/refreshtokens"
	"github.com/cooklio/auth-service/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so the same
// repository code runs against a plain connection or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
