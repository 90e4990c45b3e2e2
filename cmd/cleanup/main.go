// Command cleanup is a maintenance tool for the auth database. By default it
// prunes expired refresh token rows; with -all it wipes every user and token,
// which is only meant for development environments.
package main

import (
	"context"
	"flag"
	"log"

	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/cooklio/auth-service/internal/server/config"
	"github.com/cooklio/auth-service/internal/server/repositories/repomanager"
)

func main() {
	all := flag.Bool("all", false, "delete ALL users and refresh tokens (development only)")
	flag.Parse()

	ctx := context.Background()
	cfg := config.LoadConfig()

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	defer db.Close()

	if *all {
		if err := wipe(ctx, db); err != nil {
			log.Fatalf("cleanup error: %v", err)
		}
		log.Println("database cleanup completed")
		return
	}

	rm := repomanager.NewPostgresRepositoryManager()
	deleted, err := rm.RefreshTokens(db).DeleteExpired(ctx)
	if err != nil {
		log.Fatalf("prune error: %v", err)
	}
	log.Printf("deleted %d expired refresh tokens", deleted)
}

func wipe(ctx context.Context, db *sql.DB) error {
	// refresh tokens cascade on user delete, the explicit delete keeps the
	// tool correct even without the FK
	if _, err := db.ExecContext(ctx, `DELETE FROM refresh_tokens`); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM users`); err != nil {
		return err
	}
	return nil
}
