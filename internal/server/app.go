// Package server initializes and runs the authentication service: it opens
// the database and cache connections, applies migrations, wires the service
// graph, and serves the HTTP API with graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cooklio/auth-service/internal/logging"
	"github.com/cooklio/auth-service/internal/server/auth"
	"github.com/cooklio/auth-service/internal/server/cache"
	"github.com/cooklio/auth-service/internal/server/config"
	"github.com/cooklio/auth-service/internal/server/httpapi"
	"github.com/cooklio/auth-service/internal/server/mail"
	"github.com/cooklio/auth-service/internal/server/repositories/repomanager"
	"github.com/cooklio/auth-service/internal/server/services"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	redis  *redis.Client
	router http.Handler
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	redisCache := cache.NewRedisCache(redisClient)
	if err := redisCache.Ping(ctx); err != nil {
		return nil, fmt.Errorf("redis init error: %w", err)
	}

	issuer := auth.NewIssuer(cfg.AccessTokenSecret, cfg.RefreshTokenSecret,
		cfg.AccessTokenValidityDuration, cfg.RefreshTokenValidityDuration)
	mailer := mail.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom)

	svc := services.NewAuthService(db, rm, redisCache, issuer, mailer, logger, cfg)
	handler := httpapi.NewHandler(svc, issuer, logger)
	router := httpapi.NewRouter(handler, cfg.CORSAllowOrigin)

	return &App{
		config: cfg,
		logger: logger,
		db:     db,
		redis:  redisClient,
		router: router,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves HTTP until the context is canceled or a signal arrives, then
// shuts the server down gracefully and closes the backing connections.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.initSignalHandler(cancelFunc)

	srv := &http.Server{
		Addr:    app.config.EndpointAddrHTTP,
		Handler: app.router,
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info(ctx, "starting http server", "addr", app.config.EndpointAddrHTTP)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
	}

	app.logger.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(shutdownCtx, "http shutdown error", "error", err)
	}

	if err := app.redis.Close(); err != nil {
		app.logger.Error(shutdownCtx, "redis close error", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(shutdownCtx, "db close error", "error", err)
	}
	return nil
}
