package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/sessions"
	"github.com/stayspot/stayspot/assets"
	"github.com/stayspot/stayspot/internal"
	"github.com/stayspot/stayspot/internal/auth"
	authdb "github.com/stayspot/stayspot/internal/auth/db"
	"github.com/stayspot/stayspot/internal/db"
	"github.com/stayspot/stayspot/internal/email"
	"github.com/stayspot/stayspot/internal/email/postmark"
	"github.com/stayspot/stayspot/internal/email/view"
	"github.com/stayspot/stayspot/internal/migrate"
	"github.com/stayspot/stayspot/internal/web"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Stderr))
}

func run(ctx context.Context, w io.Writer) int {
	logger := slog.New(slog.NewTextHandler(w, nil))

	cfg, err := configFromEnv()
	if err != nil {
		logger.Error("failed to get config from environment", "error", err)
		return 1
	}

	sqlDB, err := db.OpenSQLite(cfg.dbFile, true)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return 1
	}

	defer func() {
		if err := sqlDB.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	migrations, err := migrate.RunFS(ctx, sqlDB, assets.MigrationFS, migrate.Metadata{
		AppVersion: internal.BuildRevision,
		Timestamp:  internal.BuildRevisionTime,
	})
	if err != nil {
		logger.Error("failed to run migrations", "error", err)
		return 1
	}

	for _, migration := range migrations {
		logger.Info("ran migration", "sequence", migration.Sequence, "filename", migration.Filename)
	}

	store := authdb.New(sqlDB)

	var sender email.Sender = email.NewLogSender(logger)
	if len(cfg.email.postmarkServerToken.SecretValue()) > 0 {
		sender = postmark.NewSender(&http.Client{}, postmark.Settings{
			APIURL:        cfg.email.postmarkAPIURL,
			ServerToken:   cfg.email.postmarkServerToken,
			MessageStream: cfg.email.postmarkMessageStream,
		})
	} else {
		logger.Warn("no postmark server token configured, emails are logged instead of sent")
	}

	emailSvc := email.NewService(view.NewFSRenderer(assets.EmailFS), sender, cfg.email.from)

	errHandler := func(err error) {
		logger.Error("worker error", "error", err)
	}

	authSvc, err := auth.NewService(store, emailSvc, web.Links{BaseURL: cfg.baseURL}, errHandler, auth.ServiceConfig{
		WorkerTimeout:     cfg.workerTimeout,
		VerifyTokenExpiry: cfg.verifyTokenExpiry,
		ResetTokenExpiry:  cfg.resetTokenExpiry,
	})
	if err != nil {
		logger.Error("failed to create auth service", "error", err)
		return 1
	}

	sessionStore := sessions.NewCookieStore(cfg.sessionKey.SecretValue())
	sessionStore.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}

	srv := &http.Server{
		Addr:         cfg.http.addr,
		ReadTimeout:  cfg.http.readTimeout,
		WriteTimeout: cfg.http.writeTimeout,
		IdleTimeout:  cfg.http.idleTimeout,
		Handler: web.NewServer(&web.ServerDeps{
			Logger:       logger,
			AuthService:  authSvc,
			SessionStore: sessionStore,
		}, web.ServerConfig{
			CSRFKey:      cfg.csrfKey,
			SecureCookie: cfg.secureCookie,
		}),
	}

	// We need to run two tasks concurrently:
	// - Listen and serving of the HTTP server.
	// - Waiting for a signal to stop the server.

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server",
			"addr", cfg.http.addr,
			"buildRevision", internal.BuildRevision,
			"buildRevisionTime", internal.BuildRevisionTime,
			"buildLocalModified", internal.BuildLocalModified,
		)
		// ListenAndServe always returns a non-nil error,
		// g will cancel gCtx when an error is returned, so
		// this will also stop the other goroutine.
		return srv.ListenAndServe()
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("stopping http server")

		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.http.shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutCtx)
	})

	err = g.Wait()

	// Let outstanding signup and reset workers finish before exiting.
	authSvc.Wait()

	if err != nil && err != http.ErrServerClosed {
		logger.Error("http server stopped with error", "error", err)
		return 1
	}

	logger.Info("http server stopped successfully")

	return 0
}
