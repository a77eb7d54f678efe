package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/hexphish/hexphish/internal/hexphish/http"
	"github.com/hexphish/hexphish/internal/hexphish/service"
	"github.com/hexphish/hexphish/internal/hexphish/store"
	"github.com/hexphish/hexphish/internal/hexphish/store/drivers/sqlite"
	"github.com/hexphish/hexphish/pkg/mailx"
	"github.com/hexphish/hexphish/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the console's auth core with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	db store.Store

	loginService        *service.LoginService
	userService         *service.UserService
	mfaService          *service.MFAService
	resetService        *service.PasswordResetService
	csrfService         *service.CSRFService
	mailService         *service.MailSettingsService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "hexphish",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	app.initServices()

	if err := app.initHTTP(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	// Bootstrap a default admin on an empty install.
	ctx := slogx.WithContext(context.Background(), app.logger)
	if err := app.userService.EnsureDefaultAdmin(ctx); err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to bootstrap admin account: %w", err)
	}

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("hexphish console starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down hexphish console...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("hexphish console stopped")
	return nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	mailer := &mailx.SMTPMailer{}

	app.userService = &service.UserService{Store: app.db}
	app.loginService = &service.LoginService{Users: app.userService}
	app.mfaService = &service.MFAService{
		Store:  app.db,
		Mailer: mailer,
		Issuer: app.cfg.Issuer,
	}
	app.resetService = &service.PasswordResetService{
		Store:  app.db,
		Mailer: mailer,
	}
	app.csrfService = &service.CSRFService{Store: app.db}
	app.mailService = &service.MailSettingsService{
		Store:  app.db,
		Mailer: mailer,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() error {
	secret, err := loadSecretKey(app.cfg)
	if err != nil {
		return err
	}

	sessions := httpapi.NewSessionManager(secret, app.cfg.ForceSecureCookies)

	router := httpapi.NewRouter(
		BuildVersion,
		app.cfg.ForceSecureCookies,
		app.db,
		sessions,
		app.logger,
	)

	// Wire services to router
	router.LoginService = app.loginService
	router.UserService = app.userService
	router.MFAService = app.mfaService
	router.ResetService = app.resetService
	router.CSRFService = app.csrfService
	router.MailSettingsService = app.mailService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
	return nil
}
