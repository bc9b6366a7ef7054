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

	httpapi "github.com/keylet/keylet/internal/identity/http"
	"github.com/keylet/keylet/internal/identity/notify"
	"github.com/keylet/keylet/internal/identity/service"
	"github.com/keylet/keylet/internal/identity/store"
	"github.com/keylet/keylet/internal/identity/store/drivers/sqlite"
	"github.com/keylet/keylet/pkg/cryptox"
	"github.com/keylet/keylet/pkg/httpx"
	"github.com/keylet/keylet/pkg/jwtx"
	"github.com/keylet/keylet/pkg/slogx"
)

// BuildVersion should be set at build time via ldflags.
const BuildVersion = "v0.1.0"

// Application wires the whole identity service together.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db     store.Store
	signer *jwtx.Signer
	keys   *jwtx.KeySet

	dispatcher *notify.Dispatcher

	registration *service.RegistrationService
	login        *service.LoginService
	sessions     *service.SessionService
	passwords    *service.PasswordService
	twoFactor    *service.TwoFactorService
	housekeeping *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "identity-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	cryptox.SetPepperPath(cfg.PepperFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	signer, err := initSigner(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("initialize signing key: %w", err)
	}
	app.signer = signer
	app.keys = jwtx.NewKeySet()
	app.keys.Add(signer.KID(), signer.Public())

	if err := app.initNotify(); err != nil {
		return nil, err
	}
	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeeping.Start()

	app.logger.Info("identity service starting", "port", app.cfg.Port, "version", BuildVersion)

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

// Shutdown stops the server, drains in-flight notifications, and closes the
// database.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down identity service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeeping.Stop()
	app.dispatcher.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("identity service stopped")
	return nil
}

func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
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

// initNotify picks real transports where configured and falls back to
// log-only delivery otherwise.
func (app *Application) initNotify() error {
	logOnly := &notify.LogNotifier{Logger: app.logger}

	var email notify.EmailSender = logOnly
	if app.cfg.Mail.Host != "" {
		mailer, err := notify.NewMailer(app.cfg.Mail)
		if err != nil {
			return fmt.Errorf("initialize mailer: %w", err)
		}
		email = mailer
		app.logger.Info("smtp mailer configured", "host", app.cfg.Mail.Host)
	} else {
		app.logger.Warn("no SMTP host configured, emails are logged only")
	}

	var sms notify.SMSSender = logOnly
	if app.cfg.SMS.URL != "" {
		sms = notify.NewSMSGateway(app.cfg.SMS)
		app.logger.Info("sms gateway configured", "url", app.cfg.SMS.URL)
	} else {
		app.logger.Warn("no SMS gateway configured, messages are logged only")
	}

	app.dispatcher = &notify.Dispatcher{
		Notifier: notify.Split{EmailSender: email, SMSSender: sms},
		Logger:   app.logger,
	}
	return nil
}

func (app *Application) initServices() {
	app.sessions = &service.SessionService{
		Store:      app.db,
		Signer:     app.signer,
		Issuer:     app.cfg.Issuer,
		AccessTTL:  app.cfg.AccessTTL,
		RefreshTTL: app.cfg.RefreshTTL,
	}

	app.registration = &service.RegistrationService{
		Store:           app.db,
		Sessions:        app.sessions,
		Notify:          app.dispatcher,
		CodeTTL:         app.cfg.CodeTTL,
		MaxCodeAttempts: app.cfg.MaxCodeAttempts,
	}

	app.login = &service.LoginService{
		Store:         app.db,
		Sessions:      app.sessions,
		LockThreshold: app.cfg.LockThreshold,
		LockCooldown:  app.cfg.LockCooldown,
	}

	app.passwords = &service.PasswordService{
		Store:    app.db,
		Mail:     app.dispatcher.Notifier,
		ResetTTL: app.cfg.ResetTTL,
	}

	app.twoFactor = &service.TwoFactorService{
		Store:               app.db,
		Issuer:              app.cfg.TwoFactorIssuer,
		DisableRequiresCode: app.cfg.TwoFactorDisableRequiresCode,
	}

	app.housekeeping = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

func (app *Application) initHTTP() {
	cookies := httpx.CookiePolicy{
		Secure:   app.cfg.IsProd(),
		SameSite: http.SameSiteLaxMode,
	}
	if app.cfg.IsProd() {
		cookies.SameSite = http.SameSiteStrictMode
	}

	verifier := &jwtx.Verifier{Keys: app.keys, Issuer: app.cfg.Issuer}

	router := httpapi.NewRouter(
		app.keys,
		verifier,
		BuildVersion,
		app.db,
		cookies,
		app.cfg.AccessTTL,
		app.cfg.RefreshTTL,
		app.logger,
	)

	router.Registration = app.registration
	router.Login = app.login
	router.Sessions = app.sessions
	router.Passwords = app.passwords
	router.TwoFactor = app.twoFactor
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
