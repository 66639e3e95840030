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

	"github.com/quartzlab/depot/internal/depot/blob"
	"github.com/quartzlab/depot/internal/depot/domain"
	httpapi "github.com/quartzlab/depot/internal/depot/http"
	"github.com/quartzlab/depot/internal/depot/idp"
	"github.com/quartzlab/depot/internal/depot/search"
	"github.com/quartzlab/depot/internal/depot/service"
	"github.com/quartzlab/depot/internal/depot/store"
	"github.com/quartzlab/depot/internal/depot/store/drivers/sqlite"
	"github.com/quartzlab/depot/pkg/jwtx"
	"github.com/quartzlab/depot/pkg/slogx"
)

// BuildVersion should be set at build time via ldflags.
const BuildVersion = "v0.1.0"

// Application wires the whole service together.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db     store.Store
	blobs  blob.Store
	search search.Index

	session      service.Session
	authReady    func(ctx context.Context) bool
	buckets      *service.Buckets
	files        *service.Files
	searchSvc    *service.Search
	housekeeping *service.Housekeeping

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "depot",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	app.initBlobs()
	app.initSearch()

	if err := app.initSession(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	ctx := slogx.WithContext(context.Background(), app.logger)

	// Search setup is best-effort: the store works without the
	// projection, and EnsureSetup runs again on next boot.
	if err := app.search.EnsureSetup(ctx); err != nil {
		app.logger.Warn("search setup failed, continuing without projection", "error", err)
	}

	if app.cfg.AuthMode == "local" {
		seed := &service.Bootstrap{Store: app.db}
		err := seed.Run(ctx, domain.BootstrapData{
			AdminUsername: app.cfg.BootstrapAdminUsername,
			AdminPassword: app.cfg.BootstrapAdminPassword,
			UserUsername:  app.cfg.BootstrapUserUsername,
			UserPassword:  app.cfg.BootstrapUserPassword,
		})
		if err != nil {
			return fmt.Errorf("seeding initial users: %w", err)
		}

		app.housekeeping.Start()
		defer app.housekeeping.Stop()
	}

	app.logger.Info("depot starting",
		"port", app.cfg.Port, "auth_mode", app.cfg.AuthMode, "version", BuildVersion)

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

// Shutdown drains in-flight requests and releases resources.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down depot...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("depot stopped")
	return nil
}

func (app *Application) initDatabase() error {
	db, err := sqlite.NewStore(app.cfg.DatabaseFile)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied")
	return nil
}

func (app *Application) initBlobs() {
	app.blobs = blob.NewS3Store(blob.S3Config{
		EndpointURL:     app.cfg.S3EndpointURL,
		Region:          app.cfg.S3Region,
		AccessKeyID:     app.cfg.S3AccessKeyID,
		SecretAccessKey: app.cfg.S3SecretAccessKey,
		ForcePathStyle:  app.cfg.S3ForcePathStyle,
	})
}

func (app *Application) initSearch() {
	idx, err := search.NewElasticIndex(search.ElasticConfig{
		Addresses: app.cfg.ElasticsearchNodes,
		Username:  app.cfg.ElasticsearchUsername,
		Password:  app.cfg.ElasticsearchPassword,
	})
	if err != nil {
		// The projection is optional; run with an inert in-memory index
		// rather than refusing to boot.
		app.logger.Warn("elasticsearch client init failed, search disabled", "error", err)
		app.search = search.NewMemoryIndex()
		return
	}
	app.search = idx
}

func (app *Application) initSession() error {
	switch app.cfg.AuthMode {
	case "local":
		material := app.cfg.JWTKeyMaterial
		if material == "" {
			if app.cfg.Env == "prod" {
				return fmt.Errorf("auth mode local requires JWT_KEY_MATERIAL or JWT_SECRET in prod")
			}
			app.logger.Warn("no JWT key material configured, using a development secret")
			material = "depot-dev-secret-do-not-use-in-prod"
		}

		signer, verifier, err := jwtx.NewCodec(material, app.cfg.Issuer)
		if err != nil {
			return fmt.Errorf("loading jwt key material: %w", err)
		}

		app.session = &service.LocalSession{
			Store:      app.db,
			Signer:     signer,
			Verifier:   verifier,
			AccessTTL:  app.cfg.AccessTTL,
			RefreshTTL: app.cfg.RefreshTTL,
			Issuer:     app.cfg.Issuer,
		}
	case "keycloak":
		if app.cfg.KeycloakBaseURL == "" || app.cfg.KeycloakRealm == "" || app.cfg.KeycloakClientID == "" {
			return fmt.Errorf("auth mode keycloak requires KEYCLOAK_BASE_URL, KEYCLOAK_REALM, and KEYCLOAK_CLIENT_ID")
		}

		idpCfg := idp.Config{
			BaseURL:      app.cfg.KeycloakBaseURL,
			Realm:        app.cfg.KeycloakRealm,
			ClientID:     app.cfg.KeycloakClientID,
			ClientSecret: app.cfg.KeycloakClientSecret,
		}
		client := idp.NewClient(idpCfg)
		verifier := idp.NewVerifier(idpCfg, client)

		app.session = &service.KeycloakSession{
			Client:   client,
			Verifier: verifier,
		}
		// Readiness should reflect whether the realm's keys are reachable.
		app.authReady = verifier.Ready
	default:
		return fmt.Errorf("unknown auth mode %q", app.cfg.AuthMode)
	}

	return nil
}

func (app *Application) initServices() {
	app.buckets = &service.Buckets{Blobs: app.blobs, Store: app.db, Search: app.search}
	app.files = &service.Files{Blobs: app.blobs, Store: app.db, Search: app.search}
	app.searchSvc = &service.Search{Index: app.search}

	app.housekeeping = service.NewHousekeeping(app.db, app.logger, app.cfg.HousekeepingInterval)
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.blobs, app.search, app.logger)

	router.Session = app.session
	router.BucketsService = app.buckets
	router.FilesService = app.files
	router.SearchService = app.searchSvc
	router.RefreshTTL = app.cfg.RefreshTTL
	router.SecureCookies = app.cfg.SecureCookies
	router.WebhookSecret = app.cfg.WebhookSecret
	router.AuthReady = app.authReady
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
