package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/idsrv/internal/idsrv/http"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/metrics"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/revocation"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/service"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/store"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/store/drivers/postgres"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/store/drivers/sqlite"
	"github.com/aussiebroadwan/idsrv/pkg/cryptox"
	"github.com/aussiebroadwan/idsrv/pkg/jwtx"
	"github.com/aussiebroadwan/idsrv/pkg/slogx"
)

// BuildVersion is overridden at build time via -ldflags "-X ...app.BuildVersion=".
var BuildVersion = "v0.1.0"

// Application owns the token service and all of its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db          store.Store
	keyManager  *jwtx.KeyManager
	revocations revocation.List
	redis       *revocation.RedisList // nil unless REVOCATION_BACKEND=redis
	metrics     *metrics.Metrics

	credentials  *service.CredentialService
	introspector *service.Introspector
	tokens       *service.TokenService
	discovery    *service.DiscoveryPublisher
	housekeeping *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg Config) *slog.Logger {
	return slogx.New(slogx.Config{
		Service: "idsrv",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Output:  cfg.LogOutput,
	})
}

// New opens the store, applies migrations, loads signing keys and wires
// the services and HTTP router. The returned application is not serving.
func New(ctx context.Context, cfg Config) (*Application, error) {
	app := &Application{
		cfg:     cfg,
		logger:  NewLogger(cfg),
		metrics: metrics.New(),
	}

	db, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	app.logger.Info("database migrations applied", "driver", cfg.DatabaseDriver)

	if err := app.init(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (app *Application) init(ctx context.Context) error {
	keyManager, err := InitKeys(ctx, app.cfg, app.db, app.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize signing keys: %w", err)
	}
	app.keyManager = keyManager

	if err := app.initRevocations(ctx); err != nil {
		return err
	}
	if err := app.initServices(); err != nil {
		return err
	}
	app.initHTTP()
	return nil
}

// OpenStore connects to the configured database without migrating it.
func OpenStore(ctx context.Context, cfg Config) (store.Store, error) {
	switch cfg.DatabaseDriver {
	case DriverPostgres:
		db, err := postgres.NewStore(ctx, cfg.DatabaseURL, postgres.Options{
			MaxConns: int32(cfg.DatabaseMaxConns),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return db, nil
	default:
		dsn := cfg.DatabaseFile
		if dsn != ":memory:" {
			dsn = sqlite.FileDSN(cfg.DatabaseFile)
		}
		db, err := sqlite.NewStore(dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		return db, nil
	}
}

// NewCredentialService builds the credential store over db, loading or
// creating the pepper file.
func NewCredentialService(cfg Config, db store.Store, m *metrics.Metrics) (*service.CredentialService, error) {
	pepper, err := cryptox.LoadPepper(cfg.PepperFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load pepper: %w", err)
	}
	return &service.CredentialService{
		Store:   db,
		Hasher:  cryptox.NewHasher(pepper),
		Metrics: m,
		Timeout: cfg.StoreTimeout,
	}, nil
}

func (app *Application) initRevocations(ctx context.Context) error {
	if app.cfg.RevocationBackend != RevocationRedis {
		app.revocations = revocation.NewStoreList(app.db)
		return nil
	}

	list := revocation.NewRedisList(revocation.RedisOptions{
		Addr:     app.cfg.RedisAddr,
		Password: app.cfg.RedisPassword,
		DB:       app.cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, app.cfg.StoreTimeout)
	defer cancel()
	if err := list.Ping(pingCtx); err != nil {
		_ = list.Close()
		return fmt.Errorf("failed to reach redis at %s: %w", app.cfg.RedisAddr, err)
	}

	app.redis = list
	app.revocations = list
	app.logger.Info("redis revocation list enabled", "addr", app.cfg.RedisAddr)
	return nil
}

func (app *Application) initServices() error {
	credentials, err := NewCredentialService(app.cfg, app.db, app.metrics)
	if err != nil {
		return err
	}
	app.credentials = credentials

	app.introspector = &service.Introspector{
		Verifier:    app.keyManager.Verifier(),
		Revocations: app.revocations,
		Metrics:     app.metrics,
		Timeout:     app.cfg.StoreTimeout,
	}

	app.tokens = &service.TokenService{
		Validator: &service.GrantValidator{Credentials: app.credentials},
		Issuer: &service.TokenIssuer{
			Keys:      app.keyManager,
			Issuer:    app.cfg.Issuer,
			Audience:  app.cfg.Audience,
			AccessTTL: app.cfg.AccessTTL,
		},
		Introspector: app.introspector,
		Revocations:  app.revocations,
		Metrics:      app.metrics,
		RefreshTTL:   app.cfg.RefreshTTL,
	}

	app.discovery, err = service.NewDiscoveryPublisher(service.DiscoveryConfig{
		Issuer:            app.cfg.Issuer,
		GrantTypes:        service.SupportedGrantTypes,
		Scopes:            app.cfg.Scopes,
		SigningAlgorithms: []string{app.keyManager.Algorithm()},
	})
	if err != nil {
		return fmt.Errorf("failed to build discovery document: %w", err)
	}

	app.housekeeping = service.NewHousekeepingService(
		app.db,
		app.revocations,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
	app.housekeeping.Metrics = app.metrics
	return nil
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keyManager.KeySet(),
		BuildVersion,
		app.db,
		app.cfg.RateLimits,
		app.logger,
	)

	router.Credentials = app.credentials
	router.Tokens = app.tokens
	router.Introspector = app.introspector
	router.Discovery = app.discovery
	router.Metrics = app.metrics
	if app.redis != nil {
		router.Checks = map[string]httpapi.Pinger{"redis": app.redis}
	}
	router.ApplyRoutes()

	app.router = router
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// Handler returns the fully wired HTTP handler.
func (app *Application) Handler() http.Handler { return app.router }

func (app *Application) Logger() *slog.Logger { return app.logger }

// Seed provisions data, or the built-in demo clients and users when data
// is nil. Existing entries are left untouched.
func (app *Application) Seed(ctx context.Context, data *service.SeedData) []service.ProvisionResult {
	seed := service.DefaultSeed()
	if data != nil {
		seed = *data
	}
	return app.credentials.Seed(slogx.WithContext(ctx, app.logger), seed)
}

// Run serves HTTP and blocks until SIGINT or SIGTERM, then shuts down.
func (app *Application) Run() error {
	app.housekeeping.Start()

	app.logger.Info("idsrv starting",
		"port", app.cfg.Port,
		"issuer", app.cfg.Issuer,
		"version", BuildVersion,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		app.housekeeping.Stop()
		_ = app.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// Shutdown drains in-flight requests, stops housekeeping and releases the
// store. It must only be called after Run.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down idsrv")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeeping.Stop()

	if err := app.Close(); err != nil {
		return err
	}
	app.logger.Info("idsrv stopped")
	return nil
}

// Close releases the store and the revocation backend without touching
// the HTTP server.
func (app *Application) Close() error {
	var errs []error
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
			errs = append(errs, err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
