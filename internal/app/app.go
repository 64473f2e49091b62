// Package app assembles the service. Initialization order:
// config, logger (caller), database, schema, events, store, user manager,
// strategy/backend/guard, router. Close releases resources in reverse.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-trader-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-trader-go/internal/coin"
	"github.com/ovaphlow/pitchfork/service-trader-go/internal/events"
	"github.com/ovaphlow/pitchfork/service-trader-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-trader-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-trader-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-trader-go/pkg/database"
)

const (
	DefaultAddr       = "0.0.0.0:8431"
	DefaultBcryptCost = 12
	BackendName       = "jwt"
)

type Config struct {
	Addr       string
	BcryptCost int
	Database   database.Config
	Auth       auth.Config
	Events     events.Config
}

// ConfigFromEnv collects every package's configuration. Missing DATABASE_URL
// or SECRET is an error.
func ConfigFromEnv() (Config, error) {
	cfg := Config{Addr: DefaultAddr, BcryptCost: DefaultBcryptCost}
	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("BCRYPT_COST")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < bcrypt.MinCost || n > bcrypt.MaxCost {
			return Config{}, fmt.Errorf("invalid BCRYPT_COST %q", v)
		}
		cfg.BcryptCost = n
	}

	var err error
	if cfg.Database, err = database.ConfigFromEnv(); err != nil {
		return Config{}, err
	}
	if cfg.Auth, err = auth.ConfigFromEnv(); err != nil {
		return Config{}, err
	}
	cfg.Events = events.ConfigFromEnv()
	return cfg, nil
}

// Components are the wired services behind the HTTP handler.
type Components struct {
	Manager  *user.UserManager
	Strategy *auth.JWTStrategy
	Backend  *auth.Backend
	Guard    *auth.Guard
	Handler  http.Handler
}

// Build wires everything above the credential store. It has no I/O of its own.
func Build(store user.CredentialStore, publisher events.Publisher, cfg Config, logger *zap.SugaredLogger) *Components {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	manager := user.NewUserManager(store, user.BcryptHasher{Cost: cfg.BcryptCost}, publisher, logger)
	strategy := auth.NewJWTStrategy(cfg.Auth)
	transport := auth.NewBearerTransport("/auth/" + BackendName + "/login")
	backend := auth.NewBackend(BackendName, transport, strategy, manager, logger)
	guard := auth.NewGuard(transport, strategy, manager, logger, auth.RequireActive())

	handler := router.RegisterRoutes(router.Dependencies{
		Logger:  logger,
		Auth:    auth.NewHandler(backend, manager, logger),
		Users:   user.NewHandler(manager, auth.UserFromContext, logger),
		Coins:   coin.NewHandler(coin.NewService(coin.NewStubPriceSource()), logger),
		Guard:   guard,
		Backend: backend,
	})
	return &Components{Manager: manager, Strategy: strategy, Backend: backend, Guard: guard, Handler: handler}
}

// App owns the process-wide resources.
type App struct {
	Config     Config
	Components *Components

	logger *zap.SugaredLogger
	db     *sqlx.DB
	amqp   *events.AMQPPublisher
}

// New connects to the database, ensures the users table and wires the
// components. A broker that cannot be reached degrades to log-only events.
func New(ctx context.Context, cfg Config, logger *zap.SugaredLogger) (*App, error) {
	a := &App{Config: cfg, logger: logger}

	logger.Infow("connecting database", "url", database.SafeURL(cfg.Database.DSN), "schema", cfg.Database.Schema)
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	a.db = db

	store := userrepo.NewUserRepo(db, cfg.Database.Schema, cfg.Database.QueryTimeout)
	if err := store.EnsureTable(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("ensure users table: %w", err)
	}

	var publisher events.Publisher = events.NewLogPublisher(logger)
	if cfg.Events.URL != "" {
		p, err := events.NewAMQPPublisher(cfg.Events, logger)
		if err != nil {
			logger.Warnw("event broker unavailable; events are only logged", "err", err)
		} else {
			a.amqp = p
			publisher = events.Multi{publisher, p}
		}
	}

	a.Components = Build(store, publisher, cfg, logger)
	return a, nil
}

// Server returns an http.Server for the configured address.
func (a *App) Server() *http.Server {
	return &http.Server{
		Addr:              a.Config.Addr,
		Handler:           a.Components.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Ping checks the database; main calls it during shutdown.
func (a *App) Ping(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.PingContext(ctx)
}

func (a *App) Close() error {
	var errs []error
	if a.amqp != nil {
		errs = append(errs, a.amqp.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
