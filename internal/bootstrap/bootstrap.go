// Package bootstrap holds the startup steps every binary shares: environment and config
// loading, logger setup, opening the database and redis, and ordered shutdown.
package bootstrap

import (
	"context"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/crewplanner-backend/pkg/config"
	"github.com/angelmondragon/crewplanner-backend/pkg/db"
	"github.com/angelmondragon/crewplanner-backend/pkg/logger"
	"github.com/angelmondragon/crewplanner-backend/pkg/migrate"
	"github.com/angelmondragon/crewplanner-backend/pkg/redis"
)

type closer struct {
	name string
	fn   func() error
}

// Runtime is a loaded binary: its config, its logger and the resources to release on exit.
type Runtime struct {
	Service string
	Config  *config.Config
	Logger  *logger.Logger

	closers []closer
	exit    func(int)
}

// Start reads .env when present, loads config and builds the service logger.
func Start(service string) (*Runtime, error) {
	boot := logger.New(logger.Options{ServiceName: service})
	if err := godotenv.Load(); err != nil {
		boot.Debug(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		return &Runtime{Service: service, Logger: boot, exit: os.Exit}, err
	}
	cfg.Service.Kind = service
	return &Runtime{
		Service: service,
		Config:  cfg,
		Logger: logger.New(logger.Options{
			ServiceName: service,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			Format:      cfg.App.LogFormat,
			WarnStack:   cfg.App.LogWarnStack,
		}),
		exit: os.Exit,
	}, nil
}

// MustStart is Start for main functions; a config error ends the process.
func MustStart(service string) *Runtime {
	rt, err := Start(service)
	if err != nil {
		rt.Fatal(context.Background(), "failed to load config", err)
	}
	return rt
}

// Database opens the configured database. In dev with auto-migrate on, the embedded
// migrations are applied before it is returned.
func (r *Runtime) Database(ctx context.Context) (*db.Client, error) {
	client, err := db.New(ctx, r.Config.DB, r.Logger)
	if err != nil {
		return nil, err
	}
	r.OnClose("database", client.Close)
	if err := migrate.MaybeRunDev(ctx, r.Config, r.Logger, client); err != nil {
		return nil, err
	}
	return client, nil
}

func (r *Runtime) Redis(ctx context.Context) (*redis.Client, error) {
	client, err := redis.New(ctx, r.Config.Redis, r.Logger)
	if err != nil {
		return nil, err
	}
	r.OnClose("redis", client.Close)
	return client, nil
}

// OnClose registers fn to run on Close. Closers run in reverse registration order.
func (r *Runtime) OnClose(name string, fn func() error) {
	r.closers = append(r.closers, closer{name: name, fn: fn})
}

func (r *Runtime) Close() {
	for _, c := range slices.Backward(r.closers) {
		if err := c.fn(); err != nil {
			r.Logger.Error(r.Logger.WithField(context.Background(), "resource", c.name), "close failed", err)
		}
	}
	r.closers = nil
}

// Fatal logs err, releases what was opened so far and exits with status 1.
func (r *Runtime) Fatal(ctx context.Context, msg string, err error) {
	r.Logger.Error(ctx, msg, err)
	r.Close()
	r.exit(1)
}

// SignalContext is canceled on SIGINT or SIGTERM and carries the env and service kind as log
// fields.
func (r *Runtime) SignalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return r.Logger.WithFields(ctx, map[string]any{
		"env":          r.Config.App.Env,
		"service_kind": r.Service,
	}), stop
}
