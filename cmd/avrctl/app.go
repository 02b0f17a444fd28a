package main

import (
	"context"
	"fmt"
	"os"

	"github.com/nerrad567/avr-control/internal/catalog"
	"github.com/nerrad567/avr-control/internal/control"
	"github.com/nerrad567/avr-control/internal/discovery"
	"github.com/nerrad567/avr-control/internal/executor"
	"github.com/nerrad567/avr-control/internal/infrastructure/config"
	"github.com/nerrad567/avr-control/internal/infrastructure/database"
	"github.com/nerrad567/avr-control/internal/infrastructure/logging"
	"github.com/nerrad567/avr-control/internal/registry"
	"github.com/nerrad567/avr-control/internal/request"
	"github.com/nerrad567/avr-control/internal/status"
	"github.com/nerrad567/avr-control/migrations"
)

// appOptions are set by global flags.
type appOptions struct {
	// ephemeral keeps the device registry in memory; the catalog still
	// lives in the database.
	ephemeral bool
}

// app holds the components shared by every command.
type app struct {
	cfg *config.Config
	log *logging.Logger
	db  *database.DB

	catalog  *catalog.SQLiteRepository
	devices  registry.Repository
	client   *request.HTTPClient
	executor *executor.Executor
	reader   *status.Reader
	engine   *discovery.Engine
	control  *control.Controller
}

// newApp opens and migrates the database, seeds the catalog and wires the
// control layer.
func newApp(ctx context.Context, cfg *config.Config, log *logging.Logger, opts appOptions) (*app, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS, migrations.Dir); err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Debug("database ready", "path", cfg.Database.Path)

	a := &app{
		cfg:     cfg,
		log:     log,
		db:      db,
		catalog: catalog.NewSQLiteRepository(db.DB),
		devices: registry.NewSQLiteRepository(db.DB),
		client:  request.NewHTTPClient(),
	}
	if opts.ephemeral {
		a.devices = registry.NewMemoryRepository()
		log.Info("device registry kept in memory")
	}

	if err := a.seedCatalog(ctx); err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, err
	}

	a.executor = executor.New(a.catalog, a.client, executor.Options{
		Timeout:            cfg.Executor.Timeout,
		StrictPlaceholders: cfg.Executor.StrictPlaceholders,
		ValidateParameters: cfg.Executor.ValidateParameters,
	})
	a.executor.SetLogger(log.With("component", "executor"))

	a.reader = status.NewReader(a.client)
	a.reader.SetLogger(log.With("component", "status"))

	a.engine = a.newEngine(cfg.Discovery.Subnet)
	a.control = control.New(a.executor, a.reader)
	return a, nil
}

func (a *app) newEngine(subnet string) *discovery.Engine {
	e := discovery.NewEngine(a.devices, a.catalog, discovery.Options{
		ScanPort:        a.cfg.Discovery.ScanPort,
		ScanTimeout:     a.cfg.Discovery.ScanTimeout,
		IdentifyTimeout: a.cfg.Discovery.IdentifyTimeout,
		Parallelism:     a.cfg.Discovery.Parallelism,
		Subnet:          subnet,
	})
	e.SetDoer(a.client)
	e.SetLogger(a.log.With("component", "discovery"))
	return e
}

// seedCatalog loads the embedded catalog and every configured directory.
func (a *app) seedCatalog(ctx context.Context) error {
	if a.cfg.Catalog.SeedBuiltin {
		report, err := catalog.Seed(ctx, a.catalog, catalog.BuiltinFS, catalog.BuiltinDir)
		if err != nil {
			return fmt.Errorf("seeding builtin catalog: %w", err)
		}
		a.log.Debug("builtin catalog seeded", "models", report.Models, "commands", report.Commands)
	}

	for _, path := range a.cfg.Catalog.Paths {
		report, err := catalog.Seed(ctx, a.catalog, os.DirFS(path), ".")
		if err != nil {
			return fmt.Errorf("seeding catalog from %s: %w", path, err)
		}
		a.log.Info("catalog seeded", "path", path, "models", report.Models, "commands", report.Commands)
	}
	return nil
}

// Close releases the database.
func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.Error("error closing database", "error", err)
	}
}
