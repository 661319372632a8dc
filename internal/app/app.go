// Package app wires configuration into the bulk client, the job ledger, the
// result archive and the job runner shared by the server and the CLI.
package app

import (
	"context"
	"fmt"

	"github.com/timmy/sfbulk/internal/api/handler"
	"github.com/timmy/sfbulk/internal/bulk"
	"github.com/timmy/sfbulk/internal/config"
	"github.com/timmy/sfbulk/internal/logger"
	"github.com/timmy/sfbulk/internal/repository"
	"github.com/timmy/sfbulk/internal/service"
	"github.com/timmy/sfbulk/internal/storage"
	"gorm.io/gorm"
)

// App holds the initialized components.
type App struct {
	Config *config.Config
	Client *bulk.Client
	Runner *service.JobRunner

	// Ledger and Archive are nil when disabled in configuration.
	Ledger  *repository.JobRepository
	Archive *storage.ResultArchive

	db *gorm.DB
}

type bucketEnsurer interface {
	EnsureBucket(ctx context.Context) error
}

// New builds every component from cfg.
// Parameters:
//   - ctx: context used while connecting to storage.
//   - cfg: validated application configuration.
// Returns:
//   - *App: wired application, call Close when done.
//   - error: non-nil if the database or storage cannot be initialized.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	a.Client = bulk.New(&bulk.Config{
		BaseURL:           cfg.Salesforce.BulkURL(),
		AccessToken:       cfg.Salesforce.AccessToken,
		Interval:          cfg.Bulk.Interval(),
		Timeout:           cfg.Bulk.Timeout(),
		RequestsPerSecond: cfg.Bulk.RequestsPerSecond,
		Burst:             cfg.Bulk.Burst,
	})

	if cfg.Database.Enabled {
		db, err := repository.InitDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.db = db
		a.Ledger = repository.NewJobRepository(db)
	}

	if cfg.Storage.Enabled {
		store, err := storage.NewStorage(ctx, &cfg.Storage)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		if e, ok := store.(bucketEnsurer); ok {
			if err := e.EnsureBucket(ctx); err != nil {
				a.Close()
				return nil, fmt.Errorf("failed to ensure storage bucket: %w", err)
			}
		}
		a.Archive = storage.NewResultArchive(store, cfg.Storage.Prefix)
	}

	// Assign interfaces only when set so the runner never sees a typed nil.
	var ledger service.JobLedger
	if a.Ledger != nil {
		ledger = a.Ledger
	}
	var archive service.ResultStore
	if a.Archive != nil {
		archive = a.Archive
	}
	a.Runner = service.NewJobRunner(a.Client, ledger, archive, &service.RunnerConfig{
		Interval: cfg.Bulk.Interval(),
		Workers:  cfg.Bulk.Workers,
	})

	logger.With(logger.Fields{
		"bulk_url": cfg.Salesforce.BulkURL(),
		"ledger":   a.Ledger != nil,
		"archive":  a.Archive != nil,
	}).Info(ctx, "Application initialized")

	return a, nil
}

// JobLedger returns the ledger as the service interface, nil when disabled.
func (a *App) JobLedger() service.JobLedger {
	if a.Ledger == nil {
		return nil
	}
	return a.Ledger
}

// HealthChecks returns the dependency probes exposed by /health.
func (a *App) HealthChecks() map[string]handler.Pinger {
	checks := map[string]handler.Pinger{}
	if a.db != nil {
		checks["database"] = func(ctx context.Context) error {
			sqlDB, err := a.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	return checks
}

// Close releases the database connection.
func (a *App) Close() {
	if a.db == nil {
		return
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
