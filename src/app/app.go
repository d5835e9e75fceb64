// Package app wires the store, its services and the ambient stack together
// from settings.
package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"mediatorpro/src/catalog"
	"mediatorpro/src/directors"
	"mediatorpro/src/engine"
	"mediatorpro/src/helpers"
	"mediatorpro/src/settings"
	"mediatorpro/src/snapshot"
)

// MetricsNamespace prefixes every metric the store registers.
const MetricsNamespace = "mediatorpro"

type App struct {
	Database  *engine.Database
	Services  *directors.ServiceManager
	Snapshots *snapshot.Service
	Journal   *engine.Journal
	Registry  *prometheus.Registry

	config *settings.Arguments
	logger *zap.SugaredLogger
}

// InitApp builds everything from config. Nothing touches the database file
// until Start or the first operation.
func InitApp(config *settings.Arguments, logger *zap.SugaredLogger) (*App, error) {
	if logger == nil {
		var err error
		if logger, err = helpers.NewLogger(config); err != nil {
			return nil, err
		}
	}

	registry := prometheus.NewRegistry()
	metrics, err := engine.NewMetrics(MetricsNamespace, registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	opts := []engine.Option{engine.WithMetrics(metrics)}

	var journal *engine.Journal
	if config.JournalDir != "" {
		journal, err = engine.NewJournal(
			filepath.Join(config.JournalDir, config.DatabaseName+".journal"),
			config.MaxJournalFileSize,
			config.JournalRetentionDays)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		opts = append(opts, engine.WithJournal(journal))
	}

	db, err := engine.NewDatabase(engine.Config{
		DataDir:     config.DataDir,
		Name:        config.DatabaseName,
		Version:     config.SchemaVersion,
		BusyTimeout: config.BusyTimeout,
	}, catalog.Schema, logger, opts...)
	if err != nil {
		if journal != nil {
			journal.Close()
		}
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	if config.Verbose {
		logger.Infow("MediatorPro starting",
			"dataDir", config.DataDir,
			"database", config.DatabaseName,
			"schemaVersion", db.Config().Version,
			"journalDir", config.JournalDir,
			"cascade", config.CascadePolicy,
			"configFile", config.ConfigFile)
	}

	return &App{
		Database:  db,
		Services:  directors.InitServiceManager(db, config, logger),
		Snapshots: snapshot.NewService(db, logger),
		Journal:   journal,
		Registry:  registry,
		config:    config,
		logger:    logger,
	}, nil
}

func (a *App) Logger() *zap.SugaredLogger { return a.logger }

// Start prunes old journals and opens the database, running any pending
// schema upgrade.
func (a *App) Start(ctx context.Context) error {
	if a.Journal != nil {
		removed, err := a.Journal.CleanupOldJournals()
		if err != nil {
			a.logger.Warnw("Failed to clean up old journals", "error", err)
		} else if removed > 0 {
			a.logger.Infow("Removed old journal files", "count", removed)
		}
	}
	return a.Database.Open(ctx)
}

// Stop closes the database and journal and writes the metrics file when one
// is configured.
func (a *App) Stop() error {
	err := a.Database.Close()
	if a.config.MetricsFile != "" {
		if merr := prometheus.WriteToTextfile(a.config.MetricsFile, a.Registry); merr != nil {
			a.logger.Warnw("Failed to write metrics file", "path", a.config.MetricsFile, "error", merr)
		}
	}
	directors.ResetServiceManager()
	_ = a.logger.Sync()
	return err
}
