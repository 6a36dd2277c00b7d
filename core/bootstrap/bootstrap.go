// Package bootstrap brings up the process-wide infrastructure (logging and
// the database) and assembles the conversation services on top of it.
package bootstrap

import (
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/leadbot/core/config"
	coredatabase "github.com/m3rciful/leadbot/core/database"
	"github.com/m3rciful/leadbot/core/logger"
)

// Options carries the config plus test seams; a nil seam uses the real step.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coreconfig.DatabaseConfig) (*sqlx.DB, error)
	Migrate    func(coreconfig.DatabaseConfig) error
}

// Result is the infrastructure Run brought up.
type Result struct {
	DB *sqlx.DB
}

// Run starts logging, migrates the schema and opens the pool, in that order:
// sqlite creates its file during migration.
func Run(opts Options) (*Result, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("bootstrap: nil config")
	}
	initLog, migrate, connect := logger.InitLogger, coredatabase.RunMigrations, coredatabase.Connect
	if opts.LoggerInit != nil {
		initLog = opts.LoggerInit
	}
	if opts.Migrate != nil {
		migrate = opts.Migrate
	}
	if opts.Connect != nil {
		connect = opts.Connect
	}

	if err := initLog(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}
	if err := migrate(cfg.Database); err != nil {
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}
	db, err := connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect: %w", err)
	}
	return &Result{DB: db}, nil
}
