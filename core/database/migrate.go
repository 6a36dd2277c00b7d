package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	coreconfig "github.com/m3rciful/leadbot/core/config"
	"github.com/m3rciful/leadbot/core/logger"
	"github.com/m3rciful/leadbot/migrations"
)

const readyTimeout = 30 * time.Second

// RunMigrations brings cfg's schema up to the newest embedded migration.
// The embedded directory is picked by driver name. Postgres is awaited first
// so a container started alongside the bot has time to accept connections.
func RunMigrations(cfg coreconfig.DatabaseConfig) error {
	ctx := context.Background()
	driver := driverName(cfg)
	if driver == coreconfig.DriverPostgres {
		wctx, cancel := context.WithTimeout(ctx, readyTimeout)
		err := waitReady(wctx, cfg)
		cancel()
		if err != nil {
			logger.Error(ctx, "db.migrate", "migrate.wait", slog.Any("err", err))
			return err
		}
	}
	return migrateUp(ctx, migrations.FS, driver, MigrateURL(cfg))
}

func migrateUp(ctx context.Context, fsys fs.FS, dir, databaseURL string) error {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return fmt.Errorf("open embedded migrations %s: %w", dir, err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		logger.Error(ctx, "db.migrate", "migrate.init", slog.Any("err", err))
		return fmt.Errorf("init migrations: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn(ctx, "db.migrate", "migrate.close", slog.Any("err", errors.Join(srcErr, dbErr)))
		}
	}()

	from := schemaVersion(m)
	start := time.Now()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Error(ctx, "db.migrate", "migrate.up",
			slog.Uint64("from_ver", uint64(from)),
			slog.Duration("duration", logger.Took(start)),
			slog.Any("err", err),
		)
		return fmt.Errorf("apply migrations: %w", err)
	}
	to := schemaVersion(m)

	logger.Info(ctx, "db.migrate", "migrate.up",
		slog.String("status", "ok"),
		slog.String("dir", dir),
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Int("applied", appliedBetween(upVersions(fsys, dir), from, to)),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

// schemaVersion is the applied version, or 0 on a database never migrated.
func schemaVersion(m *migrate.Migrate) uint {
	v, _, err := m.Version()
	if err != nil {
		return 0
	}
	return v
}

// upVersions lists the versions of the *.up.sql files in dir, ascending.
func upVersions(fsys fs.FS, dir string) []uint {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil
	}
	var versions []uint
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		prefix, _, _ := strings.Cut(name, "_")
		if v, err := strconv.ParseUint(prefix, 10, 64); err == nil {
			versions = append(versions, uint(v))
		}
	}
	slices.Sort(versions)
	return versions
}

func appliedBetween(versions []uint, from, to uint) int {
	n := 0
	for _, v := range versions {
		if v > from && v <= to {
			n++
		}
	}
	return n
}
