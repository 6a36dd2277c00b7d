// Package database opens the lead store connection and applies the embedded
// schema for postgres or sqlite.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	coreconfig "github.com/m3rciful/leadbot/core/config"
	"github.com/m3rciful/leadbot/core/logger"
)

const (
	connectTimeout = 5 * time.Second
	sqlitePragmas  = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
)

// Connect opens cfg's database, sizes the pool and pings it once.
// sqlite gets a single connection since it serializes writers anyway.
func Connect(cfg coreconfig.DatabaseConfig) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	driver := driverName(cfg)
	where := []slog.Attr{
		slog.String("driver", driver),
		slog.String("db", dbLabel(cfg)),
	}

	start := time.Now()
	db, err := sqlx.ConnectContext(ctx, driver, DSN(cfg))
	if err != nil {
		logger.Error(ctx, "db", "db.connect",
			append(where, slog.Duration("duration", logger.Took(start)), slog.Any("err", err))...)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	pool := cfg.MaxConnections
	if driver == coreconfig.DriverSQLite {
		pool = 1
	}
	db.SetMaxOpenConns(pool)
	db.SetMaxIdleConns(pool)

	logger.Info(ctx, "db", "db.connect",
		append(where,
			slog.String("status", "ok"),
			slog.Int("pool", pool),
			slog.Duration("duration", logger.Took(start)),
		)...)
	return db, nil
}

// DSN is the sqlx data source name for cfg.
func DSN(cfg coreconfig.DatabaseConfig) string {
	if driverName(cfg) == coreconfig.DriverSQLite {
		if strings.Contains(cfg.Path, "?") {
			return cfg.Path
		}
		return cfg.Path + "?" + sqlitePragmas
	}
	return fmt.Sprintf("user=%s password=%s host=%s port=%s dbname=%s sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, cfg.SSLMode)
}

// MigrateURL is the golang-migrate database URL for cfg.
func MigrateURL(cfg coreconfig.DatabaseConfig) string {
	if driverName(cfg) == coreconfig.DriverSQLite {
		return "sqlite://" + cfg.Path
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     cfg.Host + ":" + cfg.Port,
		Path:     "/" + cfg.Name,
		RawQuery: url.Values{"sslmode": {cfg.SSLMode}}.Encode(),
	}
	return u.String()
}

func driverName(cfg coreconfig.DatabaseConfig) string {
	if strings.EqualFold(cfg.Driver, coreconfig.DriverSQLite) {
		return coreconfig.DriverSQLite
	}
	return coreconfig.DriverPostgres
}

func dbLabel(cfg coreconfig.DatabaseConfig) string {
	if driverName(cfg) == coreconfig.DriverSQLite {
		return cfg.Path
	}
	return cfg.Host + ":" + cfg.Port + "/" + cfg.Name
}

// waitReady pings a freshly started postgres until it answers or ctx ends.
func waitReady(ctx context.Context, cfg coreconfig.DatabaseConfig) error {
	db, err := sqlx.Open(driverName(cfg), DSN(cfg))
	if err != nil {
		return err
	}
	defer db.Close()

	tick := time.NewTicker(2 * time.Second)
	defer tick.Stop()
	for {
		err = db.PingContext(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("database not ready: %w", err)
		case <-tick.C:
		}
	}
}
