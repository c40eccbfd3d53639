package repository

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate applies the embedded schema for driver to the database at dsn.
// Postgres DSNs must be URLs (postgres://...); they serve both the postgres
// and pgx drivers. SQLite DSNs are file paths.
func Migrate(driver, dsn string, logger *slog.Logger) error {
	dir, url, err := migrationTarget(driver, dsn)
	if err != nil {
		return err
	}

	src, err := iofs.New(migrationsFS, "migrations/"+dir)
	if err != nil {
		return fmt.Errorf("repository.Migrate: source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return fmt.Errorf("repository.Migrate: setup: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Warn("migration source close", "err", srcErr)
		}
		if dbErr != nil {
			logger.Warn("migration db close", "err", dbErr)
		}
	}()

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info("database migrations up to date", "driver", driver)
		return nil
	case err != nil:
		return fmt.Errorf("repository.Migrate: up: %w", err)
	}
	logger.Info("database migrations applied", "driver", driver)
	return nil
}

func migrationTarget(driver, dsn string) (dir, url string, err error) {
	switch driver {
	case DriverPostgres, DriverPgx:
		if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
			return "", "", fmt.Errorf("repository.Migrate: %s DSN must be a postgres:// URL", driver)
		}
		return "postgres", dsn, nil
	case DriverSQLite:
		path, _, _ := strings.Cut(dsn, "?")
		return "sqlite", "sqlite://" + path, nil
	}
	return "", "", fmt.Errorf("repository.Migrate: unsupported driver %q", driver)
}
