package store

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrations embed.FS

// Migrate applies all pending up migrations for the database's driver.
// The database handle stays open afterwards.
func Migrate(d *DB) error {
	m, err := newMigrator(d)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// MigrateDown reverts every applied migration.
func MigrateDown(d *DB) error {
	m, err := newMigrator(d)
	if err != nil {
		return err
	}
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

func newMigrator(d *DB) (*migrate.Migrate, error) {
	sub, err := fs.Sub(migrations, "migrations/"+dialectDir(d.Driver))
	if err != nil {
		return nil, err
	}
	src, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	switch d.Driver {
	case DriverPostgres:
		drv, err := migratepgx.WithInstance(d.Client, &migratepgx.Config{})
		if err != nil {
			return nil, fmt.Errorf("migration driver: %w", err)
		}
		return migrate.NewWithInstance("iofs", src, "pgx5", drv)
	case DriverSQLite:
		drv, err := migratesqlite.WithInstance(d.Client, &migratesqlite.Config{})
		if err != nil {
			return nil, fmt.Errorf("migration driver: %w", err)
		}
		return migrate.NewWithInstance("iofs", src, "sqlite", drv)
	}
	return nil, fmt.Errorf("unsupported db driver %q", d.Driver)
}

func dialectDir(driver string) string {
	if driver == DriverSQLite {
		return "sqlite"
	}
	return "postgres"
}
