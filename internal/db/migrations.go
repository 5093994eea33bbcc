package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/ZerkerEOD/hashfleet/pkg/debug"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// newMigrate builds a migrate instance over the embedded SQL files.
// The caller keeps ownership of the underlying connection; closing the
// returned instance would close it.
func (d *DB) newMigrate() (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	dbDriver, err := postgres.WithInstance(d.DB, &postgres.Config{})
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return m, nil
}

// MigrateUp applies all pending migrations
func (d *DB) MigrateUp() error {
	m, err := d.newMigrate()
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			debug.Info("Database schema already up to date")
			return nil
		}
		return fmt.Errorf("migration failed: %w", err)
	}

	debug.Info("Database migrations applied")
	return nil
}

// MigrateDown rolls back the most recent migration
func (d *DB) MigrateDown() error {
	m, err := d.newMigrate()
	if err != nil {
		return err
	}

	if err := m.Steps(-1); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("rollback failed: %w", err)
	}

	return nil
}

// MigrationVersion reports the current schema version and dirty flag
func (d *DB) MigrationVersion() (uint, bool, error) {
	m, err := d.newMigrate()
	if err != nil {
		return 0, false, err
	}

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read schema version: %w", err)
	}

	return version, dirty, nil
}
