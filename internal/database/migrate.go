package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations applies every pending up migration embedded in the binary
func (d *Database) RunMigrations() error {
	m, src, err := d.newMigrate()
	if err != nil {
		return err
	}
	// m.Close would also close the shared *sql.DB
	defer src.Close()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		d.logger.Info("No new migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	d.logger.Info("Database migrations completed successfully", "version", version, "dirty", dirty)
	return nil
}

// RollbackMigrations reverts the given number of migrations
func (d *Database) RollbackMigrations(steps int) error {
	m, src, err := d.newMigrate()
	if err != nil {
		return err
	}
	defer src.Close()

	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}

	d.logger.Info("Database migrations rolled back", "steps", steps)
	return nil
}

func (d *Database) newMigrate() (*migrate.Migrate, source.Driver, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	driver, err := postgres.WithInstance(d.DB.DB, &postgres.Config{})
	if err != nil {
		src.Close()
		return nil, nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		src.Close()
		return nil, nil, fmt.Errorf("failed to initialize migration instance: %w", err)
	}

	return m, src, nil
}
