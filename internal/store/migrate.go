package store

import (
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"

	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

func (s *PersistentStore) RunMigrations() error {
	d, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return err
	}

	var m *migrate.Migrate

	switch s.driver {
	case DriverPostgres:
		driver, err := pgxmigrate.WithInstance(s.db, &pgxmigrate.Config{})
		if err != nil {
			return err
		}
		m, err = migrate.NewWithInstance("iofs", d, "pgx", driver)
		if err != nil {
			return err
		}
	default:
		// This driver works with modernc.org/sqlite as well
		driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
		if err != nil {
			return err
		}
		m, err = migrate.NewWithInstance("iofs", d, "sqlite", driver)
		if err != nil {
			return err
		}
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}
