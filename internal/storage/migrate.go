package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"kakeibo/internal/config"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// runMigrations applies pending migrations for cfg. Migrations run on their
// own connection, except for in-memory sqlite where a second handle would
// see a different, empty database.
func runMigrations(conn *sql.DB, cfg config.DBConfig) error {
	if cfg.Driver != DriverPostgres && isMemory(cfg.Path) {
		driver, err := sqlite.WithInstance(conn, &sqlite.Config{})
		if err != nil {
			return fmt.Errorf("create sqlite driver: %w", err)
		}
		// Closing this instance would close conn, so it is left open
		m, err := newMigrate(cfg.Driver, driver)
		if err != nil {
			return err
		}
		return up(m)
	}

	migrateDB, err := sql.Open(sqlDriverName(cfg.Driver), cfg.DSN())
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer migrateDB.Close()

	var driver database.Driver
	if cfg.Driver == DriverPostgres {
		driver, err = migratepgx.WithInstance(migrateDB, &migratepgx.Config{})
	} else {
		driver, err = sqlite.WithInstance(migrateDB, &sqlite.Config{})
	}
	if err != nil {
		return fmt.Errorf("create %s driver: %w", cfg.Driver, err)
	}

	m, err := newMigrate(cfg.Driver, driver)
	if err != nil {
		return err
	}
	defer m.Close()

	return up(m)
}

func newMigrate(name string, driver database.Driver) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations/"+name)
	if err != nil {
		return nil, fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, name, driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return m, nil
}

func up(m *migrate.Migrate) error {
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
