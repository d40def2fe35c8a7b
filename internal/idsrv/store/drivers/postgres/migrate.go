package postgres

import (
	"errors"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/store/drivers/postgres/migrations"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/stdlib"
)

// ApplyMigrations applies any pending embedded migrations.
func (s *Store) ApplyMigrations() error {
	return s.migrate(func(m *migrate.Migrate) error { return m.Up() })
}

// RollbackMigrations reverts all applied migrations.
func (s *Store) RollbackMigrations() error {
	return s.migrate(func(m *migrate.Migrate) error { return m.Down() })
}

// migrate runs fn over a database/sql view of the pool. Closing that view
// leaves the pool open.
func (s *Store) migrate(fn func(m *migrate.Migrate) error) error {
	db := stdlib.OpenDBFromPool(s.pool)

	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		_ = db.Close()
		return err
	}

	source, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		_ = driver.Close()
		return err
	}

	m, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		_ = driver.Close()
		return err
	}
	defer m.Close()

	if err := fn(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
