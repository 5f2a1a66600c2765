package gormstore

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/rapidaai/dialer/internal/dialererr"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate runs the embedded SQL migrations against dsn via
// golang-migrate, the production-path alternative to AutoMigrate (which
// stays around as the fast dev/test path for sqlite-backed setups).
func Migrate(dsn string) error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return dialererr.New(dialererr.KindFatal, "gormstore.Migrate", fmt.Errorf("load migration source: %w", err))
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return dialererr.New(dialererr.KindFatal, "gormstore.Migrate", fmt.Errorf("init migrator: %w", err))
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return dialererr.New(dialererr.KindFatal, "gormstore.Migrate", err)
	}
	return nil
}
