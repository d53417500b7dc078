package database

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// MigrationsTable records the versioned migrations. The news table is
// handled by the layout chain instead.
const MigrationsTable = "schema_migrations"

var ErrDirtySchema = errors.New("versioned schema is dirty, a previous migration failed halfway")

// SchemaStatus reports the versioned tables after RunMigrations.
type SchemaStatus struct {
	Version uint
	Applied uint
}

// RunMigrations brings the tables next to news_items (pipeline_runs) up to
// the latest embedded version. A dirty schema is refused.
func RunMigrations(db *DB) (SchemaStatus, error) {
	m, err := newMigrator(db)
	if err != nil {
		return SchemaStatus{}, err
	}

	before, err := schemaVersion(m)
	if err != nil {
		return SchemaStatus{}, err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return SchemaStatus{}, fmt.Errorf("failed to run migrations from version %d: %w", before, err)
	}

	after, err := schemaVersion(m)
	if err != nil {
		return SchemaStatus{}, err
	}

	status := SchemaStatus{Version: after, Applied: after - before}
	if status.Applied > 0 {
		slog.Info("Versioned migrations applied", "from", before, "to", after)
	}
	return status, nil
}

// m.Close is never called: it would close the shared *sql.DB.
func newMigrator(db *DB) (*migrate.Migrate, error) {
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

func schemaVersion(m *migrate.Migrate) (uint, error) {
	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("failed to get migration version: %w", err)
	case dirty:
		return version, fmt.Errorf("%w (version %d)", ErrDirtySchema, version)
	}
	return version, nil
}
