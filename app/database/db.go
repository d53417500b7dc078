package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// Open opens the SQLite store at path, creating the parent directory, and
// brings both the news table layout and the versioned tables up to date.
func Open(path string) (*DB, error) {
	if !isMemory(path) {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection keeps writes serialized and :memory: databases stable.
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	db := &DB{DB: sqlDB}

	applied, err := MigrateLayout(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if len(applied) > 0 {
		slog.Info("News table layout migrated", "steps", strings.Join(applied, ","))
	}

	status, err := RunMigrations(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	slog.Debug("Database ready", "path", path, "schema_version", status.Version)

	return db, nil
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:")
}
