// Package db stores crosswalk sessions, per-frame verdicts and alert events
// in SQLite.
package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

type DB struct {
	*sql.DB
	path string
}

// NewDB opens the database at path, applies pragmas and migrates it to the
// latest schema.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenDB opens the database without migrating it.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if path == MemoryPath || strings.Contains(path, "mode=memory") {
		// every connection to :memory: is a different database
		sqlDB.SetMaxOpenConns(1)
	}

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	monitoring.Logf("opened database %s", path)
	return &DB{DB: sqlDB, path: path}, nil
}

// Path returns the path the database was opened with.
func (db *DB) Path() string { return db.path }
