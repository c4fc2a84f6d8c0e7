package db

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/monitoring"
)

// MigrateUp applies every pending schema migration. An already current
// schema is not an error.
func (db *DB) MigrateUp() error {
	return db.withMigrate("migrate up", func(m *migrate.Migrate) error {
		return ignoreNoChange(m.Up())
	})
}

// MigrateDown reverts the newest applied migration.
func (db *DB) MigrateDown() error {
	return db.withMigrate("migrate down", func(m *migrate.Migrate) error {
		return ignoreNoChange(m.Steps(-1))
	})
}

// MigrateTo moves the schema up or down to version.
func (db *DB) MigrateTo(version uint) error {
	return db.withMigrate(fmt.Sprintf("migrate to version %d", version), func(m *migrate.Migrate) error {
		return ignoreNoChange(m.Migrate(version))
	})
}

// MigrateForce records version as applied without running it. Use it only
// to clear a dirty schema after fixing it by hand.
func (db *DB) MigrateForce(version int) error {
	return db.withMigrate(fmt.Sprintf("force version %d", version), func(m *migrate.Migrate) error {
		return m.Force(version)
	})
}

// MigrateVersion reports the applied schema version. A database with no
// migrations yet reports version 0.
func (db *DB) MigrateVersion() (version uint, dirty bool, err error) {
	err = db.withMigrate("read schema version", func(m *migrate.Migrate) error {
		var verr error
		version, dirty, verr = m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			version, dirty = 0, false
			return nil
		}
		return verr
	})
	return version, dirty, err
}

// withMigrate runs fn against the embedded session/frame/alert migrations.
// The migrate instance shares db.DB, so it is never closed here: closing it
// would close the store's connection too.
func (db *DB) withMigrate(step string, fn func(*migrate.Migrate) error) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("new migrate instance: %w", err)
	}
	m.Log = migrateLog{}

	if err := fn(m); err != nil {
		return fmt.Errorf("%s: %w", step, err)
	}
	return nil
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

// migrateLog routes golang-migrate output through the monitoring logger.
type migrateLog struct{}

func (migrateLog) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (migrateLog) Verbose() bool { return false }
