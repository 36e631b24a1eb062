package db

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// MigrateUp runs all pending migrations up to the latest version.
// Returns nil if no migrations were needed (already at latest version).
func (db *DB) MigrateUp(migrationsDir string) error {
	m, err := db.newMigrate(migrationsDir)
	if err != nil {
		return err
	}
	// Not closed: closing the migrate instance would close the shared DB
	// connection underneath it.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func (db *DB) MigrateDown(migrationsDir string) error {
	m, err := db.newMigrate(migrationsDir)
	if err != nil {
		return err
	}

	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the current migration version and dirty state.
// Returns 0, false, nil if no migrations have been applied yet.
func (db *DB) MigrateVersion(migrationsDir string) (version uint, dirty bool, err error) {
	m, err := db.newMigrate(migrationsDir)
	if err != nil {
		return 0, false, err
	}

	version, dirty, err = m.Version()
	if err != nil && errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// MigrateForce forces the migration version to a specific value.
// This should only be used to recover from a dirty migration state.
func (db *DB) MigrateForce(migrationsDir string, version int) error {
	m, err := db.newMigrate(migrationsDir)
	if err != nil {
		return err
	}

	if err := m.Force(version); err != nil {
		return fmt.Errorf("force migration to version %d failed: %w", version, err)
	}
	return nil
}

// newMigrate creates a new migrate instance configured for this database.
func (db *DB) newMigrate(migrationsDir string) (*migrate.Migrate, error) {
	absPath, err := filepath.Abs(migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", absPath),
		"sqlite",
		driver,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	m.Log = &migrateLogger{}
	return m, nil
}

// migrateLogger implements migrate.Logger.
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool { return false }

// GetLatestMigrationVersion returns the latest available migration version
// by scanning the migrations directory.
func GetLatestMigrationVersion(migrationsDir string) (uint, error) {
	absPath, err := filepath.Abs(migrationsDir)
	if err != nil {
		return 0, fmt.Errorf("failed to get absolute path: %w", err)
	}

	entries, err := filepath.Glob(filepath.Join(absPath, "*.up.sql"))
	if err != nil {
		return 0, fmt.Errorf("failed to read migrations directory: %w", err)
	}
	if len(entries) == 0 {
		return 0, fmt.Errorf("no migration files found in %s", absPath)
	}

	var maxVersion uint
	for _, entry := range entries {
		var version uint
		filename := filepath.Base(entry)
		// Migration files follow format: 000001_name.up.sql
		if _, err := fmt.Sscanf(filename, "%d_", &version); err == nil {
			if version > maxVersion {
				maxVersion = version
			}
		}
	}
	if maxVersion == 0 {
		return 0, fmt.Errorf("could not determine latest migration version")
	}
	return maxVersion, nil
}

// CheckAndPromptMigrations checks whether the database is at the latest
// migration version and reports an error describing how to catch up if not.
// Returns true if migrations were needed but not applied (should exit).
func (db *DB) CheckAndPromptMigrations(migrationsDir string) (bool, error) {
	currentVersion, dirty, err := db.MigrateVersion(migrationsDir)
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return false, fmt.Errorf("failed to get current migration version: %w", err)
	}

	latestVersion, err := GetLatestMigrationVersion(migrationsDir)
	if err != nil {
		return false, fmt.Errorf("failed to get latest migration version: %w", err)
	}

	if currentVersion == latestVersion && !dirty {
		return false, nil
	}
	if dirty {
		return true, fmt.Errorf("database is in a dirty state (version %d). Run 'rep-coach migrate status' to diagnose", currentVersion)
	}
	if currentVersion > latestVersion {
		return true, fmt.Errorf("database version (%d) is ahead of latest migration (%d). This should not happen", currentVersion, latestVersion)
	}

	log.Printf("Database schema version mismatch: have %d, need %d", currentVersion, latestVersion)
	log.Printf("To apply the outstanding migrations, run: rep-coach migrate up")
	return true, fmt.Errorf("database schema is out of date (version %d, need %d). Please run migrations", currentVersion, latestVersion)
}
