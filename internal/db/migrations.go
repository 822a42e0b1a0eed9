package db

import (
	"database/sql"
	"fmt"
)

// GetSchemaVersion returns the current schema version from the database
func (db *DB) GetSchemaVersion() (int, error) {
	var version string
	err := db.conn.QueryRow("SELECT value FROM schema_info WHERE key = 'version'").Scan(&version)
	if err == sql.ErrNoRows {
		// No version set, assume the initial schema
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	var v int
	fmt.Sscanf(version, "%d", &v)
	return v, nil
}

// setSchemaVersion records the schema version
func (db *DB) setSchemaVersion(version int) error {
	_, err := db.conn.Exec(`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)`,
		fmt.Sprintf("%d", version))
	return err
}

// RunMigrations applies pending migrations in order and returns how many ran
func (db *DB) RunMigrations() (int, error) {
	if _, err := db.conn.Exec(`CREATE TABLE IF NOT EXISTS schema_info (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return 0, fmt.Errorf("create schema_info: %w", err)
	}

	currentVersion, err := db.GetSchemaVersion()
	if err != nil {
		return 0, fmt.Errorf("get schema version: %w", err)
	}
	if currentVersion >= SchemaVersion {
		return 0, nil
	}

	migrationsRun := 0
	for _, migration := range Migrations {
		if migration.Version <= currentVersion {
			continue
		}
		if _, err := db.conn.Exec(migration.SQL); err != nil {
			return migrationsRun, fmt.Errorf("migration %d (%s): %w", migration.Version, migration.Description, err)
		}
		if err := db.setSchemaVersion(migration.Version); err != nil {
			return migrationsRun, fmt.Errorf("set version %d: %w", migration.Version, err)
		}
		migrationsRun++
	}
	return migrationsRun, nil
}
