package store

import (
	"database/sql"
	"fmt"

	"annopedia/internal/logging"
)

// Schema versions:
// v1: projects, categories, annotators, imported texts, entries
// v2: highlights and project character_level_selection
// v3: entry_history
// v4: contributors.is_active, imported_texts.mt_system_translation
const CurrentSchemaVersion = 4

// Migration defines a database schema migration.
type Migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations lists column additions for databases created by older
// releases, where CREATE TABLE IF NOT EXISTS left an existing table untouched.
var pendingMigrations = []Migration{
	{"projects", "character_level_selection", "INTEGER"},
	{"contributors", "is_active", "INTEGER NOT NULL DEFAULT 1"},
	{"imported_texts", "mt_system_translation", "TEXT NOT NULL DEFAULT ''"},
	{"imported_texts", "pre_adequacy", "REAL"},
	{"imported_texts", "pre_fluency", "REAL"},
	{"entries", "adequacy", "REAL"},
	{"entries", "fluency", "REAL"},
}

// RunMigrations applies schema migrations for existing databases and records
// the schema version.
func RunMigrations(db *sql.DB) error {
	timer := logging.StartTimer(logging.CategoryStore, "RunMigrations")
	defer timer.Stop()

	logging.Store("Running schema migrations (%d pending)", len(pendingMigrations))

	appliedCount := 0
	skippedCount := 0

	for _, m := range pendingMigrations {
		if !tableExists(db, m.Table) {
			logging.StoreDebug("Table missing, skipping migration: %s.%s", m.Table, m.Column)
			skippedCount++
			continue
		}

		if columnExists(db, m.Table, m.Column) {
			skippedCount++
			continue
		}

		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		logging.StoreDebug("Executing migration: %s", query)
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("migration %s.%s failed: %w", m.Table, m.Column, err)
		}
		logging.Store("Migration applied: added %s.%s", m.Table, m.Column)
		appliedCount++
	}

	if err := recordSchemaVersion(db, CurrentSchemaVersion); err != nil {
		return err
	}

	logging.Store("Schema migrations complete: applied=%d, skipped=%d", appliedCount, skippedCount)
	return nil
}

// GetSchemaVersion returns the recorded schema version, or 0 for an
// uninitialized database.
func GetSchemaVersion(db *sql.DB) int {
	if !tableExists(db, "schema_versions") {
		return 0
	}
	var version int
	if err := db.QueryRow("SELECT MAX(version) FROM schema_versions").Scan(&version); err != nil {
		logging.StoreDebug("schema_versions lookup failed: %v", err)
		return 0
	}
	return version
}

func recordSchemaVersion(db *sql.DB, version int) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create schema_versions: %w", err)
	}
	if _, err := db.Exec("INSERT OR IGNORE INTO schema_versions (version, applied_at) VALUES (?, ?)", version, now()); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}

// columnExists checks if a column exists in a table using PRAGMA table_info.
func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		logging.StoreDebug("PRAGMA table_info(%s) failed: %v", table, err)
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}

// tableExists checks if a table exists in the database.
func tableExists(db *sql.DB, table string) bool {
	var count int
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?"
	if err := db.QueryRow(query, table).Scan(&count); err != nil {
		logging.StoreDebug("Table existence check failed for %s: %v", table, err)
		return false
	}
	return count > 0
}
