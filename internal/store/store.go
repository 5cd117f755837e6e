// Package store persists Annopedia projects, annotators, imported texts and
// entries in SQLite.
//
// Both SQLite drivers are registered: "sqlite3" (mattn/go-sqlite3, cgo) is the
// production default and "sqlite" (modernc.org/sqlite, pure Go) is used where
// cgo is unavailable. The schema avoids driver-specific types: timestamps are
// stored as RFC 3339 text in UTC.
//
// Usage Example:
//
//	s, err := store.Open("sqlite3", "data/annopedia.db")
//	if err != nil { ... }
//	defer s.Close()
//
//	admin, _ := s.GetOrCreateContributor(ctx, "uid-123", "admin@example.org")
//	p, _ := s.CreateProject(ctx, &types.Project{Type: types.TextClassification, Name: "News"}, admin.ID)
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"annopedia/internal/logging"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

var (
	// ErrNoRows is returned by lookups and mutations that match nothing.
	ErrNoRows = errors.New("store: no rows")

	// ErrDuplicate is returned when a uniqueness rule would be broken.
	ErrDuplicate = errors.New("store: duplicate")

	// ErrInUse is returned when deleting a row other rows still reference.
	ErrInUse = errors.New("store: in use")
)

// Store wraps the SQLite database.
type Store struct {
	db     *sql.DB
	dbPath string
	driver string
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Open initializes the SQLite database at the given path with the given driver.
func Open(driver, path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	logging.Store("Opening store at path: %s (driver=%s)", path, driver)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.StoreError("Failed to create directory %s: %v", dir, err)
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		logging.StoreError("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps PRAGMA state and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.StoreDebug("Failed to apply %q: %v", pragma, err)
		}
	}

	s := &Store{db: db, dbPath: path, driver: driver}
	if err := s.initialize(); err != nil {
		logging.StoreError("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("Store ready: %s", path)
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// SchemaVersion returns the applied migration version.
func (s *Store) SchemaVersion() int {
	return GetSchemaVersion(s.db)
}

// Driver returns the database/sql driver name.
func (s *Store) Driver() string {
	return s.driver
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// inTx runs fn in a transaction, committing on success.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) initialize() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS contributors (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL DEFAULT '',
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_contributors_email ON contributors(email);

CREATE TABLE IF NOT EXISTS projects (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT NOT NULL UNIQUE,
	type TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL,
	talk_markdown TEXT,
	character_level_selection INTEGER,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS project_administrators (
	project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	contributor_id INTEGER NOT NULL REFERENCES contributors(id) ON DELETE CASCADE,
	PRIMARY KEY (project_id, contributor_id)
);

CREATE TABLE IF NOT EXISTS categories (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	key_binding TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE (project_id, name)
);

CREATE TABLE IF NOT EXISTS annotators (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	contributor_id INTEGER NOT NULL REFERENCES contributors(id),
	project_id INTEGER REFERENCES projects(id) ON DELETE CASCADE,
	inviting_contributor_id INTEGER REFERENCES contributors(id),
	token TEXT UNIQUE,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_annotators_contributor ON annotators(contributor_id);
CREATE INDEX IF NOT EXISTS idx_annotators_project ON annotators(project_id);

CREATE TABLE IF NOT EXISTS imported_texts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	text TEXT NOT NULL,
	mt_system_translation TEXT NOT NULL DEFAULT '',
	context TEXT,
	pre_category_id INTEGER REFERENCES categories(id) ON DELETE SET NULL,
	pre_adequacy REAL,
	pre_fluency REAL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_imported_project ON imported_texts(project_id);

CREATE TABLE IF NOT EXISTS entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	source_id INTEGER NOT NULL REFERENCES imported_texts(id) ON DELETE CASCADE,
	annotator_id INTEGER NOT NULL REFERENCES annotators(id) ON DELETE CASCADE,
	category_id INTEGER REFERENCES categories(id),
	adequacy REAL,
	fluency REAL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_project ON entries(project_id);
CREATE INDEX IF NOT EXISTS idx_entries_annotator ON entries(annotator_id);
CREATE INDEX IF NOT EXISTS idx_entries_source ON entries(source_id);

CREATE TABLE IF NOT EXISTS highlights (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	entry_id INTEGER NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
	side TEXT NOT NULL,
	span_start INTEGER NOT NULL,
	span_end INTEGER NOT NULL,
	label TEXT NOT NULL DEFAULT '',
	category_id INTEGER REFERENCES categories(id)
);
CREATE INDEX IF NOT EXISTS idx_highlights_entry ON highlights(entry_id);

CREATE TABLE IF NOT EXISTS entry_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	entry_id INTEGER NOT NULL,
	project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	change TEXT NOT NULL,
	snapshot TEXT NOT NULL,
	recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_entry ON entry_history(entry_id);
`

// =============================================================================
// SCAN HELPERS
// =============================================================================

const timeLayout = time.RFC3339Nano

func now() string {
	return time.Now().UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func nullBool(p *bool) sql.NullBool {
	if p == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *p, Valid: true}
}

func stringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func boolPtr(n sql.NullBool) *bool {
	if !n.Valid {
		return nil
	}
	v := n.Bool
	return &v
}

// notFound converts sql.ErrNoRows into ErrNoRows and wraps other errors.
func notFound(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoRows
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
