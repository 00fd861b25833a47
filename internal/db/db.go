package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/hpungsan/layerdeck/internal/config"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// Querier is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Init initializes the SQLite database at baseDir/layerdeck.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.layerdeck.
func Init(baseDir string) (*sql.DB, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	exportsDir := filepath.Join(baseDir, "exports")
	if err := os.MkdirAll(exportsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create exports directory: %w", err)
	}
	_ = os.Chmod(exportsDir, 0700)

	// Pragmas in the DSN apply to every pooled connection.
	dbPath := filepath.Join(baseDir, "layerdeck.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: templates, slides, layers
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS templates (
		  id            TEXT PRIMARY KEY,
		  name          TEXT NOT NULL,
		  source_name   TEXT,
		  slide_count   INTEGER NOT NULL,
		  warnings_json TEXT,
		  created_at    INTEGER NOT NULL,
		  updated_at    INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_templates_updated
		ON templates(updated_at DESC, id DESC);

		CREATE TABLE IF NOT EXISTS slides (
		  id          TEXT PRIMARY KEY,
		  template_id TEXT NOT NULL REFERENCES templates(id) ON DELETE CASCADE,
		  position    INTEGER NOT NULL,
		  width       INTEGER NOT NULL,
		  height      INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_slides_template
		ON slides(template_id, position);

		CREATE TABLE IF NOT EXISTS layers (
		  id             TEXT NOT NULL,
		  slide_id       TEXT NOT NULL REFERENCES slides(id) ON DELETE CASCADE,
		  position       INTEGER NOT NULL,
		  name           TEXT,
		  kind           TEXT NOT NULL,
		  x              REAL NOT NULL,
		  y              REAL NOT NULL,
		  width          REAL NOT NULL,
		  height         REAL NOT NULL,
		  rotation       REAL NOT NULL,
		  opacity        REAL NOT NULL,
		  is_visible     INTEGER NOT NULL,
		  is_locked      INTEGER NOT NULL,
		  z_index        INTEGER NOT NULL,
		  text_content   TEXT,
		  font_family    TEXT,
		  font_size      REAL,
		  font_weight    INTEGER,
		  font_style     TEXT,
		  text_color     TEXT,
		  text_align     TEXT,
		  line_height    REAL,
		  letter_spacing REAL,
		  text_transform TEXT,
		  image_locator  TEXT,
		  shape_json     TEXT,
		  PRIMARY KEY (slide_id, id)
		);

		CREATE INDEX IF NOT EXISTS idx_layers_slide_position
		ON layers(slide_id, position);

		CREATE INDEX IF NOT EXISTS idx_layers_locator
		ON layers(image_locator)
		WHERE image_locator IS NOT NULL;
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
