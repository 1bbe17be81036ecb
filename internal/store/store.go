package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/loftlabs/loft/internal/chat"
	"github.com/loftlabs/loft/internal/config"
	"github.com/loftlabs/loft/internal/errors"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// Collection keys. The workspace collections are persisted whole, as JSON
// values under fixed keys.
const (
	KeyChats    = "chats"
	KeyProjects = "projects"
)

// Init initializes the SQLite database at baseDir/loft.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.loft.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Explicit chmod (best-effort, may not work on all platforms)
	_ = os.Chmod(baseDir, 0700)

	// Create exports subdirectory for chat transcripts
	exportsDir := filepath.Join(baseDir, "exports")
	if err := os.MkdirAll(exportsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create exports directory: %w", err)
	}
	_ = os.Chmod(exportsDir, 0700)

	// Open database with pragmas in connection string (applies to all connections)
	dbPath := filepath.Join(baseDir, "loft.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify WAL mode is active
	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations (this creates the file if it doesn't exist)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	// Set file permissions after file exists (best-effort)
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

	// Migration 0 -> 1: Initial schema (v1)
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS collections (
		  key        TEXT PRIMARY KEY,
		  value      TEXT NOT NULL,
		  updated_at INTEGER NOT NULL
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

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

// get loads the JSON value stored under key into v.
// Returns false with no error when the key is absent.
func get(db *sql.DB, key string, v any) (bool, error) {
	var raw string
	err := db.QueryRow("SELECT value FROM collections WHERE key = ?", key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.NewInternal(err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, errors.NewInternal(err)
	}
	return true, nil
}

// set stores v as JSON under key, replacing any previous value.
func set(db *sql.DB, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.NewInternal(err)
	}
	_, err = db.Exec(`
		INSERT INTO collections (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(raw), time.Now().Unix())
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// LoadChats reads the persisted chats collection.
// An absent key yields an empty collection with no error.
func LoadChats(db *sql.DB) ([]chat.Chat, error) {
	var chats []chat.Chat
	if _, err := get(db, KeyChats, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// SaveChats writes the whole chats collection.
func SaveChats(db *sql.DB, chats []chat.Chat) error {
	if chats == nil {
		chats = []chat.Chat{}
	}
	return set(db, KeyChats, chats)
}

// LoadProjects reads the persisted projects collection.
// An absent key yields an empty collection with no error.
func LoadProjects(db *sql.DB) ([]chat.Project, error) {
	var projects []chat.Project
	if _, err := get(db, KeyProjects, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// SaveProjects writes the whole projects collection.
func SaveProjects(db *sql.DB, projects []chat.Project) error {
	if projects == nil {
		projects = []chat.Project{}
	}
	return set(db, KeyProjects, projects)
}

// HasData reports whether either collection has ever been written.
// Used to decide whether to seed the sample workspace.
func HasData(db *sql.DB) (bool, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM collections WHERE key IN (?, ?)",
		KeyChats, KeyProjects).Scan(&n)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return n > 0, nil
}
