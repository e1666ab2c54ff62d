// Package store persists contacts, external account links and messages in
// SQLite. It is the dedup authority for the scrapers: a message is stored
// exactly once per (from, to, service, timestamp, text) tuple, and "latest"
// ordering is row identity rather than timestamp because scraped
// timestamps only carry minute precision.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// ErrDuplicateContact is returned when a contact name is already taken.
var ErrDuplicateContact = errors.New("contact name already exists")

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open initializes the database at path, creating the schema if needed.
// Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS contacts (
		name        TEXT PRIMARY KEY,
		avatar_path TEXT NOT NULL DEFAULT '',
		is_owner    INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS links (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		service      TEXT NOT NULL,
		contact_name TEXT NOT NULL REFERENCES contacts(name) ON DELETE CASCADE,
		handle       TEXT NOT NULL,
		linked       INTEGER NOT NULL DEFAULT 0,
		UNIQUE(service, contact_name)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		from_contact TEXT NOT NULL REFERENCES contacts(name) ON DELETE CASCADE,
		to_contact   TEXT NOT NULL REFERENCES contacts(name) ON DELETE CASCADE,
		service      TEXT NOT NULL,
		text         TEXT,
		photo_path   TEXT,
		video_path   TEXT,
		timestamp    TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_pair
		ON messages(service, from_contact, to_contact);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
