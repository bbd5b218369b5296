package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS announcement_state (
    chat_id TEXT PRIMARY KEY,
    next_index INTEGER NOT NULL DEFAULT 0,
    last_message_id TEXT,
    last_posted_at DATETIME
);
`

type Storage struct {
	db *sql.DB
}

// NewStorage opens (creating if needed) the sqlite database at dbPath.
// ":memory:" gives a private in-memory database.
func NewStorage(dbPath string) (*Storage, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// a single writer keeps sqlite free of "database is locked" errors, and
	// every connection to ":memory:" would otherwise be a separate database
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	storage := &Storage{db: db}

	if err := storage.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return storage, nil
}

func (s *Storage) Migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration: %w", err)
	}
	return nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) DB() *sql.DB {
	return s.db
}
