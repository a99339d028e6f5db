// Package store provides SQLite-backed persistence for books and reading progress.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS books (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	filename      TEXT     NOT NULL UNIQUE,
	title         TEXT     NOT NULL,
	author        TEXT     NOT NULL,
	chapter_count INTEGER  NOT NULL CHECK (chapter_count >= 0),
	hidden        BOOLEAN  NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chapters (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	book_id INTEGER NOT NULL REFERENCES books(id) ON DELETE CASCADE,
	idx     INTEGER NOT NULL CHECK (idx >= 0),
	title   TEXT    NOT NULL,
	content TEXT    NOT NULL,
	UNIQUE(book_id, idx)
);

CREATE TABLE IF NOT EXISTS book_tags (
	book_id INTEGER NOT NULL REFERENCES books(id) ON DELETE CASCADE,
	tag     TEXT    NOT NULL,
	UNIQUE(book_id, tag)
);

CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT     NOT NULL UNIQUE,
	password_hash TEXT     NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS book_progress (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id         INTEGER  NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	book_id         INTEGER  NOT NULL REFERENCES books(id) ON DELETE CASCADE,
	chapter_index   INTEGER  NOT NULL CHECK (chapter_index >= 0),
	paragraph_index INTEGER  NOT NULL DEFAULT 0 CHECK (paragraph_index >= 0),
	updated_at      DATETIME NOT NULL,
	UNIQUE(user_id, book_id)
);

CREATE INDEX IF NOT EXISTS idx_book_tags_tag ON book_tags(tag);
CREATE INDEX IF NOT EXISTS idx_book_progress_user ON book_progress(user_id);
`

// dsnParams are appended to every database path. _txlock=immediate makes
// BeginTx take the write lock up front.
const dsnParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"

// DB wraps a sql.DB with catalog and progress operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the schema.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Ping reports whether the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
