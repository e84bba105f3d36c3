package storage

import (
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"cafenote/pkg/logger"
)

// ErrNotFound is returned when a source or template does not exist
var ErrNotFound = stderrors.New("not found")

// DB is the durable store behind the ledger, sources and templates
type DB struct {
	conn *sql.DB
	log  logger.Logger
	now  func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS ledger (
	member_key TEXT PRIMARY KEY,
	nickname   TEXT NOT NULL DEFAULT '',
	source_ref TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_source ON ledger(source_ref);

CREATE TABLE IF NOT EXISTS sources (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	cafe_id     TEXT NOT NULL,
	category_id TEXT NOT NULL,
	name        TEXT NOT NULL,
	url         TEXT NOT NULL DEFAULT '',
	active      INTEGER NOT NULL DEFAULT 1,
	created_at  INTEGER NOT NULL,
	UNIQUE (cafe_id, category_id)
);

CREATE TABLE IF NOT EXISTS templates (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	body       TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
`

// Open opens or creates the database at path. ":memory:" works for tests.
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one writer at a time; the unique constraints do the rest
	conn.SetMaxOpenConns(1)

	db := &DB{
		conn: conn,
		log:  logger.GetLogger().WithField("component", "storage"),
		now:  time.Now,
	}
	if err := db.init(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	db.log.DebugWithFields("Database opened", map[string]interface{}{"path": path})
	return db, nil
}

func (db *DB) init() error {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.conn.Exec(pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
