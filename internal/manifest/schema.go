// Package manifest keeps a SQLite record of cleaning runs: which source
// produced which destination, with digests, outcomes and rewritten links.
// It is only ever written during a run and read by the reporting surfaces;
// runs never consult it to skip work.
package manifest

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	source_root TEXT NOT NULL,
	dest_root   TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME,
	written     INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS files (
	run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	source   TEXT NOT NULL,
	dest     TEXT NOT NULL,
	kind     TEXT NOT NULL,
	checksum TEXT NOT NULL DEFAULT '',
	status   TEXT NOT NULL,
	error    TEXT NOT NULL DEFAULT '',
	title    TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, source)
);

CREATE TABLE IF NOT EXISTS links (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	dest   TEXT NOT NULL,
	target TEXT NOT NULL,
	UNIQUE(run_id, dest, target)
);

CREATE TABLE IF NOT EXISTS collisions (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	dest   TEXT NOT NULL,
	winner TEXT NOT NULL,
	losers TEXT NOT NULL DEFAULT '[]',
	UNIQUE(run_id, dest)
);

CREATE INDEX IF NOT EXISTS idx_files_dest ON files(run_id, dest);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// DB wraps a sql.DB with manifest operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("manifest: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("manifest: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("manifest: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
