package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// DB persists accounts, sync folders, snapshots and pending decisions
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and migrates it
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	instance := &DB{db: db}
	if err := instance.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return instance, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) Migrate(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, schemaSQL)
	return err
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	server_url TEXT NOT NULL,
	email TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	UNIQUE (server_url, email)
);

CREATE TABLE IF NOT EXISTS sync_folders (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	remote_folder_id TEXT NOT NULL,
	remote_folder_path TEXT NOT NULL,
	local_path TEXT NOT NULL UNIQUE,
	status TEXT NOT NULL,
	direction TEXT NOT NULL,
	conflict_policy TEXT NOT NULL,
	last_sync_at INTEGER,
	last_error TEXT NOT NULL DEFAULT '',
	is_enabled INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	UNIQUE (account_id, remote_folder_id),
	FOREIGN KEY (account_id) REFERENCES accounts(id)
);

CREATE TABLE IF NOT EXISTS snapshot_entries (
	folder_id TEXT NOT NULL,
	relative_path TEXT NOT NULL,
	remote_id TEXT NOT NULL DEFAULT '',
	remote_version TEXT NOT NULL DEFAULT '',
	checksum TEXT NOT NULL DEFAULT '',
	is_dir INTEGER NOT NULL DEFAULT 0,
	local_size INTEGER NOT NULL DEFAULT 0,
	local_mtime INTEGER NOT NULL DEFAULT 0,
	synced_at INTEGER NOT NULL,
	PRIMARY KEY (folder_id, relative_path),
	FOREIGN KEY (folder_id) REFERENCES sync_folders(id)
);

CREATE TABLE IF NOT EXISTS pending_decisions (
	folder_id TEXT NOT NULL,
	relative_path TEXT NOT NULL,
	local_summary TEXT NOT NULL DEFAULT '',
	remote_summary TEXT NOT NULL DEFAULT '',
	decision TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	decided_at INTEGER,
	PRIMARY KEY (folder_id, relative_path),
	FOREIGN KEY (folder_id) REFERENCES sync_folders(id)
);

CREATE INDEX IF NOT EXISTS idx_sync_folders_account ON sync_folders(account_id);
CREATE INDEX IF NOT EXISTS idx_snapshot_remote_id ON snapshot_entries(folder_id, remote_id);
`

type scanner interface {
	Scan(dest ...interface{}) error
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v).UTC()
}

func nullableTime(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// withTx runs fn in a transaction, rolling back when fn fails
func (d *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
