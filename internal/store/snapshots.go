package store

import (
	"context"
	"database/sql"

	"github.com/dl-alexandre/docsync/internal/types"
)

const entryColumns = `folder_id, relative_path, remote_id, remote_version, checksum, is_dir, local_size, local_mtime, synced_at`

// ListEntries returns the snapshot of one folder ordered by path
func (d *DB) ListEntries(ctx context.Context, folderID string) (entries []types.SnapshotEntry, err error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM snapshot_entries WHERE folder_id = ? ORDER BY relative_path
	`, folderID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Snapshot returns the folder's snapshot keyed by relative path
func (d *DB) Snapshot(ctx context.Context, folderID string) (map[string]types.SnapshotEntry, error) {
	entries, err := d.ListEntries(ctx, folderID)
	if err != nil {
		return nil, err
	}
	snapshot := make(map[string]types.SnapshotEntry, len(entries))
	for _, e := range entries {
		snapshot[e.RelativePath] = e
	}
	return snapshot, nil
}

func (d *DB) GetEntry(ctx context.Context, folderID, relativePath string) (*types.SnapshotEntry, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+` FROM snapshot_entries WHERE folder_id = ? AND relative_path = ?
	`, folderID, relativePath)
	entry, err := scanEntry(row)
	if err != nil {
		return nil, notFound(err)
	}
	return &entry, nil
}

// UpsertEntry records one reconciled path. Passes call it once per applied
// item so the stored snapshot always matches a prefix of the plan.
func (d *DB) UpsertEntry(ctx context.Context, e types.SnapshotEntry) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO snapshot_entries (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(folder_id, relative_path) DO UPDATE SET
			remote_id = excluded.remote_id,
			remote_version = excluded.remote_version,
			checksum = excluded.checksum,
			is_dir = excluded.is_dir,
			local_size = excluded.local_size,
			local_mtime = excluded.local_mtime,
			synced_at = excluded.synced_at
	`, e.FolderID, e.RelativePath, e.RemoteID, e.RemoteVersion, e.Checksum, boolToInt(e.IsDir),
		e.LocalSize, e.LocalModTime, toUnix(e.SyncedAt))
	return err
}

func (d *DB) DeleteEntry(ctx context.Context, folderID, relativePath string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM snapshot_entries WHERE folder_id = ? AND relative_path = ?`, folderID, relativePath)
	return err
}

// ReplaceEntries swaps the whole snapshot of a folder in one transaction
func (d *DB) ReplaceEntries(ctx context.Context, folderID string, entries []types.SnapshotEntry) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot_entries WHERE folder_id = ?`, folderID); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO snapshot_entries (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx, folderID, e.RelativePath, e.RemoteID, e.RemoteVersion, e.Checksum,
				boolToInt(e.IsDir), e.LocalSize, e.LocalModTime, toUnix(e.SyncedAt)); err != nil {
				return err
			}
		}
		return nil
	})
}

func scanEntry(s scanner) (types.SnapshotEntry, error) {
	var e types.SnapshotEntry
	var isDir int
	var synced int64
	err := s.Scan(&e.FolderID, &e.RelativePath, &e.RemoteID, &e.RemoteVersion, &e.Checksum, &isDir,
		&e.LocalSize, &e.LocalModTime, &synced)
	if err != nil {
		return types.SnapshotEntry{}, err
	}
	e.IsDir = isDir != 0
	e.SyncedAt = fromUnix(synced)
	return e, nil
}
