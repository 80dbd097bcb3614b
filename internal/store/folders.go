package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/dl-alexandre/docsync/internal/types"
)

const folderColumns = `id, account_id, remote_folder_id, remote_folder_path, local_path, status, direction,
	conflict_policy, last_sync_at, last_error, is_enabled, created_at`

func (d *DB) InsertFolder(ctx context.Context, f types.SyncFolder) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO sync_folders (`+folderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.AccountID, f.RemoteFolderID, f.RemoteFolderPath, f.LocalPath, string(f.Status), string(f.SyncDirection),
		string(f.ConflictResolution), nullableTime(f.LastSyncAt), f.LastError, boolToInt(f.IsEnabled), toUnix(f.CreatedAt))
	return err
}

// UpdateFolder overwrites every mutable column of the folder record
func (d *DB) UpdateFolder(ctx context.Context, f types.SyncFolder) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE sync_folders SET
			remote_folder_path = ?, local_path = ?, status = ?, direction = ?, conflict_policy = ?,
			last_sync_at = ?, last_error = ?, is_enabled = ?
		WHERE id = ?
	`, f.RemoteFolderPath, f.LocalPath, string(f.Status), string(f.SyncDirection), string(f.ConflictResolution),
		nullableTime(f.LastSyncAt), f.LastError, boolToInt(f.IsEnabled), f.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateFolderStatus records a state-machine transition and its outcome
func (d *DB) UpdateFolderStatus(ctx context.Context, id string, status types.SyncStatus, lastError string, lastSyncAt *time.Time) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE sync_folders SET status = ?, last_error = ?, last_sync_at = COALESCE(?, last_sync_at) WHERE id = ?
	`, string(status), lastError, nullableTime(lastSyncAt), id)
	return err
}

func (d *DB) GetFolder(ctx context.Context, id string) (*types.SyncFolder, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+folderColumns+` FROM sync_folders WHERE id = ?`, id)
	f, err := scanFolder(row)
	if err != nil {
		return nil, notFound(err)
	}
	return &f, nil
}

// ListFolders returns all folders oldest first
func (d *DB) ListFolders(ctx context.Context) ([]types.SyncFolder, error) {
	return d.queryFolders(ctx, `SELECT `+folderColumns+` FROM sync_folders ORDER BY created_at, id`)
}

// ListFoldersByAccount returns the folders owned by one account
func (d *DB) ListFoldersByAccount(ctx context.Context, accountID string) ([]types.SyncFolder, error) {
	return d.queryFolders(ctx, `SELECT `+folderColumns+` FROM sync_folders WHERE account_id = ? ORDER BY created_at, id`, accountID)
}

func (d *DB) queryFolders(ctx context.Context, query string, args ...interface{}) (folders []types.SyncFolder, err error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return folders, nil
}

// DeleteFolder removes the folder record with its snapshot and pending decisions
func (d *DB) DeleteFolder(ctx context.Context, id string) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		stmts := []string{
			`DELETE FROM snapshot_entries WHERE folder_id = ?`,
			`DELETE FROM pending_decisions WHERE folder_id = ?`,
			`DELETE FROM sync_folders WHERE id = ?`,
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func scanFolder(s scanner) (types.SyncFolder, error) {
	var f types.SyncFolder
	var status, direction, policy string
	var lastSync sql.NullInt64
	var enabled int
	var created int64
	err := s.Scan(&f.ID, &f.AccountID, &f.RemoteFolderID, &f.RemoteFolderPath, &f.LocalPath, &status, &direction,
		&policy, &lastSync, &f.LastError, &enabled, &created)
	if err != nil {
		return types.SyncFolder{}, err
	}
	f.Status = types.SyncStatus(status)
	f.SyncDirection = types.SyncDirection(direction)
	f.ConflictResolution = types.ConflictPolicy(policy)
	f.LastSyncAt = timePtr(lastSync)
	f.IsEnabled = enabled != 0
	f.CreatedAt = fromUnix(created)
	return f, nil
}
