package store

import (
	"context"
	"database/sql"

	"github.com/dl-alexandre/docsync/internal/types"
)

const accountColumns = `id, display_name, server_url, email, is_active, created_at`

func (d *DB) InsertAccount(ctx context.Context, a types.Account) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, a.DisplayName, a.ServerURL, a.Email, boolToInt(a.IsActive), toUnix(a.CreatedAt))
	return err
}

func (d *DB) GetAccount(ctx context.Context, id string) (*types.Account, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// FindAccount looks an account up by its identity pair
func (d *DB) FindAccount(ctx context.Context, serverURL, email string) (*types.Account, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE server_url = ? AND email = ?
	`, serverURL, email)
	a, err := scanAccount(row)
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// ListAccounts returns accounts oldest first
func (d *DB) ListAccounts(ctx context.Context) (accounts []types.Account, err error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

// SetActiveAccount marks id as the only active account. An empty id leaves
// no account active.
func (d *DB) SetActiveAccount(ctx context.Context, id string) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE accounts SET is_active = 0 WHERE is_active != 0`); err != nil {
			return err
		}
		if id == "" {
			return nil
		}
		res, err := tx.ExecContext(ctx, `UPDATE accounts SET is_active = 1 WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// DeleteAccount removes the account together with its sync folders, their
// snapshots and pending decisions
func (d *DB) DeleteAccount(ctx context.Context, id string) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		stmts := []string{
			`DELETE FROM snapshot_entries WHERE folder_id IN (SELECT id FROM sync_folders WHERE account_id = ?)`,
			`DELETE FROM pending_decisions WHERE folder_id IN (SELECT id FROM sync_folders WHERE account_id = ?)`,
			`DELETE FROM sync_folders WHERE account_id = ?`,
			`DELETE FROM accounts WHERE id = ?`,
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func scanAccount(s scanner) (types.Account, error) {
	var a types.Account
	var active int
	var created int64
	if err := s.Scan(&a.ID, &a.DisplayName, &a.ServerURL, &a.Email, &active, &created); err != nil {
		return types.Account{}, err
	}
	a.IsActive = active != 0
	a.CreatedAt = fromUnix(created)
	return a, nil
}
