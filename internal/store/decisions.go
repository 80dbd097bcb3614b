package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/dl-alexandre/docsync/internal/types"
)

const decisionColumns = `folder_id, relative_path, local_summary, remote_summary, decision, created_at, decided_at`

// UpsertPendingDecision records a deferred conflict. Re-deferring an
// undecided path refreshes its summaries; a recorded decision is kept.
func (d *DB) UpsertPendingDecision(ctx context.Context, p types.PendingDecision) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO pending_decisions (`+decisionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(folder_id, relative_path) DO UPDATE SET
			local_summary = excluded.local_summary,
			remote_summary = excluded.remote_summary
	`, p.FolderID, p.RelativePath, p.LocalSummary, p.RemoteSummary, string(p.Decision), toUnix(p.CreatedAt),
		nullableTime(p.DecidedAt))
	return err
}

// RecordDecision stores the caller's choice for a deferred conflict
func (d *DB) RecordDecision(ctx context.Context, folderID, relativePath string, decision types.ConflictPolicy, at time.Time) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE pending_decisions SET decision = ?, decided_at = ? WHERE folder_id = ? AND relative_path = ?
	`, string(decision), nullableTime(&at), folderID, relativePath)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *DB) GetPendingDecision(ctx context.Context, folderID, relativePath string) (*types.PendingDecision, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT `+decisionColumns+` FROM pending_decisions WHERE folder_id = ? AND relative_path = ?
	`, folderID, relativePath)
	p, err := scanDecision(row)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// ListPendingDecisions returns deferred conflicts for one folder, or for all
// folders when folderID is empty
func (d *DB) ListPendingDecisions(ctx context.Context, folderID string) (decisions []types.PendingDecision, err error) {
	query := `SELECT ` + decisionColumns + ` FROM pending_decisions`
	var args []interface{}
	if folderID != "" {
		query += ` WHERE folder_id = ?`
		args = append(args, folderID)
	}
	query += ` ORDER BY folder_id, relative_path`

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
		p, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return decisions, nil
}

func (d *DB) DeletePendingDecision(ctx context.Context, folderID, relativePath string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM pending_decisions WHERE folder_id = ? AND relative_path = ?`, folderID, relativePath)
	return err
}

func scanDecision(s scanner) (types.PendingDecision, error) {
	var p types.PendingDecision
	var decision string
	var created int64
	var decided sql.NullInt64
	if err := s.Scan(&p.FolderID, &p.RelativePath, &p.LocalSummary, &p.RemoteSummary, &decision, &created, &decided); err != nil {
		return types.PendingDecision{}, err
	}
	p.Decision = types.ConflictPolicy(decision)
	p.CreatedAt = fromUnix(created)
	p.DecidedAt = timePtr(decided)
	return p, nil
}
