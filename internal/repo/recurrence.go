package repo

import (
	"context"
	"database/sql"

	"focusly/internal/domain"
)

const recurrenceFailureColumns = `id,workspace_id,task_id,root_id,next_due_date,duration,created_at,resolved_at,resolved_task_id,task_name,description,priority,recurrence_frequency,recurrence_interval`

func scanRecurrenceFailure(row interface{ Scan(...any) error }) (domain.RecurrenceFailure, error) {
	var f domain.RecurrenceFailure
	var resolvedAt, resolvedTask, description sql.NullString
	err := row.Scan(&f.ID, &f.WorkspaceID, &f.TaskID, &f.RootID, &f.NextDueDate, &f.Duration, &f.CreatedAt, &resolvedAt, &resolvedTask,
		&f.TaskName, &description, &f.Priority, &f.Recurrence.Frequency, &f.Recurrence.Interval)
	if err == sql.ErrNoRows {
		return f, ErrNotFound
	}
	if description.Valid {
		f.Description = description.String
	}
	f.ResolvedAt = stringPtr(resolvedAt)
	f.ResolvedTaskID = stringPtr(resolvedTask)
	return f, err
}

func (r Repo) InsertRecurrenceFailure(ctx context.Context, tx *sql.Tx, f domain.RecurrenceFailure) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO recurrence_failures(`+recurrenceFailureColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		f.ID, f.WorkspaceID, f.TaskID, f.RootID, f.NextDueDate, f.Duration, f.CreatedAt, nullableStringPtr(f.ResolvedAt), nullableStringPtr(f.ResolvedTaskID),
		f.TaskName, nullable(f.Description), f.Priority, f.Recurrence.Frequency, f.Recurrence.Interval)
	return err
}

func (r Repo) GetRecurrenceFailure(ctx context.Context, id string) (domain.RecurrenceFailure, error) {
	return scanRecurrenceFailure(r.DB.QueryRowContext(ctx, `SELECT `+recurrenceFailureColumns+` FROM recurrence_failures WHERE id=?`, id))
}

func (r Repo) GetRecurrenceFailureTx(ctx context.Context, tx *sql.Tx, id string) (domain.RecurrenceFailure, error) {
	return scanRecurrenceFailure(tx.QueryRowContext(ctx, `SELECT `+recurrenceFailureColumns+` FROM recurrence_failures WHERE id=?`, id))
}

func (r Repo) ListRecurrenceFailures(ctx context.Context, workspaceID string, unresolvedOnly bool) ([]domain.RecurrenceFailure, error) {
	query := `SELECT ` + recurrenceFailureColumns + ` FROM recurrence_failures WHERE workspace_id=?`
	if unresolvedOnly {
		query += ` AND resolved_at IS NULL`
	}
	query += ` ORDER BY created_at, rowid`
	rows, err := r.DB.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.RecurrenceFailure
	for rows.Next() {
		f, err := scanRecurrenceFailure(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

// ResolveRecurrenceFailure marks an unresolved failure as resolved by taskID.
// It returns false when the failure was already resolved.
func (r Repo) ResolveRecurrenceFailure(ctx context.Context, tx *sql.Tx, id, taskID, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE recurrence_failures SET resolved_at=?, resolved_task_id=? WHERE id=? AND resolved_at IS NULL`, now, taskID, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
