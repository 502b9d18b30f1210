package repo

import (
	"context"
	"database/sql"
	"strings"

	"focusly/internal/domain"
)

const historyColumns = `id,workspace_id,task_id,task_name,date,estimated_duration,actual_duration,outcome,failure_reason,recorded_at`

// InsertHistory appends an execution history entry. There is no update or delete.
func (r Repo) InsertHistory(ctx context.Context, tx *sql.Tx, h domain.HistoryEntry) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO execution_history(`+historyColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		h.ID, h.WorkspaceID, h.TaskID, h.TaskName, h.Date, h.EstimatedDuration, h.ActualDuration, h.Outcome, nullableStringPtr(h.FailureReason), h.RecordedAt)
	return err
}

type HistoryFilters struct {
	WorkspaceID string
	TaskID      string
	Outcome     domain.Status
	From        string
	To          string
	Limit       int
}

func (r Repo) ListHistory(ctx context.Context, f HistoryFilters) ([]domain.HistoryEntry, error) {
	var clauses []string
	var args []any
	if f.WorkspaceID != "" {
		clauses = append(clauses, "workspace_id=?")
		args = append(args, f.WorkspaceID)
	}
	if f.TaskID != "" {
		clauses = append(clauses, "task_id=?")
		args = append(args, f.TaskID)
	}
	if f.Outcome != "" {
		clauses = append(clauses, "outcome=?")
		args = append(args, f.Outcome)
	}
	if f.From != "" {
		clauses = append(clauses, "date>=?")
		args = append(args, f.From)
	}
	if f.To != "" {
		clauses = append(clauses, "date<=?")
		args = append(args, f.To)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + historyColumns + ` FROM execution_history ` + where + ` ORDER BY date, recorded_at, rowid`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.HistoryEntry
	for rows.Next() {
		var h domain.HistoryEntry
		var reason sql.NullString
		if err := rows.Scan(&h.ID, &h.WorkspaceID, &h.TaskID, &h.TaskName, &h.Date, &h.EstimatedDuration, &h.ActualDuration, &h.Outcome, &reason, &h.RecordedAt); err != nil {
			return nil, err
		}
		h.FailureReason = stringPtr(reason)
		res = append(res, h)
	}
	return res, rows.Err()
}
