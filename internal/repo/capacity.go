package repo

import (
	"context"
	"database/sql"

	"focusly/internal/domain"
)

const capacityColumns = `workspace_id,date,allocated,limit_minutes,updated_at`

func scanCapacity(row interface{ Scan(...any) error }) (domain.CapacityRecord, error) {
	var c domain.CapacityRecord
	err := row.Scan(&c.WorkspaceID, &c.Date, &c.Allocated, &c.Limit, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

// EnsureCapacity creates the (workspace, date) record with the given limit if it does not exist yet.
func (r Repo) EnsureCapacity(ctx context.Context, tx *sql.Tx, workspaceID, date string, limit int, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO capacity(`+capacityColumns+`) VALUES (?,?,0,?,?)`, workspaceID, date, limit, now)
	return err
}

// IncrementCapacity adds minutes only when the result stays within the limit.
// It reports whether the row was updated.
func (r Repo) IncrementCapacity(ctx context.Context, tx *sql.Tx, workspaceID, date string, minutes int, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE capacity SET allocated=allocated+?, updated_at=? WHERE workspace_id=? AND date=? AND allocated+?<=limit_minutes`,
		minutes, now, workspaceID, date, minutes)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DecrementCapacity subtracts minutes only when allocation stays non-negative.
// It reports whether the row was updated.
func (r Repo) DecrementCapacity(ctx context.Context, tx *sql.Tx, workspaceID, date string, minutes int, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE capacity SET allocated=allocated-?, updated_at=? WHERE workspace_id=? AND date=? AND allocated>=?`,
		minutes, now, workspaceID, date, minutes)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r Repo) SetAllocated(ctx context.Context, tx *sql.Tx, workspaceID, date string, allocated int, now string) error {
	_, err := tx.ExecContext(ctx, `UPDATE capacity SET allocated=?, updated_at=? WHERE workspace_id=? AND date=?`, allocated, now, workspaceID, date)
	return err
}

func (r Repo) GetCapacity(ctx context.Context, workspaceID, date string) (domain.CapacityRecord, error) {
	return getCapacity(ctx, r.DB, workspaceID, date)
}

func (r Repo) GetCapacityTx(ctx context.Context, tx *sql.Tx, workspaceID, date string) (domain.CapacityRecord, error) {
	return getCapacity(ctx, tx, workspaceID, date)
}

func getCapacity(ctx context.Context, q DBTX, workspaceID, date string) (domain.CapacityRecord, error) {
	return scanCapacity(q.QueryRowContext(ctx, `SELECT `+capacityColumns+` FROM capacity WHERE workspace_id=? AND date=?`, workspaceID, date))
}

// ListCapacity returns stored records with from <= date <= to.
func (r Repo) ListCapacity(ctx context.Context, workspaceID, from, to string) ([]domain.CapacityRecord, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+capacityColumns+` FROM capacity WHERE workspace_id=? AND date>=? AND date<=? ORDER BY date`, workspaceID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CapacityRecord
	for rows.Next() {
		c, err := scanCapacity(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
