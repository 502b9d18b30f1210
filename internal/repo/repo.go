package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"focusly/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

// ErrNotFound is returned by single-row lookups; it matches domain.ErrNotFound.
var ErrNotFound = domain.ErrNotFound

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

const workspaceColumns = `id,name,role,daily_time_limit,created_at,updated_at`

func scanWorkspace(row interface{ Scan(...any) error }) (domain.Workspace, error) {
	var w domain.Workspace
	err := row.Scan(&w.ID, &w.Name, &w.Role, &w.DailyTimeLimit, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	return w, err
}

func (r Repo) InsertWorkspace(ctx context.Context, tx *sql.Tx, w domain.Workspace) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO workspaces(`+workspaceColumns+`) VALUES (?,?,?,?,?,?)`,
		w.ID, w.Name, w.Role, w.DailyTimeLimit, w.CreatedAt, w.UpdatedAt)
	return err
}

func (r Repo) GetWorkspace(ctx context.Context, id string) (domain.Workspace, error) {
	return getWorkspace(ctx, r.DB, id)
}

func (r Repo) GetWorkspaceTx(ctx context.Context, tx *sql.Tx, id string) (domain.Workspace, error) {
	return getWorkspace(ctx, tx, id)
}

func getWorkspace(ctx context.Context, q DBTX, id string) (domain.Workspace, error) {
	return scanWorkspace(q.QueryRowContext(ctx, `SELECT `+workspaceColumns+` FROM workspaces WHERE id=?`, id))
}

func (r Repo) ListWorkspaces(ctx context.Context) ([]domain.Workspace, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+workspaceColumns+` FROM workspaces ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Workspace
	for rows.Next() {
		w, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

// SingleWorkspace returns the only workspace, ErrNotFound when there is none.
func (r Repo) SingleWorkspace(ctx context.Context) (domain.Workspace, error) {
	ws, err := r.ListWorkspaces(ctx)
	if err != nil {
		return domain.Workspace{}, err
	}
	if len(ws) == 0 {
		return domain.Workspace{}, ErrNotFound
	}
	if len(ws) > 1 {
		return domain.Workspace{}, fmt.Errorf("multiple workspaces exist; pick one with --ws or FOCUSLY_WS")
	}
	return ws[0], nil
}

func (r Repo) UpdateWorkspaceLimit(ctx context.Context, tx *sql.Tx, id string, limit int, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE workspaces SET daily_time_limit=?, updated_at=? WHERE id=?`, limit, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type EventFilters struct {
	WorkspaceID string
	Type        string
	EntityKind  string
	EntityID    string
	Cursor      int64
	Limit       int
}

// LatestEvents returns events newest first; Cursor excludes ids at or above it.
func (r Repo) LatestEvents(ctx context.Context, f EventFilters) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.WorkspaceID != "" {
		clauses = append(clauses, "workspace_id=?")
		args = append(args, f.WorkspaceID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.Cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Cursor)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(workspace_id,''),entity_kind,COALESCE(entity_id,''),payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.WorkspaceID, &e.EntityKind, &e.EntityID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
