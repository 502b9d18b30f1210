package repo

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"focusly/internal/domain"
)

const taskColumns = `id,workspace_id,name,description,estimated_duration,priority,due_date,status,recurrence_frequency,recurrence_interval,reschedule_count,parent_id,failure_reason,actual_duration,created_at,updated_at,completed_at,failed_at`

func scanTask(row interface{ Scan(...any) error }) (domain.Task, error) {
	var t domain.Task
	var description, dueDate, frequency, parentID, failureReason, completedAt, failedAt sql.NullString
	var interval, actual sql.NullInt64
	err := row.Scan(&t.ID, &t.WorkspaceID, &t.Name, &description, &t.EstimatedDuration, &t.Priority, &dueDate, &t.Status,
		&frequency, &interval, &t.RescheduleCount, &parentID, &failureReason, &actual, &t.CreatedAt, &t.UpdatedAt, &completedAt, &failedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if description.Valid {
		t.Description = description.String
	}
	if frequency.Valid {
		t.Recurrence = &domain.Recurrence{Frequency: domain.Frequency(frequency.String), Interval: int(interval.Int64)}
	}
	t.DueDate = stringPtr(dueDate)
	t.ParentID = stringPtr(parentID)
	t.FailureReason = stringPtr(failureReason)
	t.ActualDuration = intPtr(actual)
	t.CompletedAt = stringPtr(completedAt)
	t.FailedAt = stringPtr(failedAt)
	return t, nil
}

func recurrenceArgs(rec *domain.Recurrence) (any, any) {
	if rec == nil {
		return nil, nil
	}
	return string(rec.Frequency), rec.Interval
}

// InsertTask writes the task row and its dependency edges.
func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	freq, interval := recurrenceArgs(t.Recurrence)
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.WorkspaceID, t.Name, nullable(t.Description), t.EstimatedDuration, t.Priority, nullableStringPtr(t.DueDate), t.Status,
		freq, interval, t.RescheduleCount, nullableStringPtr(t.ParentID), nullableStringPtr(t.FailureReason), nullableIntPtr(t.ActualDuration),
		t.CreatedAt, t.UpdatedAt, nullableStringPtr(t.CompletedAt), nullableStringPtr(t.FailedAt))
	if err != nil {
		return err
	}
	return r.AddDependencies(ctx, tx, t.ID, t.Dependencies)
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	freq, interval := recurrenceArgs(t.Recurrence)
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET name=?, description=?, estimated_duration=?, priority=?, due_date=?, status=?, recurrence_frequency=?, recurrence_interval=?, reschedule_count=?, parent_id=?, failure_reason=?, actual_duration=?, updated_at=?, completed_at=?, failed_at=? WHERE id=?`,
		t.Name, nullable(t.Description), t.EstimatedDuration, t.Priority, nullableStringPtr(t.DueDate), t.Status, freq, interval,
		t.RescheduleCount, nullableStringPtr(t.ParentID), nullableStringPtr(t.FailureReason), nullableIntPtr(t.ActualDuration),
		t.UpdatedAt, nullableStringPtr(t.CompletedAt), nullableStringPtr(t.FailedAt), t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTask removes the task and every dependency edge touching it.
func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_deps WHERE task_id=? OR depends_on_task_id=?`, id, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return getTask(ctx, r.DB, id)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return getTask(ctx, tx, id)
}

func getTask(ctx context.Context, q DBTX, id string) (domain.Task, error) {
	t, err := scanTask(q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
	if err != nil {
		return t, err
	}
	deps, err := listTaskDependencies(ctx, q, t.ID)
	if err != nil {
		return t, err
	}
	t.Dependencies = deps
	return t, nil
}

type TaskFilters struct {
	WorkspaceID string
	Status      domain.Status
	// DueOn, DueBefore (exclusive), DueFrom and DueTo (inclusive) filter on due_date.
	DueOn     string
	DueBefore string
	DueFrom   string
	DueTo     string
	ParentID  string
	Limit     int
}

// ListTasks orders scheduled tasks by due date then creation order; unscheduled tasks come last.
func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	return listTasks(ctx, r.DB, f)
}

func (r Repo) ListTasksTx(ctx context.Context, tx *sql.Tx, f TaskFilters) ([]domain.Task, error) {
	return listTasks(ctx, tx, f)
}

func listTasks(ctx context.Context, q DBTX, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.WorkspaceID != "" {
		clauses = append(clauses, "workspace_id=?")
		args = append(args, f.WorkspaceID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.DueOn != "" {
		clauses = append(clauses, "due_date=?")
		args = append(args, f.DueOn)
	}
	if f.DueBefore != "" {
		clauses = append(clauses, "due_date<?")
		args = append(args, f.DueBefore)
	}
	if f.DueFrom != "" {
		clauses = append(clauses, "due_date>=?")
		args = append(args, f.DueFrom)
	}
	if f.DueTo != "" {
		clauses = append(clauses, "due_date<=?")
		args = append(args, f.DueTo)
	}
	if f.ParentID != "" {
		clauses = append(clauses, "(parent_id=? OR id=?)")
		args = append(args, f.ParentID, f.ParentID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY due_date IS NULL, due_date, created_at, rowid`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return res, nil
	}
	deps, err := dependenciesByTask(ctx, q, f.WorkspaceID)
	if err != nil {
		return nil, err
	}
	for i := range res {
		res[i].Dependencies = deps[res[i].ID]
	}
	return res, nil
}

// CompletedTaskIDs returns the ids of completed tasks in a workspace.
func (r Repo) CompletedTaskIDs(ctx context.Context, workspaceID string) (map[string]bool, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM tasks WHERE workspace_id=? AND status=?`, workspaceID, domain.StatusCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res[id] = true
	}
	return res, rows.Err()
}

// MissingTasksTx returns the ids in ids that do not exist in the workspace.
func (r Repo) MissingTasksTx(ctx context.Context, tx *sql.Tx, workspaceID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := []any{workspaceID}
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := tx.QueryContext(ctx, `SELECT id FROM tasks WHERE workspace_id=? AND id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	found := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var missing []string
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (r Repo) ListTaskDependencies(ctx context.Context, taskID string) ([]string, error) {
	return listTaskDependencies(ctx, r.DB, taskID)
}

func listTaskDependencies(ctx context.Context, q DBTX, taskID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT depends_on_task_id FROM task_deps WHERE task_id=? ORDER BY depends_on_task_id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}

func dependenciesByTask(ctx context.Context, q DBTX, workspaceID string) (map[string][]string, error) {
	query := `SELECT d.task_id, d.depends_on_task_id FROM task_deps d JOIN tasks t ON t.id=d.task_id`
	var args []any
	if workspaceID != "" {
		query += ` WHERE t.workspace_id=?`
		args = append(args, workspaceID)
	}
	query += ` ORDER BY d.task_id, d.depends_on_task_id`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string][]string{}
	for rows.Next() {
		var taskID, dep string
		if err := rows.Scan(&taskID, &dep); err != nil {
			return nil, err
		}
		res[taskID] = append(res[taskID], dep)
	}
	return res, rows.Err()
}

func (r Repo) AddDependencies(ctx context.Context, tx *sql.Tx, taskID string, deps []string) error {
	sorted := append([]string(nil), deps...)
	sort.Strings(sorted)
	for _, dep := range sorted {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO task_deps(task_id, depends_on_task_id) VALUES (?,?)`, taskID, dep); err != nil {
			return err
		}
	}
	return nil
}
