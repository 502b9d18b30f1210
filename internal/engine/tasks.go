package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"focusly/internal/domain"
	"focusly/internal/events"
	"focusly/internal/ledger"
	"focusly/internal/repo"
)

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ID                string
	WorkspaceID       string
	Name              string
	Description       string
	EstimatedDuration int
	Priority          domain.Priority
	DueDate           string
	Recurrence        *domain.Recurrence
	Dependencies      []string
}

// CompleteOptions are parameters for completing a task.
type CompleteOptions struct {
	ActualDuration *int
}

// Completion is the result of completing a task. A recurring task yields
// either Next or RecurrenceFailure.
type Completion struct {
	Task              domain.Task               `json:"task"`
	Next              *domain.Task              `json:"next,omitempty"`
	RecurrenceFailure *domain.RecurrenceFailure `json:"recurrence_failure,omitempty"`
}

func (e Engine) buildTask(opts TaskCreateOptions) (domain.Task, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.Task{}, domain.InvalidTask("name is required")
	}
	if opts.WorkspaceID == "" {
		return domain.Task{}, domain.InvalidTask("workspace is required")
	}
	if opts.EstimatedDuration <= 0 {
		return domain.Task{}, domain.InvalidTask("estimated duration must be positive, got %d", opts.EstimatedDuration)
	}
	priority := opts.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if _, err := domain.ParsePriority(string(priority)); err != nil {
		return domain.Task{}, domain.InvalidTask("%v", err)
	}
	var due *string
	if opts.DueDate != "" {
		if _, err := domain.ParseDate(opts.DueDate); err != nil {
			return domain.Task{}, domain.InvalidTask("%v", err)
		}
		d := opts.DueDate
		due = &d
	}
	var rec *domain.Recurrence
	if opts.Recurrence != nil {
		if _, err := domain.ParseFrequency(string(opts.Recurrence.Frequency)); err != nil {
			return domain.Task{}, domain.InvalidTask("%v", err)
		}
		if opts.Recurrence.Interval < 1 {
			return domain.Task{}, domain.InvalidTask("recurrence interval must be at least 1")
		}
		if due == nil {
			return domain.Task{}, domain.InvalidTask("recurring tasks need a due date")
		}
		r := *opts.Recurrence
		rec = &r
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	deps := dedupeStrings(opts.Dependencies)
	for _, dep := range deps {
		if dep == id {
			return domain.Task{}, domain.InvalidTask("task cannot depend on itself")
		}
	}
	now := e.timestamp()
	return domain.Task{
		ID:                id,
		WorkspaceID:       opts.WorkspaceID,
		Name:              name,
		Description:       strings.TrimSpace(opts.Description),
		EstimatedDuration: opts.EstimatedDuration,
		Priority:          priority,
		DueDate:           due,
		Status:            domain.StatusPending,
		Recurrence:        rec,
		Dependencies:      deps,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

func dedupeStrings(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// CreateTask admits the task's duration on its due date and stores it as pending.
// Unscheduled tasks skip admission.
func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	t, err := e.buildTask(opts)
	if err != nil {
		return domain.Task{}, err
	}
	if t.Scheduled() {
		unlock := e.Ledger.Lock(ledger.Key(t.WorkspaceID, t.Due()))
		defer unlock()
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.insertTask(ctx, tx, t, events.TaskCreated); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// insertTask is the single admission path for new tasks. The caller holds the slot lock.
func (e Engine) insertTask(ctx context.Context, tx *sql.Tx, t domain.Task, evtType string) error {
	if _, err := e.Repo.GetWorkspaceTx(ctx, tx, t.WorkspaceID); err != nil {
		return notFound("workspace", t.WorkspaceID, err)
	}
	missing, err := e.Repo.MissingTasksTx(ctx, tx, t.WorkspaceID, t.Dependencies)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return domain.InvalidTask("unknown dependencies: %s", strings.Join(missing, ", "))
	}
	if t.Scheduled() {
		if err := e.Ledger.Admit(ctx, tx, t.WorkspaceID, t.Due(), t.EstimatedDuration); err != nil {
			return err
		}
	}
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	payload := events.EventPayload{
		"name":     t.Name,
		"duration": t.EstimatedDuration,
		"priority": t.Priority,
		"due_date": t.Due(),
	}
	if t.ParentID != nil {
		payload["parent_id"] = *t.ParentID
	}
	return e.Events.Append(ctx, tx, evtType, t.WorkspaceID, "task", t.ID, payload)
}

func (e Engine) GetTask(ctx context.Context, id string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return t, notFound("task", id, err)
	}
	return t, nil
}

func (e Engine) ListTasks(ctx context.Context, f repo.TaskFilters) ([]domain.Task, error) {
	return e.Repo.ListTasks(ctx, f)
}

// lockTask reads the task and locks the slots it and extra dates touch.
func (e Engine) lockTask(ctx context.Context, id string, extraDates ...string) (domain.Task, func(), error) {
	t, err := e.GetTask(ctx, id)
	if err != nil {
		return t, nil, err
	}
	var keys []string
	if t.Scheduled() {
		keys = append(keys, ledger.Key(t.WorkspaceID, t.Due()))
	}
	for _, d := range extraDates {
		if d != "" {
			keys = append(keys, ledger.Key(t.WorkspaceID, d))
		}
	}
	return t, e.Ledger.Lock(keys...), nil
}

// pendingTx re-reads the task inside tx and checks it is still the pending
// task that was locked.
func (e Engine) pendingTx(ctx context.Context, tx *sql.Tx, locked domain.Task) (domain.Task, error) {
	t, err := e.Repo.GetTaskTx(ctx, tx, locked.ID)
	if err != nil {
		return t, notFound("task", locked.ID, err)
	}
	if t.Status != domain.StatusPending {
		return t, domain.InvalidState("task %s is %s, expected pending", t.ID, t.Status)
	}
	if t.Due() != locked.Due() {
		return t, domain.InvalidState("task %s was moved concurrently", t.ID)
	}
	return t, nil
}

// CompleteTask marks a pending task completed and records history on the day
// it is completed. The slot stays allocated. A recurring task spawns its next instance in the same transaction.
func (e Engine) CompleteTask(ctx context.Context, id string, opts CompleteOptions) (Completion, error) {
	if opts.ActualDuration != nil && *opts.ActualDuration <= 0 {
		return Completion{}, domain.InvalidTask("actual duration must be positive, got %d", *opts.ActualDuration)
	}
	pre, err := e.GetTask(ctx, id)
	if err != nil {
		return Completion{}, err
	}
	if pre.Status != domain.StatusPending {
		return Completion{}, domain.InvalidState("task %s is %s, expected pending", pre.ID, pre.Status)
	}
	nextDate := ""
	if pre.Recurrence != nil && pre.Scheduled() {
		nextDate, err = pre.Recurrence.Next(pre.Due())
		if err != nil {
			return Completion{}, err
		}
	}
	locked, unlock, err := e.lockTask(ctx, id, nextDate)
	if err != nil {
		return Completion{}, err
	}
	defer unlock()
	if locked.Due() != pre.Due() {
		return Completion{}, domain.InvalidState("task %s was moved concurrently", pre.ID)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return Completion{}, err
	}
	defer tx.Rollback()
	t, err := e.pendingTx(ctx, tx, locked)
	if err != nil {
		return Completion{}, err
	}
	now := e.timestamp()
	actual := t.EstimatedDuration
	if opts.ActualDuration != nil {
		actual = *opts.ActualDuration
	} else if t.ActualDuration != nil {
		actual = *t.ActualDuration
	}
	t.Status = domain.StatusCompleted
	t.CompletedAt = &now
	t.ActualDuration = &actual
	t.UpdatedAt = now
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return Completion{}, fmt.Errorf("update task: %w", err)
	}
	if err := e.Repo.InsertHistory(ctx, tx, domain.HistoryEntry{
		ID:                uuid.NewString(),
		WorkspaceID:       t.WorkspaceID,
		TaskID:            t.ID,
		TaskName:          t.Name,
		Date:              e.Today(),
		EstimatedDuration: t.EstimatedDuration,
		ActualDuration:    actual,
		Outcome:           domain.StatusCompleted,
		RecordedAt:        now,
	}); err != nil {
		return Completion{}, fmt.Errorf("insert history: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.TaskCompleted, t.WorkspaceID, "task", t.ID, events.EventPayload{
		"actual_duration": actual,
		"due_date":        t.Due(),
	}); err != nil {
		return Completion{}, err
	}
	res := Completion{Task: t}
	if nextDate != "" {
		next, failure, err := e.spawnNext(ctx, tx, t, nextDate)
		if err != nil {
			return Completion{}, err
		}
		res.Next = next
		res.RecurrenceFailure = failure
	}
	if err := tx.Commit(); err != nil {
		return Completion{}, err
	}
	if res.RecurrenceFailure != nil {
		e.Logger.Warn("next recurring instance not admitted",
			zap.String("workspace_id", t.WorkspaceID),
			zap.String("task_id", t.ID),
			zap.String("failure_id", res.RecurrenceFailure.ID),
			zap.String("date", nextDate),
		)
	}
	return res, nil
}

// FailTask marks a pending task failed. The slot stays allocated.
func (e Engine) FailTask(ctx context.Context, id, reason string) (domain.Task, error) {
	locked, unlock, err := e.lockTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	defer unlock()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	t, err := e.pendingTx(ctx, tx, locked)
	if err != nil {
		return domain.Task{}, err
	}
	now := e.timestamp()
	t.Status = domain.StatusFailed
	t.FailedAt = &now
	t.UpdatedAt = now
	var reasonPtr *string
	if r := strings.TrimSpace(reason); r != "" {
		reasonPtr = &r
	}
	t.FailureReason = reasonPtr
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("update task: %w", err)
	}
	actual := t.EstimatedDuration
	if t.ActualDuration != nil {
		actual = *t.ActualDuration
	}
	if err := e.Repo.InsertHistory(ctx, tx, domain.HistoryEntry{
		ID:                uuid.NewString(),
		WorkspaceID:       t.WorkspaceID,
		TaskID:            t.ID,
		TaskName:          t.Name,
		Date:              e.Today(),
		EstimatedDuration: t.EstimatedDuration,
		ActualDuration:    actual,
		Outcome:           domain.StatusFailed,
		FailureReason:     reasonPtr,
		RecordedAt:        now,
	}); err != nil {
		return domain.Task{}, fmt.Errorf("insert history: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.TaskFailed, t.WorkspaceID, "task", t.ID, events.EventPayload{
		"reason":   reason,
		"due_date": t.Due(),
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// DeleteTask releases the task's slot, whatever its status, and removes it.
// History entries are kept.
func (e Engine) DeleteTask(ctx context.Context, id string) error {
	locked, unlock, err := e.lockTask(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	t, err := e.Repo.GetTaskTx(ctx, tx, id)
	if err != nil {
		return notFound("task", id, err)
	}
	if t.Due() != locked.Due() {
		return domain.InvalidState("task %s was moved concurrently", t.ID)
	}
	if t.Scheduled() {
		if err := e.Ledger.Release(ctx, tx, t.WorkspaceID, t.Due(), t.EstimatedDuration); err != nil {
			return err
		}
	}
	if err := e.Repo.DeleteTask(ctx, tx, t.ID); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.TaskDeleted, t.WorkspaceID, "task", t.ID, events.EventPayload{
		"status":   t.Status,
		"due_date": t.Due(),
		"released": t.EstimatedDuration,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// GetBlockedTasks lists pending tasks with a dependency that is not completed.
// It does not stop anyone from completing them.
func (e Engine) GetBlockedTasks(ctx context.Context, workspaceID string) ([]domain.Task, error) {
	pending, err := e.Repo.ListTasks(ctx, repo.TaskFilters{WorkspaceID: workspaceID, Status: domain.StatusPending})
	if err != nil {
		return nil, err
	}
	completed, err := e.Repo.CompletedTaskIDs(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	res := []domain.Task{}
	for _, t := range pending {
		for _, dep := range t.Dependencies {
			if !completed[dep] {
				res = append(res, t)
				break
			}
		}
	}
	return res, nil
}

// IsCapacityExceeded reports whether err is an admission rejection.
func IsCapacityExceeded(err error) bool {
	return errors.Is(err, domain.ErrCapacityExceeded)
}
