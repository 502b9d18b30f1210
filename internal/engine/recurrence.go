package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"focusly/internal/domain"
	"focusly/internal/events"
	"focusly/internal/ledger"
)

// nextInstance copies the recurring fields of a completed task onto a fresh pending task.
func (e Engine) nextInstance(t domain.Task, dueDate string) domain.Task {
	now := e.timestamp()
	root := t.RootID()
	due := dueDate
	rec := *t.Recurrence
	return domain.Task{
		ID:                uuid.NewString(),
		WorkspaceID:       t.WorkspaceID,
		Name:              t.Name,
		Description:       t.Description,
		EstimatedDuration: t.EstimatedDuration,
		Priority:          t.Priority,
		DueDate:           &due,
		Status:            domain.StatusPending,
		Recurrence:        &rec,
		Dependencies:      append([]string(nil), t.Dependencies...),
		ParentID:          &root,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// spawnNext admits the next instance of a completed recurring task inside tx.
// A capacity rejection is recorded as a recurrence failure instead of failing the completion.
func (e Engine) spawnNext(ctx context.Context, tx *sql.Tx, t domain.Task, dueDate string) (*domain.Task, *domain.RecurrenceFailure, error) {
	next := e.nextInstance(t, dueDate)
	admitErr := e.insertTask(ctx, tx, next, events.RecurrenceGenerated)
	if admitErr == nil {
		return &next, nil, nil
	}
	if !errors.Is(admitErr, domain.ErrCapacityExceeded) {
		return nil, nil, fmt.Errorf("generate next instance: %w", admitErr)
	}
	failure := domain.RecurrenceFailure{
		ID:          uuid.NewString(),
		WorkspaceID: t.WorkspaceID,
		TaskID:      t.ID,
		RootID:      t.RootID(),
		NextDueDate: dueDate,
		Duration:    t.EstimatedDuration,
		CreatedAt:   e.timestamp(),
		TaskName:    t.Name,
		Description: t.Description,
		Priority:    t.Priority,
		Recurrence:  *t.Recurrence,
	}
	if err := e.Repo.InsertRecurrenceFailure(ctx, tx, failure); err != nil {
		return nil, nil, fmt.Errorf("record recurrence failure: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.RecurrenceAdmissionFailed, t.WorkspaceID, "task", t.ID, events.EventPayload{
		"code":       domain.CodeRecurrenceAdmissionFailed,
		"failure_id": failure.ID,
		"root_id":    failure.RootID,
		"date":       dueDate,
		"duration":   t.EstimatedDuration,
		"reason":     admitErr.Error(),
	}); err != nil {
		return nil, nil, err
	}
	return nil, &failure, nil
}

func (e Engine) ListRecurrenceFailures(ctx context.Context, workspaceID string, unresolvedOnly bool) ([]domain.RecurrenceFailure, error) {
	return e.Repo.ListRecurrenceFailures(ctx, workspaceID, unresolvedOnly)
}

// ResumeRecurrence admits the instance a recurrence failure dropped, on date or,
// when date is empty, on the first date with room from the original due date on.
func (e Engine) ResumeRecurrence(ctx context.Context, failureID, date string) (domain.Task, error) {
	failure, err := e.Repo.GetRecurrenceFailure(ctx, failureID)
	if err != nil {
		return domain.Task{}, notFound("recurrence failure", failureID, err)
	}
	if failure.ResolvedAt != nil {
		return domain.Task{}, domain.InvalidState("recurrence failure %s already resolved", failureID)
	}
	source, err := e.resumeSource(ctx, failure)
	if err != nil {
		return domain.Task{}, err
	}
	if date == "" {
		dayBefore, err := domain.AddDays(failure.NextDueDate, -1)
		if err != nil {
			return domain.Task{}, err
		}
		suggestion, err := e.FindAvailableDate(ctx, failure.WorkspaceID, failure.Duration, dayBefore, 0)
		if err != nil {
			return domain.Task{}, err
		}
		if !suggestion.Confirmed {
			return domain.Task{}, &domain.Error{
				Code:        domain.CodeCapacityExceeded,
				Message:     fmt.Sprintf("no date within %d days has %d free minutes", e.horizonDays(), failure.Duration),
				WorkspaceID: failure.WorkspaceID,
				Date:        suggestion.Date,
			}
		}
		date = suggestion.Date
	}
	if _, err := domain.ParseDate(date); err != nil {
		return domain.Task{}, domain.InvalidTask("%v", err)
	}

	unlock := e.Ledger.Lock(ledger.Key(failure.WorkspaceID, date))
	defer unlock()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	next := e.nextInstance(source, date)
	if err := e.insertTask(ctx, tx, next, events.RecurrenceResumed); err != nil {
		return domain.Task{}, err
	}
	ok, err := e.Repo.ResolveRecurrenceFailure(ctx, tx, failure.ID, next.ID, e.timestamp())
	if err != nil {
		return domain.Task{}, err
	}
	if !ok {
		return domain.Task{}, domain.InvalidState("recurrence failure %s already resolved", failureID)
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return next, nil
}

// resumeSource rebuilds the completed task from the failure snapshot. The
// dependencies still come from the live task and are dropped once it is gone.
func (e Engine) resumeSource(ctx context.Context, f domain.RecurrenceFailure) (domain.Task, error) {
	if f.Recurrence.Frequency == "" {
		return domain.Task{}, domain.InvalidState("recurrence failure %s has no recurrence", f.ID)
	}
	root := f.RootID
	rec := f.Recurrence
	source := domain.Task{
		ID:                f.TaskID,
		WorkspaceID:       f.WorkspaceID,
		Name:              f.TaskName,
		Description:       f.Description,
		EstimatedDuration: f.Duration,
		Priority:          f.Priority,
		Recurrence:        &rec,
		ParentID:          &root,
	}
	deps, err := e.Repo.ListTaskDependencies(ctx, f.TaskID)
	if err != nil {
		return domain.Task{}, err
	}
	source.Dependencies = deps
	return source, nil
}
