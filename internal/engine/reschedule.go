package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"focusly/internal/domain"
	"focusly/internal/events"
	"focusly/internal/repo"
)

// DateSuggestion is a forward-search result. Confirmed is false when nothing
// in the horizon had room and Date is only the day after it.
type DateSuggestion struct {
	Date      string `json:"date" format:"date"`
	Confirmed bool   `json:"confirmed"`
}

type CarryOverResult struct {
	TaskID   string                  `json:"task_id"`
	TaskName string                  `json:"task_name"`
	FromDate string                  `json:"from_date" format:"date"`
	ToDate   string                  `json:"to_date" format:"date"`
	Minutes  int                     `json:"minutes"`
	Outcome  domain.CarryOverOutcome `json:"outcome" enum:"carried_over,blocked_by_capacity"`
}

type OverloadDay struct {
	Date            string        `json:"date" format:"date"`
	Allocated       int           `json:"allocated"`
	Limit           int           `json:"limit"`
	OverloadPercent float64       `json:"overload_percent"`
	Tasks           []domain.Task `json:"tasks"`
}

type RescheduleSuggestion struct {
	TaskID        string          `json:"task_id"`
	TaskName      string          `json:"task_name"`
	Priority      domain.Priority `json:"priority"`
	Minutes       int             `json:"minutes"`
	CurrentDate   string          `json:"current_date" format:"date"`
	SuggestedDate string          `json:"suggested_date" format:"date"`
	Confirmed     bool            `json:"confirmed"`
	Reason        string          `json:"reason"`
}

// Reschedule moves a pending task to newDate. Admission on the new date, release
// of the old slot and the task update commit together or not at all.
func (e Engine) Reschedule(ctx context.Context, taskID, newDate string) (domain.Task, error) {
	return e.move(ctx, taskID, newDate, events.TaskRescheduled)
}

func (e Engine) move(ctx context.Context, taskID, newDate, evtType string) (domain.Task, error) {
	if _, err := domain.ParseDate(newDate); err != nil {
		return domain.Task{}, domain.InvalidTask("%v", err)
	}
	locked, unlock, err := e.lockTask(ctx, taskID, newDate)
	if err != nil {
		return domain.Task{}, err
	}
	defer unlock()
	if locked.Status != domain.StatusPending {
		return domain.Task{}, domain.InvalidState("task %s is %s, expected pending", locked.ID, locked.Status)
	}
	if locked.Due() == newDate {
		return locked, nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	t, err := e.pendingTx(ctx, tx, locked)
	if err != nil {
		return domain.Task{}, err
	}
	moved, err := e.moveTx(ctx, tx, t, newDate, evtType)
	if err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return moved, nil
}

func (e Engine) moveTx(ctx context.Context, tx *sql.Tx, t domain.Task, newDate, evtType string) (domain.Task, error) {
	oldDate := t.Due()
	if err := e.Ledger.Admit(ctx, tx, t.WorkspaceID, newDate, t.EstimatedDuration); err != nil {
		return domain.Task{}, err
	}
	if oldDate != "" {
		if err := e.Ledger.Release(ctx, tx, t.WorkspaceID, oldDate, t.EstimatedDuration); err != nil {
			return domain.Task{}, err
		}
	}
	due := newDate
	t.DueDate = &due
	t.RescheduleCount++
	t.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("update task: %w", err)
	}
	if err := e.Events.Append(ctx, tx, evtType, t.WorkspaceID, "task", t.ID, events.EventPayload{
		"from":             oldDate,
		"to":               newDate,
		"reschedule_count": t.RescheduleCount,
	}); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// FindAvailableDate searches forward from the day after afterDate for the first
// date with room for minutes. It never reserves anything.
func (e Engine) FindAvailableDate(ctx context.Context, workspaceID string, minutes int, afterDate string, horizonDays int) (DateSuggestion, error) {
	return e.findAvailableDate(ctx, workspaceID, minutes, afterDate, horizonDays, nil)
}

// findAvailableDate treats reserved as minutes already promised on each date.
func (e Engine) findAvailableDate(ctx context.Context, workspaceID string, minutes int, afterDate string, horizonDays int, reserved map[string]int) (DateSuggestion, error) {
	if minutes <= 0 {
		return DateSuggestion{}, domain.InvalidTask("duration must be positive, got %d", minutes)
	}
	if horizonDays <= 0 {
		horizonDays = e.horizonDays()
	}
	from, err := domain.AddDays(afterDate, 1)
	if err != nil {
		return DateSuggestion{}, domain.InvalidTask("%v", err)
	}
	to, err := domain.AddDays(afterDate, horizonDays)
	if err != nil {
		return DateSuggestion{}, err
	}
	records, err := e.Ledger.ListRange(ctx, workspaceID, from, to)
	if err != nil {
		return DateSuggestion{}, err
	}
	for _, rec := range records {
		if rec.Allocated+reserved[rec.Date]+minutes <= rec.Limit {
			return DateSuggestion{Date: rec.Date, Confirmed: true}, nil
		}
	}
	fallback, err := domain.AddDays(afterDate, horizonDays+1)
	if err != nil {
		return DateSuggestion{}, err
	}
	return DateSuggestion{Date: fallback}, nil
}

// ProcessCarryOver moves every pending task due before today onto today, in due
// date then creation order. Tasks that do not fit are reported as blocked and left in place.
func (e Engine) ProcessCarryOver(ctx context.Context, workspaceID, today string) ([]CarryOverResult, error) {
	if _, err := domain.ParseDate(today); err != nil {
		return nil, domain.InvalidTask("%v", err)
	}
	overdue, err := e.Repo.ListTasks(ctx, repo.TaskFilters{WorkspaceID: workspaceID, Status: domain.StatusPending, DueBefore: today})
	if err != nil {
		return nil, err
	}
	res := []CarryOverResult{}
	carried := 0
	for _, t := range overdue {
		r := CarryOverResult{TaskID: t.ID, TaskName: t.Name, FromDate: t.Due(), ToDate: today, Minutes: t.EstimatedDuration}
		_, err := e.move(ctx, t.ID, today, events.TaskCarriedOver)
		switch {
		case err == nil:
			r.Outcome = domain.CarriedOver
			carried++
		case errors.Is(err, domain.ErrCapacityExceeded):
			r.Outcome = domain.BlockedByCapacity
			r.ToDate = t.Due()
		default:
			return res, fmt.Errorf("carry over %s: %w", t.ID, err)
		}
		res = append(res, r)
	}
	if len(res) > 0 {
		e.Logger.Info("carry-over processed",
			zap.String("workspace_id", workspaceID),
			zap.String("today", today),
			zap.Int("carried", carried),
			zap.Int("blocked", len(res)-carried),
		)
	}
	return res, nil
}

// DetectOverload lists days in [from, to] whose allocation exceeds the overload
// threshold, with the pending tasks due on them.
func (e Engine) DetectOverload(ctx context.Context, workspaceID, from, to string) ([]OverloadDay, error) {
	records, err := e.Ledger.ListRange(ctx, workspaceID, from, to)
	if err != nil {
		return nil, err
	}
	threshold := e.overloadThreshold()
	res := []OverloadDay{}
	for _, rec := range records {
		if float64(rec.Allocated) <= float64(rec.Limit)*threshold {
			continue
		}
		tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{WorkspaceID: workspaceID, Status: domain.StatusPending, DueOn: rec.Date})
		if err != nil {
			return nil, err
		}
		res = append(res, OverloadDay{
			Date:            rec.Date,
			Allocated:       rec.Allocated,
			Limit:           rec.Limit,
			OverloadPercent: math.Round(float64(rec.Allocated)*1000/float64(rec.Limit)) / 10,
			Tasks:           tasks,
		})
	}
	return res, nil
}

// RebalanceSchedule proposes new dates for the lowest-priority pending tasks of
// each overloaded day until its allocation would fit the limit. Nothing is committed.
func (e Engine) RebalanceSchedule(ctx context.Context, workspaceID string, days []OverloadDay) ([]RescheduleSuggestion, error) {
	reserved := map[string]int{}
	res := []RescheduleSuggestion{}
	for _, day := range days {
		tasks := day.Tasks
		if tasks == nil {
			var err error
			tasks, err = e.Repo.ListTasks(ctx, repo.TaskFilters{WorkspaceID: workspaceID, Status: domain.StatusPending, DueOn: day.Date})
			if err != nil {
				return nil, err
			}
		}
		candidates := make([]domain.Task, 0, len(tasks))
		for _, t := range tasks {
			if t.Status == domain.StatusPending {
				candidates = append(candidates, t)
			}
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Priority.Rank() < candidates[j].Priority.Rank()
		})
		freed := 0
		for _, t := range candidates {
			suggestion, err := e.findAvailableDate(ctx, workspaceID, t.EstimatedDuration, day.Date, 0, reserved)
			if err != nil {
				return nil, err
			}
			if suggestion.Confirmed {
				reserved[suggestion.Date] += t.EstimatedDuration
			}
			res = append(res, RescheduleSuggestion{
				TaskID:        t.ID,
				TaskName:      t.Name,
				Priority:      t.Priority,
				Minutes:       t.EstimatedDuration,
				CurrentDate:   day.Date,
				SuggestedDate: suggestion.Date,
				Confirmed:     suggestion.Confirmed,
				Reason:        "Overload mitigation",
			})
			freed += t.EstimatedDuration
			if day.Allocated-freed <= day.Limit {
				break
			}
		}
	}
	return res, nil
}

// ApplySuggestions reschedules every confirmed suggestion and returns the moved tasks.
// A suggestion that no longer fits is skipped and reported in skipped.
func (e Engine) ApplySuggestions(ctx context.Context, suggestions []RescheduleSuggestion) (moved []domain.Task, skipped []RescheduleSuggestion, err error) {
	for _, s := range suggestions {
		if !s.Confirmed {
			skipped = append(skipped, s)
			continue
		}
		t, err := e.Reschedule(ctx, s.TaskID, s.SuggestedDate)
		if err != nil {
			if errors.Is(err, domain.ErrCapacityExceeded) || errors.Is(err, domain.ErrInvalidState) {
				skipped = append(skipped, s)
				continue
			}
			return moved, skipped, err
		}
		moved = append(moved, t)
	}
	return moved, skipped, nil
}
