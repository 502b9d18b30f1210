package engine

import (
	"context"

	"focusly/internal/domain"
	"focusly/internal/insight"
	"focusly/internal/repo"
)

// DailyFocus is the prioritized plan for one day.
type DailyFocus struct {
	Date string `json:"date" format:"date"`
	insight.Plan
}

// SuggestDailyFocus ranks pending tasks due on or before today against the
// minutes today's budget has not already spent.
func (e Engine) SuggestDailyFocus(ctx context.Context, workspaceID, today string) (DailyFocus, error) {
	if _, err := domain.ParseDate(today); err != nil {
		return DailyFocus{}, domain.InvalidTask("%v", err)
	}
	rec, err := e.Ledger.Get(ctx, workspaceID, today)
	if err != nil {
		return DailyFocus{}, err
	}
	candidates, err := e.Repo.ListTasks(ctx, repo.TaskFilters{WorkspaceID: workspaceID, Status: domain.StatusPending, DueTo: today})
	if err != nil {
		return DailyFocus{}, err
	}
	pendingToday := 0
	for _, t := range candidates {
		if t.Due() == today {
			pendingToday += t.EstimatedDuration
		}
	}
	spent := rec.Allocated - pendingToday
	if spent < 0 {
		spent = 0
	}
	available := rec.Limit - spent
	if available < 0 {
		available = 0
	}
	return DailyFocus{Date: today, Plan: insight.Prioritize(candidates, available, today)}, nil
}

func (e Engine) Diagnose(ctx context.Context, workspaceID, today string) ([]insight.Diagnosis, error) {
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{WorkspaceID: workspaceID})
	if err != nil {
		return nil, err
	}
	return insight.DiagnoseMissed(tasks, today), nil
}

type WeeklyReport struct {
	Stats    insight.WeeklyStats `json:"stats"`
	Insights []insight.Insight   `json:"insights"`
	Patterns []insight.Pattern   `json:"patterns"`
}

// WeeklyReport summarizes the seven days ending today.
func (e Engine) WeeklyReport(ctx context.Context, workspaceID, today string) (WeeklyReport, error) {
	if _, err := domain.ParseDate(today); err != nil {
		return WeeklyReport{}, domain.InvalidTask("%v", err)
	}
	history, err := e.Repo.ListHistory(ctx, repo.HistoryFilters{WorkspaceID: workspaceID, To: today, Outcome: domain.StatusCompleted})
	if err != nil {
		return WeeklyReport{}, err
	}
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{WorkspaceID: workspaceID})
	if err != nil {
		return WeeklyReport{}, err
	}
	stats := insight.ComputeWeeklyStats(history, tasks, today)
	return WeeklyReport{
		Stats:    stats,
		Insights: insight.WeeklyInsights(stats),
		Patterns: insight.DetectPatterns(tasks, stats),
	}, nil
}

// Estimate classifies text using the workspace role.
func (e Engine) Estimate(ctx context.Context, workspaceID, text string) (insight.Estimate, error) {
	w, err := e.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return insight.Estimate{}, err
	}
	return insight.EstimateFromContent(text, w.Role), nil
}

// ConvertNoteOptions control how a note becomes a task.
type ConvertNoteOptions struct {
	WorkspaceID string
	Text        string
	Today       string
	// Create stores the task; otherwise only the proposal is returned.
	Create bool
	// FindSlot moves the suggested date forward when it has no room.
	FindSlot bool
}

type NoteResult struct {
	Conversion insight.NoteConversion `json:"conversion"`
	Task       *domain.Task           `json:"task,omitempty"`
}

func (e Engine) ConvertNote(ctx context.Context, opts ConvertNoteOptions) (NoteResult, error) {
	w, err := e.GetWorkspace(ctx, opts.WorkspaceID)
	if err != nil {
		return NoteResult{}, err
	}
	today := opts.Today
	if today == "" {
		today = e.Today()
	}
	conv := insight.ConvertNote(opts.Text, w.Role, today)
	if conv.Name == "" {
		return NoteResult{}, domain.InvalidTask("note is empty")
	}
	if opts.FindSlot {
		ok, err := e.Ledger.CanAdmit(ctx, w.ID, conv.SuggestedDate, conv.EstimatedDuration)
		if err != nil {
			return NoteResult{}, err
		}
		if !ok {
			suggestion, err := e.FindAvailableDate(ctx, w.ID, conv.EstimatedDuration, conv.SuggestedDate, 0)
			if err != nil {
				return NoteResult{}, err
			}
			if suggestion.Confirmed {
				conv.SuggestedDate = suggestion.Date
			}
		}
	}
	res := NoteResult{Conversion: conv}
	if !opts.Create {
		return res, nil
	}
	t, err := e.CreateTask(ctx, TaskCreateOptions{
		WorkspaceID:       w.ID,
		Name:              conv.Name,
		Description:       conv.Description,
		EstimatedDuration: conv.EstimatedDuration,
		Priority:          conv.Priority,
		DueDate:           conv.SuggestedDate,
	})
	if err != nil {
		return res, err
	}
	res.Task = &t
	return res, nil
}
