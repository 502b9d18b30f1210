package server

import (
	"focusly/internal/domain"
	"focusly/internal/engine"
)

// Request payloads

type CreateWorkspaceRequest struct {
	ID             string `json:"id,omitempty"`
	Name           string `json:"name"`
	Role           string `json:"role,omitempty" enum:"student,professional,business,general"`
	DailyTimeLimit int    `json:"daily_time_limit,omitempty" minimum:"60" maximum:"960"`
}

type SetLimitRequest struct {
	DailyTimeLimit int `json:"daily_time_limit" minimum:"60" maximum:"960"`
}

type RecurrenceRequest struct {
	Frequency string `json:"frequency" enum:"daily,weekly,monthly"`
	Interval  int    `json:"interval,omitempty" minimum:"1"`
}

type CreateTaskRequest struct {
	ID                string             `json:"id,omitempty"`
	Name              string             `json:"name"`
	Description       string             `json:"description,omitempty"`
	EstimatedDuration int                `json:"estimated_duration" minimum:"1"`
	Priority          string             `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	DueDate           string             `json:"due_date,omitempty" format:"date"`
	Recurrence        *RecurrenceRequest `json:"recurrence,omitempty"`
	Dependencies      []string           `json:"dependencies,omitempty"`
}

type CompleteTaskRequest struct {
	ActualDuration *int `json:"actual_duration,omitempty" minimum:"1"`
}

type FailTaskRequest struct {
	Reason string `json:"reason,omitempty"`
}

type RescheduleRequest struct {
	DueDate string `json:"due_date" format:"date"`
}

type CarryOverRequest struct {
	Today string `json:"today,omitempty" format:"date"`
}

type RebalanceRequest struct {
	From  string `json:"from,omitempty" format:"date"`
	To    string `json:"to,omitempty" format:"date"`
	Apply bool   `json:"apply,omitempty"`
}

type EstimateRequest struct {
	Text string `json:"text"`
}

type ConvertNoteRequest struct {
	Text     string `json:"text"`
	Today    string `json:"today,omitempty" format:"date"`
	Create   bool   `json:"create,omitempty"`
	FindSlot bool   `json:"find_slot,omitempty"`
}

type ResumeRecurrenceRequest struct {
	Date string `json:"date,omitempty" format:"date"`
}

// Response payloads

type paginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type tasksResponse struct {
	Items []domain.Task `json:"items"`
}

type RebalanceResponse struct {
	Overloaded  []engine.OverloadDay          `json:"overloaded"`
	Suggestions []engine.RescheduleSuggestion `json:"suggestions"`
	Applied     bool                          `json:"applied"`
	Moved       []domain.Task                 `json:"moved,omitempty"`
	Skipped     []engine.RescheduleSuggestion `json:"skipped,omitempty"`
}

func (r CreateTaskRequest) options(workspaceID string) engine.TaskCreateOptions {
	opts := engine.TaskCreateOptions{
		ID:                r.ID,
		WorkspaceID:       workspaceID,
		Name:              r.Name,
		Description:       r.Description,
		EstimatedDuration: r.EstimatedDuration,
		Priority:          domain.Priority(r.Priority),
		DueDate:           r.DueDate,
		Dependencies:      r.Dependencies,
	}
	if r.Recurrence != nil {
		interval := r.Recurrence.Interval
		if interval == 0 {
			interval = 1
		}
		opts.Recurrence = &domain.Recurrence{Frequency: domain.Frequency(r.Recurrence.Frequency), Interval: interval}
	}
	return opts
}

func emptyTasks(items []domain.Task) []domain.Task {
	if items == nil {
		return []domain.Task{}
	}
	return items
}
