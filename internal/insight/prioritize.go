// Package insight scores and diagnoses tasks. Nothing here touches storage.
package insight

import (
	"sort"

	"focusly/internal/domain"
)

const (
	SuggestionBreakDown = "No tasks fit in available time. Consider breaking down large tasks."
	SuggestionLight     = "Light schedule today. Good opportunity for proactive planning."
	SuggestionPacked    = "Schedule is packed. Stay focused on these priorities."
)

type ScoredTask struct {
	Task  domain.Task `json:"task"`
	Score int         `json:"score"`
}

// Plan is the result of fitting scored tasks into a time budget.
type Plan struct {
	Selected         []domain.Task `json:"selected"`
	Scores           []ScoredTask  `json:"scores"`
	TotalMinutes     int           `json:"total_minutes"`
	AvailableMinutes int           `json:"available_minutes"`
	Utilization      float64       `json:"utilization"`
	Suggestions      []string      `json:"suggestions"`
}

func PriorityWeight(p domain.Priority) int {
	switch p {
	case domain.PriorityUrgent:
		return 100
	case domain.PriorityHigh:
		return 75
	case domain.PriorityMedium:
		return 50
	case domain.PriorityLow:
		return 25
	}
	return 0
}

// UrgencyBonus scores due-date proximity relative to today.
func UrgencyBonus(dueDate *string, today string) int {
	if dueDate == nil || *dueDate == "" {
		return 0
	}
	days, err := domain.DaysBetween(today, *dueDate)
	if err != nil {
		return 0
	}
	switch {
	case days < 0:
		return 200
	case days == 0:
		return 150
	case days <= 2:
		return 100
	}
	return 0
}

func Score(t domain.Task, today string) int {
	score := PriorityWeight(t.Priority) + UrgencyBonus(t.DueDate, today)
	if t.EstimatedDuration <= 30 {
		score += 10
	}
	return score
}

// Prioritize orders tasks by score and greedily fills availableMinutes.
// A task that does not fit is skipped; later, shorter tasks may still be picked.
func Prioritize(tasks []domain.Task, availableMinutes int, today string) Plan {
	scored := make([]ScoredTask, len(tasks))
	for i, t := range tasks {
		scored[i] = ScoredTask{Task: t, Score: Score(t, today)}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	plan := Plan{Scores: scored, AvailableMinutes: availableMinutes, Selected: []domain.Task{}}
	for _, st := range scored {
		if plan.TotalMinutes+st.Task.EstimatedDuration <= availableMinutes {
			plan.Selected = append(plan.Selected, st.Task)
			plan.TotalMinutes += st.Task.EstimatedDuration
		}
	}
	if availableMinutes > 0 {
		plan.Utilization = float64(plan.TotalMinutes) * 100 / float64(availableMinutes)
	}

	switch {
	case len(plan.Selected) == 0:
		plan.Suggestions = []string{SuggestionBreakDown}
	case float64(plan.TotalMinutes) < float64(availableMinutes)*0.5:
		plan.Suggestions = []string{SuggestionLight}
	case float64(plan.TotalMinutes) > float64(availableMinutes)*0.9:
		plan.Suggestions = []string{SuggestionPacked}
	default:
		plan.Suggestions = []string{}
	}
	return plan
}
