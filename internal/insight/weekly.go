package insight

import (
	"fmt"
	"math"

	"focusly/internal/domain"
)

const weekDays = 7

type DayCount struct {
	Date  string `json:"date"`
	Day   string `json:"day"`
	Count int    `json:"count"`
}

type WeeklyStats struct {
	From            string     `json:"from"`
	To              string     `json:"to"`
	TotalCompleted  int        `json:"total_completed"`
	TotalPlanned    int        `json:"total_planned"`
	CompletionRate  float64    `json:"completion_rate"`
	TotalTimeSpent  int        `json:"total_time_spent"`
	AvgDailyTime    float64    `json:"avg_daily_time"`
	AvgTaskDuration float64    `json:"avg_task_duration"`
	DailyBreakdown  []DayCount `json:"daily_breakdown"`
	MaxDailyCount   int        `json:"max_daily_count"`
	Velocity        float64    `json:"velocity"`
	Streak          int        `json:"streak"`
}

// ComputeWeeklyStats summarizes the seven days ending today. history may span
// any range: entries outside the window only feed the streak.
func ComputeWeeklyStats(history []domain.HistoryEntry, tasks []domain.Task, today string) WeeklyStats {
	from, err := domain.AddDays(today, -(weekDays - 1))
	if err != nil {
		return WeeklyStats{To: today}
	}
	stats := WeeklyStats{From: from, To: today}

	completedDates := map[string]bool{}
	perDay := map[string]int{}
	for _, h := range history {
		if h.Outcome != domain.StatusCompleted {
			continue
		}
		completedDates[h.Date] = true
		if h.Date < from || h.Date > today {
			continue
		}
		stats.TotalCompleted++
		stats.TotalTimeSpent += h.ActualDuration
		perDay[h.Date]++
	}
	for _, t := range tasks {
		if t.Scheduled() && *t.DueDate >= from && *t.DueDate <= today {
			stats.TotalPlanned++
		}
	}
	if stats.TotalPlanned > 0 {
		stats.CompletionRate = math.Min(100, float64(stats.TotalCompleted)*100/float64(stats.TotalPlanned))
	}
	stats.AvgDailyTime = float64(stats.TotalTimeSpent) / weekDays
	if stats.TotalCompleted > 0 {
		stats.AvgTaskDuration = float64(stats.TotalTimeSpent) / float64(stats.TotalCompleted)
	}

	for i := 0; i < weekDays; i++ {
		date, _ := domain.AddDays(from, i)
		t, _ := domain.ParseDate(date)
		count := perDay[date]
		stats.DailyBreakdown = append(stats.DailyBreakdown, DayCount{Date: date, Day: t.Weekday().String()[:3], Count: count})
		if count > stats.MaxDailyCount {
			stats.MaxDailyCount = count
		}
	}
	stats.Velocity = math.Round(float64(stats.TotalCompleted)/weekDays*10) / 10

	for day := today; completedDates[day]; {
		stats.Streak++
		prev, err := domain.AddDays(day, -1)
		if err != nil {
			break
		}
		day = prev
	}
	return stats
}

type InsightType string

const (
	InsightSuccess InsightType = "success"
	InsightWarning InsightType = "warning"
	InsightInfo    InsightType = "info"
)

type Insight struct {
	Type    InsightType `json:"type"`
	Message string      `json:"message"`
	Action  string      `json:"action"`
}

// WeeklyInsights applies every rule independently; the default fires only when none did.
func WeeklyInsights(stats WeeklyStats) []Insight {
	var res []Insight
	switch {
	case stats.CompletionRate >= 80:
		res = append(res, Insight{
			Type:    InsightSuccess,
			Message: fmt.Sprintf("Excellent execution! %.0f%% completion rate this week.", stats.CompletionRate),
			Action:  "Keep it up!",
		})
	case stats.CompletionRate < 50:
		res = append(res, Insight{
			Type:    InsightWarning,
			Message: fmt.Sprintf("Low completion rate (%.0f%%). Consider reducing daily task load.", stats.CompletionRate),
			Action:  "Reduce planned tasks per day",
		})
	}
	if stats.AvgDailyTime < 120 {
		res = append(res, Insight{
			Type:    InsightInfo,
			Message: "Low daily engagement detected. Are you tracking all your work?",
			Action:  "Record all actionable items",
		})
	}
	if stats.AvgTaskDuration > 90 {
		res = append(res, Insight{
			Type:    InsightWarning,
			Message: "Tasks are taking longer than expected. Improve time estimates.",
			Action:  "Break down large tasks further",
		})
	}
	if len(res) == 0 {
		res = append(res, Insight{
			Type:    InsightInfo,
			Message: "Good start to your tracking. Keep completing tasks to get deeper insights.",
			Action:  "Continue your daily routine",
		})
	}
	return res
}

type Pattern struct {
	ID       string `json:"id"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// DetectPatterns flags repeated rescheduling and bursty completion days.
func DetectPatterns(tasks []domain.Task, stats WeeklyStats) []Pattern {
	res := []Pattern{}
	heavy := 0
	for _, t := range tasks {
		if t.RescheduleCount > 3 {
			heavy++
		}
	}
	if heavy > 2 {
		res = append(res, Pattern{
			ID:       "procrastination",
			Severity: "high",
			Message:  "You tend to reschedule complex tasks multiple times.",
		})
	}
	bursts := 0
	for _, d := range stats.DailyBreakdown {
		if float64(d.Count) > stats.Velocity*1.5 {
			bursts++
		}
	}
	if bursts > 2 {
		res = append(res, Pattern{
			ID:       "overload",
			Severity: "medium",
			Message:  "Your schedule is inconsistent, with heavy bursts followed by low activity.",
		})
	}
	return res
}
