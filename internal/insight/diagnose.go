package insight

import "focusly/internal/domain"

type MissReason string

const (
	ReasonProcrastination    MissReason = "procrastination"
	ReasonComplexity         MissReason = "complexity"
	ReasonLowPriorityNeglect MissReason = "low_priority_neglect"
	ReasonUnknown            MissReason = "unknown"
)

type Diagnosis struct {
	TaskID   string     `json:"task_id"`
	TaskName string     `json:"task_name"`
	Reason   MissReason `json:"reason"`
}

// Missed reports failed tasks and pending tasks due before today.
func Missed(t domain.Task, today string) bool {
	switch t.Status {
	case domain.StatusFailed:
		return true
	case domain.StatusPending:
		return t.Scheduled() && *t.DueDate < today
	case domain.StatusCompleted:
	}
	return false
}

func missReason(t domain.Task) MissReason {
	switch {
	case t.RescheduleCount > 2:
		return ReasonProcrastination
	case t.EstimatedDuration > 120:
		return ReasonComplexity
	case t.Priority == domain.PriorityLow:
		return ReasonLowPriorityNeglect
	}
	return ReasonUnknown
}

func DiagnoseMissed(tasks []domain.Task, today string) []Diagnosis {
	res := []Diagnosis{}
	for _, t := range tasks {
		if !Missed(t, today) {
			continue
		}
		res = append(res, Diagnosis{TaskID: t.ID, TaskName: t.Name, Reason: missReason(t)})
	}
	return res
}
