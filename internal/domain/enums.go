package domain

import "fmt"

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return p, nil
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

// Rank orders priorities from low (1) to urgent (4).
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityUrgent:
		return 4
	}
	return 0
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusCompleted, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(s)
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return f, nil
	}
	return "", fmt.Errorf("unknown frequency %q", s)
}

// Next returns the due date following date under the recurrence policy.
func (r Recurrence) Next(date string) (string, error) {
	interval := r.Interval
	if interval < 1 {
		interval = 1
	}
	switch r.Frequency {
	case FrequencyDaily:
		return AddDays(date, interval)
	case FrequencyWeekly:
		return AddDays(date, 7*interval)
	case FrequencyMonthly:
		return AddMonths(date, interval)
	}
	return "", fmt.Errorf("unknown frequency %q", r.Frequency)
}

type Role string

const (
	RoleStudent      Role = "student"
	RoleProfessional Role = "professional"
	RoleBusiness     Role = "business"
	RoleGeneral      Role = "general"
)

func ParseRole(s string) (Role, error) {
	r := Role(s)
	switch r {
	case RoleStudent, RoleProfessional, RoleBusiness, RoleGeneral:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// CarryOverOutcome tags a single carry-over attempt.
type CarryOverOutcome string

const (
	CarriedOver       CarryOverOutcome = "carried_over"
	BlockedByCapacity CarryOverOutcome = "blocked_by_capacity"
)
