package domain

type Workspace struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Role           Role   `json:"role" enum:"student,professional,business,general"`
	DailyTimeLimit int    `json:"daily_time_limit"`
	CreatedAt      string `json:"created_at" format:"date-time"`
	UpdatedAt      string `json:"updated_at" format:"date-time"`
}

// Recurrence describes how a completed task regenerates.
type Recurrence struct {
	Frequency Frequency `json:"frequency" enum:"daily,weekly,monthly"`
	Interval  int       `json:"interval" minimum:"1"`
}

type Task struct {
	ID                string      `json:"id"`
	WorkspaceID       string      `json:"workspace_id"`
	Name              string      `json:"name"`
	Description       string      `json:"description,omitempty"`
	EstimatedDuration int         `json:"estimated_duration"`
	Priority          Priority    `json:"priority" enum:"low,medium,high,urgent"`
	DueDate           *string     `json:"due_date,omitempty" format:"date"`
	Status            Status      `json:"status" enum:"pending,completed,failed"`
	Recurrence        *Recurrence `json:"recurrence,omitempty"`
	Dependencies      []string    `json:"dependencies,omitempty"`
	RescheduleCount   int         `json:"reschedule_count"`
	ParentID          *string     `json:"parent_id,omitempty"`
	FailureReason     *string     `json:"failure_reason,omitempty"`
	ActualDuration    *int        `json:"actual_duration,omitempty"`
	CreatedAt         string      `json:"created_at" format:"date-time"`
	UpdatedAt         string      `json:"updated_at" format:"date-time"`
	CompletedAt       *string     `json:"completed_at,omitempty" format:"date-time"`
	FailedAt          *string     `json:"failed_at,omitempty" format:"date-time"`
}

// Scheduled reports whether the task holds a capacity slot while pending.
func (t Task) Scheduled() bool {
	return t.DueDate != nil && *t.DueDate != ""
}

// Due returns the due date or "" for unscheduled tasks.
func (t Task) Due() string {
	if t.DueDate == nil {
		return ""
	}
	return *t.DueDate
}

// RootID is the id shared by every instance of a recurrence chain.
func (t Task) RootID() string {
	if t.ParentID != nil && *t.ParentID != "" {
		return *t.ParentID
	}
	return t.ID
}

type CapacityRecord struct {
	WorkspaceID string `json:"workspace_id"`
	Date        string `json:"date" format:"date"`
	Allocated   int    `json:"allocated"`
	Limit       int    `json:"limit"`
	UpdatedAt   string `json:"updated_at,omitempty" format:"date-time"`
}

// Remaining is the number of minutes still admissible on the date.
func (c CapacityRecord) Remaining() int {
	if c.Allocated >= c.Limit {
		return 0
	}
	return c.Limit - c.Allocated
}

type HistoryEntry struct {
	ID                string  `json:"id"`
	WorkspaceID       string  `json:"workspace_id"`
	TaskID            string  `json:"task_id"`
	TaskName          string  `json:"task_name"`
	Date              string  `json:"date" format:"date"`
	EstimatedDuration int     `json:"estimated_duration"`
	ActualDuration    int     `json:"actual_duration"`
	Outcome           Status  `json:"outcome" enum:"completed,failed"`
	FailureReason     *string `json:"failure_reason,omitempty"`
	RecordedAt        string  `json:"recorded_at" format:"date-time"`
}

// RecurrenceFailure records a next instance that could not be admitted.
type RecurrenceFailure struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	TaskID      string `json:"task_id"`
	RootID      string `json:"root_id"`
	NextDueDate string `json:"next_due_date" format:"date"`
	Duration    int    `json:"duration"`
	CreatedAt   string `json:"created_at" format:"date-time"`

	// Snapshot of the completed task so the instance can be resumed after it is deleted.
	TaskName    string     `json:"task_name"`
	Description string     `json:"description,omitempty"`
	Priority    Priority   `json:"priority" enum:"low,medium,high,urgent"`
	Recurrence  Recurrence `json:"recurrence"`

	ResolvedAt     *string `json:"resolved_at,omitempty" format:"date-time"`
	ResolvedTaskID *string `json:"resolved_task_id,omitempty"`
}

type Event struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts" format:"date-time"`
	Type        string `json:"type"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id,omitempty"`
	Payload     string `json:"payload_json"`
}
