package focuslysdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Focusly HTTP API client bound to one workspace.
type Client struct {
	BaseURL     string
	WorkspaceID string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, workspaceID string) *Client {
	return &Client{
		BaseURL:     baseURL,
		WorkspaceID: workspaceID,
		Timeout:     10 * time.Second,
	}
}

// Recurrence describes how a task regenerates on completion.
type Recurrence struct {
	Frequency string `json:"frequency"`
	Interval  int    `json:"interval,omitempty"`
}

// Task represents the API task model (partial).
type Task struct {
	ID                string      `json:"id"`
	WorkspaceID       string      `json:"workspace_id"`
	Name              string      `json:"name"`
	EstimatedDuration int         `json:"estimated_duration"`
	Priority          string      `json:"priority"`
	DueDate           string      `json:"due_date,omitempty"`
	Status            string      `json:"status"`
	Recurrence        *Recurrence `json:"recurrence,omitempty"`
	RescheduleCount   int         `json:"reschedule_count"`
	ParentID          string      `json:"parent_id,omitempty"`
}

// NewTask holds the fields accepted when creating a task.
type NewTask struct {
	ID                string      `json:"id,omitempty"`
	Name              string      `json:"name"`
	Description       string      `json:"description,omitempty"`
	EstimatedDuration int         `json:"estimated_duration"`
	Priority          string      `json:"priority,omitempty"`
	DueDate           string      `json:"due_date,omitempty"`
	Recurrence        *Recurrence `json:"recurrence,omitempty"`
	Dependencies      []string    `json:"dependencies,omitempty"`
}

// Completion is returned when a task is completed. Recurring tasks carry
// either Next or RecurrenceFailure.
type Completion struct {
	Task              Task               `json:"task"`
	Next              *Task              `json:"next,omitempty"`
	RecurrenceFailure *RecurrenceFailure `json:"recurrence_failure,omitempty"`
}

// RecurrenceFailure records a recurring instance whose date had no room.
type RecurrenceFailure struct {
	ID          string `json:"id"`
	TaskID      string `json:"task_id"`
	TaskName    string `json:"task_name"`
	NextDueDate string `json:"next_due_date"`
	Duration    int    `json:"duration"`
}

// Capacity is one date of the capacity ledger.
type Capacity struct {
	Date      string `json:"date"`
	Allocated int    `json:"allocated"`
	Limit     int    `json:"limit"`
}

// OverloadDay is a date above the overload threshold.
type OverloadDay struct {
	Date            string  `json:"date"`
	Allocated       int     `json:"allocated"`
	Limit           int     `json:"limit"`
	OverloadPercent float64 `json:"overload_percent"`
	Tasks           []Task  `json:"tasks"`
}

// Suggestion proposes a new date for a task on an overloaded day.
type Suggestion struct {
	TaskID        string `json:"task_id"`
	CurrentDate   string `json:"current_date"`
	SuggestedDate string `json:"suggested_date"`
	Confirmed     bool   `json:"confirmed"`
}

// Rebalance is the result of a rebalance request.
type Rebalance struct {
	Overloaded  []OverloadDay `json:"overloaded"`
	Suggestions []Suggestion  `json:"suggestions"`
	Applied     bool          `json:"applied"`
	Moved       []Task        `json:"moved"`
	Skipped     []Suggestion  `json:"skipped"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityID   string `json:"entity_id"`
	EntityKind string `json:"entity_kind"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses. Code and Message come from the error envelope when present.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateTask creates a task, admitting it against its due date.
func (c *Client) CreateTask(ctx context.Context, t NewTask) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, c.workspacePath("tasks"), t, &resp)
	return resp, err
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, taskPath(id, ""), nil, &resp)
	return resp, err
}

// CompleteTask completes a pending task. actual may be zero to use the estimate.
func (c *Client) CompleteTask(ctx context.Context, id string, actual int) (Completion, error) {
	body := map[string]any{}
	if actual > 0 {
		body["actual_duration"] = actual
	}
	var resp Completion
	err := c.do(ctx, http.MethodPost, taskPath(id, "complete"), body, &resp)
	return resp, err
}

// Reschedule moves a pending task to date.
func (c *Client) Reschedule(ctx context.Context, id, date string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, taskPath(id, "reschedule"), map[string]any{"due_date": date}, &resp)
	return resp, err
}

// DeleteTask removes a task and frees its minutes.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, taskPath(id, ""), nil, nil)
}

// Capacity lists the ledger for [from, to]. Empty bounds use the server defaults.
func (c *Client) Capacity(ctx context.Context, from, to string) ([]Capacity, error) {
	var resp []Capacity
	err := c.do(ctx, http.MethodGet, withQuery(c.workspacePath("capacity"), url.Values{"from": {from}, "to": {to}}), nil, &resp)
	return resp, err
}

// Overload lists overloaded days in [from, to].
func (c *Client) Overload(ctx context.Context, from, to string) ([]OverloadDay, error) {
	var resp []OverloadDay
	err := c.do(ctx, http.MethodGet, withQuery(c.workspacePath("overload"), url.Values{"from": {from}, "to": {to}}), nil, &resp)
	return resp, err
}

// Rebalance proposes moves for overloaded days and applies them when apply is set.
func (c *Client) Rebalance(ctx context.Context, from, to string, apply bool) (Rebalance, error) {
	body := map[string]any{"apply": apply}
	if from != "" {
		body["from"] = from
	}
	if to != "" {
		body["to"] = to
	}
	var resp Rebalance
	err := c.do(ctx, http.MethodPost, c.workspacePath("rebalance"), body, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery(c.workspacePath("events"), q), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) workspacePath(p string) string {
	ws := url.PathEscape(c.WorkspaceID)
	return fmt.Sprintf("v0/workspaces/%s/%s", ws, strings.TrimLeft(p, "/"))
}

func taskPath(id, action string) string {
	p := "v0/tasks/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func withQuery(endpoint string, q url.Values) string {
	for k, v := range q {
		if len(v) == 0 || v[0] == "" {
			q.Del(k)
		}
	}
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
