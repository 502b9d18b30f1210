package focuslysdk_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	focuslysdk "focusly/sdk/go"

	"focusly/internal/config"
	"focusly/internal/db"
	"focusly/internal/engine"
	"focusly/internal/migrate"
	"focusly/internal/server"
)

func newClient(t *testing.T) *focuslysdk.Client {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default("sdk"), nil)
	e.Now = func() time.Time { return time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC) }
	if _, err := e.CreateWorkspace(context.Background(), engine.WorkspaceCreateOptions{ID: "sdk", Name: "sdk", DailyTimeLimit: 480}); err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	handler, err := server.New(server.Config{Engine: e})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return focuslysdk.New(srv.URL, "sdk")
}

func TestClientTaskLifecycle(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	task, err := c.CreateTask(ctx, focuslysdk.NewTask{Name: "Draft report", EstimatedDuration: 300, Priority: "high", DueDate: "2024-01-02"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Status != "pending" || task.DueDate != "2024-01-02" {
		t.Fatalf("unexpected task: %+v", task)
	}

	_, err = c.CreateTask(ctx, focuslysdk.NewTask{Name: "Too much", EstimatedDuration: 200, DueDate: "2024-01-02"})
	var apiErr *focuslysdk.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Code != "capacity_exceeded" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}

	caps, err := c.Capacity(ctx, "2024-01-02", "2024-01-03")
	if err != nil {
		t.Fatalf("capacity: %v", err)
	}
	if len(caps) != 2 || caps[0].Allocated != 300 || caps[1].Allocated != 0 {
		t.Fatalf("unexpected capacity: %+v", caps)
	}

	moved, err := c.Reschedule(ctx, task.ID, "2024-01-03")
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if moved.DueDate != "2024-01-03" || moved.RescheduleCount != 1 {
		t.Fatalf("unexpected reschedule: %+v", moved)
	}

	done, err := c.CompleteTask(ctx, task.ID, 280)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Task.Status != "completed" || done.Next != nil {
		t.Fatalf("unexpected completion: %+v", done)
	}

	if err := c.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := c.GetTask(ctx, task.ID); !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %v", err)
	}
	caps, err = c.Capacity(ctx, "2024-01-03", "2024-01-03")
	if err != nil {
		t.Fatalf("capacity: %v", err)
	}
	if caps[0].Allocated != 0 {
		t.Fatalf("slot not released: %+v", caps)
	}

	page, err := c.EventsPage(ctx, 2, "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Items[0].Type != "task.deleted" {
		t.Fatalf("expected newest event first, got %s", page.Items[0].Type)
	}
	next, err := c.EventsPage(ctx, 50, page.NextCursor)
	if err != nil {
		t.Fatalf("events page 2: %v", err)
	}
	if len(next.Items) == 0 || next.Items[0].ID >= page.Items[1].ID {
		t.Fatalf("cursor did not advance: %+v", next.Items)
	}
}

func TestClientRebalance(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	for _, tc := range []struct {
		name     string
		minutes  int
		priority string
	}{
		{"low", 120, "low"},
		{"deep work", 300, "urgent"},
	} {
		if _, err := c.CreateTask(ctx, focuslysdk.NewTask{Name: tc.name, EstimatedDuration: tc.minutes, Priority: tc.priority, DueDate: "2024-01-02"}); err != nil {
			t.Fatalf("create %s: %v", tc.name, err)
		}
	}
	days, err := c.Overload(ctx, "2024-01-01", "2024-01-07")
	if err != nil {
		t.Fatalf("overload: %v", err)
	}
	if len(days) != 1 || days[0].Date != "2024-01-02" {
		t.Fatalf("unexpected overload: %+v", days)
	}
	res, err := c.Rebalance(ctx, "2024-01-01", "2024-01-07", true)
	if err != nil {
		t.Fatalf("rebalance: %v", err)
	}
	if !res.Applied || len(res.Moved) != 1 || res.Moved[0].Name != "low" || res.Moved[0].DueDate != "2024-01-03" {
		t.Fatalf("unexpected rebalance: %+v", res)
	}
}
