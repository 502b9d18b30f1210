package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"focusly/internal/config"
	"focusly/internal/db"
	"focusly/internal/domain"
	"focusly/internal/engine"
	"focusly/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

const wsID = "home"

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default(wsID), nil)
	e.Now = func() time.Time { return time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC) }
	if _, err := e.CreateWorkspace(context.Background(), engine.WorkspaceCreateOptions{ID: wsID, Name: wsID, DailyTimeLimit: 480}); err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("unmarshal %s: %v", string(data), err)
	}
	return v
}

func createTask(t *testing.T, srv *testServer, body map[string]any) (*http.Response, []byte) {
	t.Helper()
	return doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/workspaces/"+wsID+"/tasks", body, nil)
}

func TestHealthEchoesRequestID(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, map[string]string{"X-Request-ID": "req-1"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
	if got := res.Header.Get("X-Request-ID"); got != "req-1" {
		t.Fatalf("expected request id echo, got %q", got)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d", res.StatusCode)
	}
}

func TestCreateTaskRejectsOverCapacity(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	for i := 0; i < 2; i++ {
		res, data := createTask(t, srv, map[string]any{"name": "deep work", "estimated_duration": 200, "due_date": "2024-01-02"})
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create status %d: %s", res.StatusCode, string(data))
		}
	}
	res, data := createTask(t, srv, map[string]any{"name": "one more", "estimated_duration": 200, "due_date": "2024-01-02"})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", res.StatusCode, string(data))
	}
	envelope := decode[struct {
		Error apiErrorBody `json:"error"`
	}](t, data)
	if envelope.Error.Code != "capacity_exceeded" {
		t.Fatalf("expected capacity_exceeded, got %q", envelope.Error.Code)
	}
	if envelope.Error.Details["date"] != "2024-01-02" {
		t.Fatalf("expected date detail, got %v", envelope.Error.Details)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/workspaces/"+wsID+"/capacity?from=2024-01-02&to=2024-01-03", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("capacity status %d: %s", res.StatusCode, string(data))
	}
	recs := decode[[]domain.CapacityRecord](t, data)
	if len(recs) != 2 || recs[0].Allocated != 400 || recs[1].Allocated != 0 || recs[1].Limit != 480 {
		t.Fatalf("unexpected capacity: %+v", recs)
	}
}

func TestTaskErrors(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := createTask(t, srv, map[string]any{"name": "bad", "estimated_duration": 30, "recurrence": map[string]any{"frequency": "daily"}})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for recurrence without due date, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tasks/missing", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/workspaces/"+wsID+"/limit", map[string]any{"daily_time_limit": 10}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for tiny limit, got %d: %s", res.StatusCode, string(data))
	}
}

func TestCompleteRecurringTask(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := createTask(t, srv, map[string]any{
		"name":               "weekly review",
		"estimated_duration": 45,
		"priority":           "high",
		"due_date":           "2024-01-01",
		"recurrence":         map[string]any{"frequency": "weekly", "interval": 1},
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	created := decode[domain.Task](t, data)

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks/"+created.ID+"/complete", map[string]any{"actual_duration": 50}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}
	done := decode[engine.Completion](t, data)
	if done.Task.Status != domain.StatusCompleted || done.Next == nil {
		t.Fatalf("unexpected completion: %s", string(data))
	}
	if done.Next.Due() != "2024-01-08" || done.Next.ParentID == nil || *done.Next.ParentID != created.ID {
		t.Fatalf("unexpected next instance: %+v", done.Next)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks/"+created.ID+"/complete", nil, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on second completion, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/workspaces/"+wsID+"/history", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history status %d: %s", res.StatusCode, string(data))
	}
	if hist := decode[[]domain.HistoryEntry](t, data); len(hist) != 1 || hist[0].ActualDuration != 50 {
		t.Fatalf("unexpected history: %s", string(data))
	}
}

func TestRescheduleAndDelete(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	_, data := createTask(t, srv, map[string]any{"name": "essay", "estimated_duration": 300, "due_date": "2024-01-02"})
	essay := decode[domain.Task](t, data)
	createTask(t, srv, map[string]any{"name": "full", "estimated_duration": 300, "due_date": "2024-01-03"})

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks/"+essay.ID+"/reschedule", map[string]any{"due_date": "2024-01-03"}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/workspaces/"+wsID+"/capacity/available?minutes=300&after=2024-01-02", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("available status %d: %s", res.StatusCode, string(data))
	}
	suggestion := decode[engine.DateSuggestion](t, data)
	if !suggestion.Confirmed || suggestion.Date != "2024-01-04" {
		t.Fatalf("unexpected suggestion: %+v", suggestion)
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks/"+essay.ID+"/reschedule", map[string]any{"due_date": suggestion.Date}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reschedule status %d: %s", res.StatusCode, string(data))
	}
	if moved := decode[domain.Task](t, data); moved.RescheduleCount != 1 {
		t.Fatalf("expected reschedule count 1, got %d", moved.RescheduleCount)
	}

	res, data = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v0/tasks/"+essay.ID, nil, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d: %s", res.StatusCode, string(data))
	}
	_, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/workspaces/"+wsID+"/capacity?from=2024-01-04&to=2024-01-04", nil, nil)
	if recs := decode[[]domain.CapacityRecord](t, data); recs[0].Allocated != 0 {
		t.Fatalf("expected released slot, got %+v", recs)
	}
}

func TestOverloadAndRebalance(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	createTask(t, srv, map[string]any{"name": "a", "estimated_duration": 300, "priority": "urgent", "due_date": "2024-01-02"})
	_, data := createTask(t, srv, map[string]any{"name": "b", "estimated_duration": 120, "priority": "low", "due_date": "2024-01-02"})
	low := decode[domain.Task](t, data)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/workspaces/"+wsID+"/overload?from=2024-01-01&to=2024-01-07", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("overload status %d: %s", res.StatusCode, string(data))
	}
	if days := decode[[]engine.OverloadDay](t, data); len(days) != 1 || days[0].Date != "2024-01-02" {
		t.Fatalf("unexpected overload: %s", string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/workspaces/"+wsID+"/rebalance", map[string]any{"from": "2024-01-01", "to": "2024-01-07", "apply": true}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("rebalance status %d: %s", res.StatusCode, string(data))
	}
	out := decode[RebalanceResponse](t, data)
	if len(out.Suggestions) != 1 || out.Suggestions[0].TaskID != low.ID || len(out.Moved) != 1 {
		t.Fatalf("unexpected rebalance: %s", string(data))
	}
	if out.Moved[0].Due() != "2024-01-03" {
		t.Fatalf("expected move to 2024-01-03, got %s", out.Moved[0].Due())
	}
}

func TestFocusAndNotes(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	createTask(t, srv, map[string]any{"name": "standup", "estimated_duration": 15, "priority": "medium", "due_date": "2024-01-01"})

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/workspaces/"+wsID+"/focus?date=2024-01-01", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("focus status %d: %s", res.StatusCode, string(data))
	}
	focus := decode[engine.DailyFocus](t, data)
	if len(focus.Selected) != 1 || focus.AvailableMinutes != 480 {
		t.Fatalf("unexpected focus: %s", string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/workspaces/"+wsID+"/notes", map[string]any{
		"text":   "Call the plumber asap. Kitchen sink leaks.",
		"today":  "2024-01-01",
		"create": true,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("notes status %d: %s", res.StatusCode, string(data))
	}
	note := decode[engine.NoteResult](t, data)
	if note.Task == nil || note.Task.Name != "Call the plumber asap" || note.Task.Priority != domain.PriorityUrgent {
		t.Fatalf("unexpected note result: %s", string(data))
	}
}

func TestEventsPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	for i := 0; i < 3; i++ {
		createTask(t, srv, map[string]any{"name": "task", "estimated_duration": 10})
	}
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/workspaces/"+wsID+"/events?type=task.created&limit=2", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	page := decode[paginatedEvents](t, data)
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("unexpected first page: %s", string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/workspaces/"+wsID+"/events?type=task.created&limit=2&cursor="+page.NextCursor, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	if next := decode[paginatedEvents](t, data); len(next.Items) != 1 || next.NextCursor != "" {
		t.Fatalf("unexpected second page: %s", string(data))
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/workspaces/"+wsID+"/events?cursor=abc", nil, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad cursor, got %d", res.StatusCode)
	}
}
