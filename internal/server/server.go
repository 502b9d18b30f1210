package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"focusly/internal/domain"
	"focusly/internal/engine"
	"focusly/internal/insight"
	"focusly/internal/logger"
	"focusly/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Logger   *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"capacity_exceeded"`
	Message string         `json:"message" example:"capacity exceeded: 200 minutes requested, 400 of 480 allocated"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"date\":\"2024-01-02\"}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// routes bundles what the route groups share.
type routes struct {
	e  engine.Engine
	sf *singleflight.Group
}

// New returns an HTTP handler exposing the Focusly API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	log := cfg.Logger
	if log == nil {
		log = cfg.Engine.Logger
	}
	if log == nil {
		log = zap.NewNop()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(requestLogger(log))
	hcfg := huma.DefaultConfig("Focusly API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	humaAPI := humachi.New(router, hcfg)
	group := huma.NewGroup(humaAPI, basePath)

	a := routes{e: cfg.Engine, sf: &singleflight.Group{}}
	registerDocs(router, basePath)
	registerHealth(group)
	a.registerWorkspaces(group)
	a.registerTasks(group)
	a.registerScheduling(group)
	a.registerInsights(group)
	a.registerRecurrence(group)
	a.registerEvents(group)
	registerOpenAPI(router, humaAPI, basePath)

	return router, nil
}

// requestLogger tags each request with an id, echoed in X-Request-ID, and logs it on completion.
func requestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", reqID)
			ctx := logger.ContextWithRequestID(r.Context(), reqID)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r.WithContext(ctx))
			logger.WithRequestID(ctx, base).Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var de *domain.Error
	if errors.As(err, &de) {
		details := map[string]any{}
		if de.WorkspaceID != "" {
			details["workspace_id"] = de.WorkspaceID
		}
		if de.Date != "" {
			details["date"] = de.Date
		}
		if len(details) == 0 {
			details = nil
		}
		code := strings.ToLower(de.Code)
		switch de.Code {
		case domain.CodeNotFound:
			return newAPIError(http.StatusNotFound, code, err.Error(), details)
		case domain.CodeInvalidTask:
			return newAPIError(http.StatusBadRequest, code, err.Error(), details)
		case domain.CodeCapacityExceeded, domain.CodeInvalidState, domain.CodeRecurrenceAdmissionFailed:
			return newAPIError(http.StatusConflict, code, err.Error(), details)
		}
		return newAPIError(http.StatusInternalServerError, code, err.Error(), details)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "unique constraint"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid"),
		strings.Contains(lowered, "unknown"),
		strings.Contains(lowered, "required"),
		strings.Contains(lowered, "must be"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// shared collapses concurrent identical reads into one engine call.
func shared[T any](sf *singleflight.Group, key string, fn func() (T, error)) (T, error) {
	v, err, _ := sf.Do(key, func() (any, error) { return fn() })
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Focusly API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func (a routes) registerWorkspaces(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-workspace",
		Method:        http.MethodPost,
		Path:          "/workspaces",
		Summary:       "Create workspace",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateWorkspaceRequest `json:"body"`
	}) (*struct {
		Body domain.Workspace `json:"body"`
	}, error) {
		w, err := a.e.CreateWorkspace(ctx, engine.WorkspaceCreateOptions{
			ID:             input.Body.ID,
			Name:           input.Body.Name,
			Role:           domain.Role(input.Body.Role),
			DailyTimeLimit: input.Body.DailyTimeLimit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Workspace `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-workspaces",
		Method:      http.MethodGet,
		Path:        "/workspaces",
		Summary:     "List workspaces",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Workspace `json:"body"`
	}, error) {
		items, err := a.e.Repo.ListWorkspaces(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Workspace{}
		}
		return &struct {
			Body []domain.Workspace `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-workspace",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}",
		Summary:     "Get workspace",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
	}) (*struct {
		Body domain.Workspace `json:"body"`
	}, error) {
		w, err := a.e.GetWorkspace(ctx, input.WorkspaceID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Workspace `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-daily-limit",
		Method:      http.MethodPut,
		Path:        "/workspaces/{workspace_id}/limit",
		Summary:     "Set the default daily time limit",
		Description: "Applies to dates without a capacity record; existing records keep their limit.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string          `path:"workspace_id"`
		Body        SetLimitRequest `json:"body"`
	}) (*struct {
		Body domain.Workspace `json:"body"`
	}, error) {
		w, err := a.e.SetDailyLimit(ctx, input.WorkspaceID, input.Body.DailyTimeLimit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Workspace `json:"body"`
		}{Body: w}, nil
	})
}

func (a routes) registerTasks(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/workspaces/{workspace_id}/tasks",
		Summary:       "Create task",
		Description:   "Admits the estimated duration on the due date. Rejected with 409 capacity_exceeded when the day is full.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string            `path:"workspace_id"`
		Body        CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := a.e.CreateTask(ctx, input.Body.options(input.WorkspaceID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/tasks",
		Summary:     "List tasks",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		Status      string `query:"status" enum:"pending,completed,failed"`
		From        string `query:"from" format:"date"`
		To          string `query:"to" format:"date"`
		Limit       int    `query:"limit" default:"50"`
	}) (*struct {
		Body tasksResponse `json:"body"`
	}, error) {
		items, err := a.e.ListTasks(ctx, repo.TaskFilters{
			WorkspaceID: input.WorkspaceID,
			Status:      domain.Status(input.Status),
			DueFrom:     input.From,
			DueTo:       input.To,
			Limit:       normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body tasksResponse `json:"body"`
		}{Body: tasksResponse{Items: emptyTasks(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-blocked-tasks",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/tasks/blocked",
		Summary:     "List pending tasks waiting on incomplete dependencies",
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
	}) (*struct {
		Body tasksResponse `json:"body"`
	}, error) {
		items, err := a.e.GetBlockedTasks(ctx, input.WorkspaceID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body tasksResponse `json:"body"`
		}{Body: tasksResponse{Items: emptyTasks(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := a.e.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{task_id}",
		Summary:       "Delete task and release its slot",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct{}, error) {
		if err := a.e.DeleteTask(ctx, input.TaskID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/complete",
		Summary:     "Complete task",
		Description: "A recurring task returns its next instance, or a recurrence failure when that instance could not be admitted.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		TaskID string              `path:"task_id"`
		Body   CompleteTaskRequest `json:"body" required:"false"`
	}) (*struct {
		Body engine.Completion `json:"body"`
	}, error) {
		res, err := a.e.CompleteTask(ctx, input.TaskID, engine.CompleteOptions{ActualDuration: input.Body.ActualDuration})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Completion `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "fail-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/fail",
		Summary:     "Mark task failed",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		TaskID string          `path:"task_id"`
		Body   FailTaskRequest `json:"body" required:"false"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := a.e.FailTask(ctx, input.TaskID, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reschedule-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/reschedule",
		Summary:     "Move task to another date",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Body   RescheduleRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := a.e.Reschedule(ctx, input.TaskID, input.Body.DueDate)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})
}

func (a routes) registerScheduling(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-capacity",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/capacity",
		Summary:     "Capacity records for a date range",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		From        string `query:"from" format:"date"`
		To          string `query:"to" format:"date"`
	}) (*struct {
		Body []domain.CapacityRecord `json:"body"`
	}, error) {
		from, to, err := a.e.Window(input.From, input.To, 7)
		if err != nil {
			return nil, handleError(err)
		}
		key := strings.Join([]string{"capacity", input.WorkspaceID, from, to}, "|")
		recs, err := shared(a.sf, key, func() ([]domain.CapacityRecord, error) {
			return a.e.Ledger.ListRange(ctx, input.WorkspaceID, from, to)
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.CapacityRecord `json:"body"`
		}{Body: recs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "find-available-date",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/capacity/available",
		Summary:     "First date after a given date with room for a duration",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		Minutes     int    `query:"minutes" required:"true" minimum:"1"`
		After       string `query:"after" format:"date"`
		Horizon     int    `query:"horizon"`
	}) (*struct {
		Body engine.DateSuggestion `json:"body"`
	}, error) {
		after := input.After
		if after == "" {
			after = a.e.Today()
		}
		s, err := a.e.FindAvailableDate(ctx, input.WorkspaceID, input.Minutes, after, input.Horizon)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.DateSuggestion `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "carry-over",
		Method:      http.MethodPost,
		Path:        "/workspaces/{workspace_id}/carryover",
		Summary:     "Move overdue pending tasks onto today",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string           `path:"workspace_id"`
		Body        CarryOverRequest `json:"body" required:"false"`
	}) (*struct {
		Body []engine.CarryOverResult `json:"body"`
	}, error) {
		today := input.Body.Today
		if today == "" {
			today = a.e.Today()
		}
		res, err := a.e.ProcessCarryOver(ctx, input.WorkspaceID, today)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []engine.CarryOverResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "detect-overload",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/overload",
		Summary:     "Days above the overload threshold",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		From        string `query:"from" format:"date"`
		To          string `query:"to" format:"date"`
	}) (*struct {
		Body []engine.OverloadDay `json:"body"`
	}, error) {
		from, to, err := a.e.Window(input.From, input.To, a.e.OverloadWindow())
		if err != nil {
			return nil, handleError(err)
		}
		key := strings.Join([]string{"overload", input.WorkspaceID, from, to}, "|")
		days, err := shared(a.sf, key, func() ([]engine.OverloadDay, error) {
			return a.e.DetectOverload(ctx, input.WorkspaceID, from, to)
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []engine.OverloadDay `json:"body"`
		}{Body: days}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rebalance",
		Method:      http.MethodPost,
		Path:        "/workspaces/{workspace_id}/rebalance",
		Summary:     "Propose, and optionally apply, moves off overloaded days",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string           `path:"workspace_id"`
		Body        RebalanceRequest `json:"body" required:"false"`
	}) (*struct {
		Body RebalanceResponse `json:"body"`
	}, error) {
		from, to, err := a.e.Window(input.Body.From, input.Body.To, a.e.OverloadWindow())
		if err != nil {
			return nil, handleError(err)
		}
		days, err := a.e.DetectOverload(ctx, input.WorkspaceID, from, to)
		if err != nil {
			return nil, handleError(err)
		}
		suggestions, err := a.e.RebalanceSchedule(ctx, input.WorkspaceID, days)
		if err != nil {
			return nil, handleError(err)
		}
		resp := RebalanceResponse{Overloaded: days, Suggestions: suggestions}
		if input.Body.Apply {
			moved, skipped, err := a.e.ApplySuggestions(ctx, suggestions)
			if err != nil {
				return nil, handleError(err)
			}
			resp.Applied = true
			resp.Moved = moved
			resp.Skipped = skipped
		}
		return &struct {
			Body RebalanceResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-history",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/history",
		Summary:     "Execution history",
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		From        string `query:"from" format:"date"`
		To          string `query:"to" format:"date"`
	}) (*struct {
		Body []domain.HistoryEntry `json:"body"`
	}, error) {
		items, err := a.e.History(ctx, input.WorkspaceID, input.From, input.To)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.HistoryEntry{}
		}
		return &struct {
			Body []domain.HistoryEntry `json:"body"`
		}{Body: items}, nil
	})
}

func (a routes) registerInsights(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "daily-focus",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/focus",
		Summary:     "Prioritized tasks that fit today's remaining time",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		Date        string `query:"date" format:"date"`
	}) (*struct {
		Body engine.DailyFocus `json:"body"`
	}, error) {
		date := input.Date
		if date == "" {
			date = a.e.Today()
		}
		key := strings.Join([]string{"focus", input.WorkspaceID, date}, "|")
		focus, err := shared(a.sf, key, func() (engine.DailyFocus, error) {
			return a.e.SuggestDailyFocus(ctx, input.WorkspaceID, date)
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.DailyFocus `json:"body"`
		}{Body: focus}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "weekly-insights",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/insights/weekly",
		Summary:     "Weekly stats, insights and patterns",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		Today       string `query:"today" format:"date"`
	}) (*struct {
		Body engine.WeeklyReport `json:"body"`
	}, error) {
		today := input.Today
		if today == "" {
			today = a.e.Today()
		}
		key := strings.Join([]string{"weekly", input.WorkspaceID, today}, "|")
		report, err := shared(a.sf, key, func() (engine.WeeklyReport, error) {
			return a.e.WeeklyReport(ctx, input.WorkspaceID, today)
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.WeeklyReport `json:"body"`
		}{Body: report}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "diagnose",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/diagnose",
		Summary:     "Likely reasons for missed tasks",
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		Today       string `query:"today" format:"date"`
	}) (*struct {
		Body []insight.Diagnosis `json:"body"`
	}, error) {
		today := input.Today
		if today == "" {
			today = a.e.Today()
		}
		items, err := a.e.Diagnose(ctx, input.WorkspaceID, today)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []insight.Diagnosis `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "estimate",
		Method:      http.MethodPost,
		Path:        "/workspaces/{workspace_id}/estimate",
		Summary:     "Classify text and estimate its duration",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string          `path:"workspace_id"`
		Body        EstimateRequest `json:"body"`
	}) (*struct {
		Body insight.Estimate `json:"body"`
	}, error) {
		est, err := a.e.Estimate(ctx, input.WorkspaceID, input.Body.Text)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body insight.Estimate `json:"body"`
		}{Body: est}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "convert-note",
		Method:      http.MethodPost,
		Path:        "/workspaces/{workspace_id}/notes",
		Summary:     "Turn a free-text note into a task proposal",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string             `path:"workspace_id"`
		Body        ConvertNoteRequest `json:"body"`
	}) (*struct {
		Body engine.NoteResult `json:"body"`
	}, error) {
		res, err := a.e.ConvertNote(ctx, engine.ConvertNoteOptions{
			WorkspaceID: input.WorkspaceID,
			Text:        input.Body.Text,
			Today:       input.Body.Today,
			Create:      input.Body.Create,
			FindSlot:    input.Body.FindSlot,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.NoteResult `json:"body"`
		}{Body: res}, nil
	})
}

func (a routes) registerRecurrence(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-recurrence-failures",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/recurrence-failures",
		Summary:     "Recurring instances that could not be admitted",
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		All         bool   `query:"all"`
	}) (*struct {
		Body []domain.RecurrenceFailure `json:"body"`
	}, error) {
		items, err := a.e.ListRecurrenceFailures(ctx, input.WorkspaceID, !input.All)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.RecurrenceFailure{}
		}
		return &struct {
			Body []domain.RecurrenceFailure `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "resume-recurrence",
		Method:        http.MethodPost,
		Path:          "/recurrence-failures/{failure_id}/resume",
		Summary:       "Admit the dropped instance on a date",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		FailureID string                  `path:"failure_id"`
		Body      ResumeRecurrenceRequest `json:"body" required:"false"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := a.e.ResumeRecurrence(ctx, input.FailureID, input.Body.Date)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})
}

func (a routes) registerEvents(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		Type        string `query:"type"`
		EntityKind  string `query:"entity_kind" enum:"workspace,task,capacity"`
		EntityID    string `query:"entity_id"`
		Limit       int    `query:"limit" default:"50"`
		Cursor      string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := a.e.Repo.LatestEvents(ctx, repo.EventFilters{
			WorkspaceID: input.WorkspaceID,
			Type:        input.Type,
			EntityKind:  input.EntityKind,
			EntityID:    input.EntityID,
			Cursor:      cursorID,
			Limit:       limit + 1,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []domain.Event{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		resp.Items = append(resp.Items, items...)
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
