package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"focusly/internal/config"
	"focusly/internal/domain"
	"focusly/internal/events"
	"focusly/internal/ledger"
	"focusly/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Ledger *ledger.Ledger
	Config *config.Config
	Logger *zap.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config, logger *zap.Logger) Engine {
	if cfg == nil {
		cfg = config.Default("default")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Ledger: ledger.New(db, logger),
		Config: cfg,
		Logger: logger,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// Today is the current calendar date in the clock's location.
func (e Engine) Today() string {
	return domain.FormatDate(e.now())
}

func (e Engine) horizonDays() int {
	if e.Config != nil && e.Config.Scheduling.HorizonDays > 0 {
		return e.Config.Scheduling.HorizonDays
	}
	return 14
}

func (e Engine) overloadThreshold() float64 {
	if e.Config != nil && e.Config.Scheduling.OverloadThreshold > 0 {
		return e.Config.Scheduling.OverloadThreshold
	}
	return 0.8
}

// OverloadWindow is the number of days overload detection looks ahead by default.
func (e Engine) OverloadWindow() int {
	if e.Config != nil && e.Config.Scheduling.OverloadWindow > 0 {
		return e.Config.Scheduling.OverloadWindow
	}
	return 7
}

// Window resolves an optional [from, to] range. An empty from is today and an
// empty to ends the range days days after from, inclusive.
func (e Engine) Window(from, to string, days int) (string, string, error) {
	if from == "" {
		from = e.Today()
	}
	if to == "" {
		end, err := domain.AddDays(from, days-1)
		if err != nil {
			return "", "", domain.InvalidTask("%v", err)
		}
		to = end
	}
	return from, to, nil
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return domain.NotFound(kind, id)
	}
	return err
}

// WorkspaceCreateOptions are parameters for creating a workspace.
type WorkspaceCreateOptions struct {
	ID             string
	Name           string
	Role           domain.Role
	DailyTimeLimit int
}

func (e Engine) CreateWorkspace(ctx context.Context, opts WorkspaceCreateOptions) (domain.Workspace, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.Workspace{}, errors.New("workspace name is required")
	}
	role := opts.Role
	if role == "" {
		role = domain.RoleGeneral
	}
	if _, err := domain.ParseRole(string(role)); err != nil {
		return domain.Workspace{}, err
	}
	limit := opts.DailyTimeLimit
	if limit == 0 {
		limit = e.Config.RoleLimit(role)
	}
	if err := config.ValidateLimit(limit); err != nil {
		return domain.Workspace{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := e.timestamp()
	w := domain.Workspace{ID: id, Name: name, Role: role, DailyTimeLimit: limit, CreatedAt: now, UpdatedAt: now}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Workspace{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertWorkspace(ctx, tx, w); err != nil {
		return domain.Workspace{}, fmt.Errorf("insert workspace: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.WorkspaceCreated, w.ID, "workspace", w.ID, events.EventPayload{
		"role":  w.Role,
		"limit": w.DailyTimeLimit,
	}); err != nil {
		return domain.Workspace{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Workspace{}, err
	}
	return w, nil
}

// SetDailyLimit changes the default limit for dates that have no capacity record yet.
// Existing records keep the limit they were created with.
func (e Engine) SetDailyLimit(ctx context.Context, workspaceID string, limit int) (domain.Workspace, error) {
	if err := config.ValidateLimit(limit); err != nil {
		return domain.Workspace{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Workspace{}, err
	}
	defer tx.Rollback()
	w, err := e.Repo.GetWorkspaceTx(ctx, tx, workspaceID)
	if err != nil {
		return domain.Workspace{}, notFound("workspace", workspaceID, err)
	}
	w.DailyTimeLimit = limit
	w.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateWorkspaceLimit(ctx, tx, w.ID, limit, w.UpdatedAt); err != nil {
		return domain.Workspace{}, err
	}
	if err := e.Events.Append(ctx, tx, events.WorkspaceLimitUpdated, w.ID, "workspace", w.ID, events.EventPayload{"limit": limit}); err != nil {
		return domain.Workspace{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Workspace{}, err
	}
	return w, nil
}

func (e Engine) GetWorkspace(ctx context.Context, id string) (domain.Workspace, error) {
	w, err := e.Repo.GetWorkspace(ctx, id)
	if err != nil {
		return w, notFound("workspace", id, err)
	}
	return w, nil
}

// History returns execution history entries with from <= date <= to.
func (e Engine) History(ctx context.Context, workspaceID, from, to string) ([]domain.HistoryEntry, error) {
	return e.Repo.ListHistory(ctx, repo.HistoryFilters{WorkspaceID: workspaceID, From: from, To: to})
}
