package app

import (
	"context"
	"errors"
	"fmt"

	"focusly/internal/config"
	"focusly/internal/domain"
	"focusly/internal/engine"
	"focusly/internal/repo"
)

// ResolveWorkspace picks the active workspace: the override when given, else the
// only workspace in the database. An empty database is seeded from cfg.
func ResolveWorkspace(ctx context.Context, eng engine.Engine, override string, cfg *config.Config) (domain.Workspace, error) {
	if override != "" {
		return eng.GetWorkspace(ctx, override)
	}
	w, err := eng.Repo.SingleWorkspace(ctx)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Workspace{}, err
	}
	if cfg == nil {
		cfg = config.Default("default")
	}
	w, err = eng.CreateWorkspace(ctx, engine.WorkspaceCreateOptions{
		Name:           cfg.Workspace.Name,
		Role:           domain.Role(cfg.Workspace.Role),
		DailyTimeLimit: cfg.DailyLimit(),
	})
	if err != nil {
		return domain.Workspace{}, fmt.Errorf("seed workspace: %w", err)
	}
	return w, nil
}
