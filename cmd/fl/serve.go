package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"focusly/internal/engine"
	"focusly/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	var carryOver bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  "Serves the API under --base-path with OpenAPI at /openapi.json and docs at /docs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, closeFn, err := openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if carryOver {
				if err := carryOverAll(ctx, e); err != nil {
					return err
				}
			}

			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Logger: e.Logger})
			if err != nil {
				return err
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				e.Logger.Info("listening", zap.String("addr", addr), zap.String("base_path", basePath))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&carryOver, "carryover", false, "carry overdue tasks onto today for every workspace before serving")
	return cmd
}

// carryOverAll runs carry-over for every workspace concurrently. The ledger
// serializes conflicting dates so workspaces never contend.
func carryOverAll(ctx context.Context, e engine.Engine) error {
	list, err := e.Repo.ListWorkspaces(ctx)
	if err != nil {
		return err
	}
	today := e.Today()
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range list {
		g.Go(func() error {
			res, err := e.ProcessCarryOver(gctx, w.ID, today)
			if err != nil {
				return err
			}
			e.Logger.Debug("startup carry-over", zap.String("workspace_id", w.ID), zap.Int("tasks", len(res)))
			return nil
		})
	}
	return g.Wait()
}
