package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"focusly/internal/domain"
	"focusly/internal/engine"
)

func workspaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Manage workspaces and their daily time limit",
	}
	cmd.AddCommand(workspaceCreateCmd())
	cmd.AddCommand(workspaceListCmd())
	cmd.AddCommand(workspaceShowCmd())
	cmd.AddCommand(workspaceSetLimitCmd())
	cmd.AddCommand(workspaceUseCmd())
	return cmd
}

func workspaceCreateCmd() *cobra.Command {
	var id, name, role string
	var limit int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, closeFn, err := openEngine()
			if err != nil {
				return err
			}
			defer closeFn()
			var r domain.Role
			if role != "" {
				if r, err = domain.ParseRole(role); err != nil {
					return err
				}
			}
			w, err := e.CreateWorkspace(cmd.Context(), engine.WorkspaceCreateOptions{
				ID:             id,
				Name:           name,
				Role:           r,
				DailyTimeLimit: limit,
			})
			if err != nil {
				return err
			}
			return printJSONOrTable(w)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "workspace id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "workspace name")
	cmd.Flags().StringVar(&role, "role", "", "student|professional|business|general")
	cmd.Flags().IntVar(&limit, "limit", 0, "daily time limit in minutes (role default when 0)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func workspaceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workspaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, closeFn, err := openEngine()
			if err != nil {
				return err
			}
			defer closeFn()
			list, err := e.Repo.ListWorkspaces(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(list)
			}
			rows := make([]table.Row, 0, len(list))
			for _, w := range list {
				rows = append(rows, table.Row{w.ID, w.Name, w.Role, w.DailyTimeLimit})
			}
			renderTable(table.Row{"ID", "Name", "Role", "Daily limit"}, rows)
			return nil
		},
	}
}

func workspaceShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, w domain.Workspace) error {
				return printJSONOrTable(w)
			})
		},
	}
}

func workspaceSetLimitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-limit <minutes>",
		Short: "Change the daily time limit",
		Long:  "Applies to dates without a capacity record yet. Dates already tracked keep their limit.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			minutes, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("minutes must be a number: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, w domain.Workspace) error {
				updated, err := e.SetDailyLimit(ctx, w.ID, minutes)
				if err != nil {
					return err
				}
				return printJSONOrTable(updated)
			})
		},
	}
}

func workspaceUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <workspace-id>",
		Short: "Set the default workspace id in .env",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, closeFn, err := openEngine()
			if err != nil {
				return err
			}
			defer closeFn()
			w, err := e.GetWorkspace(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			envPath := filepath.Join(viper.GetString("workspace"), ".env")
			if err := setEnvValue(envPath, "FOCUSLY_WS", w.ID); err != nil {
				return err
			}
			fmt.Printf("default workspace set to %s (%s)\n", w.ID, w.Name)
			return nil
		},
	}
}
