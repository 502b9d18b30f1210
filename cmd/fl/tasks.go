package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"focusly/internal/domain"
	"focusly/internal/engine"
	"focusly/internal/repo"
)

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Create and track tasks",
		Long: `Tasks hold their estimated minutes on their due date.
Lifecycle: pending -> completed | failed. Only pending tasks can be moved.
Deleting a task frees its minutes whatever its status.`,
	}
	cmd.AddCommand(taskCreateCmd())
	cmd.AddCommand(taskListCmd())
	cmd.AddCommand(taskGetCmd())
	cmd.AddCommand(taskCompleteCmd())
	cmd.AddCommand(taskFailCmd())
	cmd.AddCommand(taskDeleteCmd())
	cmd.AddCommand(taskRescheduleCmd())
	cmd.AddCommand(taskBlockedCmd())
	cmd.AddCommand(taskChainCmd())
	return cmd
}

func taskCreateCmd() *cobra.Command {
	var id, name, description, priority, due, recur string
	var minutes, interval int
	var deps []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task (admitted against its due date)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, w domain.Workspace) error {
				opts := engine.TaskCreateOptions{
					ID:                id,
					WorkspaceID:       w.ID,
					Name:              name,
					Description:       description,
					EstimatedDuration: minutes,
					DueDate:           due,
					Dependencies:      deps,
				}
				if priority != "" {
					p, err := domain.ParsePriority(priority)
					if err != nil {
						return err
					}
					opts.Priority = p
				}
				if recur != "" {
					freq, err := domain.ParseFrequency(recur)
					if err != nil {
						return err
					}
					opts.Recurrence = &domain.Recurrence{Frequency: freq, Interval: interval}
				}
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "task id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "task name")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().IntVar(&minutes, "minutes", 0, "estimated duration in minutes")
	cmd.Flags().StringVar(&priority, "priority", "", "low|medium|high|urgent (default medium)")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD); unscheduled when empty")
	cmd.Flags().StringVar(&recur, "recur", "", "daily|weekly|monthly")
	cmd.Flags().IntVar(&interval, "interval", 1, "recurrence interval")
	cmd.Flags().StringSliceVar(&deps, "depends-on", nil, "dependency task ids")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("minutes")
	return cmd
}

func taskListCmd() *cobra.Command {
	var status, from, to string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, w domain.Workspace) error {
				f := repo.TaskFilters{WorkspaceID: w.ID, DueFrom: from, DueTo: to, Limit: limit}
				if status != "" {
					s, err := domain.ParseStatus(status)
					if err != nil {
						return err
					}
					f.Status = s
				}
				tasks, err := e.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				return printTasks(tasks)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "pending|completed|failed")
	cmd.Flags().StringVar(&from, "from", "", "due on or after (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "due on or before (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 0, "max tasks")
	return cmd
}

func taskGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, w domain.Workspace) error {
				t, err := e.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskCompleteCmd() *cobra.Command {
	var actual int
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete a pending task",
		Long:  "Recurring tasks admit their next instance. When its date is full the miss is recorded, see 'fl recurrence list'.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, w domain.Workspace) error {
				var opts engine.CompleteOptions
				if cmd.Flags().Changed("actual") {
					opts.ActualDuration = &actual
				}
				res, err := e.CompleteTask(ctx, args[0], opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("completed %s\n", res.Task.ID)
				if res.Next != nil {
					fmt.Printf("next instance %s due %s\n", res.Next.ID, res.Next.Due())
				}
				if res.RecurrenceFailure != nil {
					fmt.Printf("next instance not admitted on %s (recorded as %s)\n", res.RecurrenceFailure.NextDueDate, res.RecurrenceFailure.ID)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&actual, "actual", 0, "actual minutes spent (defaults to the estimate)")
	return cmd
}

func taskFailCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "fail <id>",
		Short: "Mark a pending task as failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, w domain.Workspace) error {
				t, err := e.FailTask(ctx, args[0], reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "failure reason")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task and free its minutes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, w domain.Workspace) error {
				if err := e.DeleteTask(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func taskRescheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reschedule <id> <date>",
		Short: "Move a pending task to another date",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, w domain.Workspace) error {
				t, err := e.Reschedule(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskBlockedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "blocked",
		Short: "List pending tasks waiting on unfinished dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, w domain.Workspace) error {
				tasks, err := e.GetBlockedTasks(ctx, w.ID)
				if err != nil {
					return err
				}
				return printTasks(tasks)
			})
		},
	}
}

func taskChainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chain <root-id>",
		Short: "List every instance of a recurring task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, w domain.Workspace) error {
				t, err := e.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				tasks, err := e.ListTasks(ctx, repo.TaskFilters{WorkspaceID: w.ID, ParentID: t.RootID()})
				if err != nil {
					return err
				}
				return printTasks(tasks)
			})
		},
	}
}

func printTasks(tasks []domain.Task) error {
	if viper.GetBool("json") {
		if tasks == nil {
			tasks = []domain.Task{}
		}
		return printJSON(tasks)
	}
	rows := make([]table.Row, 0, len(tasks))
	for _, t := range tasks {
		due := t.Due()
		if due == "" {
			due = "-"
		}
		recur := ""
		if t.Recurrence != nil {
			recur = fmt.Sprintf("%s/%d", t.Recurrence.Frequency, t.Recurrence.Interval)
		}
		rows = append(rows, table.Row{t.ID, t.Name, due, t.EstimatedDuration, t.Priority, t.Status, recur, strings.Join(t.Dependencies, ",")})
	}
	renderTable(table.Row{"ID", "Name", "Due", "Minutes", "Priority", "Status", "Recurs", "Depends on"}, rows)
	return nil
}
