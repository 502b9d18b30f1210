package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"focusly/internal/domain"
	"focusly/internal/engine"
	"focusly/internal/repo"
)

func carryOverCmd() *cobra.Command {
	var today string
	cmd := &cobra.Command{
		Use:   "carryover",
		Short: "Move overdue pending tasks onto today",
		Long:  "Tasks that do not fit today stay where they are and are reported as blocked. Safe to run repeatedly.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, w domain.Workspace) error {
				if today == "" {
					today = e.Today()
				}
				res, err := e.ProcessCarryOver(ctx, w.ID, today)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if len(res) == 0 {
					fmt.Println("nothing overdue")
					return nil
				}
				rows := make([]table.Row, 0, len(res))
				for _, r := range res {
					rows = append(rows, table.Row{r.TaskID, r.TaskName, r.FromDate, r.ToDate, r.Minutes, r.Outcome})
				}
				renderTable(table.Row{"Task", "Name", "From", "To", "Minutes", "Outcome"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&today, "today", "", "override today (YYYY-MM-DD)")
	return cmd
}

func capacityCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "capacity",
		Short: "Show allocated minutes per date",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, w domain.Workspace) error {
				start, end, err := e.Window(from, to, 7)
				if err != nil {
					return err
				}
				recs, err := e.Ledger.ListRange(ctx, w.ID, start, end)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(recs)
				}
				rows := make([]table.Row, 0, len(recs))
				for _, r := range recs {
					rows = append(rows, table.Row{r.Date, r.Allocated, r.Limit, r.Remaining()})
				}
				renderTable(table.Row{"Date", "Allocated", "Limit", "Remaining"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first date (default today)")
	cmd.Flags().StringVar(&to, "to", "", "last date (default a week from --from)")
	cmd.AddCommand(capacityFindCmd())
	return cmd
}

func capacityFindCmd() *cobra.Command {
	var minutes, horizon int
	var after string
	cmd := &cobra.Command{
		Use:   "find",
		Short: "Find the first date with room for a duration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, w domain.Workspace) error {
				if after == "" {
					after = e.Today()
				}
				s, err := e.FindAvailableDate(ctx, w.ID, minutes, after, horizon)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				if s.Confirmed {
					fmt.Printf("%s has room for %d minutes\n", s.Date, minutes)
				} else {
					fmt.Printf("no room within the horizon; earliest candidate %s\n", s.Date)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&minutes, "minutes", 0, "duration in minutes")
	cmd.Flags().StringVar(&after, "after", "", "search from the day after this date (default today)")
	cmd.Flags().IntVar(&horizon, "horizon", 0, "days to search (default from focusly.yml)")
	_ = cmd.MarkFlagRequired("minutes")
	return cmd
}

func overloadCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "overload",
		Short: "List days above the overload threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, w domain.Workspace) error {
				start, end, err := e.Window(from, to, e.OverloadWindow())
				if err != nil {
					return err
				}
				days, err := e.DetectOverload(ctx, w.ID, start, end)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(days)
				}
				printOverload(days)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first date (default today)")
	cmd.Flags().StringVar(&to, "to", "", "last date")
	return cmd
}

func rebalanceCmd() *cobra.Command {
	var from, to string
	var apply bool
	cmd := &cobra.Command{
		Use:   "rebalance",
		Short: "Suggest moving low-priority tasks off overloaded days",
		Long:  "Without --apply nothing changes. With --apply every confirmed suggestion is rescheduled; ones that no longer fit are skipped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, w domain.Workspace) error {
				start, end, err := e.Window(from, to, e.OverloadWindow())
				if err != nil {
					return err
				}
				days, err := e.DetectOverload(ctx, w.ID, start, end)
				if err != nil {
					return err
				}
				suggestions, err := e.RebalanceSchedule(ctx, w.ID, days)
				if err != nil {
					return err
				}
				var moved []domain.Task
				var skipped []engine.RescheduleSuggestion
				if apply {
					moved, skipped, err = e.ApplySuggestions(ctx, suggestions)
					if err != nil {
						return err
					}
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"overloaded":  days,
						"suggestions": suggestions,
						"applied":     apply,
						"moved":       moved,
						"skipped":     skipped,
					})
				}
				if len(suggestions) == 0 {
					fmt.Println("no overloaded days")
					return nil
				}
				rows := make([]table.Row, 0, len(suggestions))
				for _, s := range suggestions {
					rows = append(rows, table.Row{s.TaskID, s.TaskName, s.Priority, s.Minutes, s.CurrentDate, s.SuggestedDate, s.Confirmed})
				}
				renderTable(table.Row{"Task", "Name", "Priority", "Minutes", "From", "To", "Confirmed"}, rows)
				if apply {
					fmt.Printf("moved %d, skipped %d\n", len(moved), len(skipped))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first date (default today)")
	cmd.Flags().StringVar(&to, "to", "", "last date")
	cmd.Flags().BoolVar(&apply, "apply", false, "reschedule confirmed suggestions")
	return cmd
}

func historyCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show completed and failed executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, w domain.Workspace) error {
				entries, err := e.History(ctx, w.ID, from, to)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				rows := make([]table.Row, 0, len(entries))
				for _, h := range entries {
					reason := ""
					if h.FailureReason != nil {
						reason = *h.FailureReason
					}
					rows = append(rows, table.Row{h.Date, h.TaskName, h.Outcome, h.EstimatedDuration, h.ActualDuration, reason})
				}
				renderTable(table.Row{"Date", "Task", "Outcome", "Estimated", "Actual", "Reason"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first date")
	cmd.Flags().StringVar(&to, "to", "", "last date")
	return cmd
}

func recurrenceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recurrence",
		Short: "Recurring instances that could not be admitted",
	}
	cmd.AddCommand(recurrenceListCmd())
	cmd.AddCommand(recurrenceResumeCmd())
	return cmd
}

func recurrenceListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recurrence failures",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, w domain.Workspace) error {
				failures, err := e.ListRecurrenceFailures(ctx, w.ID, !all)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(failures)
				}
				rows := make([]table.Row, 0, len(failures))
				for _, f := range failures {
					resolved := ""
					if f.ResolvedTaskID != nil {
						resolved = *f.ResolvedTaskID
					}
					rows = append(rows, table.Row{f.ID, f.TaskID, f.NextDueDate, f.Duration, resolved})
				}
				renderTable(table.Row{"ID", "Task", "Missed date", "Minutes", "Resumed as"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include resumed failures")
	return cmd
}

func recurrenceResumeCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "resume <failure-id>",
		Short: "Admit the instance a recurrence failure dropped",
		Long:  "Without --date the first date with room from the missed date on is used.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, w domain.Workspace) error {
				t, err := e.ResumeRecurrence(ctx, args[0], date)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "date for the new instance")
	return cmd
}

func printOverload(days []engine.OverloadDay) {
	if len(days) == 0 {
		fmt.Println("no overloaded days")
		return
	}
	rows := make([]table.Row, 0, len(days))
	for _, d := range days {
		rows = append(rows, table.Row{d.Date, d.Allocated, d.Limit, fmt.Sprintf("%.1f%%", d.OverloadPercent), len(d.Tasks)})
	}
	renderTable(table.Row{"Date", "Allocated", "Limit", "Load", "Tasks"}, rows)
}

func repoEventFilters(workspaceID, evtType, entityKind, entityID string, limit int) repo.EventFilters {
	if limit <= 0 {
		limit = 20
	}
	return repo.EventFilters{
		WorkspaceID: workspaceID,
		Type:        evtType,
		EntityKind:  entityKind,
		EntityID:    entityID,
		Limit:       limit,
	}
}
