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
)

func focusCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "focus",
		Short: "Suggest what to work on today",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, w domain.Workspace) error {
				if date == "" {
					date = e.Today()
				}
				focus, err := e.SuggestDailyFocus(ctx, w.ID, date)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(focus)
				}
				rows := make([]table.Row, 0, len(focus.Selected))
				for _, t := range focus.Selected {
					rows = append(rows, table.Row{t.ID, t.Name, t.Priority, t.Due(), t.EstimatedDuration})
				}
				renderTable(table.Row{"Task", "Name", "Priority", "Due", "Minutes"}, rows)
				fmt.Printf("%d of %d minutes (%.0f%%)\n", focus.TotalMinutes, focus.AvailableMinutes, focus.Utilization)
				for _, s := range focus.Suggestions {
					fmt.Println("-", s)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "plan date (default today)")
	return cmd
}

func estimateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "estimate <text>",
		Short: "Estimate category, urgency and duration from free text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, w domain.Workspace) error {
				est, err := e.Estimate(ctx, w.ID, strings.Join(args, " "))
				if err != nil {
					return err
				}
				return printJSONOrTable(est)
			})
		},
	}
}

func convertCmd() *cobra.Command {
	var today string
	var create, findSlot bool
	cmd := &cobra.Command{
		Use:   "convert <note>",
		Short: "Turn a note into a task proposal",
		Long:  "Prints the proposal. --create stores it as a task; --find-slot moves it forward when its date is full.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, w domain.Workspace) error {
				res, err := e.ConvertNote(ctx, engine.ConvertNoteOptions{
					WorkspaceID: w.ID,
					Text:        strings.Join(args, " "),
					Today:       today,
					Create:      create,
					FindSlot:    findSlot,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&today, "today", "", "override today (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&create, "create", false, "create the task")
	cmd.Flags().BoolVar(&findSlot, "find-slot", false, "search forward for a date with room")
	return cmd
}

func diagnoseCmd() *cobra.Command {
	var today string
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Explain why tasks were missed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, w domain.Workspace) error {
				if today == "" {
					today = e.Today()
				}
				res, err := e.Diagnose(ctx, w.ID, today)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				rows := make([]table.Row, 0, len(res))
				for _, d := range res {
					rows = append(rows, table.Row{d.TaskID, d.TaskName, d.Reason})
				}
				renderTable(table.Row{"Task", "Name", "Reason"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&today, "today", "", "override today (YYYY-MM-DD)")
	return cmd
}

func insightsCmd() *cobra.Command {
	var today string
	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Weekly productivity report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, w domain.Workspace) error {
				if today == "" {
					today = e.Today()
				}
				report, err := e.WeeklyReport(ctx, w.ID, today)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				s := report.Stats
				fmt.Printf("%s to %s: %d of %d planned completed (%.0f%%), %d minutes, streak %d days\n",
					s.From, s.To, s.TotalCompleted, s.TotalPlanned, s.CompletionRate, s.TotalTimeSpent, s.Streak)
				rows := make([]table.Row, 0, len(s.DailyBreakdown))
				for _, d := range s.DailyBreakdown {
					rows = append(rows, table.Row{d.Date, d.Day, d.Count})
				}
				renderTable(table.Row{"Date", "Day", "Completed"}, rows)
				for _, in := range report.Insights {
					fmt.Printf("[%s] %s\n", in.Type, in.Message)
				}
				for _, p := range report.Patterns {
					fmt.Printf("pattern %s (%s): %s\n", p.ID, p.Severity, p.Message)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&today, "today", "", "override today (YYYY-MM-DD)")
	return cmd
}
