package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"focusly/internal/app"
	"focusly/internal/config"
	"focusly/internal/db"
	"focusly/internal/domain"
	"focusly/internal/engine"
	"focusly/internal/logger"
	"focusly/internal/migrate"
)

var rootCmd = &cobra.Command{
	Use:   "fl",
	Short: "Focusly CLI",
	Long: `Focusly plans tasks against a daily time budget.
Core concepts:
- Workspace: a person's plan with a daily time limit in minutes, stored in .focusly/focusly.db.
- Capacity: minutes allocated per date. A task holds its estimated minutes on its due date
  from creation until it is deleted or moved; completing or failing it does not free them.
- Admission: creating, moving or regenerating a task only succeeds if the date has room.
- Recurrence: completing a recurring task admits the next instance; if that date is full
  the miss is recorded and can be resumed with 'fl recurrence resume'.
- Carry-over: 'fl carryover' moves overdue pending tasks onto today while they fit.
- Event log: every change is recorded, view with 'fl log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		_ = godotenv.Load(filepath.Join(workspace, ".env"))
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FOCUSLY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("ws", "", "workspace id (defaults to the only workspace)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides focusly.yml)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("ws", rootCmd.PersistentFlags().Lookup("ws"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(workspaceCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(carryOverCmd())
	rootCmd.AddCommand(capacityCmd())
	rootCmd.AddCommand(overloadCmd())
	rootCmd.AddCommand(rebalanceCmd())
	rootCmd.AddCommand(focusCmd())
	rootCmd.AddCommand(estimateCmd())
	rootCmd.AddCommand(convertCmd())
	rootCmd.AddCommand(diagnoseCmd())
	rootCmd.AddCommand(insightsCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(recurrenceCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Workspace configuration (focusly.yml)"}
	cmd.AddCommand(configInitCmd())
	cmd.AddCommand(configShowCmd())
	cmd.AddCommand(configValidateCmd())
	return cmd
}

func configInitCmd() *cobra.Command {
	var name string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default focusly.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if name == "" {
				name = workspaceName(workspace)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(name)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "workspace name")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate focusly.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(viper.GetString("workspace")); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every change: task lifecycle, reschedules, recurrence misses and ledger repairs.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, w domain.Workspace) error {
				events, err := e.Repo.LatestEvents(ctx, repoEventFilters(w.ID, evtType, entityKind, entityID, n))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				rows := make([]table.Row, 0, len(events))
				for _, evt := range events {
					rows = append(rows, table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind, evt.EntityID, evt.Payload})
				}
				renderTable(table.Row{"ID", "Time", "Type", "Kind", "Entity", "Payload"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

// --- helpers ---

func workspaceName(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "default"
	}
	return filepath.Base(abs)
}

// loadConfig reads focusly.yml, falling back to defaults when the file is absent.
func loadConfig(workspace string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default(workspaceName(workspace))
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level := viper.GetString("log-level")
	if level == "" {
		level = cfg.Logging.Level
	}
	return logger.New(logger.Config{Level: level, Encoding: cfg.Logging.Encoding})
}

// openEngine opens and migrates the workspace database. The caller closes the returned func.
func openEngine() (engine.Engine, *config.Config, func(), error) {
	workspace := viper.GetString("workspace")
	cfg, err := loadConfig(workspace)
	if err != nil {
		return engine.Engine{}, nil, nil, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return engine.Engine{}, nil, nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return engine.Engine{}, nil, nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return engine.Engine{}, nil, nil, err
	}
	closeFn := func() {
		_ = log.Sync()
		conn.Close()
	}
	return engine.New(conn, cfg, log), cfg, closeFn, nil
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, domain.Workspace) error) error {
	e, cfg, closeFn, err := openEngine()
	if err != nil {
		return err
	}
	defer closeFn()
	w, err := app.ResolveWorkspace(ctx, e, viper.GetString("ws"), cfg)
	if err != nil {
		return err
	}
	return fn(ctx, e, w)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderTable(header table.Row, rows []table.Row) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	tw.AppendRows(rows)
	tw.Render()
}

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
