package engine_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"focusly/internal/config"
	"focusly/internal/db"
	"focusly/internal/domain"
	"focusly/internal/engine"
	"focusly/internal/migrate"
	"focusly/internal/repo"
)

type testEnv struct {
	Engine    engine.Engine
	Ctx       context.Context
	Workspace domain.Workspace
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("test")
	eng := engine.New(conn, cfg, nil)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	ws, err := eng.CreateWorkspace(ctx, engine.WorkspaceCreateOptions{ID: "ws-1", Name: "test", Role: domain.RoleProfessional, DailyTimeLimit: 480})
	if err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Workspace: ws}
}

func (env testEnv) create(t *testing.T, name string, minutes int, priority domain.Priority, due string) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		WorkspaceID:       env.Workspace.ID,
		Name:              name,
		EstimatedDuration: minutes,
		Priority:          priority,
		DueDate:           due,
	})
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return task
}

func (env testEnv) allocated(t *testing.T, date string) int {
	t.Helper()
	rec, err := env.Engine.Ledger.Get(env.Ctx, env.Workspace.ID, date)
	require.NoError(t, err)
	return rec.Allocated
}

func TestCreateTaskAdmission(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "one", 200, domain.PriorityMedium, "2024-01-02")
	env.create(t, "two", 200, domain.PriorityMedium, "2024-01-02")
	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		WorkspaceID: env.Workspace.ID, Name: "three", EstimatedDuration: 200, DueDate: "2024-01-02",
	})
	require.ErrorIs(t, err, domain.ErrCapacityExceeded)
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	require.Equal(t, env.Workspace.ID, de.WorkspaceID)
	require.Equal(t, "2024-01-02", de.Date)

	require.Equal(t, 400, env.allocated(t, "2024-01-02"))
	tasks, err := env.Engine.ListTasks(env.Ctx, repo.TaskFilters{WorkspaceID: env.Workspace.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		require.Equal(t, domain.StatusPending, task.Status)
		require.Equal(t, 0, task.RescheduleCount)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := map[string]engine.TaskCreateOptions{
		"empty name":       {WorkspaceID: env.Workspace.ID, EstimatedDuration: 10},
		"zero duration":    {WorkspaceID: env.Workspace.ID, Name: "x"},
		"bad priority":     {WorkspaceID: env.Workspace.ID, Name: "x", EstimatedDuration: 10, Priority: "critical"},
		"bad date":         {WorkspaceID: env.Workspace.ID, Name: "x", EstimatedDuration: 10, DueDate: "01/02/2024"},
		"bad frequency":    {WorkspaceID: env.Workspace.ID, Name: "x", EstimatedDuration: 10, DueDate: "2024-01-02", Recurrence: &domain.Recurrence{Frequency: "yearly", Interval: 1}},
		"zero interval":    {WorkspaceID: env.Workspace.ID, Name: "x", EstimatedDuration: 10, DueDate: "2024-01-02", Recurrence: &domain.Recurrence{Frequency: domain.FrequencyDaily}},
		"recurring no due": {WorkspaceID: env.Workspace.ID, Name: "x", EstimatedDuration: 10, Recurrence: &domain.Recurrence{Frequency: domain.FrequencyDaily, Interval: 1}},
		"unknown dep":      {WorkspaceID: env.Workspace.ID, Name: "x", EstimatedDuration: 10, Dependencies: []string{"nope"}},
	}
	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.Engine.CreateTask(env.Ctx, opts)
			require.ErrorIs(t, err, domain.ErrInvalidTask)
		})
	}
	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{WorkspaceID: "missing", Name: "x", EstimatedDuration: 10})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUnscheduledTaskSkipsLedger(t *testing.T) {
	env := newTestEnv(t)
	task := env.create(t, "someday", 600, domain.PriorityLow, "")
	require.False(t, task.Scheduled())
	require.Equal(t, 0, env.allocated(t, "2024-01-01"))

	moved, err := env.Engine.Reschedule(env.Ctx, task.ID, "2024-01-03")
	require.ErrorIs(t, err, domain.ErrCapacityExceeded)
	require.Empty(t, moved.ID)

	task2 := env.create(t, "small someday", 60, domain.PriorityLow, "")
	moved, err = env.Engine.Reschedule(env.Ctx, task2.ID, "2024-01-03")
	require.NoError(t, err)
	require.Equal(t, "2024-01-03", moved.Due())
	require.Equal(t, 60, env.allocated(t, "2024-01-03"))
}

func TestConcurrentCreatesNeverExceedLimit(t *testing.T) {
	env := newTestEnv(t)
	var admitted atomic.Int32
	var g errgroup.Group
	for i := 0; i < 12; i++ {
		g.Go(func() error {
			_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
				WorkspaceID: env.Workspace.ID, Name: "parallel", EstimatedDuration: 100, DueDate: "2024-01-04",
			})
			if errors.Is(err, domain.ErrCapacityExceeded) {
				return nil
			}
			if err == nil {
				admitted.Add(1)
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, int32(4), admitted.Load())
	require.Equal(t, 400, env.allocated(t, "2024-01-04"))
}

func TestCompleteNonRecurringLeavesLedger(t *testing.T) {
	env := newTestEnv(t)
	task := env.create(t, "report", 90, domain.PriorityHigh, "2024-01-02")
	actual := 75
	res, err := env.Engine.CompleteTask(env.Ctx, task.ID, engine.CompleteOptions{ActualDuration: &actual})
	require.NoError(t, err)
	require.Nil(t, res.Next)
	require.Nil(t, res.RecurrenceFailure)
	require.Equal(t, domain.StatusCompleted, res.Task.Status)
	require.NotNil(t, res.Task.CompletedAt)
	require.Equal(t, 75, *res.Task.ActualDuration)
	require.Equal(t, 90, env.allocated(t, "2024-01-02"))

	history, err := env.Engine.History(env.Ctx, env.Workspace.ID, "2024-01-01", "2024-01-07")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, domain.StatusCompleted, history[0].Outcome)
	require.Equal(t, 90, history[0].EstimatedDuration)
	require.Equal(t, 75, history[0].ActualDuration)

	_, err = env.Engine.CompleteTask(env.Ctx, task.ID, engine.CompleteOptions{})
	require.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = env.Engine.CompleteTask(env.Ctx, "missing", engine.CompleteOptions{})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWeeklyRecurrenceChain(t *testing.T) {
	env := newTestEnv(t)
	first, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		WorkspaceID:       env.Workspace.ID,
		Name:              "review",
		EstimatedDuration: 60,
		DueDate:           "2024-01-01",
		Recurrence:        &domain.Recurrence{Frequency: domain.FrequencyWeekly, Interval: 1},
	})
	require.NoError(t, err)

	res, err := env.Engine.CompleteTask(env.Ctx, first.ID, engine.CompleteOptions{})
	require.NoError(t, err)
	require.NotNil(t, res.Next)
	require.Nil(t, res.RecurrenceFailure)
	second := *res.Next
	require.Equal(t, "2024-01-08", second.Due())
	require.Equal(t, domain.StatusPending, second.Status)
	require.Equal(t, 0, second.RescheduleCount)
	require.Nil(t, second.CompletedAt)
	require.Equal(t, first.ID, *second.ParentID)
	require.Equal(t, 60, env.allocated(t, "2024-01-08"))
	require.Equal(t, 60, env.allocated(t, "2024-01-01"))

	res, err = env.Engine.CompleteTask(env.Ctx, second.ID, engine.CompleteOptions{})
	require.NoError(t, err)
	require.Equal(t, "2024-01-15", res.Next.Due())
	require.Equal(t, first.ID, *res.Next.ParentID)

	chain, err := env.Engine.ListTasks(env.Ctx, repo.TaskFilters{ParentID: first.ID})
	require.NoError(t, err)
	require.Len(t, chain, 3)
}

func TestRecurrenceAdmissionFailureIsRecorded(t *testing.T) {
	env := newTestEnv(t)
	daily, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		WorkspaceID:       env.Workspace.ID,
		Name:              "workout",
		EstimatedDuration: 120,
		DueDate:           "2024-01-02",
		Recurrence:        &domain.Recurrence{Frequency: domain.FrequencyDaily, Interval: 1},
	})
	require.NoError(t, err)
	env.create(t, "full day", 400, domain.PriorityHigh, "2024-01-03")

	res, err := env.Engine.CompleteTask(env.Ctx, daily.ID, engine.CompleteOptions{})
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, res.Task.Status)
	require.Nil(t, res.Next)
	require.NotNil(t, res.RecurrenceFailure)
	require.Equal(t, "2024-01-03", res.RecurrenceFailure.NextDueDate)
	require.Equal(t, daily.ID, res.RecurrenceFailure.RootID)
	require.Equal(t, 400, env.allocated(t, "2024-01-03"))

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{WorkspaceID: env.Workspace.ID, Type: "recurrence.admission_failed"})
	require.NoError(t, err)
	require.Len(t, evts, 1)

	failures, err := env.Engine.ListRecurrenceFailures(env.Ctx, env.Workspace.ID, true)
	require.NoError(t, err)
	require.Len(t, failures, 1)

	next, err := env.Engine.ResumeRecurrence(env.Ctx, failures[0].ID, "")
	require.NoError(t, err)
	require.Equal(t, "2024-01-04", next.Due())
	require.Equal(t, daily.ID, *next.ParentID)
	require.Equal(t, 120, env.allocated(t, "2024-01-04"))

	failures, err = env.Engine.ListRecurrenceFailures(env.Ctx, env.Workspace.ID, true)
	require.NoError(t, err)
	require.Empty(t, failures)
	_, err = env.Engine.ResumeRecurrence(env.Ctx, res.RecurrenceFailure.ID, "2024-01-05")
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestResumeRecurrenceAfterSourceDeleted(t *testing.T) {
	env := newTestEnv(t)
	daily, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		WorkspaceID:       env.Workspace.ID,
		Name:              "standup notes",
		Description:       "post in the team channel",
		EstimatedDuration: 90,
		Priority:          domain.PriorityHigh,
		DueDate:           "2024-01-02",
		Recurrence:        &domain.Recurrence{Frequency: domain.FrequencyDaily, Interval: 2},
	})
	require.NoError(t, err)
	env.create(t, "offsite", 420, domain.PriorityUrgent, "2024-01-04")

	res, err := env.Engine.CompleteTask(env.Ctx, daily.ID, engine.CompleteOptions{})
	require.NoError(t, err)
	require.NotNil(t, res.RecurrenceFailure)
	failure := *res.RecurrenceFailure
	require.Equal(t, "standup notes", failure.TaskName)
	require.Equal(t, domain.PriorityHigh, failure.Priority)
	require.Equal(t, domain.Recurrence{Frequency: domain.FrequencyDaily, Interval: 2}, failure.Recurrence)

	require.NoError(t, env.Engine.DeleteTask(env.Ctx, daily.ID))
	_, err = env.Engine.GetTask(env.Ctx, daily.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	stored, err := env.Engine.ListRecurrenceFailures(env.Ctx, env.Workspace.ID, true)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, "post in the team channel", stored[0].Description)

	next, err := env.Engine.ResumeRecurrence(env.Ctx, failure.ID, "2024-01-05")
	require.NoError(t, err)
	require.Equal(t, "standup notes", next.Name)
	require.Equal(t, "post in the team channel", next.Description)
	require.Equal(t, domain.PriorityHigh, next.Priority)
	require.Equal(t, 90, next.EstimatedDuration)
	require.Equal(t, "2024-01-05", next.Due())
	require.Equal(t, daily.ID, *next.ParentID)
	require.Equal(t, &domain.Recurrence{Frequency: domain.FrequencyDaily, Interval: 2}, next.Recurrence)
	require.Equal(t, 90, env.allocated(t, "2024-01-05"))

	stored, err = env.Engine.ListRecurrenceFailures(env.Ctx, env.Workspace.ID, true)
	require.NoError(t, err)
	require.Empty(t, stored)
}

func TestFailTaskRetainsSlot(t *testing.T) {
	env := newTestEnv(t)
	task := env.create(t, "essay", 120, domain.PriorityLow, "2024-01-02")
	failed, err := env.Engine.FailTask(env.Ctx, task.ID, "ran out of time")
	require.NoError(t, err)
	require.Equal(t, domain.StatusFailed, failed.Status)
	require.Equal(t, "ran out of time", *failed.FailureReason)
	require.NotNil(t, failed.FailedAt)
	require.Equal(t, 120, env.allocated(t, "2024-01-02"))

	history, err := env.Engine.History(env.Ctx, env.Workspace.ID, "", "")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, domain.StatusFailed, history[0].Outcome)

	_, err = env.Engine.FailTask(env.Ctx, task.ID, "again")
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestDeleteTaskReleasesOnce(t *testing.T) {
	env := newTestEnv(t)
	pending := env.create(t, "a", 100, domain.PriorityLow, "2024-01-02")
	done := env.create(t, "b", 50, domain.PriorityLow, "2024-01-02")
	_, err := env.Engine.CompleteTask(env.Ctx, done.ID, engine.CompleteOptions{})
	require.NoError(t, err)
	require.Equal(t, 150, env.allocated(t, "2024-01-02"))

	require.NoError(t, env.Engine.DeleteTask(env.Ctx, pending.ID))
	require.Equal(t, 50, env.allocated(t, "2024-01-02"))
	require.NoError(t, env.Engine.DeleteTask(env.Ctx, done.ID))
	require.Equal(t, 0, env.allocated(t, "2024-01-02"))

	require.ErrorIs(t, env.Engine.DeleteTask(env.Ctx, pending.ID), domain.ErrNotFound)
	history, err := env.Engine.History(env.Ctx, env.Workspace.ID, "", "")
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestRescheduleIsAtomic(t *testing.T) {
	env := newTestEnv(t)
	task := env.create(t, "move me", 200, domain.PriorityMedium, "2024-01-02")
	env.create(t, "blocker", 400, domain.PriorityMedium, "2024-01-03")

	_, err := env.Engine.Reschedule(env.Ctx, task.ID, "2024-01-03")
	require.ErrorIs(t, err, domain.ErrCapacityExceeded)
	got, err := env.Engine.GetTask(env.Ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, "2024-01-02", got.Due())
	require.Equal(t, 0, got.RescheduleCount)
	require.Equal(t, 200, env.allocated(t, "2024-01-02"))
	require.Equal(t, 400, env.allocated(t, "2024-01-03"))

	moved, err := env.Engine.Reschedule(env.Ctx, task.ID, "2024-01-04")
	require.NoError(t, err)
	require.Equal(t, "2024-01-04", moved.Due())
	require.Equal(t, 1, moved.RescheduleCount)
	require.Equal(t, 0, env.allocated(t, "2024-01-02"))
	require.Equal(t, 200, env.allocated(t, "2024-01-04"))

	same, err := env.Engine.Reschedule(env.Ctx, task.ID, "2024-01-04")
	require.NoError(t, err)
	require.Equal(t, 1, same.RescheduleCount)
	require.Equal(t, 200, env.allocated(t, "2024-01-04"))

	_, err = env.Engine.CompleteTask(env.Ctx, task.ID, engine.CompleteOptions{})
	require.NoError(t, err)
	_, err = env.Engine.Reschedule(env.Ctx, task.ID, "2024-01-05")
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestFindAvailableDate(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "d2", 450, domain.PriorityMedium, "2024-01-02")
	env.create(t, "d3", 420, domain.PriorityMedium, "2024-01-03")

	s, err := env.Engine.FindAvailableDate(env.Ctx, env.Workspace.ID, 60, "2024-01-01", 0)
	require.NoError(t, err)
	require.True(t, s.Confirmed)
	require.Equal(t, "2024-01-03", s.Date)

	s, err = env.Engine.FindAvailableDate(env.Ctx, env.Workspace.ID, 61, "2024-01-01", 2)
	require.NoError(t, err)
	require.False(t, s.Confirmed)
	require.Equal(t, "2024-01-04", s.Date)

	s, err = env.Engine.FindAvailableDate(env.Ctx, env.Workspace.ID, 500, "2024-01-01", 0)
	require.NoError(t, err)
	require.False(t, s.Confirmed)
	require.Equal(t, "2024-01-16", s.Date)
}

func TestProcessCarryOverIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Now = func() time.Time { return time.Date(2023, 12, 28, 9, 0, 0, 0, time.UTC) }
	a := env.create(t, "a", 200, domain.PriorityMedium, "2023-12-29")
	b := env.create(t, "b", 200, domain.PriorityMedium, "2023-12-30")
	c := env.create(t, "c", 200, domain.PriorityMedium, "2023-12-31")
	future := env.create(t, "future", 30, domain.PriorityMedium, "2024-01-05")

	first, err := env.Engine.ProcessCarryOver(env.Ctx, env.Workspace.ID, "2024-01-01")
	require.NoError(t, err)
	require.Len(t, first, 3)
	require.Equal(t, a.ID, first[0].TaskID)
	require.Equal(t, domain.CarriedOver, first[0].Outcome)
	require.Equal(t, b.ID, first[1].TaskID)
	require.Equal(t, domain.CarriedOver, first[1].Outcome)
	require.Equal(t, c.ID, first[2].TaskID)
	require.Equal(t, domain.BlockedByCapacity, first[2].Outcome)
	require.Equal(t, 400, env.allocated(t, "2024-01-01"))
	require.Equal(t, 0, env.allocated(t, "2023-12-29"))
	require.Equal(t, 200, env.allocated(t, "2023-12-31"))

	second, err := env.Engine.ProcessCarryOver(env.Ctx, env.Workspace.ID, "2024-01-01")
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, c.ID, second[0].TaskID)
	require.Equal(t, domain.BlockedByCapacity, second[0].Outcome)
	require.Equal(t, 400, env.allocated(t, "2024-01-01"))

	got, err := env.Engine.GetTask(env.Ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, "2024-01-01", got.Due())
	require.Equal(t, 1, got.RescheduleCount)
	got, err = env.Engine.GetTask(env.Ctx, future.ID)
	require.NoError(t, err)
	require.Equal(t, "2024-01-05", got.Due())
}

func TestBlockedTasks(t *testing.T) {
	env := newTestEnv(t)
	dep := env.create(t, "dep", 30, domain.PriorityMedium, "2024-01-02")
	main, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		WorkspaceID: env.Workspace.ID, Name: "main", EstimatedDuration: 30, DueDate: "2024-01-03", Dependencies: []string{dep.ID, dep.ID},
	})
	require.NoError(t, err)
	require.Equal(t, []string{dep.ID}, main.Dependencies)

	blocked, err := env.Engine.GetBlockedTasks(env.Ctx, env.Workspace.ID)
	require.NoError(t, err)
	require.Len(t, blocked, 1)
	require.Equal(t, main.ID, blocked[0].ID)

	// informational only: completing a blocked task is allowed
	_, err = env.Engine.CompleteTask(env.Ctx, dep.ID, engine.CompleteOptions{})
	require.NoError(t, err)
	blocked, err = env.Engine.GetBlockedTasks(env.Ctx, env.Workspace.ID)
	require.NoError(t, err)
	require.Empty(t, blocked)
}

func TestDetectOverloadAndRebalance(t *testing.T) {
	env := newTestEnv(t)
	low := env.create(t, "low", 60, domain.PriorityLow, "2024-01-02")
	env.create(t, "urgent", 200, domain.PriorityUrgent, "2024-01-02")
	medium1 := env.create(t, "medium one", 100, domain.PriorityMedium, "2024-01-02")
	medium2 := env.create(t, "medium two", 100, domain.PriorityMedium, "2024-01-02")
	env.create(t, "next day", 440, domain.PriorityHigh, "2024-01-03")

	days, err := env.Engine.DetectOverload(env.Ctx, env.Workspace.ID, "2024-01-01", "2024-01-07")
	require.NoError(t, err)
	require.Len(t, days, 2)
	require.Equal(t, "2024-01-02", days[0].Date)
	require.Equal(t, 460, days[0].Allocated)
	require.InDelta(t, 95.8, days[0].OverloadPercent, 0.01)
	require.Len(t, days[0].Tasks, 4)

	// pretend the day is over its limit so more than one task must move
	days[0].Allocated = 700
	suggestions, err := env.Engine.RebalanceSchedule(env.Ctx, env.Workspace.ID, days[:1])
	require.NoError(t, err)
	require.Len(t, suggestions, 3)
	require.Equal(t, low.ID, suggestions[0].TaskID)
	require.Equal(t, medium1.ID, suggestions[1].TaskID)
	require.Equal(t, medium2.ID, suggestions[2].TaskID)
	require.Equal(t, "2024-01-04", suggestions[0].SuggestedDate)
	require.True(t, suggestions[0].Confirmed)

	// nothing was committed
	require.Equal(t, 460, env.allocated(t, "2024-01-02"))

	moved, skipped, err := env.Engine.ApplySuggestions(env.Ctx, suggestions[:1])
	require.NoError(t, err)
	require.Empty(t, skipped)
	require.Len(t, moved, 1)
	require.Equal(t, 400, env.allocated(t, "2024-01-02"))
}

func TestRebalanceAccountsForEarlierProposals(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "a", 300, domain.PriorityLow, "2024-01-02")
	b := env.create(t, "b", 100, domain.PriorityLow, "2024-01-02")
	c := env.create(t, "c", 80, domain.PriorityLow, "2024-01-02")
	env.create(t, "existing", 100, domain.PriorityHigh, "2024-01-03")

	suggestions, err := env.Engine.RebalanceSchedule(env.Ctx, env.Workspace.ID, []engine.OverloadDay{{
		Date: "2024-01-02", Allocated: 1000, Limit: 480,
		Tasks: []domain.Task{a, b, c},
	}})
	require.NoError(t, err)
	require.Len(t, suggestions, 3)
	require.Equal(t, "2024-01-03", suggestions[0].SuggestedDate)
	require.Equal(t, "2024-01-04", suggestions[1].SuggestedDate)
	require.Equal(t, "2024-01-03", suggestions[2].SuggestedDate)
	for _, s := range suggestions {
		require.True(t, s.Confirmed)
	}
}

func TestSuggestDailyFocus(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Now = func() time.Time { return time.Date(2023, 12, 30, 9, 0, 0, 0, time.UTC) }
	overdue := env.create(t, "overdue", 60, domain.PriorityLow, "2023-12-31")
	env.Engine.Now = func() time.Time { return time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC) }
	done := env.create(t, "done", 300, domain.PriorityHigh, "2024-01-01")
	big := env.create(t, "big", 150, domain.PriorityUrgent, "2024-01-01")
	env.create(t, "later", 30, domain.PriorityUrgent, "2024-01-05")
	_, err := env.Engine.CompleteTask(env.Ctx, done.ID, engine.CompleteOptions{})
	require.NoError(t, err)

	// Only the 300 completed minutes count as spent; today's pending "big" is a candidate.
	focus, err := env.Engine.SuggestDailyFocus(env.Ctx, env.Workspace.ID, "2024-01-01")
	require.NoError(t, err)
	require.Equal(t, 180, focus.AvailableMinutes)
	require.Len(t, focus.Selected, 1)
	require.Equal(t, big.ID, focus.Selected[0].ID)
	require.Equal(t, 150, focus.TotalMinutes)
	require.Len(t, focus.Scores, 2)
	require.Equal(t, overdue.ID, focus.Scores[1].Task.ID)
}

func TestWeeklyReportAndDiagnose(t *testing.T) {
	env := newTestEnv(t)
	var tasks []domain.Task
	for i, due := range []string{"2024-01-01", "2024-01-02", "2024-01-03"} {
		tasks = append(tasks, env.create(t, "task", 40+i, domain.PriorityMedium, due))
	}
	missed := env.create(t, "missed", 180, domain.PriorityHigh, "2024-01-02")
	for i, task := range tasks {
		day := time.Date(2024, 1, 1+i, 18, 0, 0, 0, time.UTC)
		env.Engine.Now = func() time.Time { return day }
		_, err := env.Engine.CompleteTask(env.Ctx, task.ID, engine.CompleteOptions{})
		require.NoError(t, err)
	}
	report, err := env.Engine.WeeklyReport(env.Ctx, env.Workspace.ID, "2024-01-03")
	require.NoError(t, err)
	require.Equal(t, 3, report.Stats.TotalCompleted)
	require.Equal(t, 4, report.Stats.TotalPlanned)
	require.InDelta(t, 75.0, report.Stats.CompletionRate, 0.001)
	require.Equal(t, 3, report.Stats.Streak)
	require.InDelta(t, 0.4, report.Stats.Velocity, 0.001)
	require.NotEmpty(t, report.Insights)

	diagnoses, err := env.Engine.Diagnose(env.Ctx, env.Workspace.ID, "2024-01-03")
	require.NoError(t, err)
	require.Len(t, diagnoses, 1)
	require.Equal(t, missed.ID, diagnoses[0].TaskID)
	require.Equal(t, "complexity", string(diagnoses[0].Reason))
}

func TestConvertNote(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.ConvertNote(env.Ctx, engine.ConvertNoteOptions{
		WorkspaceID: env.Workspace.ID,
		Text:        "Finish the quarterly report urgently. Numbers are in the shared drive.",
		Today:       "2024-01-01",
	})
	require.NoError(t, err)
	require.Nil(t, res.Task)
	require.Equal(t, "Finish the quarterly report urgently", res.Conversion.Name)
	require.Equal(t, domain.PriorityUrgent, res.Conversion.Priority)
	require.Equal(t, "2024-01-01", res.Conversion.SuggestedDate)

	env.create(t, "filler", 470, domain.PriorityLow, "2024-01-01")
	res, err = env.Engine.ConvertNote(env.Ctx, engine.ConvertNoteOptions{
		WorkspaceID: env.Workspace.ID,
		Text:        "Call the dentist asap",
		Today:       "2024-01-01",
		Create:      true,
		FindSlot:    true,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Task)
	require.Equal(t, "2024-01-02", res.Task.Due())
	require.Equal(t, 30, res.Task.EstimatedDuration)
}

func TestSetDailyLimit(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.SetDailyLimit(env.Ctx, env.Workspace.ID, 30)
	require.Error(t, err)
	w, err := env.Engine.SetDailyLimit(env.Ctx, env.Workspace.ID, 120)
	require.NoError(t, err)
	require.Equal(t, 120, w.DailyTimeLimit)
	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		WorkspaceID: env.Workspace.ID, Name: "too long", EstimatedDuration: 121, DueDate: "2024-01-09",
	})
	require.ErrorIs(t, err, domain.ErrCapacityExceeded)
}

func TestWindowDefaults(t *testing.T) {
	env := newTestEnv(t)
	from, to, err := env.Engine.Window("", "", 7)
	require.NoError(t, err)
	require.Equal(t, "2024-01-01", from)
	require.Equal(t, "2024-01-07", to)

	from, to, err = env.Engine.Window("2024-02-27", "", 3)
	require.NoError(t, err)
	require.Equal(t, "2024-02-27", from)
	require.Equal(t, "2024-02-29", to)

	_, _, err = env.Engine.Window("not-a-date", "", 3)
	require.ErrorIs(t, err, domain.ErrInvalidTask)
	require.Equal(t, 7, env.Engine.OverloadWindow())
}

func TestHistoryIsDatedOnExecutionDay(t *testing.T) {
	env := newTestEnv(t)
	early := env.create(t, "early", 60, domain.PriorityMedium, "2024-01-03")
	late := env.create(t, "late", 30, domain.PriorityLow, "2024-01-02")

	_, err := env.Engine.CompleteTask(env.Ctx, early.ID, engine.CompleteOptions{})
	require.NoError(t, err)
	report, err := env.Engine.WeeklyReport(env.Ctx, env.Workspace.ID, "2024-01-01")
	require.NoError(t, err)
	require.Equal(t, 1, report.Stats.TotalCompleted)
	require.Equal(t, 1, report.Stats.Streak)
	require.Equal(t, 60, report.Stats.TotalTimeSpent)

	env.Engine.Now = func() time.Time { return time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC) }
	_, err = env.Engine.FailTask(env.Ctx, late.ID, "forgot")
	require.NoError(t, err)

	history, err := env.Engine.History(env.Ctx, env.Workspace.ID, "", "")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "2024-01-01", history[0].Date)
	require.Equal(t, domain.StatusCompleted, history[0].Outcome)
	require.Equal(t, "2024-01-05", history[1].Date)
	require.Equal(t, domain.StatusFailed, history[1].Outcome)
	require.Equal(t, 60, env.allocated(t, "2024-01-03"))
}
