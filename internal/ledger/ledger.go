package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"focusly/internal/domain"
	"focusly/internal/events"
	"focusly/internal/repo"
)

// Ledger tracks allocated minutes per (workspace, date).
//
// Writers take Lock on every key they touch before opening a transaction, then
// call Admit/Release with that transaction. Admit is a single conditional
// UPDATE, so the limit holds even for callers that skip the lock.
type Ledger struct {
	Repo   repo.Repo
	Events events.Writer
	Logger *zap.Logger
	Now    func() time.Time

	locks *keyedMutex
}

func New(db *sql.DB, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Logger: logger,
		Now:    time.Now,
		locks:  newKeyedMutex(),
	}
}

func (l *Ledger) now() string {
	if l.Now != nil {
		return l.Now().UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}

// Key names the capacity slot for a workspace and date.
func Key(workspaceID, date string) string {
	return workspaceID + "|" + date
}

// Lock serializes writers on the given slot keys. Never call it with a transaction open.
func (l *Ledger) Lock(keys ...string) func() {
	return l.locks.lock(keys...)
}

// Get returns the stored record, or an empty one carrying the workspace limit.
func (l *Ledger) Get(ctx context.Context, workspaceID, date string) (domain.CapacityRecord, error) {
	if _, err := domain.ParseDate(date); err != nil {
		return domain.CapacityRecord{}, domain.InvalidTask("%v", err)
	}
	rec, err := l.Repo.GetCapacity(ctx, workspaceID, date)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return rec, err
	}
	ws, err := l.Repo.GetWorkspace(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.CapacityRecord{}, domain.NotFound("workspace", workspaceID)
		}
		return domain.CapacityRecord{}, err
	}
	return domain.CapacityRecord{WorkspaceID: workspaceID, Date: date, Limit: ws.DailyTimeLimit}, nil
}

// ListRange returns one record per day in [from, to], defaulted where nothing is stored.
func (l *Ledger) ListRange(ctx context.Context, workspaceID, from, to string) ([]domain.CapacityRecord, error) {
	days, err := domain.DaysBetween(from, to)
	if err != nil {
		return nil, domain.InvalidTask("%v", err)
	}
	if days < 0 {
		return nil, domain.InvalidTask("range end %s is before start %s", to, from)
	}
	ws, err := l.Repo.GetWorkspace(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, domain.NotFound("workspace", workspaceID)
		}
		return nil, err
	}
	stored, err := l.Repo.ListCapacity(ctx, workspaceID, from, to)
	if err != nil {
		return nil, err
	}
	byDate := make(map[string]domain.CapacityRecord, len(stored))
	for _, rec := range stored {
		byDate[rec.Date] = rec
	}
	res := make([]domain.CapacityRecord, 0, days+1)
	for i := 0; i <= days; i++ {
		date, _ := domain.AddDays(from, i)
		rec, ok := byDate[date]
		if !ok {
			rec = domain.CapacityRecord{WorkspaceID: workspaceID, Date: date, Limit: ws.DailyTimeLimit}
		}
		res = append(res, rec)
	}
	return res, nil
}

// CanAdmit reports whether minutes fit on the date without reserving them.
func (l *Ledger) CanAdmit(ctx context.Context, workspaceID, date string, minutes int) (bool, error) {
	rec, err := l.Get(ctx, workspaceID, date)
	if err != nil {
		return false, err
	}
	return rec.Allocated+minutes <= rec.Limit, nil
}

// Admit reserves minutes on the date inside tx, or returns a CapacityExceeded error.
func (l *Ledger) Admit(ctx context.Context, tx *sql.Tx, workspaceID, date string, minutes int) error {
	if minutes <= 0 {
		return domain.InvalidTask("duration must be positive, got %d", minutes)
	}
	if _, err := domain.ParseDate(date); err != nil {
		return domain.InvalidTask("%v", err)
	}
	ws, err := l.Repo.GetWorkspaceTx(ctx, tx, workspaceID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.NotFound("workspace", workspaceID)
		}
		return err
	}
	now := l.now()
	if err := l.Repo.EnsureCapacity(ctx, tx, workspaceID, date, ws.DailyTimeLimit, now); err != nil {
		return fmt.Errorf("ensure capacity: %w", err)
	}
	ok, err := l.Repo.IncrementCapacity(ctx, tx, workspaceID, date, minutes, now)
	if err != nil {
		return fmt.Errorf("admit capacity: %w", err)
	}
	if ok {
		return nil
	}
	rec, err := l.Repo.GetCapacityTx(ctx, tx, workspaceID, date)
	if err != nil {
		return err
	}
	return domain.CapacityExceeded(workspaceID, date, minutes, rec.Allocated, rec.Limit)
}

// Release returns minutes to the date inside tx. A release larger than the
// allocation clamps to zero and is recorded as ledger.inconsistent.
func (l *Ledger) Release(ctx context.Context, tx *sql.Tx, workspaceID, date string, minutes int) error {
	if minutes <= 0 {
		return nil
	}
	now := l.now()
	ok, err := l.Repo.DecrementCapacity(ctx, tx, workspaceID, date, minutes, now)
	if err != nil {
		return fmt.Errorf("release capacity: %w", err)
	}
	if ok {
		return nil
	}
	allocated := 0
	rec, err := l.Repo.GetCapacityTx(ctx, tx, workspaceID, date)
	switch {
	case err == nil:
		allocated = rec.Allocated
		if err := l.Repo.SetAllocated(ctx, tx, workspaceID, date, 0, now); err != nil {
			return fmt.Errorf("clamp capacity: %w", err)
		}
	case !errors.Is(err, repo.ErrNotFound):
		return err
	}
	l.Logger.Warn("capacity release exceeds allocation; clamped to zero",
		zap.String("workspace_id", workspaceID),
		zap.String("date", date),
		zap.Int("allocated", allocated),
		zap.Int("release", minutes),
		zap.String("code", domain.CodeInconsistentLedger),
	)
	return l.Events.Append(ctx, tx, events.LedgerInconsistent, workspaceID, "capacity", Key(workspaceID, date), events.EventPayload{
		"date":      date,
		"allocated": allocated,
		"release":   minutes,
	})
}
