package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	TaskCreated               = "task.created"
	TaskCompleted             = "task.completed"
	TaskFailed                = "task.failed"
	TaskDeleted               = "task.deleted"
	TaskRescheduled           = "task.rescheduled"
	TaskCarriedOver           = "task.carried_over"
	RecurrenceGenerated       = "recurrence.generated"
	RecurrenceAdmissionFailed = "recurrence.admission_failed"
	RecurrenceResumed         = "recurrence.resumed"
	LedgerInconsistent        = "ledger.inconsistent"
	WorkspaceCreated          = "workspace.created"
	WorkspaceLimitUpdated     = "workspace.limit_updated"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes one event inside tx so it commits or rolls back with the change it records.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, workspaceID, entityKind, entityID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,workspace_id,entity_kind,entity_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, nullable(workspaceID), entityKind, nullable(entityID), string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
