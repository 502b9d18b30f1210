package domain

import (
	"errors"
	"fmt"
)

const (
	CodeCapacityExceeded          = "CAPACITY_EXCEEDED"
	CodeInvalidTask               = "INVALID_TASK"
	CodeNotFound                  = "NOT_FOUND"
	CodeInconsistentLedger        = "INCONSISTENT_LEDGER"
	CodeRecurrenceAdmissionFailed = "RECURRENCE_ADMISSION_FAILED"
	CodeInvalidState              = "INVALID_STATE"
)

// Error is the typed error returned by the scheduling core.
type Error struct {
	Code        string
	Message     string
	WorkspaceID string
	Date        string
	Err         error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if e.Date != "" {
		msg = fmt.Sprintf("%s (workspace %s, date %s)", msg, e.WorkspaceID, e.Date)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrCapacityExceeded          = &Error{Code: CodeCapacityExceeded, Message: "capacity exceeded"}
	ErrInvalidTask               = &Error{Code: CodeInvalidTask, Message: "invalid task"}
	ErrNotFound                  = &Error{Code: CodeNotFound, Message: "not found"}
	ErrInconsistentLedger        = &Error{Code: CodeInconsistentLedger, Message: "inconsistent ledger"}
	ErrRecurrenceAdmissionFailed = &Error{Code: CodeRecurrenceAdmissionFailed, Message: "recurrence admission failed"}
	ErrInvalidState              = &Error{Code: CodeInvalidState, Message: "invalid state"}
)

func CapacityExceeded(workspaceID, date string, minutes, allocated, limit int) *Error {
	return &Error{
		Code:        CodeCapacityExceeded,
		Message:     fmt.Sprintf("cannot admit %d minutes: %d of %d allocated", minutes, allocated, limit),
		WorkspaceID: workspaceID,
		Date:        date,
	}
}

func InvalidTask(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidTask, Message: fmt.Sprintf(format, args...)}
}

func InvalidState(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidState, Message: fmt.Sprintf(format, args...)}
}

func NotFound(kind, id string) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s %s not found", kind, id)}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
