package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEventNotFound   = errors.New("event not found")
	ErrRecordNotFound  = errors.New("attendance record not found")
	ErrSessionNotFound = errors.New("attendance session not found")
	ErrSessionClosed   = errors.New("attendance session is not open for marking")
	ErrConflict        = errors.New("event was modified concurrently")
)

// ValidationError rejects malformed input such as an inverted time window.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid builds a ValidationError.
func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// NotApprovedError means scheduling was attempted on a non-approved event.
type NotApprovedError struct {
	EventID string
	State   ApprovalState
}

func (e *NotApprovedError) Error() string {
	return fmt.Sprintf("event %s is not approved (%s)", e.EventID, e.State)
}

// DuplicateMarkError is returned when a session is marked twice.
type DuplicateMarkError struct {
	StudentID string
	EventID   string
	SessionID string
}

func (e *DuplicateMarkError) Error() string {
	return fmt.Sprintf("already marked: student %s, session %s", e.StudentID, e.SessionID)
}

// StaleTriggerError marks a trigger whose event vanished or lost approval.
type StaleTriggerError struct {
	EventID string
	Type    TriggerType
	Reason  string
}

func (e *StaleTriggerError) Error() string {
	return fmt.Sprintf("stale trigger %s for event %s: %s", e.Type, e.EventID, e.Reason)
}

// PersistenceError wraps a repository failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persistence wraps err unless it is nil, a sentinel callers match on, or
// already typed.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrEventNotFound) || errors.Is(err, ErrRecordNotFound) || errors.Is(err, ErrConflict) {
		return err
	}
	var (
		pe *PersistenceError
		ve *ValidationError
	)
	if errors.As(err, &pe) || errors.As(err, &ve) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
