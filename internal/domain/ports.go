package domain

import (
	"context"
	"time"
)

// EventRepository persists events.
type EventRepository interface {
	Get(ctx context.Context, id string) (Event, error)
	// Save inserts evt, or overwrites the stored copy when evt.Version
	// matches it, and advances evt.Version. A stale version returns
	// ErrConflict; a versioned event that is gone returns ErrEventNotFound.
	Save(ctx context.Context, evt *Event) error
	Delete(ctx context.Context, id string) error
	// ListSchedulable returns approved events that are not yet terminal.
	ListSchedulable(ctx context.Context) ([]Event, error)
}

// AttendanceRepository persists sessions and per-student records.
type AttendanceRepository interface {
	GetRecord(ctx context.Context, studentID, eventID string) (AttendanceRecord, error)
	SaveRecord(ctx context.Context, rec AttendanceRecord) error
	DeleteRecord(ctx context.Context, studentID, eventID string) error
	ListRecords(ctx context.Context, eventID string) ([]AttendanceRecord, error)
	SaveSessions(ctx context.Context, eventID string, sessions []AttendanceSession) error
	Sessions(ctx context.Context, eventID string) ([]AttendanceSession, error)
}

// StatusChange is one audited lifecycle transition.
type StatusChange struct {
	EventID string      `json:"event_id"`
	Trigger TriggerType `json:"trigger,omitempty"`
	From    State       `json:"from"`
	To      State       `json:"to"`
	At      time.Time   `json:"at"`
	Actor   string      `json:"actor"`
}

// AttendanceMark is one audited attendance mark.
type AttendanceMark struct {
	StudentID string    `json:"student_id"`
	EventID   string    `json:"event_id"`
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`
}

// ActionLogger is a best-effort audit sink; implementations must not fail the caller.
type ActionLogger interface {
	LogStatusChange(ctx context.Context, change StatusChange)
	LogAttendanceMark(ctx context.Context, mark AttendanceMark)
}
