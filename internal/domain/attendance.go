package domain

import "time"

// StrategyKind is the closed set of attendance-tracking algorithms.
type StrategyKind string

const (
	StrategySingleMark     StrategyKind = "single_mark"
	StrategySessionBased   StrategyKind = "session_based"
	StrategyDayBased       StrategyKind = "day_based"
	StrategyMilestoneBased StrategyKind = "milestone_based"
	StrategyContinuous     StrategyKind = "continuous"
)

// Valid reports whether k is one of the known strategies.
func (k StrategyKind) Valid() bool {
	switch k {
	case StrategySingleMark, StrategySessionBased, StrategyDayBased, StrategyMilestoneBased, StrategyContinuous:
		return true
	default:
		return false
	}
}

// SessionStatus is always recomputed from the clock.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

// SessionType mirrors the strategy that produced the session.
type SessionType string

const (
	SessionTypeSingle     SessionType = "single"
	SessionTypeAgenda     SessionType = "agenda"
	SessionTypeDay        SessionType = "day"
	SessionTypeMilestone  SessionType = "milestone"
	SessionTypeCheckpoint SessionType = "checkpoint"
)

// AttendanceSession is a time-boxed window during which attendance can be marked.
type AttendanceSession struct {
	EventID     string        `json:"event_id"`
	SessionID   string        `json:"session_id"`
	Name        string        `json:"name"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	Status      SessionStatus `json:"status"`
	IsMandatory bool          `json:"is_mandatory"`
	Type        SessionType   `json:"type"`
}

// FinalStatus is the eligibility outcome of a record.
type FinalStatus string

const (
	FinalUnset   FinalStatus = ""
	FinalPresent FinalStatus = "present"
	FinalPartial FinalStatus = "partial"
	FinalAbsent  FinalStatus = "absent"
)

// AttendanceRecord tracks one student's marks for one event.
type AttendanceRecord struct {
	StudentID           string               `json:"student_id"`
	EventID             string               `json:"event_id"`
	Marks               map[string]time.Time `json:"marks"`
	AggregatePercentage float64              `json:"aggregate_percentage"`
	FinalStatus         FinalStatus          `json:"final_status,omitempty"`
	FinalizedAt         time.Time            `json:"finalized_at,omitempty"`
	UpdatedAt           time.Time            `json:"updated_at"`
}

// Marked reports whether sessionID has a mark.
func (r AttendanceRecord) Marked(sessionID string) bool {
	_, ok := r.Marks[sessionID]
	return ok
}
