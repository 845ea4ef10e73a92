package domain

import "time"

// ApprovalState gates scheduling: only approved events get triggers.
type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending_approval"
	ApprovalApproved ApprovalState = "approved"
	ApprovalDeclined ApprovalState = "declined"
)

// Status is the coarse lifecycle phase of an event.
type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// SubStatus is the fine-grained phase within a Status.
type SubStatus string

const (
	SubNone                   SubStatus = ""
	SubRegistrationNotStarted SubStatus = "registration_not_started"
	SubRegistrationOpen       SubStatus = "registration_open"
	SubRegistrationClosed     SubStatus = "registration_closed"
	SubInProgress             SubStatus = "in_progress"
	SubCertificatePending     SubStatus = "certificate_pending"
	SubCertificateOpen        SubStatus = "certificate_open"
	SubCertificateClosed      SubStatus = "certificate_closed"
)

// State is the (status, sub-status) pair the transition table operates on.
type State struct {
	Status    Status    `json:"status"`
	SubStatus SubStatus `json:"sub_status"`
}

func (s State) String() string {
	if s.SubStatus == SubNone {
		return string(s.Status)
	}
	return string(s.Status) + "/" + string(s.SubStatus)
}

// Terminal reports whether no further trigger can change the state.
func (s State) Terminal() bool {
	return s.Status == StatusCancelled ||
		(s.Status == StatusCompleted && s.SubStatus == SubCertificateClosed)
}

// InitialState is the state every newly created event starts in.
func InitialState() State {
	return State{Status: StatusUpcoming, SubStatus: SubRegistrationNotStarted}
}

// Windows holds the wall-clock instants that drive the lifecycle.
// Optional instants are zero when unset.
type Windows struct {
	RegistrationOpensAt  time.Time `json:"registration_opens_at,omitempty"`
	RegistrationClosesAt time.Time `json:"registration_closes_at,omitempty"`
	StartsAt             time.Time `json:"starts_at"`
	EndsAt               time.Time `json:"ends_at"`
	CertificateOpensAt   time.Time `json:"certificate_opens_at,omitempty"`
	CertificateClosesAt  time.Time `json:"certificate_closes_at,omitempty"`
}

// AgendaSlot is one segment of an explicit multi-segment agenda.
type AgendaSlot struct {
	Name     string    `json:"name"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Optional bool      `json:"optional,omitempty"`
}

// Milestone is a declared, ordered checkpoint of a milestone-based event.
type Milestone struct {
	Name     string    `json:"name"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Optional bool      `json:"optional,omitempty"`
}

// Shape describes the attendance-relevant structure of an event.
type Shape struct {
	Agenda             []AgendaSlot  `json:"agenda,omitempty"`
	Milestones         []Milestone   `json:"milestones,omitempty"`
	DailyCheckIn       bool          `json:"daily_check_in,omitempty"`
	EngagementTracking bool          `json:"engagement_tracking,omitempty"`
	CheckpointInterval time.Duration `json:"checkpoint_interval,omitempty"`
}

// Event is a campus event as seen by the scheduler and attendance engine.
// Version counts saves; EventRepository.Save rejects a stale one.
type Event struct {
	ID            string                    `json:"id"`
	Title         string                    `json:"title"`
	OrganizerID   string                    `json:"organizer_id"`
	ApprovalState ApprovalState             `json:"approval_state"`
	State         State                     `json:"state"`
	Windows       Windows                   `json:"windows"`
	Shape         Shape                     `json:"shape"`
	Strategy      StrategyKind              `json:"strategy,omitempty"`
	Fired         map[TriggerType]time.Time `json:"fired,omitempty"`
	CreatedAt     time.Time                 `json:"created_at"`
	UpdatedAt     time.Time                 `json:"updated_at"`
	Version       int64                     `json:"version"`
}

// Approved reports whether triggers may exist for the event.
func (e Event) Approved() bool { return e.ApprovalState == ApprovalApproved }

// HasFired reports whether a trigger of type t already changed this event.
func (e Event) HasFired(t TriggerType) bool {
	_, ok := e.Fired[t]
	return ok
}

// MarkFired records fired history for t.
func (e *Event) MarkFired(t TriggerType, at time.Time) {
	if e.Fired == nil {
		e.Fired = make(map[TriggerType]time.Time)
	}
	e.Fired[t] = at
}
