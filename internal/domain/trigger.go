package domain

import "time"

// TriggerType names one scheduled lifecycle transition.
type TriggerType string

const (
	TriggerRegistrationOpen  TriggerType = "registration_open"
	TriggerRegistrationClose TriggerType = "registration_close"
	TriggerEventStart        TriggerType = "event_start"
	TriggerEventEnd          TriggerType = "event_end"
	TriggerCertificateStart  TriggerType = "certificate_start"
	TriggerCertificateEnd    TriggerType = "certificate_end"
)

// TriggerTypes lists every trigger type in priority order.
var TriggerTypes = []TriggerType{
	TriggerRegistrationOpen,
	TriggerRegistrationClose,
	TriggerEventStart,
	TriggerEventEnd,
	TriggerCertificateStart,
	TriggerCertificateEnd,
}

// Priority orders same-instant triggers; lower fires first. Unknown types sort last.
func (t TriggerType) Priority() int {
	for i, tt := range TriggerTypes {
		if tt == t {
			return i
		}
	}
	return len(TriggerTypes)
}

// Valid reports whether t is a known trigger type.
func (t TriggerType) Valid() bool { return t.Priority() < len(TriggerTypes) }

// Trigger is a pending (event, type, fire-time) entry.
type Trigger struct {
	EventID string      `json:"event_id"`
	Type    TriggerType `json:"type"`
	FireAt  time.Time   `json:"fire_at"`
	Fired   bool        `json:"fired"`
}

// TriggerKey identifies the single un-fired trigger per (event, type).
type TriggerKey struct {
	EventID string
	Type    TriggerType
}

// Key returns the queue identity of t.
func (t Trigger) Key() TriggerKey { return TriggerKey{EventID: t.EventID, Type: t.Type} }

// Before reports whether t must fire before o.
func (t Trigger) Before(o Trigger) bool {
	if !t.FireAt.Equal(o.FireAt) {
		return t.FireAt.Before(o.FireAt)
	}
	if t.Type.Priority() != o.Type.Priority() {
		return t.Type.Priority() < o.Type.Priority()
	}
	return t.EventID < o.EventID
}
