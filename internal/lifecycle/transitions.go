// Package lifecycle is the pure status-transition table for campus events.
package lifecycle

import "campusevents/internal/domain"

// anySub matches every sub-status of a status.
const anySub domain.SubStatus = "*"

// rule is a single allowed edge of the lifecycle state machine.
type rule struct {
	From    domain.State
	Trigger domain.TriggerType
	To      domain.State
}

var rules = []rule{
	{From: st(domain.StatusUpcoming, domain.SubRegistrationNotStarted), Trigger: domain.TriggerRegistrationOpen, To: st(domain.StatusUpcoming, domain.SubRegistrationOpen)},

	{From: st(domain.StatusUpcoming, domain.SubRegistrationNotStarted), Trigger: domain.TriggerRegistrationClose, To: st(domain.StatusUpcoming, domain.SubRegistrationClosed)},
	{From: st(domain.StatusUpcoming, domain.SubRegistrationOpen), Trigger: domain.TriggerRegistrationClose, To: st(domain.StatusUpcoming, domain.SubRegistrationClosed)},

	{From: st(domain.StatusUpcoming, anySub), Trigger: domain.TriggerEventStart, To: st(domain.StatusOngoing, domain.SubInProgress)},

	{From: st(domain.StatusOngoing, anySub), Trigger: domain.TriggerEventEnd, To: st(domain.StatusCompleted, domain.SubCertificatePending)},
	// An event whose start trigger was dropped still completes on time.
	{From: st(domain.StatusUpcoming, anySub), Trigger: domain.TriggerEventEnd, To: st(domain.StatusCompleted, domain.SubCertificatePending)},

	{From: st(domain.StatusCompleted, domain.SubCertificatePending), Trigger: domain.TriggerCertificateStart, To: st(domain.StatusCompleted, domain.SubCertificateOpen)},

	{From: st(domain.StatusCompleted, domain.SubCertificatePending), Trigger: domain.TriggerCertificateEnd, To: st(domain.StatusCompleted, domain.SubCertificateClosed)},
	{From: st(domain.StatusCompleted, domain.SubCertificateOpen), Trigger: domain.TriggerCertificateEnd, To: st(domain.StatusCompleted, domain.SubCertificateClosed)},
}

func st(s domain.Status, sub domain.SubStatus) domain.State {
	return domain.State{Status: s, SubStatus: sub}
}

// Transition applies trigger t to state s. It is total: a pair with no
// matching rule returns s unchanged and ok=false.
func Transition(s domain.State, t domain.TriggerType) (next domain.State, ok bool) {
	for _, r := range rules {
		if r.Trigger != t || r.From.Status != s.Status {
			continue
		}
		if r.From.SubStatus == anySub || r.From.SubStatus == s.SubStatus {
			return r.To, true
		}
	}
	return s, false
}

// States lists every known (status, sub-status) combination.
func States() []domain.State {
	return []domain.State{
		st(domain.StatusUpcoming, domain.SubRegistrationNotStarted),
		st(domain.StatusUpcoming, domain.SubRegistrationOpen),
		st(domain.StatusUpcoming, domain.SubRegistrationClosed),
		st(domain.StatusOngoing, domain.SubInProgress),
		st(domain.StatusCompleted, domain.SubCertificatePending),
		st(domain.StatusCompleted, domain.SubCertificateOpen),
		st(domain.StatusCompleted, domain.SubCertificateClosed),
		st(domain.StatusCancelled, domain.SubNone),
	}
}
