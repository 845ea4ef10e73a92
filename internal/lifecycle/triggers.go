package lifecycle

import (
	"time"

	"campusevents/internal/domain"
)

// DefaultCertificateWindow applies when an event sets no certificate close time.
const DefaultCertificateWindow = 7 * 24 * time.Hour

// ValidateWindows rejects malformed lifecycle windows.
func ValidateWindows(w domain.Windows) error {
	if w.StartsAt.IsZero() {
		return domain.Invalid("starts_at", "required")
	}
	if w.EndsAt.IsZero() {
		return domain.Invalid("ends_at", "required")
	}
	if !w.EndsAt.After(w.StartsAt) {
		return domain.Invalid("ends_at", "must be after starts_at")
	}
	if !w.RegistrationOpensAt.IsZero() && !w.RegistrationClosesAt.IsZero() &&
		w.RegistrationClosesAt.Before(w.RegistrationOpensAt) {
		return domain.Invalid("registration_closes_at", "must not be before registration_opens_at")
	}
	if !w.RegistrationOpensAt.IsZero() && w.RegistrationOpensAt.After(w.EndsAt) {
		return domain.Invalid("registration_opens_at", "must not be after ends_at")
	}
	if !w.CertificateOpensAt.IsZero() && !w.CertificateClosesAt.IsZero() &&
		w.CertificateClosesAt.Before(w.CertificateOpensAt) {
		return domain.Invalid("certificate_closes_at", "must not be before certificate_opens_at")
	}
	return nil
}

// ComputeTriggers derives the six trigger instants of an event. Unset
// optional windows fall back: registration opens at approvedAt, closes at
// the start; certificates open at the end and close certWindow later.
func ComputeTriggers(evt domain.Event, approvedAt time.Time, certWindow time.Duration) ([]domain.Trigger, error) {
	w := evt.Windows
	if err := ValidateWindows(w); err != nil {
		return nil, err
	}
	if certWindow <= 0 {
		certWindow = DefaultCertificateWindow
	}

	regOpen := w.RegistrationOpensAt
	if regOpen.IsZero() {
		regOpen = approvedAt
	}
	regClose := w.RegistrationClosesAt
	if regClose.IsZero() {
		regClose = w.StartsAt
	}
	if regClose.Before(regOpen) {
		regClose = regOpen
	}
	certOpen := w.CertificateOpensAt
	if certOpen.IsZero() {
		certOpen = w.EndsAt
	}
	certClose := w.CertificateClosesAt
	if certClose.IsZero() {
		certClose = certOpen.Add(certWindow)
	}

	at := map[domain.TriggerType]time.Time{
		domain.TriggerRegistrationOpen:  regOpen,
		domain.TriggerRegistrationClose: regClose,
		domain.TriggerEventStart:        w.StartsAt,
		domain.TriggerEventEnd:          w.EndsAt,
		domain.TriggerCertificateStart:  certOpen,
		domain.TriggerCertificateEnd:    certClose,
	}
	out := make([]domain.Trigger, 0, len(domain.TriggerTypes))
	for _, tt := range domain.TriggerTypes {
		out = append(out, domain.Trigger{EventID: evt.ID, Type: tt, FireAt: at[tt]})
	}
	return out, nil
}
