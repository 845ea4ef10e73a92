package attendance

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"campusevents/internal/domain"
)

var sessionNamespace = uuid.MustParse("6f1c8e2a-4b3d-5e6f-8a9b-0c1d2e3f4a5b")

// SessionConfig tunes session materialization and marking.
type SessionConfig struct {
	// Grace keeps a session markable for a while after it ends.
	Grace time.Duration
	// CheckpointInterval spaces continuous-engagement checkpoints when the
	// event sets none.
	CheckpointInterval time.Duration
	// CheckpointWindow is how long each checkpoint stays open.
	CheckpointWindow time.Duration
	// Location defines calendar days for day-based events.
	Location *time.Location
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Grace:              5 * time.Minute,
		CheckpointInterval: 30 * time.Minute,
		CheckpointWindow:   10 * time.Minute,
		Location:           time.UTC,
	}
}

// SessionManager builds session windows and recomputes their status from the clock.
type SessionManager struct {
	cfg SessionConfig
}

func NewSessionManager(cfg SessionConfig) *SessionManager {
	def := DefaultSessionConfig()
	if cfg.Grace < 0 {
		cfg.Grace = 0
	}
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = def.CheckpointInterval
	}
	if cfg.CheckpointWindow <= 0 {
		cfg.CheckpointWindow = def.CheckpointWindow
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	return &SessionManager{cfg: cfg}
}

// Materialize builds the sessions of evt under kind. A session id is
// derived from the event id, session type and time range, so rebuilding
// after an edit keeps the ids (and marks) of untouched sessions while a
// moved or removed session never inherits another's marks.
func (m *SessionManager) Materialize(evt domain.Event, kind domain.StrategyKind) ([]domain.AttendanceSession, error) {
	w := evt.Windows
	if w.StartsAt.IsZero() || w.EndsAt.IsZero() || !w.EndsAt.After(w.StartsAt) {
		return nil, domain.Invalid("windows", "event needs starts_at before ends_at")
	}

	var out []domain.AttendanceSession
	seen := map[string]int{}
	add := func(name string, start, end time.Time, mandatory bool, typ domain.SessionType) {
		key := sessionKey(evt.ID, typ, start, end)
		dup := seen[key]
		seen[key]++
		out = append(out, domain.AttendanceSession{
			EventID:     evt.ID,
			SessionID:   sessionID(key, dup),
			Name:        name,
			StartTime:   start,
			EndTime:     end,
			Status:      domain.SessionPending,
			IsMandatory: mandatory,
			Type:        typ,
		})
	}

	switch kind {
	case domain.StrategySingleMark:
		add("Attendance", w.StartsAt, w.EndsAt, true, domain.SessionTypeSingle)

	case domain.StrategySessionBased:
		if len(evt.Shape.Agenda) == 0 {
			return nil, domain.Invalid("shape.agenda", "session-based events need an agenda")
		}
		for i, slot := range evt.Shape.Agenda {
			if !slot.EndsAt.After(slot.StartsAt) {
				return nil, domain.Invalid(fmt.Sprintf("shape.agenda[%d]", i), "ends_at must be after starts_at")
			}
			name := slot.Name
			if name == "" {
				name = fmt.Sprintf("Session %d", i+1)
			}
			add(name, slot.StartsAt, slot.EndsAt, !slot.Optional, domain.SessionTypeAgenda)
		}

	case domain.StrategyDayBased:
		loc := m.cfg.Location
		start := w.StartsAt.In(loc)
		day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
		for n := 1; day.Before(w.EndsAt); n++ {
			next := day.AddDate(0, 0, 1)
			s, e := latest(day, w.StartsAt), earliest(next, w.EndsAt)
			if e.After(s) {
				add(fmt.Sprintf("Day %d", n), s, e, true, domain.SessionTypeDay)
			}
			day = next
		}

	case domain.StrategyMilestoneBased:
		if len(evt.Shape.Milestones) == 0 {
			return nil, domain.Invalid("shape.milestones", "milestone-based events need milestones")
		}
		for i, ms := range evt.Shape.Milestones {
			if !ms.EndsAt.After(ms.StartsAt) {
				return nil, domain.Invalid(fmt.Sprintf("shape.milestones[%d]", i), "ends_at must be after starts_at")
			}
			if i > 0 && ms.StartsAt.Before(evt.Shape.Milestones[i-1].StartsAt) {
				return nil, domain.Invalid(fmt.Sprintf("shape.milestones[%d]", i), "milestones must be declared in order")
			}
			name := ms.Name
			if name == "" {
				name = fmt.Sprintf("Milestone %d", i+1)
			}
			add(name, ms.StartsAt, ms.EndsAt, !ms.Optional, domain.SessionTypeMilestone)
		}

	case domain.StrategyContinuous:
		interval := evt.Shape.CheckpointInterval
		if interval <= 0 {
			interval = m.cfg.CheckpointInterval
		}
		window := m.cfg.CheckpointWindow
		if window > interval {
			window = interval
		}
		n := 1
		for at := w.StartsAt; at.Before(w.EndsAt); at = at.Add(interval) {
			add(fmt.Sprintf("Checkpoint %d", n), at, earliest(at.Add(window), w.EndsAt), true, domain.SessionTypeCheckpoint)
			n++
		}

	default:
		return nil, domain.Invalid("strategy", fmt.Sprintf("unknown strategy %q", kind))
	}
	return out, nil
}

// Status recomputes a session's status at now. The end instant is still active.
func (m *SessionManager) Status(s domain.AttendanceSession, now time.Time) domain.SessionStatus {
	switch {
	case now.Before(s.StartTime):
		return domain.SessionPending
	case now.After(s.EndTime):
		return domain.SessionCompleted
	default:
		return domain.SessionActive
	}
}

// Refresh returns a copy of sessions with statuses recomputed at now.
func (m *SessionManager) Refresh(sessions []domain.AttendanceSession, now time.Time) []domain.AttendanceSession {
	out := make([]domain.AttendanceSession, len(sessions))
	for i, s := range sessions {
		s.Status = m.Status(s, now)
		out[i] = s
	}
	return out
}

// Active returns the sessions active at now followed by the next pending one.
func (m *SessionManager) Active(sessions []domain.AttendanceSession, now time.Time) []domain.AttendanceSession {
	refreshed := m.Refresh(sessions, now)
	sort.SliceStable(refreshed, func(i, j int) bool { return refreshed[i].StartTime.Before(refreshed[j].StartTime) })
	var out []domain.AttendanceSession
	for _, s := range refreshed {
		if s.Status == domain.SessionActive {
			out = append(out, s)
		}
	}
	for _, s := range refreshed {
		if s.Status == domain.SessionPending {
			out = append(out, s)
			break
		}
	}
	return out
}

// CanMark reports whether s accepts marks at now: while active, or within
// the grace period after it ends.
func (m *SessionManager) CanMark(s domain.AttendanceSession, now time.Time) bool {
	switch m.Status(s, now) {
	case domain.SessionActive:
		return true
	case domain.SessionCompleted:
		return !now.After(s.EndTime.Add(m.cfg.Grace))
	default:
		return false
	}
}

func sessionKey(eventID string, typ domain.SessionType, start, end time.Time) string {
	return fmt.Sprintf("%s/%s/%s/%s", eventID, typ, start.UTC().Format(time.RFC3339Nano), end.UTC().Format(time.RFC3339Nano))
}

// sessionID hashes key; dup tells apart parallel slots with identical times.
func sessionID(key string, dup int) string {
	if dup > 0 {
		key = fmt.Sprintf("%s#%d", key, dup)
	}
	return uuid.NewSHA1(sessionNamespace, []byte(key)).String()
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earliest(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
