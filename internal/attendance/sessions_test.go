package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusevents/internal/domain"
)

var base = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

func agendaEvent(id string) domain.Event {
	return domain.Event{
		ID:            id,
		ApprovalState: domain.ApprovalApproved,
		State:         domain.InitialState(),
		Windows:       domain.Windows{StartsAt: base, EndsAt: base.Add(4 * time.Hour)},
		Shape: domain.Shape{Agenda: []domain.AgendaSlot{
			{Name: "Keynote", StartsAt: base, EndsAt: base.Add(time.Hour)},
			{Name: "Workshop", StartsAt: base.Add(90 * time.Minute), EndsAt: base.Add(150 * time.Minute)},
			{StartsAt: base.Add(3 * time.Hour), EndsAt: base.Add(4 * time.Hour)},
		}},
	}
}

func TestMaterializeSingleMark(t *testing.T) {
	m := NewSessionManager(DefaultSessionConfig())
	evt := domain.Event{ID: "talk", Windows: domain.Windows{StartsAt: base, EndsAt: base.Add(time.Hour)}}

	sessions, err := m.Materialize(evt, domain.StrategySingleMark)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	s := sessions[0]
	assert.True(t, s.IsMandatory)
	assert.Equal(t, domain.SessionTypeSingle, s.Type)
	assert.True(t, s.StartTime.Equal(base))
	assert.True(t, s.EndTime.Equal(base.Add(time.Hour)))
	assert.Equal(t, "talk", s.EventID)
}

func TestMaterializeAgenda(t *testing.T) {
	m := NewSessionManager(DefaultSessionConfig())
	evt := agendaEvent("conf")

	sessions, err := m.Materialize(evt, domain.StrategySessionBased)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, "Keynote", sessions[0].Name)
	assert.Equal(t, "Session 3", sessions[2].Name)

	again, err := m.Materialize(evt, domain.StrategySessionBased)
	require.NoError(t, err)
	ids := map[string]bool{}
	for i := range sessions {
		assert.Equal(t, sessions[i].SessionID, again[i].SessionID, "ids are stable across rebuilds")
		ids[sessions[i].SessionID] = true
	}
	assert.Len(t, ids, 3)
}

func TestMaterializeDays(t *testing.T) {
	m := NewSessionManager(DefaultSessionConfig())
	end := time.Date(2026, 10, 3, 17, 0, 0, 0, time.UTC)
	evt := domain.Event{ID: "hack", Windows: domain.Windows{StartsAt: base, EndsAt: end}, Shape: domain.Shape{DailyCheckIn: true}}

	sessions, err := m.Materialize(evt, domain.StrategyDayBased)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.True(t, sessions[0].StartTime.Equal(base))
	assert.True(t, sessions[0].EndTime.Equal(time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)))
	assert.True(t, sessions[1].StartTime.Equal(time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)))
	assert.True(t, sessions[2].EndTime.Equal(end))
	assert.Equal(t, "Day 3", sessions[2].Name)
}

func TestMaterializeCheckpoints(t *testing.T) {
	m := NewSessionManager(DefaultSessionConfig())
	evt := domain.Event{ID: "lab", Windows: domain.Windows{StartsAt: base, EndsAt: base.Add(2 * time.Hour)}}

	sessions, err := m.Materialize(evt, domain.StrategyContinuous)
	require.NoError(t, err)
	require.Len(t, sessions, 4)
	for i, s := range sessions {
		assert.True(t, s.StartTime.Equal(base.Add(time.Duration(i)*30*time.Minute)))
		assert.Equal(t, 10*time.Minute, s.EndTime.Sub(s.StartTime))
	}

	evt.Shape.CheckpointInterval = time.Hour
	sessions, err = m.Materialize(evt, domain.StrategyContinuous)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestMaterializeMilestones(t *testing.T) {
	m := NewSessionManager(DefaultSessionConfig())
	evt := domain.Event{ID: "course", Windows: domain.Windows{StartsAt: base, EndsAt: base.Add(48 * time.Hour)}}
	evt.Shape.Milestones = []domain.Milestone{
		{Name: "Kickoff", StartsAt: base, EndsAt: base.Add(time.Hour)},
		{Name: "Demo", StartsAt: base.Add(47 * time.Hour), EndsAt: base.Add(48 * time.Hour), Optional: true},
	}

	sessions, err := m.Materialize(evt, domain.StrategyMilestoneBased)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.True(t, sessions[0].IsMandatory)
	assert.False(t, sessions[1].IsMandatory)

	evt.Shape.Milestones[0], evt.Shape.Milestones[1] = evt.Shape.Milestones[1], evt.Shape.Milestones[0]
	_, err = m.Materialize(evt, domain.StrategyMilestoneBased)
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestMaterializeRejectsMalformed(t *testing.T) {
	m := NewSessionManager(DefaultSessionConfig())
	var verr *domain.ValidationError

	inverted := domain.Event{ID: "x", Windows: domain.Windows{StartsAt: base, EndsAt: base.Add(-time.Hour)}}
	_, err := m.Materialize(inverted, domain.StrategySingleMark)
	assert.ErrorAs(t, err, &verr)

	noAgenda := domain.Event{ID: "x", Windows: domain.Windows{StartsAt: base, EndsAt: base.Add(time.Hour)}}
	_, err = m.Materialize(noAgenda, domain.StrategySessionBased)
	assert.ErrorAs(t, err, &verr)

	badSlot := agendaEvent("x")
	badSlot.Shape.Agenda[1].EndsAt = badSlot.Shape.Agenda[1].StartsAt
	_, err = m.Materialize(badSlot, domain.StrategySessionBased)
	assert.ErrorAs(t, err, &verr)

	_, err = m.Materialize(noAgenda, "weekly")
	assert.ErrorAs(t, err, &verr)
}

func TestSessionStatusBoundaries(t *testing.T) {
	m := NewSessionManager(DefaultSessionConfig())
	s := domain.AttendanceSession{StartTime: base, EndTime: base.Add(time.Hour)}

	assert.Equal(t, domain.SessionPending, m.Status(s, base.Add(-time.Nanosecond)))
	assert.Equal(t, domain.SessionActive, m.Status(s, base))
	assert.Equal(t, domain.SessionActive, m.Status(s, base.Add(time.Hour)))
	assert.Equal(t, domain.SessionCompleted, m.Status(s, base.Add(time.Hour+time.Nanosecond)))
}

func TestActiveSessions(t *testing.T) {
	m := NewSessionManager(DefaultSessionConfig())
	sessions, err := m.Materialize(agendaEvent("conf"), domain.StrategySessionBased)
	require.NoError(t, err)

	got := m.Active(sessions, base)
	require.Len(t, got, 2)
	assert.Equal(t, domain.SessionActive, got[0].Status)
	assert.Equal(t, sessions[0].SessionID, got[0].SessionID)
	assert.Equal(t, domain.SessionPending, got[1].Status)
	assert.Equal(t, sessions[1].SessionID, got[1].SessionID)

	got = m.Active(sessions, base.Add(75*time.Minute))
	require.Len(t, got, 1, "between sessions only the next one is returned")
	assert.Equal(t, sessions[1].SessionID, got[0].SessionID)

	got = m.Active(sessions, base.Add(4*time.Hour+time.Nanosecond))
	assert.Empty(t, got)

	// Stored statuses are never trusted.
	assert.Equal(t, domain.SessionPending, sessions[0].Status)
}

func TestActiveSessionsOverlap(t *testing.T) {
	m := NewSessionManager(DefaultSessionConfig())
	sessions := []domain.AttendanceSession{
		{SessionID: "b", StartTime: base.Add(30 * time.Minute), EndTime: base.Add(2 * time.Hour)},
		{SessionID: "a", StartTime: base, EndTime: base.Add(time.Hour)},
	}
	got := m.Active(sessions, base.Add(45*time.Minute))
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].SessionID)
	assert.Equal(t, "b", got[1].SessionID)
}

func TestCanMarkGrace(t *testing.T) {
	m := NewSessionManager(SessionConfig{Grace: 5 * time.Minute})
	s := domain.AttendanceSession{StartTime: base, EndTime: base.Add(time.Hour)}

	assert.False(t, m.CanMark(s, base.Add(-time.Second)))
	assert.True(t, m.CanMark(s, base))
	assert.True(t, m.CanMark(s, base.Add(time.Hour+5*time.Minute)))
	assert.False(t, m.CanMark(s, base.Add(time.Hour+5*time.Minute+time.Nanosecond)))

	strict := NewSessionManager(SessionConfig{})
	assert.False(t, strict.CanMark(s, base.Add(time.Hour+time.Nanosecond)))
}
