package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusevents/internal/clock"
	"campusevents/internal/domain"
	"campusevents/internal/store"
)

type recordingActions struct {
	mu    sync.Mutex
	marks []domain.AttendanceMark
}

func (r *recordingActions) LogStatusChange(context.Context, domain.StatusChange) {}

func (r *recordingActions) LogAttendanceMark(_ context.Context, m domain.AttendanceMark) {
	r.mu.Lock()
	r.marks = append(r.marks, m)
	r.mu.Unlock()
}

type fixture struct {
	svc      *Service
	events   *store.MemoryEvents
	repo     *store.MemoryAttendance
	clock    *clock.Fake
	actions  *recordingActions
	sessions []domain.AttendanceSession
}

// newFixture stores and resolves agendaEvent("conf").
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		events:  store.NewMemoryEvents(),
		repo:    store.NewMemoryAttendance(),
		clock:   clock.NewFake(base.Add(-time.Hour)),
		actions: &recordingActions{},
	}
	svc, err := NewService(f.events, f.repo, f.clock, DefaultConfig(), WithActionLogger(f.actions))
	require.NoError(t, err)
	f.svc = svc

	ctx := context.Background()
	evt := agendaEvent("conf")
	require.NoError(t, f.events.Save(ctx, &evt))
	evt, f.sessions, err = svc.ResolveStrategy(ctx, evt)
	require.NoError(t, err)
	require.Equal(t, domain.StrategySessionBased, evt.Strategy)
	return f
}

// markAt moves the clock inside session i and marks it.
func (f *fixture) markAt(t *testing.T, student string, i int) domain.AttendanceRecord {
	t.Helper()
	f.clock.Set(f.sessions[i].StartTime.Add(time.Minute))
	rec, err := f.svc.Mark(context.Background(), student, "conf", f.sessions[i].SessionID)
	require.NoError(t, err)
	return rec
}

func TestNewServiceRejectsBadThresholds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Thresholds.SessionBased = 0
	_, err := NewService(store.NewMemoryEvents(), store.NewMemoryAttendance(), nil, cfg)
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestResolveStrategyPersists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	evt, err := f.events.Get(ctx, "conf")
	require.NoError(t, err)
	assert.Equal(t, domain.StrategySessionBased, evt.Strategy)

	stored, err := f.svc.Sessions(ctx, "conf", base.Add(5*time.Minute))
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, domain.SessionActive, stored[0].Status)
	assert.Equal(t, domain.SessionPending, stored[2].Status)

	active, err := f.svc.ActiveSessions(ctx, "conf", base)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, f.sessions[0].SessionID, active[0].SessionID)
}

func TestPartialAttendance(t *testing.T) {
	f := newFixture(t)
	f.markAt(t, "stu-1", 0)
	rec := f.markAt(t, "stu-1", 1)
	assert.InDelta(t, 66.67, rec.AggregatePercentage, 0.01)
	assert.Equal(t, domain.FinalUnset, rec.FinalStatus)

	f.clock.Set(base.Add(5 * time.Hour))
	rec, err := f.svc.Finalize(context.Background(), "stu-1", "conf")
	require.NoError(t, err)
	assert.InDelta(t, 66.67, rec.AggregatePercentage, 0.01)
	assert.Equal(t, domain.FinalPartial, rec.FinalStatus)
	assert.True(t, rec.FinalizedAt.Equal(base.Add(5*time.Hour)))
}

func TestDuplicateMarkLeavesRecordUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.markAt(t, "stu-1", 0)

	f.clock.Advance(time.Minute)
	_, err := f.svc.Mark(ctx, "stu-1", "conf", f.sessions[0].SessionID)
	var dup *domain.DuplicateMarkError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, f.sessions[0].SessionID, dup.SessionID)

	stored, err := f.svc.Record(ctx, "stu-1", "conf")
	require.NoError(t, err)
	assert.Len(t, stored.Marks, 1)
	assert.True(t, stored.Marks[f.sessions[0].SessionID].Equal(first.Marks[f.sessions[0].SessionID]))
	assert.True(t, stored.UpdatedAt.Equal(first.UpdatedAt))
	assert.Len(t, f.actions.marks, 1)
}

func TestMarkRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.clock.Set(base.Add(-time.Minute))
	_, err := f.svc.Mark(ctx, "stu-1", "conf", f.sessions[0].SessionID)
	assert.ErrorIs(t, err, domain.ErrSessionClosed, "pending session")

	f.clock.Set(f.sessions[0].EndTime.Add(6 * time.Minute))
	_, err = f.svc.Mark(ctx, "stu-1", "conf", f.sessions[0].SessionID)
	assert.ErrorIs(t, err, domain.ErrSessionClosed, "past grace")

	_, err = f.svc.Mark(ctx, "stu-1", "conf", "nope")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = f.svc.Mark(ctx, "", "conf", f.sessions[0].SessionID)
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = f.svc.Mark(ctx, "stu-1", "missing", f.sessions[0].SessionID)
	assert.ErrorIs(t, err, domain.ErrEventNotFound)

	evt, err := f.events.Get(ctx, "conf")
	require.NoError(t, err)
	evt.State = domain.State{Status: domain.StatusCancelled}
	require.NoError(t, f.events.Save(ctx, &evt))
	f.clock.Set(base.Add(time.Minute))
	_, err = f.svc.Mark(ctx, "stu-1", "conf", f.sessions[0].SessionID)
	assert.ErrorAs(t, err, &verr)

	_, err = f.svc.Record(ctx, "stu-1", "conf")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound, "rejected marks create nothing")
}

func TestMarkWithinGrace(t *testing.T) {
	f := newFixture(t)
	f.clock.Set(f.sessions[0].EndTime.Add(5 * time.Minute))
	rec, err := f.svc.Mark(context.Background(), "stu-1", "conf", f.sessions[0].SessionID)
	require.NoError(t, err)
	assert.True(t, rec.Marked(f.sessions[0].SessionID))
}

func TestLateMarkAfterFinalizeUpdatesStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.markAt(t, "stu-1", 0)
	f.markAt(t, "stu-1", 1)

	f.clock.Set(f.sessions[2].EndTime.Add(time.Minute))
	rec, err := f.svc.Finalize(ctx, "stu-1", "conf")
	require.NoError(t, err)
	require.Equal(t, domain.FinalPartial, rec.FinalStatus)

	f.clock.Advance(time.Minute)
	rec, err = f.svc.Mark(ctx, "stu-1", "conf", f.sessions[2].SessionID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, rec.AggregatePercentage)
	assert.Equal(t, domain.FinalPresent, rec.FinalStatus)
}

func TestFinalizeIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := range f.sessions {
		f.markAt(t, "stu-1", i)
	}

	f.clock.Set(base.Add(5 * time.Hour))
	first, err := f.svc.Finalize(ctx, "stu-1", "conf")
	require.NoError(t, err)
	assert.Equal(t, domain.FinalPresent, first.FinalStatus)

	f.clock.Advance(time.Hour)
	second, err := f.svc.Finalize(ctx, "stu-1", "conf")
	require.NoError(t, err)
	assert.Equal(t, first.FinalStatus, second.FinalStatus)
	assert.True(t, first.FinalizedAt.Equal(second.FinalizedAt))
}

func TestFinalizeWithoutRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.svc.Finalize(ctx, "ghost", "conf")
	require.NoError(t, err)
	assert.Equal(t, domain.FinalAbsent, rec.FinalStatus)
	assert.Equal(t, 0.0, rec.AggregatePercentage)

	_, err = f.svc.Record(ctx, "ghost", "conf")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestFinalizeUsesPersistedStrategy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.markAt(t, "stu-1", 0)
	f.markAt(t, "stu-1", 1)

	cfg := DefaultConfig()
	cfg.Thresholds.SessionBased = 0.6
	svc, err := NewService(f.events, f.repo, f.clock, cfg)
	require.NoError(t, err)

	f.clock.Set(base.Add(5 * time.Hour))
	rec, err := svc.Finalize(ctx, "stu-1", "conf")
	require.NoError(t, err)
	assert.Equal(t, domain.FinalPresent, rec.FinalStatus, "two of three clears 0.6")

	// The session shape still looks like an agenda; the stored strategy wins.
	evt, err := f.events.Get(ctx, "conf")
	require.NoError(t, err)
	evt.Strategy = domain.StrategyMilestoneBased
	require.NoError(t, f.events.Save(ctx, &evt))
	rec, err = svc.Finalize(ctx, "stu-1", "conf")
	require.NoError(t, err)
	assert.Equal(t, domain.FinalPartial, rec.FinalStatus)

	evt.Strategy = ""
	require.NoError(t, f.events.Save(ctx, &evt))
	var verr *domain.ValidationError
	_, err = svc.Finalize(ctx, "stu-1", "conf")
	assert.ErrorAs(t, err, &verr)
	f.clock.Set(f.sessions[2].StartTime.Add(time.Minute))
	_, err = svc.Mark(ctx, "stu-1", "conf", f.sessions[2].SessionID)
	assert.ErrorAs(t, err, &verr)
}

func TestUpdateKeepsMarksOfUntouchedSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.markAt(t, "stu-1", 0)
	f.markAt(t, "stu-1", 1)

	// Move the workshop and put a new slot in front of everything.
	evt, sessions, err := f.svc.Update(ctx, "conf", func(evt *domain.Event) error {
		agenda := evt.Shape.Agenda
		agenda[1].StartsAt = base.Add(2 * time.Hour)
		agenda[1].EndsAt = base.Add(150 * time.Minute)
		evt.Shape.Agenda = append([]domain.AgendaSlot{{Name: "Breakfast", StartsAt: base, EndsAt: base.Add(30 * time.Minute), Optional: true}}, agenda...)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StrategySessionBased, evt.Strategy)
	require.Len(t, sessions, 4)
	assert.Equal(t, f.sessions[0].SessionID, sessions[1].SessionID, "untouched keynote keeps its id")
	assert.NotEqual(t, f.sessions[1].SessionID, sessions[2].SessionID, "a moved slot gets a new id")
	assert.Equal(t, f.sessions[2].SessionID, sessions[3].SessionID)

	rec, err := f.svc.Record(ctx, "stu-1", "conf")
	require.NoError(t, err)
	assert.InDelta(t, 33.33, rec.AggregatePercentage, 0.01, "the mark on the moved slot no longer counts")

	stored, err := f.svc.Sessions(ctx, "conf", base)
	require.NoError(t, err)
	assert.Len(t, stored, 4)

	boom := errors.New("rejected")
	_, _, err = f.svc.Update(ctx, "conf", func(*domain.Event) error { return boom })
	assert.ErrorIs(t, err, boom)
	_, _, err = f.svc.Update(ctx, "missing", func(*domain.Event) error { return nil })
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestFinalizeEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := range f.sessions {
		f.markAt(t, "alice", i)
	}
	f.markAt(t, "bob", 2)

	evt, err := f.events.Get(ctx, "conf")
	require.NoError(t, err)
	f.clock.Set(base.Add(5 * time.Hour))
	require.NoError(t, f.svc.FinalizeEvent(ctx, evt))

	alice, err := f.svc.Record(ctx, "alice", "conf")
	require.NoError(t, err)
	assert.Equal(t, domain.FinalPresent, alice.FinalStatus)
	bob, err := f.svc.Record(ctx, "bob", "conf")
	require.NoError(t, err)
	assert.Equal(t, domain.FinalPartial, bob.FinalStatus)
	assert.InDelta(t, 33.33, bob.AggregatePercentage, 0.01)
}

func TestCancelRegistration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.markAt(t, "stu-1", 0)

	require.NoError(t, f.svc.CancelRegistration(ctx, "stu-1", "conf"))
	_, err := f.svc.Record(ctx, "stu-1", "conf")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
	assert.ErrorIs(t, f.svc.CancelRegistration(ctx, "stu-1", "conf"), domain.ErrRecordNotFound)
}

func TestConcurrentMarks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.clock.Set(base.Add(time.Minute))
	sessionID := f.sessions[0].SessionID

	var ok, dup atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Mark(ctx, "stu-1", "conf", sessionID)
			var derr *domain.DuplicateMarkError
			switch {
			case err == nil:
				ok.Add(1)
			case errors.As(err, &derr):
				dup.Add(1)
			}
		}()
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Mark(ctx, fmt.Sprintf("other-%d", i), "conf", sessionID)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(19), dup.Load())
	recs, err := f.repo.ListRecords(ctx, "conf")
	require.NoError(t, err)
	assert.Len(t, recs, 11)
}
