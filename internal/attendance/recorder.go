package attendance

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"campusevents/internal/clock"
	"campusevents/internal/domain"
	"campusevents/internal/logx"
	"campusevents/internal/metrics"
)

const eligibilityEpsilon = 1e-9

// Aggregate returns the percentage (0-100) of mandatory sessions marked.
// With no mandatory sessions any mark counts as full attendance.
func Aggregate(marks map[string]time.Time, sessions []domain.AttendanceSession) float64 {
	marked, mandatory := coverage(marks, sessions)
	return 100 * fraction(marked, mandatory, len(marks))
}

func coverage(marks map[string]time.Time, sessions []domain.AttendanceSession) (marked, mandatory int) {
	for _, s := range sessions {
		if !s.IsMandatory {
			continue
		}
		mandatory++
		if _, ok := marks[s.SessionID]; ok {
			marked++
		}
	}
	return marked, mandatory
}

func fraction(marked, mandatory, anyMarks int) float64 {
	if mandatory == 0 {
		if anyMarks > 0 {
			return 1
		}
		return 0
	}
	return float64(marked) / float64(mandatory)
}

// Eligibility maps marks to a final status: present at or above the
// threshold, absent with no marks at all, partial otherwise.
func Eligibility(marks map[string]time.Time, sessions []domain.AttendanceSession, threshold float64) domain.FinalStatus {
	if len(marks) == 0 {
		return domain.FinalAbsent
	}
	marked, mandatory := coverage(marks, sessions)
	if fraction(marked, mandatory, len(marks))+eligibilityEpsilon >= threshold {
		return domain.FinalPresent
	}
	return domain.FinalPartial
}

// Recorder records marks and finalizes eligibility. Calls for the same
// (student, event) are serialized; different records proceed in parallel.
type Recorder struct {
	repo       domain.AttendanceRepository
	sessions   *SessionManager
	thresholds Thresholds
	clock      clock.Clock
	locks      *keyedMutex
	actions    domain.ActionLogger
	metrics    *metrics.Metrics
	log        logx.Logger
}

func NewRecorder(repo domain.AttendanceRepository, sessions *SessionManager, thresholds Thresholds, clk clock.Clock) *Recorder {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Recorder{
		repo:       repo,
		sessions:   sessions,
		thresholds: thresholds,
		clock:      clk,
		locks:      newKeyedMutex(),
		log:        logx.Nop(),
	}
}

// Mark records studentID's attendance for sessionID at the current time.
// evt must carry its persisted strategy.
func (r *Recorder) Mark(ctx context.Context, studentID string, evt domain.Event, sessionID string) (domain.AttendanceRecord, error) {
	if strings.TrimSpace(studentID) == "" {
		return domain.AttendanceRecord{}, domain.Invalid("student_id", "required")
	}
	if strings.TrimSpace(sessionID) == "" {
		return domain.AttendanceRecord{}, domain.Invalid("session_id", "required")
	}
	if !evt.Strategy.Valid() {
		return domain.AttendanceRecord{}, domain.Invalid("strategy", "event has no resolved attendance strategy")
	}
	eventID := evt.ID
	unlock := r.locks.Lock(studentID + "\x00" + eventID)
	defer unlock()

	sessions, err := r.repo.Sessions(ctx, eventID)
	if err != nil {
		return domain.AttendanceRecord{}, domain.Persistence("load sessions", err)
	}
	sess, ok := findSession(sessions, sessionID)
	if !ok {
		r.metrics.Mark(metrics.MarkRejected)
		return domain.AttendanceRecord{}, &domain.ValidationError{Field: "session_id", Reason: "unknown session", Err: domain.ErrSessionNotFound}
	}
	now := r.clock.Now()
	if !r.sessions.CanMark(sess, now) {
		r.metrics.Mark(metrics.MarkRejected)
		return domain.AttendanceRecord{}, &domain.ValidationError{
			Field:  "session_id",
			Reason: "session is " + string(r.sessions.Status(sess, now)),
			Err:    domain.ErrSessionClosed,
		}
	}

	rec, err := r.load(ctx, studentID, eventID)
	if err != nil {
		return domain.AttendanceRecord{}, err
	}
	if rec.Marked(sessionID) {
		r.metrics.Mark(metrics.MarkDuplicate)
		return rec, &domain.DuplicateMarkError{StudentID: studentID, EventID: eventID, SessionID: sessionID}
	}

	rec.Marks[sessionID] = now
	rec.AggregatePercentage = Aggregate(rec.Marks, sessions)
	rec.UpdatedAt = now
	if rec.FinalStatus != domain.FinalUnset {
		// A grace-window mark after finalization moves the outcome with it.
		rec.FinalStatus = Eligibility(rec.Marks, sessions, r.thresholds.For(evt.Strategy))
	}
	if err := r.repo.SaveRecord(ctx, rec); err != nil {
		return domain.AttendanceRecord{}, domain.Persistence("save record", err)
	}
	r.metrics.Mark(metrics.MarkRecorded)
	if r.actions != nil {
		r.actions.LogAttendanceMark(ctx, domain.AttendanceMark{StudentID: studentID, EventID: eventID, SessionID: sessionID, At: now})
	}
	return rec, nil
}

// Finalize sets the final status of studentID's record for evt. It is
// idempotent. A student with no record is reported absent without
// creating one.
func (r *Recorder) Finalize(ctx context.Context, studentID string, evt domain.Event) (domain.AttendanceRecord, error) {
	if !evt.Strategy.Valid() {
		return domain.AttendanceRecord{}, domain.Invalid("strategy", "event has no resolved attendance strategy")
	}
	unlock := r.locks.Lock(studentID + "\x00" + evt.ID)
	defer unlock()

	sessions, err := r.repo.Sessions(ctx, evt.ID)
	if err != nil {
		return domain.AttendanceRecord{}, domain.Persistence("load sessions", err)
	}
	rec, err := r.repo.GetRecord(ctx, studentID, evt.ID)
	if errors.Is(err, domain.ErrRecordNotFound) {
		return domain.AttendanceRecord{StudentID: studentID, EventID: evt.ID, Marks: map[string]time.Time{}, FinalStatus: domain.FinalAbsent}, nil
	}
	if err != nil {
		return domain.AttendanceRecord{}, domain.Persistence("get record", err)
	}
	if rec.Marks == nil {
		rec.Marks = map[string]time.Time{}
	}

	pct := Aggregate(rec.Marks, sessions)
	status := Eligibility(rec.Marks, sessions, r.thresholds.For(evt.Strategy))
	if rec.FinalStatus == status && math.Abs(rec.AggregatePercentage-pct) < eligibilityEpsilon {
		return rec, nil
	}
	now := r.clock.Now()
	rec.AggregatePercentage = pct
	rec.FinalStatus = status
	rec.FinalizedAt = now
	rec.UpdatedAt = now
	if err := r.repo.SaveRecord(ctx, rec); err != nil {
		return domain.AttendanceRecord{}, domain.Persistence("save record", err)
	}
	r.metrics.Finalize(string(status))
	r.log.Debug("record finalized",
		logx.String("student_id", studentID), logx.String("event_id", evt.ID),
		logx.Float64("aggregate", pct), logx.String("status", string(status)))
	return rec, nil
}

// Reaggregate recomputes the stored aggregate of every record of evt
// against sessions, after the event's sessions were rebuilt. Finalized
// records are re-evaluated too.
func (r *Recorder) Reaggregate(ctx context.Context, evt domain.Event, sessions []domain.AttendanceSession) (int, error) {
	recs, err := r.repo.ListRecords(ctx, evt.ID)
	if err != nil {
		return 0, domain.Persistence("list records", err)
	}
	changed := 0
	for _, listed := range recs {
		ok, err := r.reaggregate(ctx, listed.StudentID, evt, sessions)
		if err != nil {
			return changed, err
		}
		if ok {
			changed++
		}
	}
	return changed, nil
}

func (r *Recorder) reaggregate(ctx context.Context, studentID string, evt domain.Event, sessions []domain.AttendanceSession) (bool, error) {
	unlock := r.locks.Lock(studentID + "\x00" + evt.ID)
	defer unlock()

	rec, err := r.repo.GetRecord(ctx, studentID, evt.ID)
	if errors.Is(err, domain.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, domain.Persistence("get record", err)
	}
	pct := Aggregate(rec.Marks, sessions)
	status := rec.FinalStatus
	if status != domain.FinalUnset {
		status = Eligibility(rec.Marks, sessions, r.thresholds.For(evt.Strategy))
	}
	if status == rec.FinalStatus && math.Abs(rec.AggregatePercentage-pct) < eligibilityEpsilon {
		return false, nil
	}
	rec.AggregatePercentage = pct
	rec.FinalStatus = status
	rec.UpdatedAt = r.clock.Now()
	if err := r.repo.SaveRecord(ctx, rec); err != nil {
		return false, domain.Persistence("save record", err)
	}
	return true, nil
}

func (r *Recorder) load(ctx context.Context, studentID, eventID string) (domain.AttendanceRecord, error) {
	rec, err := r.repo.GetRecord(ctx, studentID, eventID)
	if errors.Is(err, domain.ErrRecordNotFound) {
		return domain.AttendanceRecord{StudentID: studentID, EventID: eventID, Marks: map[string]time.Time{}}, nil
	}
	if err != nil {
		return domain.AttendanceRecord{}, domain.Persistence("get record", err)
	}
	if rec.Marks == nil {
		rec.Marks = map[string]time.Time{}
	}
	return rec, nil
}

func findSession(sessions []domain.AttendanceSession, id string) (domain.AttendanceSession, bool) {
	for _, s := range sessions {
		if s.SessionID == id {
			return s, true
		}
	}
	return domain.AttendanceSession{}, false
}

type refLock struct {
	sync.Mutex
	refs int
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
