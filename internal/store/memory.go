package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"campusevents/internal/domain"
)

// MemoryEvents is an in-process EventRepository for dev mode and tests.
type MemoryEvents struct {
	mu     sync.RWMutex
	events map[string]domain.Event
}

func NewMemoryEvents() *MemoryEvents {
	return &MemoryEvents{events: make(map[string]domain.Event)}
}

func (m *MemoryEvents) Get(_ context.Context, id string) (domain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	evt, ok := m.events[id]
	if !ok {
		return domain.Event{}, domain.ErrEventNotFound
	}
	return cloneEvent(evt), nil
}

func (m *MemoryEvents) Save(_ context.Context, evt *domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.events[evt.ID]
	switch {
	case !ok && evt.Version != 0:
		return domain.ErrEventNotFound
	case ok && cur.Version != evt.Version:
		return domain.ErrConflict
	}
	evt.Version++
	m.events[evt.ID] = cloneEvent(*evt)
	return nil
}

func (m *MemoryEvents) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return domain.ErrEventNotFound
	}
	delete(m.events, id)
	return nil
}

func (m *MemoryEvents) ListSchedulable(_ context.Context) ([]domain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Event
	for _, evt := range m.events {
		if evt.Approved() && !evt.State.Terminal() {
			out = append(out, cloneEvent(evt))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func cloneEvent(evt domain.Event) domain.Event {
	if evt.Fired != nil {
		fired := make(map[domain.TriggerType]time.Time, len(evt.Fired))
		for k, v := range evt.Fired {
			fired[k] = v
		}
		evt.Fired = fired
	}
	evt.Shape.Agenda = append([]domain.AgendaSlot(nil), evt.Shape.Agenda...)
	evt.Shape.Milestones = append([]domain.Milestone(nil), evt.Shape.Milestones...)
	return evt
}

type recordKey struct{ student, event string }

// MemoryAttendance is an in-process AttendanceRepository for dev mode and tests.
type MemoryAttendance struct {
	mu       sync.RWMutex
	records  map[recordKey]domain.AttendanceRecord
	sessions map[string][]domain.AttendanceSession
}

func NewMemoryAttendance() *MemoryAttendance {
	return &MemoryAttendance{
		records:  make(map[recordKey]domain.AttendanceRecord),
		sessions: make(map[string][]domain.AttendanceSession),
	}
}

func (m *MemoryAttendance) GetRecord(_ context.Context, studentID, eventID string) (domain.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[recordKey{studentID, eventID}]
	if !ok {
		return domain.AttendanceRecord{}, domain.ErrRecordNotFound
	}
	return cloneRecord(rec), nil
}

func (m *MemoryAttendance) SaveRecord(_ context.Context, rec domain.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[recordKey{rec.StudentID, rec.EventID}] = cloneRecord(rec)
	return nil
}

func (m *MemoryAttendance) DeleteRecord(_ context.Context, studentID, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := recordKey{studentID, eventID}
	if _, ok := m.records[k]; !ok {
		return domain.ErrRecordNotFound
	}
	delete(m.records, k)
	return nil
}

func (m *MemoryAttendance) ListRecords(_ context.Context, eventID string) ([]domain.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.AttendanceRecord
	for k, rec := range m.records {
		if k.event == eventID {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func (m *MemoryAttendance) SaveSessions(_ context.Context, eventID string, sessions []domain.AttendanceSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[eventID] = append([]domain.AttendanceSession(nil), sessions...)
	return nil
}

func (m *MemoryAttendance) Sessions(_ context.Context, eventID string) ([]domain.AttendanceSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.AttendanceSession(nil), m.sessions[eventID]...), nil
}

func cloneRecord(rec domain.AttendanceRecord) domain.AttendanceRecord {
	marks := make(map[string]time.Time, len(rec.Marks))
	for k, v := range rec.Marks {
		marks[k] = v
	}
	rec.Marks = marks
	return rec
}
