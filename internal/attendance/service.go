package attendance

import (
	"context"
	"errors"
	"time"

	"campusevents/internal/clock"
	"campusevents/internal/domain"
	"campusevents/internal/logx"
	"campusevents/internal/metrics"
)

// Config bundles the attendance engine settings.
type Config struct {
	Thresholds Thresholds
	Sessions   SessionConfig
}

func DefaultConfig() Config {
	return Config{Thresholds: DefaultThresholds(), Sessions: DefaultSessionConfig()}
}

// Option customizes a Service.
type Option func(*Service)

func WithLogger(log logx.Logger) Option { return func(s *Service) { s.log = log } }

func WithActionLogger(a domain.ActionLogger) Option { return func(s *Service) { s.actions = a } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// Service is the attendance entry point used by callers: strategy
// resolution, session views, marking and finalization.
type Service struct {
	events   domain.EventRepository
	repo     domain.AttendanceRepository
	resolver Resolver
	sessions *SessionManager
	recorder *Recorder
	clock    clock.Clock
	log      logx.Logger
	actions  domain.ActionLogger
	metrics  *metrics.Metrics
}

// NewService creates a service backed by the given repositories.
func NewService(events domain.EventRepository, repo domain.AttendanceRepository, clk clock.Clock, cfg Config, opts ...Option) (*Service, error) {
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.Real{}
	}
	s := &Service{
		events:   events,
		repo:     repo,
		sessions: NewSessionManager(cfg.Sessions),
		clock:    clk,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	s.log = s.log.With(logx.String("component", "attendance"))
	s.recorder = NewRecorder(repo, s.sessions, cfg.Thresholds, clk)
	s.recorder.actions = s.actions
	s.recorder.metrics = s.metrics
	s.recorder.log = s.log
	return s, nil
}

// ResolveStrategy picks the strategy for a new event, then persists the
// event and its sessions. Reads use the persisted result.
func (s *Service) ResolveStrategy(ctx context.Context, evt domain.Event) (domain.Event, []domain.AttendanceSession, error) {
	sessions, err := s.resolve(&evt)
	if err != nil {
		return domain.Event{}, nil, err
	}
	if err := s.events.Save(ctx, &evt); err != nil {
		return domain.Event{}, nil, domain.Persistence("save event", err)
	}
	if err := s.repo.SaveSessions(ctx, evt.ID, sessions); err != nil {
		return domain.Event{}, nil, domain.Persistence("save sessions", err)
	}
	s.log.Info("strategy resolved", logx.String("event_id", evt.ID), logx.String("strategy", string(evt.Strategy)), logx.Int("sessions", len(sessions)))
	return evt, sessions, nil
}

// Update applies edit to the stored event and re-resolves its strategy.
// A concurrent write to the event (a tick, a decline) reruns edit on the
// fresh copy instead of being overwritten. Existing records are
// re-aggregated against the rebuilt sessions.
func (s *Service) Update(ctx context.Context, eventID string, edit func(evt *domain.Event) error) (domain.Event, []domain.AttendanceSession, error) {
	var sessions []domain.AttendanceSession
	evt, err := domain.MutateEvent(ctx, s.events, eventID, func(evt *domain.Event) (bool, error) {
		if err := edit(evt); err != nil {
			return false, err
		}
		var err error
		sessions, err = s.resolve(evt)
		return err == nil, err
	})
	if err != nil {
		return domain.Event{}, nil, domain.Persistence("update event", err)
	}
	if err := s.repo.SaveSessions(ctx, evt.ID, sessions); err != nil {
		return domain.Event{}, nil, domain.Persistence("save sessions", err)
	}
	n, err := s.recorder.Reaggregate(ctx, evt, sessions)
	if err != nil {
		return domain.Event{}, nil, err
	}
	s.log.Info("strategy resolved", logx.String("event_id", evt.ID), logx.String("strategy", string(evt.Strategy)),
		logx.Int("sessions", len(sessions)), logx.Int("records_updated", n))
	return evt, sessions, nil
}

func (s *Service) resolve(evt *domain.Event) ([]domain.AttendanceSession, error) {
	kind := s.resolver.Resolve(*evt)
	sessions, err := s.sessions.Materialize(*evt, kind)
	if err != nil {
		return nil, err
	}
	evt.Strategy = kind
	return sessions, nil
}

// Sessions returns every session of the event with its status at now.
func (s *Service) Sessions(ctx context.Context, eventID string, now time.Time) ([]domain.AttendanceSession, error) {
	sessions, err := s.repo.Sessions(ctx, eventID)
	if err != nil {
		return nil, domain.Persistence("load sessions", err)
	}
	return s.sessions.Refresh(sessions, now), nil
}

// ActiveSessions returns the sessions active at now plus the next upcoming one.
func (s *Service) ActiveSessions(ctx context.Context, eventID string, now time.Time) ([]domain.AttendanceSession, error) {
	sessions, err := s.repo.Sessions(ctx, eventID)
	if err != nil {
		return nil, domain.Persistence("load sessions", err)
	}
	return s.sessions.Active(sessions, now), nil
}

// Mark records attendance for a session of an approved, non-cancelled event.
func (s *Service) Mark(ctx context.Context, studentID, eventID, sessionID string) (domain.AttendanceRecord, error) {
	evt, err := s.events.Get(ctx, eventID)
	if err != nil {
		return domain.AttendanceRecord{}, domain.Persistence("get event", err)
	}
	if !evt.Approved() || evt.State.Status == domain.StatusCancelled {
		return domain.AttendanceRecord{}, domain.Invalid("event_id", "event is not open for attendance")
	}
	return s.recorder.Mark(ctx, studentID, evt, sessionID)
}

// Finalize computes the final status of one student's record.
func (s *Service) Finalize(ctx context.Context, studentID, eventID string) (domain.AttendanceRecord, error) {
	evt, err := s.events.Get(ctx, eventID)
	if err != nil {
		return domain.AttendanceRecord{}, domain.Persistence("get event", err)
	}
	return s.recorder.Finalize(ctx, studentID, evt)
}

// FinalizeEvent finalizes every record of evt. It matches the scheduler's
// completion hook signature.
func (s *Service) FinalizeEvent(ctx context.Context, evt domain.Event) error {
	recs, err := s.repo.ListRecords(ctx, evt.ID)
	if err != nil {
		return domain.Persistence("list records", err)
	}
	var errs []error
	for _, rec := range recs {
		if _, err := s.recorder.Finalize(ctx, rec.StudentID, evt); err != nil {
			errs = append(errs, err)
		}
	}
	s.log.Info("event finalized", logx.String("event_id", evt.ID), logx.Int("records", len(recs)), logx.Int("failed", len(errs)))
	return errors.Join(errs...)
}

// Record returns a student's record for an event.
func (s *Service) Record(ctx context.Context, studentID, eventID string) (domain.AttendanceRecord, error) {
	rec, err := s.repo.GetRecord(ctx, studentID, eventID)
	if err != nil {
		return domain.AttendanceRecord{}, domain.Persistence("get record", err)
	}
	return rec, nil
}

// Records lists every record of an event.
func (s *Service) Records(ctx context.Context, eventID string) ([]domain.AttendanceRecord, error) {
	recs, err := s.repo.ListRecords(ctx, eventID)
	if err != nil {
		return nil, domain.Persistence("list records", err)
	}
	return recs, nil
}

// CancelRegistration deletes the student's record for the event.
func (s *Service) CancelRegistration(ctx context.Context, studentID, eventID string) error {
	if err := s.repo.DeleteRecord(ctx, studentID, eventID); err != nil {
		return domain.Persistence("delete record", err)
	}
	s.log.Info("registration cancelled", logx.String("student_id", studentID), logx.String("event_id", eventID))
	return nil
}
