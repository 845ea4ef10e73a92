// Package scheduler advances approved events through their lifecycle at
// the wall-clock instants computed from their windows.
//
// Service owns the trigger queue. Event mutations (create, approve,
// update, decline) enqueue or purge triggers; RunTick pops due triggers,
// re-reads each event, applies the transition table and persists the
// result. Loop drives RunTick on a fixed cadence.
package scheduler

import (
	"context"
	"errors"
	"time"

	"campusevents/internal/clock"
	"campusevents/internal/domain"
	"campusevents/internal/lifecycle"
	"campusevents/internal/logx"
	"campusevents/internal/metrics"
	"campusevents/internal/trigger"
)

// Config controls trigger computation and per-trigger processing.
type Config struct {
	// TriggerTimeout bounds the repository work of one trigger.
	TriggerTimeout time.Duration
	// CertificateWindow is used when an event sets no certificate close time.
	CertificateWindow time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		TriggerTimeout:    5 * time.Second,
		CertificateWindow: lifecycle.DefaultCertificateWindow,
	}
}

// CompletionHook runs after an event transitions into completed.
type CompletionHook func(ctx context.Context, evt domain.Event) error

// Option customizes a Service.
type Option func(*Service)

func WithLogger(log logx.Logger) Option { return func(s *Service) { s.log = log } }

func WithActionLogger(a domain.ActionLogger) Option { return func(s *Service) { s.actions = a } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithCompletionHook(h CompletionHook) Option { return func(s *Service) { s.onCompleted = h } }

// Service is the event lifecycle scheduler.
type Service struct {
	queue       *trigger.Queue
	events      domain.EventRepository
	clock       clock.Clock
	cfg         Config
	log         logx.Logger
	actions     domain.ActionLogger
	metrics     *metrics.Metrics
	onCompleted CompletionHook
}

// New creates a scheduler with an empty queue.
func New(events domain.EventRepository, clk clock.Clock, cfg Config, opts ...Option) *Service {
	if cfg.TriggerTimeout <= 0 {
		cfg.TriggerTimeout = DefaultConfig().TriggerTimeout
	}
	if cfg.CertificateWindow <= 0 {
		cfg.CertificateWindow = lifecycle.DefaultCertificateWindow
	}
	if clk == nil {
		clk = clock.Real{}
	}
	s := &Service{
		queue:  trigger.NewQueue(),
		events: events,
		clock:  clk,
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	s.log = s.log.With(logx.String("component", "scheduler"))
	return s
}

// OnEventCreated schedules nothing unless the event is already approved.
func (s *Service) OnEventCreated(ctx context.Context, evt domain.Event) error {
	return s.skipNotApproved(s.schedule(ctx, evt))
}

// OnEventApproved computes and enqueues the event's triggers.
func (s *Service) OnEventApproved(ctx context.Context, evt domain.Event) error {
	return s.skipNotApproved(s.schedule(ctx, evt))
}

// OnEventUpdated replaces the event's un-fired triggers. Updates to an
// event that is not approved only ever remove triggers.
func (s *Service) OnEventUpdated(ctx context.Context, evt domain.Event) error {
	return s.skipNotApproved(s.schedule(ctx, evt))
}

// OnEventDeclinedOrDeleted purges every queued trigger of the event.
func (s *Service) OnEventDeclinedOrDeleted(_ context.Context, eventID string) {
	if n := s.queue.Remove(eventID); n > 0 {
		s.log.Info("triggers purged", logx.String("event_id", eventID), logx.Int("count", n))
	}
}

// Cancel moves the event to cancelled and purges its triggers.
func (s *Service) Cancel(ctx context.Context, eventID, actor string) (domain.Event, error) {
	now := s.clock.Now()
	var (
		changed bool
		prev    domain.State
	)
	evt, err := domain.MutateEvent(ctx, s.events, eventID, func(evt *domain.Event) (bool, error) {
		changed = evt.State.Status != domain.StatusCancelled
		if !changed {
			return false, nil
		}
		prev = evt.State
		evt.State = domain.State{Status: domain.StatusCancelled}
		evt.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		return domain.Event{}, domain.Persistence("cancel event", err)
	}
	s.queue.Remove(eventID)
	if changed {
		s.logStatusChange(ctx, domain.StatusChange{EventID: eventID, From: prev, To: evt.State, At: now, Actor: actor})
	}
	return evt, nil
}

// Pending lists the queued triggers of an event in firing order.
func (s *Service) Pending(eventID string) []domain.Trigger {
	return s.queue.Pending(eventID)
}

// QueueLen reports the number of queued triggers.
func (s *Service) QueueLen() int { return s.queue.Len() }

// Restore re-enqueues un-fired triggers of every schedulable event. The
// queue lives in memory, so this runs once at startup.
func (s *Service) Restore(ctx context.Context) (int, error) {
	evts, err := s.events.ListSchedulable(ctx)
	if err != nil {
		return 0, domain.Persistence("list schedulable events", err)
	}
	restored := 0
	for _, evt := range evts {
		if err := s.skipNotApproved(s.schedule(ctx, evt)); err != nil {
			s.log.Warn("restore skipped event", logx.String("event_id", evt.ID), logx.Err(err))
			continue
		}
		restored++
	}
	s.log.Info("triggers restored", logx.Int("events", restored), logx.Int("queued", s.queue.Len()))
	return restored, nil
}

func (s *Service) schedule(_ context.Context, evt domain.Event) error {
	if !evt.Approved() {
		s.queue.Remove(evt.ID)
		return &domain.NotApprovedError{EventID: evt.ID, State: evt.ApprovalState}
	}
	if evt.State.Terminal() {
		s.queue.Remove(evt.ID)
		return nil
	}
	trigs, err := lifecycle.ComputeTriggers(evt, s.clock.Now(), s.cfg.CertificateWindow)
	if err != nil {
		return err
	}
	s.queue.Remove(evt.ID)
	queued := 0
	for _, t := range trigs {
		if evt.HasFired(t.Type) {
			continue
		}
		s.queue.Add(t)
		queued++
	}
	s.log.Debug("triggers scheduled", logx.String("event_id", evt.ID), logx.Int("count", queued))
	return nil
}

func (s *Service) skipNotApproved(err error) error {
	var na *domain.NotApprovedError
	if errors.As(err, &na) {
		s.log.Debug("scheduling skipped", logx.String("event_id", na.EventID), logx.String("approval", string(na.State)))
		return nil
	}
	return err
}

func (s *Service) logStatusChange(ctx context.Context, change domain.StatusChange) {
	if s.actions == nil {
		return
	}
	s.actions.LogStatusChange(ctx, change)
}
