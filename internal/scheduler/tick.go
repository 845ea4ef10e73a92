package scheduler

import (
	"context"
	"errors"
	"time"

	"campusevents/internal/domain"
	"campusevents/internal/lifecycle"
	"campusevents/internal/logx"
	"campusevents/internal/metrics"
)

// TickReport summarizes one RunTick.
type TickReport struct {
	Popped  int
	Applied int
	Noop    int
	Stale   int
	Failed  int
}

// RunTick pops every trigger due at now and applies it. Failures are
// logged per trigger and never abort the tick; a failed trigger is not
// retried.
func (s *Service) RunTick(ctx context.Context, now time.Time) TickReport {
	start := time.Now()
	due := s.queue.PopDue(now)
	rep := TickReport{Popped: len(due)}
	for _, t := range due {
		if ctx.Err() != nil {
			s.log.Warn("tick interrupted", logx.Int("remaining", rep.Popped-rep.Applied-rep.Noop-rep.Stale-rep.Failed))
			break
		}
		outcome := s.fire(ctx, t, now)
		s.metrics.Trigger(string(t.Type), outcome)
		switch outcome {
		case metrics.OutcomeApplied:
			rep.Applied++
		case metrics.OutcomeNoop:
			rep.Noop++
		case metrics.OutcomeStale:
			rep.Stale++
		default:
			rep.Failed++
		}
	}
	s.metrics.ObserveTick(time.Since(start), s.queue.Len())
	if rep.Popped > 0 {
		fields := []logx.Field{
			logx.Int("popped", rep.Popped), logx.Int("applied", rep.Applied),
			logx.Int("noop", rep.Noop), logx.Int("stale", rep.Stale), logx.Int("failed", rep.Failed),
		}
		if next, ok := s.queue.NextFireAt(); ok {
			fields = append(fields, logx.Time("next_fire_at", next))
		}
		s.log.Info("tick processed", fields...)
	}
	return rep
}

func (s *Service) fire(parent context.Context, t domain.Trigger, now time.Time) string {
	ctx, cancel := context.WithTimeout(parent, s.cfg.TriggerTimeout)
	defer cancel()
	log := s.log.With(logx.String("event_id", t.EventID), logx.String("trigger", string(t.Type)))

	// The transition is applied to whatever version is stored at save
	// time, so a concurrent decline or cancel is never overwritten.
	var (
		outcome    string
		reason     string
		prev, next domain.State
	)
	evt, err := domain.MutateEvent(ctx, s.events, t.EventID, func(evt *domain.Event) (bool, error) {
		if !evt.Approved() {
			outcome, reason = metrics.OutcomeStale, "event is "+string(evt.ApprovalState)
			return false, nil
		}
		to, ok := lifecycle.Transition(evt.State, t.Type)
		if !ok {
			outcome = metrics.OutcomeNoop
			return false, nil
		}
		outcome, prev, next = metrics.OutcomeApplied, evt.State, to
		evt.State = to
		evt.MarkFired(t.Type, now)
		evt.UpdatedAt = now
		return true, nil
	})
	switch {
	case errors.Is(err, domain.ErrEventNotFound):
		outcome, reason = metrics.OutcomeStale, "event not found"
	case err != nil:
		log.Error("trigger dropped", logx.Err(domain.Persistence("update event", err)), logx.Bool("timeout", errors.Is(err, context.DeadlineExceeded)))
		return metrics.OutcomeFailed
	}

	switch outcome {
	case metrics.OutcomeStale:
		log.Info("trigger discarded", logx.Err(&domain.StaleTriggerError{EventID: t.EventID, Type: t.Type, Reason: reason}))
		return outcome
	case metrics.OutcomeNoop:
		log.Debug("transition not applicable", logx.String("state", evt.State.String()))
		return outcome
	}

	log.Info("status changed", logx.String("from", prev.String()), logx.String("to", next.String()))
	s.logStatusChange(ctx, domain.StatusChange{EventID: evt.ID, Trigger: t.Type, From: prev, To: next, At: now, Actor: "scheduler"})

	if next.Status == domain.StatusCompleted && prev.Status != domain.StatusCompleted && s.onCompleted != nil {
		// Finalizing every record can outlast the per-trigger timeout.
		if err := s.onCompleted(parent, evt); err != nil {
			log.Warn("completion hook failed", logx.Err(err))
		}
	}
	return metrics.OutcomeApplied
}
