package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"campusevents/internal/logx"
)

// DefaultTick is the cadence used when none is configured.
const DefaultTick = "@every 15s"

var tickParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseTick accepts a cron expression ("*/15 * * * * *", "@every 15s") or
// a plain Go duration ("15s").
func ParseTick(raw string) (cron.Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		s = DefaultTick
	}
	if !strings.HasPrefix(s, "@") && !strings.ContainsAny(s, " \t") {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid tick %q: %w", raw, err)
		}
		if d < time.Second {
			return nil, fmt.Errorf("invalid tick %q: interval must be >= 1s", raw)
		}
		return cron.Every(d), nil
	}
	sched, err := tickParser.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid tick %q: %w", raw, err)
	}
	return sched, nil
}

// Loop is the single background goroutine that owns the tick.
type Loop struct {
	svc      *Service
	sched    cron.Schedule
	log      logx.Logger
	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewLoop builds a loop ticking svc on sched.
func NewLoop(svc *Service, sched cron.Schedule) *Loop {
	return &Loop{
		svc:    svc,
		sched:  sched,
		log:    svc.log.With(logx.String("loop", "tick")),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Run restores queued triggers, then ticks until ctx is cancelled or Stop
// is called. A loop runs at most once; Run after Stop returns at once.
func (l *Loop) Run(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return errors.New("scheduler loop already started")
	}
	defer close(l.doneCh)
	select {
	case <-l.stopCh:
		return nil
	default:
	}
	if _, err := l.svc.Restore(ctx); err != nil {
		l.log.Error("restore failed", logx.Err(err))
	}
	l.svc.RunTick(ctx, l.svc.clock.Now())
	l.log.Info("scheduler started")

	for {
		wait := time.Until(l.sched.Next(time.Now()))
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.log.Info("scheduler stopping (context cancelled)")
			return nil
		case <-l.stopCh:
			timer.Stop()
			l.log.Info("scheduler stopping (stop called)")
			return nil
		case <-timer.C:
			l.svc.RunTick(ctx, l.svc.clock.Now())
		}
	}
}

// Stop ends Run and waits for the in-flight tick to finish. It returns
// immediately when Run was never started.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	if l.started.Load() {
		<-l.doneCh
	}
}
