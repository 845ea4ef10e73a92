// Package actionlog records lifecycle transitions and attendance marks for
// audit. Every ActionLogger here is best-effort: failures are logged and
// never reach the caller.
package actionlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"campusevents/internal/domain"
	"campusevents/internal/logx"
	"campusevents/internal/queue"
)

// Message types carried on the queue.
const (
	KindStatusChange   = "status_change"
	KindAttendanceMark = "attendance_mark"
)

// Entry is one persisted audit row.
type Entry struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	EventID   string          `json:"event_id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Decode unpacks a queue message into an entry. The id is left empty.
func Decode(msg queue.Message) (Entry, error) {
	var eventID string
	var at time.Time
	switch msg.Type {
	case KindStatusChange:
		var c domain.StatusChange
		if err := json.Unmarshal(msg.Body, &c); err != nil {
			return Entry{}, fmt.Errorf("decode status change: %w", err)
		}
		eventID, at = c.EventID, c.At
	case KindAttendanceMark:
		var m domain.AttendanceMark
		if err := json.Unmarshal(msg.Body, &m); err != nil {
			return Entry{}, fmt.Errorf("decode attendance mark: %w", err)
		}
		eventID, at = m.EventID, m.At
	default:
		return Entry{}, fmt.Errorf("unknown action kind %q", msg.Type)
	}
	return Entry{Kind: msg.Type, EventID: eventID, Payload: msg.Body, CreatedAt: at}, nil
}

// Log writes actions to the structured log.
type Log struct {
	log logx.Logger
}

func NewLog(log logx.Logger) *Log {
	return &Log{log: log.With(logx.String("component", "actionlog"))}
}

func (l *Log) LogStatusChange(_ context.Context, c domain.StatusChange) {
	l.log.Info("status changed",
		logx.String("event_id", c.EventID), logx.String("trigger", string(c.Trigger)),
		logx.String("from", c.From.String()), logx.String("to", c.To.String()),
		logx.String("actor", c.Actor))
}

func (l *Log) LogAttendanceMark(_ context.Context, m domain.AttendanceMark) {
	l.log.Info("attendance marked",
		logx.String("event_id", m.EventID), logx.String("student_id", m.StudentID),
		logx.String("session_id", m.SessionID))
}

// Publisher forwards actions to a queue for the worker to persist.
type Publisher struct {
	q       queue.Queue
	timeout time.Duration
	log     logx.Logger
}

// NewPublisher bounds each publish by timeout.
func NewPublisher(q queue.Queue, timeout time.Duration, log logx.Logger) *Publisher {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Publisher{q: q, timeout: timeout, log: log.With(logx.String("component", "actionlog"))}
}

func (p *Publisher) LogStatusChange(ctx context.Context, c domain.StatusChange) {
	p.publish(ctx, KindStatusChange, c.EventID, c)
}

func (p *Publisher) LogAttendanceMark(ctx context.Context, m domain.AttendanceMark) {
	p.publish(ctx, KindAttendanceMark, m.EventID, m)
}

// tryPublisher is a queue that can refuse a message instead of waiting.
type tryPublisher interface {
	TryPublish(msg queue.Message) error
}

func (p *Publisher) publish(ctx context.Context, kind, eventID string, body any) {
	msg, err := queue.NewMessage(kind, body)
	switch q := p.q.(type) {
	case tryPublisher:
		// A full in-process buffer drops the entry instead of stalling the caller.
		if err == nil {
			err = q.TryPublish(msg)
		}
	default:
		if err == nil {
			// The caller's deadline may be nearly spent; audit gets its own.
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
			err = p.q.Publish(ctx, msg)
			cancel()
		}
	}
	if err != nil {
		p.log.Warn("action log dropped", logx.String("kind", kind), logx.String("event_id", eventID), logx.Err(err))
	}
}

// Multi fans out to several loggers in order.
type Multi []domain.ActionLogger

func (m Multi) LogStatusChange(ctx context.Context, c domain.StatusChange) {
	for _, l := range m {
		if l != nil {
			l.LogStatusChange(ctx, c)
		}
	}
}

func (m Multi) LogAttendanceMark(ctx context.Context, mark domain.AttendanceMark) {
	for _, l := range m {
		if l != nil {
			l.LogAttendanceMark(ctx, mark)
		}
	}
}
