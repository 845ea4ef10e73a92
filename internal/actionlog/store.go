package actionlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"campusevents/internal/logx"
	"campusevents/internal/queue"
	"campusevents/internal/store"
)

// Store persists entries in the action_logs table.
type Store struct {
	db  *store.DB
	log logx.Logger
}

func NewStore(db *store.DB, log logx.Logger) *Store {
	return &Store{db: db, log: log.With(logx.String("component", "actionlog"))}
}

// Append inserts e, assigning an id when it has none.
func (s *Store) Append(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.db.Client.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO action_logs (id, kind, event_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`), e.ID, e.Kind, e.EventID, string(e.Payload), store.FormatTime(e.CreatedAt))
	if err != nil {
		return Entry{}, fmt.Errorf("append action log: %w", err)
	}
	return e, nil
}

// List returns the entries of an event, oldest first.
func (s *Store) List(ctx context.Context, eventID string) ([]Entry, error) {
	rows, err := s.db.Client.QueryContext(ctx, s.db.Rebind(`
		SELECT id, kind, event_id, payload, created_at
		FROM action_logs WHERE event_id = $1
		ORDER BY created_at, id
	`), eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Entry
	for rows.Next() {
		var e Entry
		var payload, created string
		if err := rows.Scan(&e.ID, &e.Kind, &e.EventID, &payload, &created); err != nil {
			return nil, err
		}
		e.Payload = json.RawMessage(payload)
		if e.CreatedAt, err = store.ParseTime(created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// Apply decodes and persists one queue message.
func (s *Store) Apply(ctx context.Context, msg queue.Message) error {
	e, err := Decode(msg)
	if err != nil {
		return err
	}
	_, err = s.Append(ctx, e)
	return err
}

// Drain persists messages from q until ctx is done. Bad messages are
// logged and skipped.
func (s *Store) Drain(ctx context.Context, q queue.Queue) error {
	msgs, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range msgs {
		if err := s.Apply(ctx, msg); err != nil {
			s.log.Error("action log not persisted", logx.String("kind", msg.Type), logx.Err(err))
			continue
		}
		s.log.Debug("action log persisted", logx.String("kind", msg.Type))
	}
	return ctx.Err()
}
