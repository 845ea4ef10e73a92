package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"campusevents/internal/domain"
)

// EventRepository persists events in SQL. The full event is kept as JSON;
// lifecycle columns are duplicated for filtering.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a repo.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Get(ctx context.Context, id string) (domain.Event, error) {
	row := r.db.Client.QueryRowContext(ctx, r.db.Rebind(`SELECT payload, version FROM events WHERE id = $1`), id)
	evt, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Event{}, domain.ErrEventNotFound
	}
	return evt, err
}

// Save writes evt under optimistic concurrency: a new event (version 0)
// is inserted, an existing one is updated only while the stored version
// still equals evt.Version.
func (r *EventRepository) Save(ctx context.Context, evt *domain.Event) error {
	if evt.ID == "" {
		return errors.New("event id required")
	}
	next := *evt
	next.Version = evt.Version + 1
	payload, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	var res sql.Result
	if evt.Version == 0 {
		res, err = r.db.Client.ExecContext(ctx, r.db.Rebind(`
			INSERT INTO events (id, approval_state, status, sub_status, strategy, payload, created_at, updated_at, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO NOTHING
		`), evt.ID, string(evt.ApprovalState), string(evt.State.Status), string(evt.State.SubStatus),
			string(evt.Strategy), string(payload), FormatTime(evt.CreatedAt), FormatTime(evt.UpdatedAt), next.Version)
	} else {
		res, err = r.db.Client.ExecContext(ctx, r.db.Rebind(`
			UPDATE events SET
				approval_state = $2,
				status = $3,
				sub_status = $4,
				strategy = $5,
				payload = $6,
				updated_at = $7,
				version = $8
			WHERE id = $1 AND version = $9
		`), evt.ID, string(evt.ApprovalState), string(evt.State.Status), string(evt.State.SubStatus),
			string(evt.Strategy), string(payload), FormatTime(evt.UpdatedAt), next.Version, evt.Version)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if evt.Version != 0 {
			if _, err := r.Get(ctx, evt.ID); errors.Is(err, domain.ErrEventNotFound) {
				return err
			}
		}
		return domain.ErrConflict
	}
	evt.Version = next.Version
	return nil
}

func (r *EventRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.Client.ExecContext(ctx, r.db.Rebind(`DELETE FROM events WHERE id = $1`), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

func (r *EventRepository) ListSchedulable(ctx context.Context) ([]domain.Event, error) {
	rows, err := r.db.Client.QueryContext(ctx, r.db.Rebind(`
		SELECT payload, version FROM events
		WHERE approval_state = $1
		  AND status <> $2
		  AND NOT (status = $3 AND sub_status = $4)
		ORDER BY id
	`), string(domain.ApprovalApproved), string(domain.StatusCancelled),
		string(domain.StatusCompleted), string(domain.SubCertificateClosed))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, evt)
	}
	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (domain.Event, error) {
	var (
		payload string
		version int64
	)
	if err := row.Scan(&payload, &version); err != nil {
		return domain.Event{}, err
	}
	var evt domain.Event
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		return domain.Event{}, fmt.Errorf("decode event: %w", err)
	}
	evt.Version = version
	return evt, nil
}
