package attendance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"campusevents/internal/domain"
	"campusevents/internal/store"
)

// Repository persists attendance sessions and records in SQL.
type Repository struct {
	db *store.DB
}

// NewRepository creates a repo.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db}
}

// GetRecord returns a single record by (student, event).
func (r *Repository) GetRecord(ctx context.Context, studentID, eventID string) (domain.AttendanceRecord, error) {
	row := r.db.Client.QueryRowContext(ctx, r.db.Rebind(`
		SELECT payload FROM attendance_records WHERE student_id = $1 AND event_id = $2
	`), studentID, eventID)
	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AttendanceRecord{}, domain.ErrRecordNotFound
		}
		return domain.AttendanceRecord{}, err
	}
	var rec domain.AttendanceRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return domain.AttendanceRecord{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

// SaveRecord upserts a record.
func (r *Repository) SaveRecord(ctx context.Context, rec domain.AttendanceRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	_, err = r.db.Client.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO attendance_records (student_id, event_id, aggregate_percentage, final_status, payload, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (student_id, event_id) DO UPDATE SET
			aggregate_percentage = excluded.aggregate_percentage,
			final_status = excluded.final_status,
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`), rec.StudentID, rec.EventID, rec.AggregatePercentage, string(rec.FinalStatus), string(payload), store.FormatTime(rec.UpdatedAt))
	return err
}

// DeleteRecord removes a record.
func (r *Repository) DeleteRecord(ctx context.Context, studentID, eventID string) error {
	res, err := r.db.Client.ExecContext(ctx, r.db.Rebind(`
		DELETE FROM attendance_records WHERE student_id = $1 AND event_id = $2
	`), studentID, eventID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

// ListRecords returns all records of an event ordered by student.
func (r *Repository) ListRecords(ctx context.Context, eventID string) ([]domain.AttendanceRecord, error) {
	rows, err := r.db.Client.QueryContext(ctx, r.db.Rebind(`
		SELECT payload FROM attendance_records WHERE event_id = $1 ORDER BY student_id
	`), eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AttendanceRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var rec domain.AttendanceRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// SaveSessions replaces the sessions of an event.
func (r *Repository) SaveSessions(ctx context.Context, eventID string, sessions []domain.AttendanceSession) error {
	tx, err := r.db.Client.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, r.db.Rebind(`DELETE FROM attendance_sessions WHERE event_id = $1`), eventID); err != nil {
		return err
	}
	insert := r.db.Rebind(`
		INSERT INTO attendance_sessions (event_id, session_id, position, payload)
		VALUES ($1, $2, $3, $4)
	`)
	for i, s := range sessions {
		payload, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insert, eventID, s.SessionID, i, string(payload)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Sessions returns the sessions of an event in materialization order.
func (r *Repository) Sessions(ctx context.Context, eventID string) ([]domain.AttendanceSession, error) {
	rows, err := r.db.Client.QueryContext(ctx, r.db.Rebind(`
		SELECT payload FROM attendance_sessions WHERE event_id = $1 ORDER BY position
	`), eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AttendanceSession
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var s domain.AttendanceSession
		if err := json.Unmarshal([]byte(payload), &s); err != nil {
			return nil, fmt.Errorf("decode session: %w", err)
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
