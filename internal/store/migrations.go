package store

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id             TEXT PRIMARY KEY,
		approval_state TEXT NOT NULL,
		status         TEXT NOT NULL,
		sub_status     TEXT NOT NULL DEFAULT '',
		strategy       TEXT NOT NULL DEFAULT '',
		payload        TEXT NOT NULL,
		created_at     TEXT NOT NULL,
		updated_at     TEXT NOT NULL,
		version        BIGINT NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_schedulable ON events(approval_state, status)`,

	`CREATE TABLE IF NOT EXISTS attendance_sessions (
		event_id   TEXT NOT NULL,
		session_id TEXT NOT NULL,
		position   INTEGER NOT NULL,
		payload    TEXT NOT NULL,
		PRIMARY KEY (event_id, session_id)
	)`,

	`CREATE TABLE IF NOT EXISTS attendance_records (
		student_id           TEXT NOT NULL,
		event_id             TEXT NOT NULL,
		aggregate_percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
		final_status         TEXT NOT NULL DEFAULT '',
		payload              TEXT NOT NULL,
		updated_at           TEXT NOT NULL,
		PRIMARY KEY (student_id, event_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_records_event ON attendance_records(event_id)`,

	`CREATE TABLE IF NOT EXISTS action_logs (
		id         TEXT PRIMARY KEY,
		kind       TEXT NOT NULL,
		event_id   TEXT NOT NULL,
		payload    TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_action_logs_event ON action_logs(event_id)`,
}

// Migrate creates all tables and indexes. Statements are idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
