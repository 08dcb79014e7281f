package trace

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for the trace tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		started_at  TEXT NOT NULL,
		finished_at TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS events (
		run_id  TEXT NOT NULL REFERENCES runs(id),
		seq     INTEGER NOT NULL,
		time_ns INTEGER NOT NULL,
		type    TEXT NOT NULL,
		pid     INTEGER NOT NULL,
		detail  TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (run_id, seq)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_events_run_type ON events(run_id, type)`,
	`CREATE INDEX IF NOT EXISTS idx_events_run_pid ON events(run_id, pid)`,
}

// migrate applies all schema statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, strings.TrimSpace(stmt)); err != nil {
			return err
		}
	}
	return nil
}
