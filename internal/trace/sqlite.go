package trace

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/me/gokern/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists scheduling events to a SQLite database, one
// run per recorder lifetime.
type SQLiteRecorder struct {
	db     *sql.DB
	logger *slog.Logger
	runID  string
}

// NewSQLiteRecorder opens (or creates) a SQLite database at dbPath,
// migrates the schema, and registers a new run. Use ":memory:" for an
// in-memory database (useful in tests).
func NewSQLiteRecorder(dbPath string, logger *slog.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// WAL mode keeps readers (the trace CLI) off the recorder's back.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	r := &SQLiteRecorder{
		db:     db,
		logger: logger.With("component", "trace"),
		runID:  "run_" + uuid.New().String(),
	}
	if err := migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if _, err := db.Exec(
		`INSERT INTO runs (id, started_at) VALUES (?, ?)`,
		r.runID, time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("insert run: %w", err)
	}
	r.logger.Debug("trace run opened", "run_id", r.runID, "path", dbPath)
	return r, nil
}

// RunID returns the identifier of the run this recorder writes.
func (r *SQLiteRecorder) RunID() string {
	return r.runID
}

// Record inserts one event. Insert failures are logged, not surfaced:
// tracing must never take the scheduler down.
func (r *SQLiteRecorder) Record(ev Event) {
	_, err := r.db.Exec(
		`INSERT INTO events (run_id, seq, time_ns, type, pid, detail) VALUES (?, ?, ?, ?, ?, ?)`,
		r.runID, ev.Seq, int64(ev.Time), string(ev.Type), uint64(ev.Pid), ev.Detail,
	)
	if err != nil {
		r.logger.Error("record event", "seq", ev.Seq, "type", ev.Type, "error", err)
	}
}

// Close finalizes the run and closes the database.
func (r *SQLiteRecorder) Close() error {
	if _, err := r.db.Exec(
		`UPDATE runs SET finished_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), r.runID,
	); err != nil {
		r.logger.Error("finalize run", "run_id", r.runID, "error", err)
	}
	return r.db.Close()
}

// Run summarizes one recorded run.
type Run struct {
	ID         string
	StartedAt  string
	FinishedAt string
	Events     int
}

// Reader queries recorded runs and events. It opens the database
// read-only with respect to the schema (migrations still apply so a
// fresh path is usable).
type Reader struct {
	db *sql.DB
}

// NewReader opens a trace database for querying.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	if err := migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Reader{db: db}, nil
}

// Close closes the underlying database.
func (r *Reader) Close() error {
	return r.db.Close()
}

// ListRuns returns recorded runs, most recent first.
func (r *Reader) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT runs.id, runs.started_at, COALESCE(runs.finished_at, ''),
		        (SELECT COUNT(*) FROM events WHERE events.run_id = runs.id)
		 FROM runs ORDER BY runs.started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.Events); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Events returns all events of one run in sequence order.
func (r *Reader) Events(ctx context.Context, runID string) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, time_ns, type, pid, detail FROM events
		 WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var timeNS int64
		var pid uint64
		var typ string
		if err := rows.Scan(&ev.Seq, &timeNS, &typ, &pid, &ev.Detail); err != nil {
			return nil, err
		}
		ev.Time = model.Time(timeNS)
		ev.Type = EventType(typ)
		ev.Pid = model.Pid(pid)
		events = append(events, ev)
	}
	return events, rows.Err()
}
