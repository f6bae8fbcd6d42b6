// Package audit persists pool events to a local SQLite database so
// operators can reconstruct what the pool did after the fact.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"agentpool/internal/domain"
)

// SQLiteLog implements a durable event trail using SQLite.
type SQLiteLog struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteLog opens (or creates) a SQLite database at dbPath and runs
// the schema migration.
func NewSQLiteLog(dbPath string, logger *slog.Logger) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}
	return &SQLiteLog{db: db, logger: logger}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS pool_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			type       TEXT NOT NULL,
			agent_id   TEXT NOT NULL DEFAULT '',
			task_id    TEXT NOT NULL DEFAULT '',
			payload    TEXT NOT NULL DEFAULT '',
			occurred_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_pool_events_occurred ON pool_events(occurred_at);
		CREATE INDEX IF NOT EXISTS idx_pool_events_type ON pool_events(type)
	`)
	return err
}

// Close closes the underlying database connection.
func (l *SQLiteLog) Close() error {
	return l.db.Close()
}

// Record appends one event to the trail.
func (l *SQLiteLog) Record(ctx context.Context, ev domain.Event) error {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx,
		"INSERT INTO pool_events (type, agent_id, task_id, payload, occurred_at) VALUES (?, ?, ?, ?, ?)",
		string(ev.Type), ev.AgentID, ev.TaskID, string(ev.Payload),
		ts.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// Entry is one stored audit row.
type Entry struct {
	ID         int64
	Type       domain.EventType
	AgentID    string
	TaskID     string
	Payload    string
	OccurredAt time.Time
}

// Recent returns up to limit most recent events, newest first.
func (l *SQLiteLog) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx,
		"SELECT id, type, agent_id, task_id, payload, occurred_at FROM pool_events ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var typ, occurred string
		if err := rows.Scan(&e.ID, &typ, &e.AgentID, &e.TaskID, &e.Payload, &occurred); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = domain.EventType(typ)
		if e.OccurredAt, err = time.Parse(time.RFC3339Nano, occurred); err != nil {
			return nil, fmt.Errorf("parse event timestamp: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes events older than the retention window and returns how
// many rows were removed.
func (l *SQLiteLog) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-retention)
	res, err := l.db.ExecContext(ctx,
		"DELETE FROM pool_events WHERE occurred_at < ?",
		cutoff.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Attach subscribes the log to every event on the bus. Write failures
// are logged and do not propagate to publishers.
func (l *SQLiteLog) Attach(bus domain.EventBus) func() {
	return bus.SubscribeAll(func(ctx context.Context, ev domain.Event) {
		if err := l.Record(ctx, ev); err != nil {
			l.logger.Warn("audit record failed", "event", ev.Type, "error", err)
		}
	})
}
