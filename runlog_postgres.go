package reel

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresRunLogger stores run events in a Postgres table, for
// installations where run history must outlive the local filesystem.
type PostgresRunLogger struct {
	db *sql.DB
}

var runEventsSchema = []string{
	`CREATE TABLE IF NOT EXISTS run_events (
		id BIGSERIAL PRIMARY KEY,
		run_id TEXT NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL,
		kind TEXT NOT NULL,
		step TEXT NOT NULL DEFAULT '',
		attempt INTEGER NOT NULL DEFAULT 0,
		message TEXT NOT NULL DEFAULT '',
		fields JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS run_events_run_id_idx ON run_events (run_id, id)`,
}

// OpenPostgresRunLogger connects using a lib/pq connection string and
// ensures the run_events schema exists.
func OpenPostgresRunLogger(dsn string) (*PostgresRunLogger, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres run log: %w", err)
	}
	logger, err := NewPostgresRunLogger(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return logger, nil
}

// NewPostgresRunLogger wraps an existing connection and ensures the
// run_events schema exists.
func NewPostgresRunLogger(db *sql.DB) (*PostgresRunLogger, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres run log: %w", err)
	}
	for _, stmt := range runEventsSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("apply run_events schema: %w", err)
		}
	}
	return &PostgresRunLogger{db: db}, nil
}

func (l *PostgresRunLogger) LogEvent(ctx context.Context, event *RunEvent) error {
	var fields any
	if len(event.Fields) > 0 {
		data, err := json.Marshal(event.Fields)
		if err != nil {
			return fmt.Errorf("marshal event fields: %w", err)
		}
		fields = data
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO run_events (run_id, occurred_at, kind, step, attempt, message, fields)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.RunID,
		event.Time.UTC(),
		string(event.Kind),
		string(event.Step),
		event.Attempt,
		event.Message,
		fields,
	)
	if err != nil {
		return fmt.Errorf("insert run event: %w", err)
	}
	return nil
}

// History returns every event logged for a run, in insertion order.
func (l *PostgresRunLogger) History(ctx context.Context, runID string) ([]*RunEvent, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, occurred_at, kind, step, attempt, message, fields
		 FROM run_events WHERE run_id = $1 ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run events: %w", err)
	}
	defer rows.Close()

	var events []*RunEvent
	for rows.Next() {
		var (
			event  RunEvent
			kind   string
			step   string
			fields []byte
		)
		if err := rows.Scan(&event.RunID, &event.Time, &kind, &step, &event.Attempt, &event.Message, &fields); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		event.Kind = EventKind(kind)
		event.Step = WorkflowStep(step)
		if len(fields) > 0 {
			if err := json.Unmarshal(fields, &event.Fields); err != nil {
				return nil, fmt.Errorf("unmarshal event fields: %w", err)
			}
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}

// Close closes the underlying database connection.
func (l *PostgresRunLogger) Close() error {
	return l.db.Close()
}
