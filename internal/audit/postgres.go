package audit

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresLog implements Log against PostgreSQL for deployments that need
// the trail to survive restarts.
type PostgresLog struct{ db *sql.DB }

// NewPostgresLog wraps an open database handle.
func NewPostgresLog(db *sql.DB) *PostgresLog { return &PostgresLog{db: db} }

// OpenPostgresLog connects with the given DSN and verifies the connection.
func OpenPostgresLog(ctx context.Context, dsn string) (*PostgresLog, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping audit db: %w", err)
	}
	return &PostgresLog{db: db}, nil
}

// EnsureSchema creates the audit table when it does not exist yet.
func (l *PostgresLog) EnsureSchema(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS triage_audit_log (
			id               BIGSERIAL PRIMARY KEY,
			user_id          TEXT NOT NULL,
			event_id         TEXT NOT NULL,
			event_type       TEXT NOT NULL,
			decision         TEXT NOT NULL,
			scheduled_time   TIMESTAMPTZ,
			event_timestamp  TIMESTAMPTZ NOT NULL,
			explanation_code TEXT NOT NULL,
			reason           TEXT NOT NULL DEFAULT '',
			matched_rule_id  TEXT NOT NULL DEFAULT '',
			confidence       DOUBLE PRECISION NOT NULL DEFAULT 0,
			raw_output       TEXT NOT NULL DEFAULT '',
			logged_at        TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

// Append inserts one entry.
func (l *PostgresLog) Append(ctx context.Context, e Entry) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO triage_audit_log
			(user_id, event_id, event_type, decision, scheduled_time,
			 event_timestamp, explanation_code, reason, matched_rule_id,
			 confidence, raw_output, logged_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		e.UserID, e.EventID, string(e.EventType), string(e.Decision), e.ScheduledTime,
		e.EventTimestamp, string(e.Code), e.Reason, e.MatchedRuleID,
		e.Confidence, e.RawOutput, e.LoggedAt,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// Recent returns entries newest first, optionally filtered by user.
func (l *PostgresLog) Recent(ctx context.Context, userID string, limit int) ([]Entry, error) {
	q := `
		SELECT user_id, event_id, event_type, decision, scheduled_time,
		       event_timestamp, explanation_code, reason, matched_rule_id,
		       confidence, raw_output, logged_at
		FROM triage_audit_log`
	args := []interface{}{}
	idx := 1

	if userID != "" {
		q += fmt.Sprintf(" WHERE user_id = $%d", idx)
		args = append(args, userID)
		idx++
	}
	q += " ORDER BY id DESC"
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT $%d", idx)
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var sched sql.NullTime
		if err := rows.Scan(
			&e.UserID, &e.EventID, &e.EventType, &e.Decision, &sched,
			&e.EventTimestamp, &e.Code, &e.Reason, &e.MatchedRuleID,
			&e.Confidence, &e.RawOutput, &e.LoggedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if sched.Valid {
			t := sched.Time
			e.ScheduledTime = &t
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}

// Clear truncates the trail.
func (l *PostgresLog) Clear(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM triage_audit_log`); err != nil {
		return fmt.Errorf("clear audit log: %w", err)
	}
	return nil
}

// Close releases the underlying handle.
func (l *PostgresLog) Close() error { return l.db.Close() }
