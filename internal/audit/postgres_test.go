package audit

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/notify-triage/internal/decision"
	"github.com/ignite/notify-triage/internal/event"
)

func TestPostgresLogAppend(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	sched := time.Date(2026, 3, 1, 14, 15, 0, 0, time.UTC)
	e := entry(1, "u1")
	e.Decision = decision.Later
	e.ScheduledTime = &sched

	mock.ExpectExec("INSERT INTO triage_audit_log").
		WithArgs(
			e.UserID, e.EventID, string(e.EventType), string(e.Decision), e.ScheduledTime,
			e.EventTimestamp, string(e.Code), e.Reason, e.MatchedRuleID,
			e.Confidence, e.RawOutput, e.LoggedAt,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	l := NewPostgresLog(db)
	require.NoError(t, l.Append(context.Background(), e))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLogRecent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	logged := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"user_id", "event_id", "event_type", "decision", "scheduled_time",
		"event_timestamp", "explanation_code", "reason", "matched_rule_id",
		"confidence", "raw_output", "logged_at",
	}).
		AddRow("u1", "e2", "alert", "NOW", nil, logged, "URGENT_KEYWORD", "urgent", "", 0.9, "raw", logged).
		AddRow("u1", "e1", "message", "LATER", logged.Add(15*time.Minute), logged, "LLM_DECISION", "ok", "", 0.5, "raw", logged)

	mock.ExpectQuery("SELECT (.+) FROM triage_audit_log WHERE user_id").
		WithArgs("u1", 10).
		WillReturnRows(rows)

	l := NewPostgresLog(db)
	got, err := l.Recent(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "e2", got[0].EventID)
	assert.Equal(t, decision.Now, got[0].Decision)
	assert.Equal(t, event.TypeAlert, got[0].EventType)
	assert.Nil(t, got[0].ScheduledTime)

	require.NotNil(t, got[1].ScheduledTime)
	assert.Equal(t, logged.Add(15*time.Minute), *got[1].ScheduledTime)
}

func TestPostgresLogClear(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM triage_audit_log").
		WillReturnResult(sqlmock.NewResult(0, 3))

	l := NewPostgresLog(db)
	require.NoError(t, l.Clear(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLogEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS triage_audit_log").
		WillReturnResult(sqlmock.NewResult(0, 0))

	l := NewPostgresLog(db)
	require.NoError(t, l.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
