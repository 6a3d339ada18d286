// Package audit retains the explainable trail of every decision the
// pipeline finalizes, including validation rejects and duplicates.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/notify-triage/internal/decision"
	"github.com/ignite/notify-triage/internal/event"
)

// Entry is one audit record: the identifying event fields flattened next
// to the finalized decision and its explanation.
type Entry struct {
	UserID         string           `json:"user_id"`
	EventID        string           `json:"event_id"`
	EventType      event.Type       `json:"event_type"`
	Decision       decision.Outcome `json:"decision"`
	ScheduledTime  *time.Time       `json:"scheduled_time"`
	EventTimestamp time.Time        `json:"timestamp"`
	Code           decision.Code    `json:"explanation_code"`
	Reason         string           `json:"reason"`
	MatchedRuleID  string           `json:"matched_rule_id,omitempty"`
	Confidence     float64          `json:"confidence"`
	RawOutput      string           `json:"raw_model_output"`
	LoggedAt       time.Time        `json:"logged_at"`
}

// Log is the audit sink contract. Append never mutates past entries.
// Recent returns entries newest first, optionally filtered by user;
// limit <= 0 means no limit.
type Log interface {
	Append(ctx context.Context, e Entry) error
	Recent(ctx context.Context, userID string, limit int) ([]Entry, error)
	Clear(ctx context.Context) error
}

// MemoryLog is the in-process Log, bounded to maxEntries (oldest dropped).
type MemoryLog struct {
	maxEntries int

	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryLog creates a bounded in-memory audit log.
func NewMemoryLog(maxEntries int) *MemoryLog {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &MemoryLog{maxEntries: maxEntries}
}

// Append stores the entry, evicting the oldest once full.
func (l *MemoryLog) Append(_ context.Context, e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	if len(l.entries) > l.maxEntries {
		l.entries = l.entries[len(l.entries)-l.maxEntries:]
	}
	return nil
}

// Recent returns entries newest first.
func (l *MemoryLog) Recent(_ context.Context, userID string, limit int) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, 0, len(l.entries))
	for i := len(l.entries) - 1; i >= 0; i-- {
		if userID != "" && l.entries[i].UserID != userID {
			continue
		}
		out = append(out, l.entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Clear drops all entries.
func (l *MemoryLog) Clear(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	return nil
}

// Len reports the current entry count.
func (l *MemoryLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
