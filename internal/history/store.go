// Package history keeps the bounded per-user record of past triage decisions.
// It is the only memory the duplicate detector, fatigue controller, and daily
// rule counters consult.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/notify-triage/internal/decision"
	"github.com/ignite/notify-triage/internal/event"
)

// Record is one finalized decision retained for a user. Never mutated after
// append.
type Record struct {
	EventID        string           `json:"event_id"`
	EventType      event.Type       `json:"event_type"`
	Source         string           `json:"source"`
	Decision       decision.Outcome `json:"decision"`
	Code           decision.Code    `json:"explanation_code"`
	DedupeKey      string           `json:"dedupe_key,omitempty"`
	NormalizedText string           `json:"normalized_text,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
}

// Store is the keyed history contract. Append adds a record for a user,
// evicting the oldest once the per-user capacity is exceeded. Recent returns
// the user's records with Timestamp at or after since, oldest first.
//
// A shared deployment may back this with an external store; the pipeline's
// semantics do not change as long as the contract holds.
type Store interface {
	Append(ctx context.Context, userID string, rec Record) error
	Recent(ctx context.Context, userID string, since time.Time) ([]Record, error)
	Clear(ctx context.Context) error
}

// MemoryStore is the in-process Store: a fixed-capacity ring buffer per user.
type MemoryStore struct {
	capacity int

	mu    sync.RWMutex
	users map[string][]Record
}

// NewMemoryStore creates an in-memory store with the given per-user capacity.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 30
	}
	return &MemoryStore{
		capacity: capacity,
		users:    make(map[string][]Record),
	}
}

// Append adds a record, evicting the oldest entry FIFO when full.
func (s *MemoryStore) Append(_ context.Context, userID string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := append(s.users[userID], rec)
	if len(buf) > s.capacity {
		buf = buf[len(buf)-s.capacity:]
	}
	s.users[userID] = buf
	return nil
}

// Recent returns the user's records with Timestamp >= since, oldest first.
func (s *MemoryStore) Recent(_ context.Context, userID string, since time.Time) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, rec := range s.users[userID] {
		if !rec.Timestamp.Before(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Clear drops all history.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make(map[string][]Record)
	return nil
}
