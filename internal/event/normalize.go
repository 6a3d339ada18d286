package event

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrValidation is the base error for all normalization failures.
var ErrValidation = errors.New("invalid event")

var requiredFields = []string{"user_id", "event_type", "message", "timestamp", "channel"}

// Normalize validates a raw field mapping and canonicalizes it into an Event.
// Required fields must be present, non-empty strings; enumerated fields must
// be in their enumeration; timestamps must parse as RFC 3339. An event that
// fails any check never enters the pipeline.
//
// Normalization is idempotent: feeding an already-normalized event's fields
// back through produces the identical Event.
func Normalize(raw map[string]interface{}) (Event, error) {
	if raw == nil {
		return Event{}, fmt.Errorf("%w: event must be an object", ErrValidation)
	}

	for _, field := range requiredFields {
		s, ok := stringField(raw, field)
		if !ok || s == "" {
			return Event{}, fmt.Errorf("%w: missing required field %q", ErrValidation, field)
		}
	}

	et := Type(mustString(raw, "event_type"))
	if !et.Valid() {
		return Event{}, fmt.Errorf("%w: unknown event_type %q", ErrValidation, string(et))
	}

	ch := Channel(mustString(raw, "channel"))
	if !ch.Valid() {
		return Event{}, fmt.Errorf("%w: unknown channel %q", ErrValidation, string(ch))
	}

	ts, err := parseInstant(mustString(raw, "timestamp"))
	if err != nil {
		return Event{}, fmt.Errorf("%w: bad timestamp: %v", ErrValidation, err)
	}

	e := Event{
		ID:        mustString(raw, "event_id"),
		UserID:    mustString(raw, "user_id"),
		Type:      et,
		Title:     mustString(raw, "title"),
		Message:   mustString(raw, "message"),
		Source:    mustString(raw, "source"),
		Timestamp: ts,
		Channel:   ch,
		DedupeKey: mustString(raw, "dedupe_key"),
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Source == "" {
		e.Source = "unknown"
	}

	if hint, ok := stringField(raw, "priority_hint"); ok && hint != "" {
		p := Priority(hint)
		if !p.Valid() {
			return Event{}, fmt.Errorf("%w: unknown priority_hint %q", ErrValidation, hint)
		}
		e.PriorityHint = p
	}

	if exp, ok := stringField(raw, "expires_at"); ok && exp != "" {
		t, err := parseInstant(exp)
		if err != nil {
			return Event{}, fmt.Errorf("%w: bad expires_at: %v", ErrValidation, err)
		}
		e.ExpiresAt = &t
	}

	if md, ok := raw["metadata"].(map[string]interface{}); ok {
		e.Metadata = md
	}

	return e, nil
}

// parseInstant parses an RFC 3339 instant, tolerating a bare "Z" suffix.
func parseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	// Callers sometimes omit seconds or the offset entirely
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable instant %q", s)
}

func stringField(raw map[string]interface{}, key string) (string, bool) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func mustString(raw map[string]interface{}, key string) string {
	s, _ := stringField(raw, key)
	return s
}
