package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRaw() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    "u1",
		"event_type": "alert",
		"title":      "Server down",
		"message":    "Primary database is unreachable",
		"source":     "monitoring",
		"timestamp":  "2026-03-01T10:30:00Z",
		"channel":    "push",
	}
}

func TestNormalizeValid(t *testing.T) {
	e, err := Normalize(validRaw())
	require.NoError(t, err)

	assert.Equal(t, "u1", e.UserID)
	assert.Equal(t, TypeAlert, e.Type)
	assert.Equal(t, ChannelPush, e.Channel)
	assert.Equal(t, "monitoring", e.Source)
	assert.NotEmpty(t, e.ID, "missing event_id should be assigned")
	assert.Equal(t, time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC), e.Timestamp.UTC())
	assert.Nil(t, e.ExpiresAt)
}

func TestNormalizeIdempotent(t *testing.T) {
	first, err := Normalize(validRaw())
	require.NoError(t, err)

	again := map[string]interface{}{
		"event_id":   first.ID,
		"user_id":    first.UserID,
		"event_type": string(first.Type),
		"title":      first.Title,
		"message":    first.Message,
		"source":     first.Source,
		"timestamp":  first.Timestamp.Format(time.RFC3339),
		"channel":    string(first.Channel),
	}
	second, err := Normalize(again)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestNormalizeMissingRequired(t *testing.T) {
	for _, field := range []string{"user_id", "event_type", "message", "timestamp", "channel"} {
		t.Run(field, func(t *testing.T) {
			raw := validRaw()
			delete(raw, field)
			_, err := Normalize(raw)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestNormalizeInvalidEnums(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad event type", "event_type", "telepathy"},
		{"bad channel", "channel", "fax"},
		{"bad priority hint", "priority_hint", "extreme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validRaw()
			raw[tt.key] = tt.value
			_, err := Normalize(raw)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestNormalizeBadTimestamps(t *testing.T) {
	raw := validRaw()
	raw["timestamp"] = "yesterday-ish"
	_, err := Normalize(raw)
	assert.ErrorIs(t, err, ErrValidation)

	raw = validRaw()
	raw["expires_at"] = "soon"
	_, err = Normalize(raw)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNormalizeExpiresAt(t *testing.T) {
	raw := validRaw()
	raw["expires_at"] = "2026-03-01T12:00:00Z"
	e, err := Normalize(raw)
	require.NoError(t, err)
	require.NotNil(t, e.ExpiresAt)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), e.ExpiresAt.UTC())
}

func TestNormalizeTimestampOffset(t *testing.T) {
	raw := validRaw()
	raw["timestamp"] = "2026-03-01T23:30:00+05:30"
	e, err := Normalize(raw)
	require.NoError(t, err)
	// The local hour is preserved for quiet-hour and rule time windows
	assert.Equal(t, 23, e.Timestamp.Hour())
}

func TestNormalizeNonStringField(t *testing.T) {
	raw := validRaw()
	raw["message"] = 42
	_, err := Normalize(raw)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestEventText(t *testing.T) {
	e := Event{Title: "Build failed", Message: "pipeline 93 exited 1"}
	assert.Equal(t, "Build failed pipeline 93 exited 1", e.Text())

	e = Event{Message: "no title"}
	assert.Equal(t, "no title", e.Text())
}
