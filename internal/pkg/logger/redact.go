package logger

import (
	"strconv"
	"strings"
)

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}

// RedactUserID masks a user identifier, keeping a two-character prefix.
// "alice-prod-42" → "al***"
func RedactUserID(id string) string {
	if len(id) > 2 {
		return id[:2] + "***"
	}
	return "***"
}

// RedactText replaces free-text user content with a length marker so log
// lines stay useful for debugging without leaking notification bodies.
func RedactText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return "[redacted " + strconv.Itoa(len(s)) + " chars]"
}
