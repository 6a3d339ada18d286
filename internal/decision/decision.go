// Package decision defines the triage outcome vocabulary shared by all
// pipeline stages: the three dispositions, the closed explanation-code set,
// and the Decision record the orchestrator finalizes exactly once per event.
package decision

import "time"

// Outcome is the delivery disposition for a notification event.
type Outcome string

const (
	Now   Outcome = "NOW"
	Later Outcome = "LATER"
	Never Outcome = "NEVER"
)

// Code is a machine-readable explanation tag identifying which stage and
// condition produced a decision. The set is closed; extending it is a wire
// contract version bump.
type Code string

const (
	CodeValidationError      Code = "VALIDATION_ERROR"
	CodeDuplicateDedupeKey   Code = "DUPLICATE_DEDUPE_KEY"
	CodeDuplicateTextSimilar Code = "DUPLICATE_TEXT_SIMILAR"
	CodeLLMDecision          Code = "LLM_DECISION"
	CodeUrgentKeyword        Code = "URGENT_KEYWORD"
	CodeFallback             Code = "FALLBACK"
	CodeRuleOverride         Code = "RULE_OVERRIDE"
	CodeFrequencyLimit       Code = "FREQUENCY_LIMIT"
	CodeFrequencySuppression Code = "FREQUENCY_SUPPRESSION"
	CodeConflictNoiseLimit   Code = "CONFLICT_NOISE_LIMIT"
	CodeExpired              Code = "EXPIRED"
)

// Decision is the finalized disposition for one event. ScheduledTime is
// non-nil iff Outcome is Later. Immutable once the orchestrator returns it.
type Decision struct {
	Outcome       Outcome    `json:"decision"`
	ScheduledTime *time.Time `json:"scheduled_time"`
	Code          Code       `json:"explanation_code"`
	Reason        string     `json:"reason"`
	MatchedRuleID string     `json:"matched_rule_id,omitempty"`
	Confidence    float64    `json:"confidence"`
	RawOutput     string     `json:"raw_classifier_output,omitempty"`
}
