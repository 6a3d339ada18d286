// Package classifier scores notification urgency. The production
// implementation is a deterministic keyword heuristic; anything satisfying
// Classifier (including a real model client) can stand in behind the same
// fallback contract without the pipeline noticing.
package classifier

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ignite/notify-triage/internal/decision"
	"github.com/ignite/notify-triage/internal/event"
)

// Result is a provisional classification. Code is CodeLLMDecision,
// CodeUrgentKeyword, or CodeFallback.
type Result struct {
	Outcome      decision.Outcome
	Confidence   float64
	RawOutput    string
	Code         decision.Code
	UsedFallback bool
}

// Classifier produces a provisional decision for an event. An error from
// Classify never reaches the caller of the pipeline; the orchestrator
// resolves it through Fallback.
type Classifier interface {
	Classify(e event.Event) (Result, error)
}

// Urgency keywords that indicate NOW
var urgentPatterns = compileAll(
	`\botp\b`, `\bpassword\b`, `\b2fa\b`, `\bverif`,
	`\bdown\b`, `\boutage\b`, `\bcritical\b`, `\bemergency\b`,
	`\bsecurity\b`, `\bbreach\b`, `\bfailure\b`, `\bfailed\b`,
	`\bexpir`, `\bblocked\b`, `\bunauthorized\b`,
	`\b95%`, `\b100%`, `\b99%`, `\boverload\b`,
	`\bcrash`, `\berror\b`, `\balert\b`,
)

// Promotional / low-priority keywords that indicate NEVER
var promoPatterns = compileAll(
	`\bsale\b`, `\bdiscount\b`, `\b\d+%\s*off\b`, `\bflat\b`,
	`\bpromo`, `\bcoupon\b`, `\bdeal\b`, `\boffer\b`,
	`\bfree\b`, `\bclearance\b`, `\blimited.?time\b`,
)

// Deferrable keywords that indicate LATER
var laterPatterns = compileAll(
	`\breminder\b`, `\bsubmit\b`, `\bupdate\b`, `\bweekly\b`,
	`\bmonthly\b`, `\bsummary\b`, `\bdigest\b`, `\bnewsletter\b`,
	`\breport\b`, `\bschedul`,
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

func countMatches(patterns []*regexp.Regexp, text string) int {
	n := 0
	for _, p := range patterns {
		if p.MatchString(text) {
			n++
		}
	}
	return n
}

// Keyword is the deterministic heuristic classifier.
type Keyword struct{}

// NewKeyword returns the keyword heuristic classifier.
func NewKeyword() *Keyword { return &Keyword{} }

// Classify scores the event's text and structured fields against the fixed
// vocabularies and maps the dominant score to an outcome. Ties fall through
// to the per-event-type default, which is always the less intrusive choice.
func (k *Keyword) Classify(e event.Event) (Result, error) {
	text := strings.ToLower(e.Text())

	urgent := countMatches(urgentPatterns, text)
	promo := countMatches(promoPatterns, text)
	later := countMatches(laterPatterns, text)

	// Structured field boosts
	switch e.PriorityHint {
	case event.PriorityUrgent:
		urgent += 3
	case event.PriorityHigh:
		urgent += 2
	case event.PriorityLow:
		promo += 2
	}

	switch e.Type {
	case event.TypeAlert, event.TypeSystem:
		urgent += 2
	case event.TypePromotion:
		promo += 3
	case event.TypeReminder:
		later += 2
	}

	if e.Channel == event.ChannelSMS {
		urgent++ // SMS usually implies urgency
	}

	total := urgent + promo + later
	if total < 1 {
		total = 1
	}

	var res Result
	switch {
	case urgent > promo && urgent > later:
		res.Outcome = decision.Now
		res.Confidence = clamp(0.5+float64(urgent)/float64(total)*0.5, 0.99)
		res.Code = decision.CodeLLMDecision
		if urgent >= 2 {
			res.Code = decision.CodeUrgentKeyword
		}
		res.RawOutput = rawOutput(res.Outcome, urgentReason(e, text, urgent), res.Confidence)
	case promo > urgent && promo > later:
		res.Outcome = decision.Never
		res.Confidence = clamp(0.5+float64(promo)/float64(total)*0.5, 0.99)
		res.Code = decision.CodeLLMDecision
		res.RawOutput = rawOutput(res.Outcome, fmt.Sprintf("promotional content detected (score=%d)", promo), res.Confidence)
	case later > 0:
		res.Outcome = decision.Later
		res.Confidence = clamp(0.5+float64(later)/float64(total)*0.4, 0.95)
		res.Code = decision.CodeLLMDecision
		res.RawOutput = rawOutput(res.Outcome, fmt.Sprintf("non-urgent, schedulable content (score=%d)", later), res.Confidence)
	default:
		res.Outcome = typeDefault(e.Type)
		res.Confidence = 0.5
		res.Code = decision.CodeLLMDecision
		res.RawOutput = rawOutput(res.Outcome, fmt.Sprintf("default classification for %s", e.Type), res.Confidence)
	}

	return res, nil
}

func urgentReason(e event.Event, text string, score int) string {
	var parts []string
	if strings.Contains(text, "otp") {
		parts = append(parts, "contains OTP")
	}
	if strings.Contains(text, "down") {
		parts = append(parts, "service outage detected")
	}
	if e.PriorityHint == event.PriorityUrgent {
		parts = append(parts, "priority=urgent")
	}
	if e.Type == event.TypeAlert || e.Type == event.TypeSystem {
		parts = append(parts, "event_type="+string(e.Type))
	}
	if len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("urgency score=%d", score))
	}
	return "Urgent: " + strings.Join(parts, ", ")
}

func rawOutput(o decision.Outcome, reason string, confidence float64) string {
	return fmt.Sprintf("LABEL:%s; SHORT_REASON:%s; CONFIDENCE:%.2f", o, reason, confidence)
}

func clamp(v, max float64) float64 {
	if v > max {
		return max
	}
	if v < 0 {
		return 0
	}
	return v
}

// FallbackConfidence is the fixed confidence of the deterministic fallback.
const FallbackConfidence = 0.4

// Fallback decides from structured fields alone, ignoring content. It is
// used when classification fails (or is forced to fail) and cannot itself
// fail for a validated event. The resulting Code is always CodeFallback.
func Fallback(e event.Event, reason string) Result {
	var out decision.Outcome
	switch e.PriorityHint {
	case event.PriorityUrgent, event.PriorityHigh:
		out = decision.Now
	case event.PriorityMedium:
		out = decision.Later
	case event.PriorityLow:
		out = decision.Never
	default:
		out = typeDefault(e.Type)
	}

	return Result{
		Outcome:      out,
		Confidence:   FallbackConfidence,
		RawOutput:    fmt.Sprintf("FALLBACK: %s -> %s", reason, out),
		Code:         decision.CodeFallback,
		UsedFallback: true,
	}
}

func typeDefault(t event.Type) decision.Outcome {
	switch t {
	case event.TypeAlert, event.TypeSystem:
		return decision.Now
	case event.TypePromotion:
		return decision.Never
	default:
		// message, reminder, update, email, and anything future-proofed
		return decision.Later
	}
}
