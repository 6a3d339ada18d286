package rules

import (
	"fmt"
	"sync/atomic"

	"github.com/ignite/notify-triage/internal/decision"
	"github.com/ignite/notify-triage/internal/event"
)

// =============================================================================
// ENGINE - atomic snapshot holder + first-match evaluation
// =============================================================================

// Engine holds the active rule set behind an atomic pointer. Evaluation
// reads one snapshot and never blocks replacement; replacement validates
// first and leaves the old set active on any malformed input.
type Engine struct {
	set atomic.Pointer[RuleSet]
}

// NewEngine validates rs and returns an engine serving it. A nil rs means
// an empty set.
func NewEngine(rs *RuleSet) (*Engine, error) {
	if rs == nil {
		rs = &RuleSet{}
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{}
	e.set.Store(rs)
	return e, nil
}

// Snapshot returns the currently active rule set. Callers must not mutate it.
func (e *Engine) Snapshot() *RuleSet {
	return e.set.Load()
}

// Replace validates rs and atomically swaps it in. On validation failure
// the active set is unchanged and the error is returned.
func (e *Engine) Replace(rs *RuleSet) error {
	if rs == nil {
		rs = &RuleSet{}
	}
	if err := rs.Validate(); err != nil {
		return err
	}
	e.set.Store(rs)
	return nil
}

// Override is the effect of rule evaluation on a provisional decision.
// Applied is false when no rule matched, or the first matching rule's
// action turned out to be a no-op (downgrade on NEVER, daily limit not
// yet reached).
type Override struct {
	Applied bool
	Outcome decision.Outcome
	RuleID  string
	Reason  string
}

// Evaluate walks the active set in descending priority and applies the
// first matching rule, then stops; later rules are never consulted even
// when they would also match. countToday reports how many events of a
// given type the user has already accumulated on the event's local
// calendar day, used by limit_per_day rules.
func (e *Engine) Evaluate(ev event.Event, current decision.Outcome, countToday func(event.Type) int) Override {
	snap := e.set.Load()
	for i := range snap.Rules {
		r := &snap.Rules[i]
		if !r.Matches(ev) {
			continue
		}
		return applyAction(r, ev, current, countToday)
	}
	return Override{}
}

func applyAction(r *Rule, ev event.Event, current decision.Outcome, countToday func(event.Type) int) Override {
	a := r.Action
	switch {
	case a.ForceDecision != "":
		return Override{
			Applied: true,
			Outcome: a.ForceDecision,
			RuleID:  r.ID,
			Reason:  fmt.Sprintf("Rule %s: %s", r.ID, r.Description),
		}

	case a.Downgrade:
		next, ok := downgraded(current)
		if !ok {
			return Override{}
		}
		return Override{
			Applied: true,
			Outcome: next,
			RuleID:  r.ID,
			Reason:  fmt.Sprintf("Rule %s: %s (downgraded %s -> %s)", r.ID, r.Description, current, next),
		}

	case a.LimitPerDay > 0:
		count := countToday(ev.Type)
		if count < a.LimitPerDay {
			return Override{}
		}
		return Override{
			Applied: true,
			Outcome: decision.Never,
			RuleID:  r.ID,
			Reason:  fmt.Sprintf("Rule %s: %s (daily limit %d reached, %d today)", r.ID, r.Description, a.LimitPerDay, count),
		}
	}
	return Override{}
}

func downgraded(o decision.Outcome) (decision.Outcome, bool) {
	switch o {
	case decision.Now:
		return decision.Later, true
	case decision.Later:
		return decision.Never, true
	}
	return o, false
}
