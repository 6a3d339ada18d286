// Package rules loads, validates, and evaluates the human-editable delivery
// rule set. A rule set is an immutable snapshot; hot replacement swaps the
// whole snapshot atomically so in-flight evaluations never see a partial set.
package rules

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ignite/notify-triage/internal/decision"
	"github.com/ignite/notify-triage/internal/event"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInvalidRule is returned when a rule fails schema validation.
	// A set containing one invalid rule is rejected whole.
	ErrInvalidRule = errors.New("invalid rule")
)

// =============================================================================
// RULE SCHEMA
// =============================================================================

// TimeWindow matches when the event's local hour falls in
// [StartHour, EndHour), wrapping past midnight when EndHour < StartHour.
type TimeWindow struct {
	StartHour int `yaml:"start_hour" json:"start_hour"`
	EndHour   int `yaml:"end_hour" json:"end_hour"`
}

// Contains reports whether hour (0-23) falls inside the window.
func (w TimeWindow) Contains(hour int) bool {
	if w.EndHour < w.StartHour {
		return hour >= w.StartHour || hour < w.EndHour
	}
	return hour >= w.StartHour && hour < w.EndHour
}

// Match is a conjunction of optional conditions. An empty list or nil
// window is a wildcard.
type Match struct {
	EventTypes    []event.Type     `yaml:"event_type,omitempty" json:"event_type,omitempty"`
	PriorityHints []event.Priority `yaml:"priority_hint,omitempty" json:"priority_hint,omitempty"`
	Channels      []event.Channel  `yaml:"channel,omitempty" json:"channel,omitempty"`
	Sources       []string         `yaml:"source,omitempty" json:"source,omitempty"`
	TimeWindow    *TimeWindow      `yaml:"time_window,omitempty" json:"time_window,omitempty"`
}

// Action carries exactly one of the three rule effects. Validation
// rejects rules that set zero or more than one.
type Action struct {
	// ForceDecision replaces the current decision unconditionally.
	ForceDecision decision.Outcome `yaml:"force_decision,omitempty" json:"force_decision,omitempty"`

	// Downgrade maps NOW→LATER and LATER→NEVER; NEVER is left alone.
	Downgrade bool `yaml:"downgrade,omitempty" json:"downgrade,omitempty"`

	// LimitPerDay forces NEVER once the user has accumulated this many
	// events of the same type on the event's local calendar day.
	LimitPerDay int `yaml:"limit_per_day,omitempty" json:"limit_per_day,omitempty"`
}

// Rule is one entry of the rule set. Higher Priority evaluates first.
type Rule struct {
	ID          string `yaml:"id" json:"id"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Priority    int    `yaml:"priority" json:"priority"`
	Match       Match  `yaml:"match" json:"match"`
	Action      Action `yaml:"action" json:"action"`
}

// RuleSet is an ordered collection of rules. Callers obtain a validated,
// priority-sorted set through Validate (or LoadFile) and must treat it as
// read-only afterwards.
type RuleSet struct {
	Rules []Rule `yaml:"rules" json:"rules"`
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks every rule against the schema and sorts the set by
// descending priority (ties broken by rule ID for determinism). Any
// malformed rule rejects the whole set.
func (rs *RuleSet) Validate() error {
	seen := make(map[string]struct{}, len(rs.Rules))
	for i := range rs.Rules {
		r := &rs.Rules[i]
		if r.ID == "" {
			return fmt.Errorf("%w: rule %d has empty id", ErrInvalidRule, i)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("%w: duplicate rule id %q", ErrInvalidRule, r.ID)
		}
		seen[r.ID] = struct{}{}

		if err := r.Match.validate(); err != nil {
			return fmt.Errorf("%w: rule %q: %v", ErrInvalidRule, r.ID, err)
		}
		if err := r.Action.validate(); err != nil {
			return fmt.Errorf("%w: rule %q: %v", ErrInvalidRule, r.ID, err)
		}
	}

	sort.SliceStable(rs.Rules, func(i, j int) bool {
		if rs.Rules[i].Priority != rs.Rules[j].Priority {
			return rs.Rules[i].Priority > rs.Rules[j].Priority
		}
		return rs.Rules[i].ID < rs.Rules[j].ID
	})
	return nil
}

func (m Match) validate() error {
	for _, t := range m.EventTypes {
		if !t.Valid() {
			return fmt.Errorf("unknown event_type %q", t)
		}
	}
	for _, p := range m.PriorityHints {
		if !p.Valid() {
			return fmt.Errorf("unknown priority_hint %q", p)
		}
	}
	for _, c := range m.Channels {
		if !c.Valid() {
			return fmt.Errorf("unknown channel %q", c)
		}
	}
	if w := m.TimeWindow; w != nil {
		if w.StartHour < 0 || w.StartHour > 23 || w.EndHour < 0 || w.EndHour > 23 {
			return fmt.Errorf("time_window hours out of range [0,23]: %d-%d", w.StartHour, w.EndHour)
		}
		if w.StartHour == w.EndHour {
			return fmt.Errorf("time_window start_hour equals end_hour (%d)", w.StartHour)
		}
	}
	return nil
}

func (a Action) validate() error {
	n := 0
	if a.ForceDecision != "" {
		n++
		switch a.ForceDecision {
		case decision.Now, decision.Later, decision.Never:
		default:
			return fmt.Errorf("force_decision %q is not NOW/LATER/NEVER", a.ForceDecision)
		}
	}
	if a.Downgrade {
		n++
	}
	if a.LimitPerDay != 0 {
		n++
		if a.LimitPerDay < 1 {
			return fmt.Errorf("limit_per_day must be >= 1, got %d", a.LimitPerDay)
		}
	}
	if n != 1 {
		return fmt.Errorf("action must set exactly one of force_decision/downgrade/limit_per_day, got %d", n)
	}
	return nil
}

// =============================================================================
// MATCHING
// =============================================================================

// Matches reports whether every specified condition holds for the event.
// The event's local hour (its timestamp in the offset it arrived with) is
// used for time windows.
func (r *Rule) Matches(e event.Event) bool {
	m := r.Match
	if len(m.EventTypes) > 0 && !containsType(m.EventTypes, e.Type) {
		return false
	}
	if len(m.PriorityHints) > 0 && !containsPriority(m.PriorityHints, e.PriorityHint) {
		return false
	}
	if len(m.Channels) > 0 && !containsChannel(m.Channels, e.Channel) {
		return false
	}
	if len(m.Sources) > 0 && !containsString(m.Sources, e.Source) {
		return false
	}
	if m.TimeWindow != nil && !m.TimeWindow.Contains(e.Timestamp.Hour()) {
		return false
	}
	return true
}

func containsType(s []event.Type, v event.Type) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func containsPriority(s []event.Priority, v event.Priority) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func containsChannel(s []event.Channel, v event.Channel) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func containsString(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
