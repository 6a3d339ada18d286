// Package pipeline owns stage sequencing for notification triage: normalize,
// dedup, classify, rules, fatigue, schedule, then audit. Every input event
// yields exactly one Decision and one audit entry; no stage error escapes.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/notify-triage/internal/audit"
	"github.com/ignite/notify-triage/internal/classifier"
	"github.com/ignite/notify-triage/internal/decision"
	"github.com/ignite/notify-triage/internal/dedup"
	"github.com/ignite/notify-triage/internal/event"
	"github.com/ignite/notify-triage/internal/fatigue"
	"github.com/ignite/notify-triage/internal/history"
	"github.com/ignite/notify-triage/internal/pkg/logger"
	"github.com/ignite/notify-triage/internal/rules"
	"github.com/ignite/notify-triage/internal/schedule"
)

// =============================================================================
// ENGINE
// =============================================================================

// Options wires the pipeline's collaborators. Nil fields get in-memory /
// default implementations, which is the complete setup for tests and the
// single-process deployment.
type Options struct {
	History    history.Store
	Audit      audit.Log
	Detector   *dedup.Detector
	Classifier classifier.Classifier
	Rules      *rules.Engine
	Fatigue    *fatigue.Controller
	Scheduler  *schedule.Scheduler
	Now        func() time.Time
}

// Engine orchestrates the decision stages. Distinct users are processed in
// parallel; one user's events are serialized so dedup and fatigue always see
// the prior decisions they depend on.
type Engine struct {
	history    history.Store
	audit      audit.Log
	detector   *dedup.Detector
	classifier classifier.Classifier
	rules      *rules.Engine
	fatigue    *fatigue.Controller
	scheduler  *schedule.Scheduler
	now        func() time.Time

	forceFallback atomic.Bool

	lockMu    sync.Mutex
	userLocks map[string]*sync.Mutex
}

// New builds an engine, substituting defaults for any collaborator left nil.
func New(opts Options) *Engine {
	if opts.History == nil {
		opts.History = history.NewMemoryStore(0)
	}
	if opts.Audit == nil {
		opts.Audit = audit.NewMemoryLog(0)
	}
	if opts.Detector == nil {
		opts.Detector = dedup.New(opts.History, 0, 0)
	}
	if opts.Classifier == nil {
		opts.Classifier = classifier.NewKeyword()
	}
	if opts.Rules == nil {
		opts.Rules, _ = rules.NewEngine(nil)
	}
	if opts.Fatigue == nil {
		opts.Fatigue = fatigue.New(fatigue.Config{})
	}
	if opts.Scheduler == nil {
		opts.Scheduler = schedule.New(schedule.Config{})
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		history:    opts.History,
		audit:      opts.Audit,
		detector:   opts.Detector,
		classifier: opts.Classifier,
		rules:      opts.Rules,
		fatigue:    opts.Fatigue,
		scheduler:  opts.Scheduler,
		now:        opts.Now,
		userLocks:  make(map[string]*sync.Mutex),
	}
}

// userLock returns the mutex serializing one user's event stream.
func (e *Engine) userLock(userID string) *sync.Mutex {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()
	mu, ok := e.userLocks[userID]
	if !ok {
		mu = &sync.Mutex{}
		e.userLocks[userID] = mu
	}
	return mu
}

// =============================================================================
// ADMIN HOOKS
// =============================================================================

// SetForceFallback toggles the forced classifier fallback. Only events
// processed after the call are affected.
func (e *Engine) SetForceFallback(enabled bool) { e.forceFallback.Store(enabled) }

// ForceFallback reports whether the forced fallback is active.
func (e *Engine) ForceFallback() bool { return e.forceFallback.Load() }

// Rules exposes the rule engine for snapshot reads and hot replacement.
func (e *Engine) Rules() *rules.Engine { return e.rules }

// Audit exposes the audit log for the read-side API.
func (e *Engine) Audit() audit.Log { return e.audit }

// Reset clears history and the audit trail. Meant for demo and test
// drivers, not for production traffic.
func (e *Engine) Reset(ctx context.Context) error {
	if err := e.history.Clear(ctx); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	if err := e.audit.Clear(ctx); err != nil {
		return fmt.Errorf("clear audit log: %w", err)
	}
	return nil
}

// =============================================================================
// PROCESSING
// =============================================================================

// Result is the output record for one input event: the normalized event
// (or, for validation rejects, the raw input as received) plus the
// finalized decision with its explanation fields.
type Result struct {
	InputEvent interface{} `json:"input_event"`
	decision.Decision
}

// Process runs one raw event through every stage and returns its record.
// It never returns an error: malformed input finalizes NEVER with
// VALIDATION_ERROR, and classifier failures resolve through the fallback.
func (e *Engine) Process(ctx context.Context, raw map[string]interface{}) Result {
	ev, err := event.Normalize(raw)
	if err != nil {
		return e.rejectInvalid(ctx, raw, err)
	}

	mu := e.userLock(ev.UserID)
	mu.Lock()
	defer mu.Unlock()

	now := e.now()
	d := e.decide(ctx, ev, now)

	e.finalize(ctx, ev, d, now)
	return Result{InputEvent: ev, Decision: d}
}

// ProcessBatch processes events in order. Order within the batch is
// preserved so one user's events in a single batch observe each other.
func (e *Engine) ProcessBatch(ctx context.Context, raws []map[string]interface{}) []Result {
	out := make([]Result, 0, len(raws))
	for _, raw := range raws {
		out = append(out, e.Process(ctx, raw))
	}
	return out
}

// decide runs the stages between normalization and finalization. The
// caller holds the user's lock.
func (e *Engine) decide(ctx context.Context, ev event.Event, now time.Time) decision.Decision {
	// Duplicate check short-circuits everything downstream.
	dup, err := e.detector.Check(ctx, ev)
	if err != nil {
		logger.Warn("dedup check failed, treating event as novel",
			"event_id", ev.ID, "error", err.Error())
	}
	if dup.IsDuplicate {
		matched := dup.MatchedEventID
		if len(matched) > 8 {
			matched = matched[:8]
		}
		return decision.Decision{
			Outcome: decision.Never,
			Code:    dup.Code,
			Reason:  fmt.Sprintf("Duplicate suppressed: %s (matched %s)", dup.Code, matched),
		}
	}

	// Provisional classification, always resolved even on failure.
	cls := e.classify(ev)
	outcome := cls.Outcome
	code := cls.Code
	reason := cls.RawOutput
	matchedRuleID := ""

	// Human rules override the classifier.
	recs, err := e.history.Recent(ctx, ev.UserID, time.Time{})
	if err != nil {
		logger.Warn("history read failed, skipping windowed stages",
			"event_id", ev.ID, "error", err.Error())
	}
	if ov := e.rules.Evaluate(ev, outcome, func(t event.Type) int {
		return countToday(recs, t, ev.Timestamp)
	}); ov.Applied {
		outcome = ov.Outcome
		code = decision.CodeRuleOverride
		matchedRuleID = ov.RuleID
		reason = ov.Reason
	}

	// Fatigue may downgrade whatever survived the rules.
	adj := e.fatigue.Apply(ev, outcome, recs, now)
	if adj.Applied {
		outcome = adj.Outcome
		code = adj.Code
		reason = adj.Reason
	}

	// Scheduling only exists for deferred decisions.
	var scheduled *time.Time
	if outcome == decision.Later {
		res := e.scheduler.Schedule(ev, code, adj.FrequencyCount, now)
		if res.Expired {
			outcome = decision.Never
			code = decision.CodeExpired
			reason = "Scheduled time exceeds expires_at, notification expired"
		} else {
			at := res.At
			scheduled = &at
		}
	}

	return decision.Decision{
		Outcome:       outcome,
		ScheduledTime: scheduled,
		Code:          code,
		Reason:        reason,
		MatchedRuleID: matchedRuleID,
		Confidence:    round2(cls.Confidence),
		RawOutput:     cls.RawOutput,
	}
}

func (e *Engine) classify(ev event.Event) classifier.Result {
	if e.forceFallback.Load() {
		return classifier.Fallback(ev, "forced fallback mode")
	}
	res, err := e.classifier.Classify(ev)
	if err != nil {
		return classifier.Fallback(ev, err.Error())
	}
	return res
}

// finalize writes the audit entry and the history record. Both happen for
// every normalized event, suppressed or not.
func (e *Engine) finalize(ctx context.Context, ev event.Event, d decision.Decision, now time.Time) {
	entry := audit.Entry{
		UserID:         ev.UserID,
		EventID:        ev.ID,
		EventType:      ev.Type,
		Decision:       d.Outcome,
		ScheduledTime:  d.ScheduledTime,
		EventTimestamp: ev.Timestamp,
		Code:           d.Code,
		Reason:         d.Reason,
		MatchedRuleID:  d.MatchedRuleID,
		Confidence:     d.Confidence,
		RawOutput:      d.RawOutput,
		LoggedAt:       now,
	}
	if err := e.audit.Append(ctx, entry); err != nil {
		logger.Error("audit append failed", "event_id", ev.ID, "error", err.Error())
	}

	rec := history.Record{
		EventID:        ev.ID,
		EventType:      ev.Type,
		Source:         ev.Source,
		Decision:       d.Outcome,
		Code:           d.Code,
		DedupeKey:      ev.DedupeKey,
		NormalizedText: dedup.NormalizeText(ev.Text()),
		Timestamp:      ev.Timestamp,
	}
	if err := e.history.Append(ctx, ev.UserID, rec); err != nil {
		logger.Error("history append failed", "event_id", ev.ID, "error", err.Error())
	}
}

// rejectInvalid finalizes a validation reject: audited, never in history.
func (e *Engine) rejectInvalid(ctx context.Context, raw map[string]interface{}, err error) Result {
	d := decision.Decision{
		Outcome: decision.Never,
		Code:    decision.CodeValidationError,
		Reason:  fmt.Sprintf("Invalid event: %v", err),
	}
	entry := audit.Entry{
		UserID:    rawString(raw, "user_id"),
		EventID:   rawString(raw, "event_id"),
		EventType: event.Type(rawString(raw, "event_type")),
		Decision:  d.Outcome,
		Code:      d.Code,
		Reason:    d.Reason,
		LoggedAt:  e.now(),
	}
	if aerr := e.audit.Append(ctx, entry); aerr != nil {
		logger.Error("audit append failed", "error", aerr.Error())
	}
	return Result{InputEvent: raw, Decision: d}
}

// =============================================================================
// HELPERS
// =============================================================================

// countToday counts prior records of the given type on the event's local
// calendar day, for limit_per_day rules.
func countToday(recs []history.Record, t event.Type, eventTime time.Time) int {
	y, m, d := eventTime.Date()
	n := 0
	for i := range recs {
		if recs[i].EventType != t {
			continue
		}
		ry, rm, rd := recs[i].Timestamp.In(eventTime.Location()).Date()
		if ry == y && rm == m && rd == d {
			n++
		}
	}
	return n
}

func rawString(raw map[string]interface{}, key string) string {
	if s, ok := raw[key].(string); ok {
		return s
	}
	return ""
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
