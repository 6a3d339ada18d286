package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ignite/notify-triage/internal/audit"
	"github.com/ignite/notify-triage/internal/decision"
	"github.com/ignite/notify-triage/internal/event"
	"github.com/ignite/notify-triage/internal/history"
	"github.com/ignite/notify-triage/internal/rules"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var base = time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

func rawEvent(id, userID, typ, msg string, ts time.Time, mutate func(map[string]interface{})) map[string]interface{} {
	raw := map[string]interface{}{
		"event_id":   id,
		"user_id":    userID,
		"event_type": typ,
		"message":    msg,
		"source":     "test",
		"timestamp":  ts.Format(time.RFC3339),
		"channel":    "push",
	}
	if mutate != nil {
		mutate(raw)
	}
	return raw
}

// testEngine returns an engine over fresh in-memory stores with a
// controllable clock.
func testEngine(t *testing.T, ruleSet *rules.RuleSet) (*Engine, *audit.MemoryLog, *history.MemoryStore, *time.Time) {
	t.Helper()
	cur := base
	store := history.NewMemoryStore(0)
	log := audit.NewMemoryLog(0)
	eng, err := rules.NewEngine(ruleSet)
	if err != nil {
		t.Fatalf("rules.NewEngine: %v", err)
	}
	p := New(Options{
		History: store,
		Audit:   log,
		Rules:   eng,
		Now:     func() time.Time { return cur },
	})
	return p, log, store, &cur
}

// Pairwise-distinct urgent texts so the similarity layer never collapses
// them into duplicates.
var urgentTexts = []string{
	"critical outage in payments cluster",
	"security breach detected on login portal",
	"database replica failure alarms firing",
	"disk capacity overload in archive tier",
	"unauthorized access blocked at gateway",
	"emergency maintenance crash loop observed",
	"network error storm across region west",
	"certificate expiring for internal services hub",
}

// =============================================================================
// BASIC SHAPE
// =============================================================================

func TestScheduledTimePresentIffLater(t *testing.T) {
	p, _, _, _ := testEngine(t, nil)
	ctx := context.Background()

	cases := []map[string]interface{}{
		rawEvent("e1", "u1", "alert", "critical outage in payments", base, nil),   // NOW
		rawEvent("e2", "u2", "message", "lunch plans for tomorrow", base, nil),    // LATER
		rawEvent("e3", "u3", "promotion", "huge sale 50% off today", base, nil),   // NEVER
	}
	for _, raw := range cases {
		res := p.Process(ctx, raw)
		switch res.Outcome {
		case decision.Now, decision.Never:
			if res.ScheduledTime != nil {
				t.Fatalf("%s: scheduled_time set on %s", raw["event_id"], res.Outcome)
			}
		case decision.Later:
			if res.ScheduledTime == nil {
				t.Fatalf("%s: LATER without scheduled_time", raw["event_id"])
			}
		default:
			t.Fatalf("%s: unknown outcome %q", raw["event_id"], res.Outcome)
		}
	}
}

func TestUrgentAlertGoesNow(t *testing.T) {
	p, _, _, _ := testEngine(t, nil)

	res := p.Process(context.Background(), rawEvent("e1", "u1", "alert", "Server is down", base,
		func(raw map[string]interface{}) { raw["priority_hint"] = "urgent" }))

	if res.Outcome != decision.Now {
		t.Fatalf("Outcome = %s, want NOW", res.Outcome)
	}
	if res.Code != decision.CodeUrgentKeyword {
		t.Fatalf("Code = %s, want URGENT_KEYWORD", res.Code)
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestValidationRejectAuditedNotInHistory(t *testing.T) {
	p, log, store, _ := testEngine(t, nil)
	ctx := context.Background()

	raw := rawEvent("e1", "u1", "message", "hello", base, func(raw map[string]interface{}) {
		delete(raw, "channel")
	})
	res := p.Process(ctx, raw)

	if res.Outcome != decision.Never || res.Code != decision.CodeValidationError {
		t.Fatalf("got %s/%s, want NEVER/VALIDATION_ERROR", res.Outcome, res.Code)
	}
	if log.Len() != 1 {
		t.Fatalf("audit entries = %d, want 1", log.Len())
	}
	recs, err := store.Recent(ctx, "u1", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Fatalf("validation reject must not reach history, got %d records", len(recs))
	}
}

// =============================================================================
// DUPLICATES
// =============================================================================

func TestDuplicateDedupeKeyWithinWindow(t *testing.T) {
	p, log, store, _ := testEngine(t, nil)
	ctx := context.Background()

	first := p.Process(ctx, rawEvent("e1", "u1", "message", "your order shipped", base,
		func(raw map[string]interface{}) { raw["dedupe_key"] = "order-42" }))
	if first.Code == decision.CodeDuplicateDedupeKey {
		t.Fatal("first submission must not be a duplicate")
	}

	second := p.Process(ctx, rawEvent("e2", "u1", "message", "completely different text here", base.Add(time.Minute),
		func(raw map[string]interface{}) { raw["dedupe_key"] = "order-42" }))
	if second.Outcome != decision.Never || second.Code != decision.CodeDuplicateDedupeKey {
		t.Fatalf("got %s/%s, want NEVER/DUPLICATE_DEDUPE_KEY", second.Outcome, second.Code)
	}

	// Duplicates are audited and recorded like any other finalized event.
	if log.Len() != 2 {
		t.Fatalf("audit entries = %d, want 2", log.Len())
	}
	recs, _ := store.Recent(ctx, "u1", time.Time{})
	if len(recs) != 2 {
		t.Fatalf("history records = %d, want 2", len(recs))
	}
}

func TestDuplicateKeyOutsideWindowEvaluatedNormally(t *testing.T) {
	p, _, _, _ := testEngine(t, nil)
	ctx := context.Background()

	p.Process(ctx, rawEvent("e1", "u1", "message", "your order shipped", base,
		func(raw map[string]interface{}) { raw["dedupe_key"] = "order-42" }))

	res := p.Process(ctx, rawEvent("e2", "u1", "message", "completely different text here", base.Add(11*time.Minute),
		func(raw map[string]interface{}) { raw["dedupe_key"] = "order-42" }))
	if res.Code == decision.CodeDuplicateDedupeKey {
		t.Fatal("dedupe key outside the window must not suppress")
	}
}

func TestNearDuplicateTextSuppressed(t *testing.T) {
	p, _, _, _ := testEngine(t, nil)
	ctx := context.Background()

	p.Process(ctx, rawEvent("e1", "u1", "message", "your package has been delivered to the front desk", base, nil))
	res := p.Process(ctx, rawEvent("e2", "u1", "message", "your package has just been delivered to the front desk", base.Add(time.Minute), nil))

	if res.Outcome != decision.Never || res.Code != decision.CodeDuplicateTextSimilar {
		t.Fatalf("got %s/%s, want NEVER/DUPLICATE_TEXT_SIMILAR", res.Outcome, res.Code)
	}
}

// =============================================================================
// FALLBACK
// =============================================================================

func TestForcedFallbackUsesPriorityHintOnly(t *testing.T) {
	p, _, _, _ := testEngine(t, nil)
	ctx := context.Background()

	p.SetForceFallback(true)
	res := p.Process(ctx, rawEvent("e1", "u1", "message", "totally mundane newsletter blurb", base,
		func(raw map[string]interface{}) { raw["priority_hint"] = "urgent" }))

	if res.Outcome != decision.Now || res.Code != decision.CodeFallback {
		t.Fatalf("got %s/%s, want NOW/FALLBACK", res.Outcome, res.Code)
	}
	if res.Confidence != 0.4 {
		t.Fatalf("Confidence = %v, want exactly 0.4", res.Confidence)
	}

	// Toggle only affects subsequent events.
	p.SetForceFallback(false)
	res = p.Process(ctx, rawEvent("e2", "u2", "alert", "critical outage in payments", base, nil))
	if res.Code == decision.CodeFallback {
		t.Fatal("fallback still active after disable")
	}
}

// =============================================================================
// RULES
// =============================================================================

func TestPromotionRuleForcesNever(t *testing.T) {
	p, _, _, _ := testEngine(t, &rules.RuleSet{Rules: []rules.Rule{{
		ID:       "promo-never",
		Priority: 100,
		Match:    rules.Match{EventTypes: []event.Type{event.TypePromotion}},
		Action:   rules.Action{ForceDecision: decision.Never},
	}}})

	res := p.Process(context.Background(), rawEvent("e1", "u1", "promotion", "70% off sale", base, nil))
	if res.Outcome != decision.Never || res.Code != decision.CodeRuleOverride {
		t.Fatalf("got %s/%s, want NEVER/RULE_OVERRIDE", res.Outcome, res.Code)
	}
	if res.MatchedRuleID != "promo-never" {
		t.Fatalf("MatchedRuleID = %q, want promo-never", res.MatchedRuleID)
	}
}

func TestRulePrecedenceHigherPriorityWins(t *testing.T) {
	p, _, _, _ := testEngine(t, &rules.RuleSet{Rules: []rules.Rule{
		{ID: "low", Priority: 100, Action: rules.Action{ForceDecision: decision.Now}},
		{ID: "high", Priority: 200, Action: rules.Action{ForceDecision: decision.Later}},
	}})

	res := p.Process(context.Background(), rawEvent("e1", "u1", "message", "hello there friend", base, nil))
	if res.MatchedRuleID != "high" {
		t.Fatalf("MatchedRuleID = %q, want high", res.MatchedRuleID)
	}
	if res.Outcome != decision.Later || res.ScheduledTime == nil {
		t.Fatalf("got %s (scheduled=%v), want scheduled LATER", res.Outcome, res.ScheduledTime)
	}
}

func TestLimitPerDayRule(t *testing.T) {
	p, _, _, _ := testEngine(t, &rules.RuleSet{Rules: []rules.Rule{{
		ID:       "reminder-cap",
		Priority: 50,
		Match:    rules.Match{EventTypes: []event.Type{event.TypeMessage}},
		Action:   rules.Action{LimitPerDay: 2},
	}}})
	ctx := context.Background()

	texts := []string{
		"first unrelated note about the garden",
		"second memo regarding quarterly planning",
		"third dispatch covering travel logistics",
	}
	var last Result
	for i, msg := range texts {
		last = p.Process(ctx, rawEvent(fmt.Sprintf("e%d", i), "u1", "message", msg, base.Add(time.Duration(i)*time.Minute), nil))
	}

	if last.Outcome != decision.Never || last.Code != decision.CodeRuleOverride {
		t.Fatalf("third event got %s/%s, want NEVER/RULE_OVERRIDE after daily limit", last.Outcome, last.Code)
	}
	if last.MatchedRuleID != "reminder-cap" {
		t.Fatalf("MatchedRuleID = %q", last.MatchedRuleID)
	}
}

func TestReplaceRulesAffectsNextEvent(t *testing.T) {
	p, _, _, _ := testEngine(t, nil)
	ctx := context.Background()

	before := p.Process(ctx, rawEvent("e1", "u1", "promotion", "clearance sale everything must go", base, nil))
	if before.Code == decision.CodeRuleOverride {
		t.Fatal("no rules installed yet")
	}

	err := p.Rules().Replace(&rules.RuleSet{Rules: []rules.Rule{{
		ID:       "promo-never",
		Priority: 10,
		Match:    rules.Match{EventTypes: []event.Type{event.TypePromotion}},
		Action:   rules.Action{ForceDecision: decision.Never},
	}}})
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}

	after := p.Process(ctx, rawEvent("e2", "u2", "promotion", "weekend discount on selected items", base, nil))
	if after.Code != decision.CodeRuleOverride || after.MatchedRuleID != "promo-never" {
		t.Fatalf("got %s rule %q, want RULE_OVERRIDE/promo-never", after.Code, after.MatchedRuleID)
	}
}

// =============================================================================
// FATIGUE
// =============================================================================

func TestFrequencyFatigueSequence(t *testing.T) {
	p, _, _, cur := testEngine(t, nil)
	ctx := context.Background()

	var results []Result
	for i := 0; i < 8; i++ {
		ts := base.Add(time.Duration(i) * 30 * time.Second)
		*cur = ts
		results = append(results, p.Process(ctx,
			rawEvent(fmt.Sprintf("e%d", i), "u1", "alert", urgentTexts[i], ts, nil)))
	}

	sixth := results[5]
	if sixth.Outcome != decision.Later || sixth.Code != decision.CodeFrequencyLimit {
		t.Fatalf("6th event got %s/%s, want LATER/FREQUENCY_LIMIT", sixth.Outcome, sixth.Code)
	}
	if sixth.ScheduledTime == nil {
		t.Fatal("6th event missing scheduled_time")
	}

	eighth := results[7]
	if eighth.Outcome != decision.Never || eighth.Code != decision.CodeFrequencySuppression {
		t.Fatalf("8th event got %s/%s, want NEVER/FREQUENCY_SUPPRESSION", eighth.Outcome, eighth.Code)
	}
}

// =============================================================================
// EXPIRY
// =============================================================================

func TestExpiredDeferralBecomesNever(t *testing.T) {
	p, _, _, _ := testEngine(t, nil)

	res := p.Process(context.Background(), rawEvent("e1", "u1", "message", "team standup notes attached", base,
		func(raw map[string]interface{}) {
			raw["expires_at"] = base.Add(-time.Hour).Format(time.RFC3339)
		}))

	if res.Outcome != decision.Never || res.Code != decision.CodeExpired {
		t.Fatalf("got %s/%s, want NEVER/EXPIRED", res.Outcome, res.Code)
	}
	if res.ScheduledTime != nil {
		t.Fatal("expired event must not carry scheduled_time")
	}
}

// =============================================================================
// ACCOUNTING & ADMIN
// =============================================================================

func TestExactlyOneAuditAndHistoryPerEvent(t *testing.T) {
	p, log, store, _ := testEngine(t, nil)
	ctx := context.Background()

	raws := []map[string]interface{}{
		rawEvent("e1", "u1", "message", "see you at the park later", base, nil),
		rawEvent("e2", "u1", "message", "see you at the park later", base.Add(time.Minute), nil), // duplicate
		rawEvent("e3", "u1", "alert", "critical outage in payments", base.Add(2*time.Minute), nil),
	}
	p.ProcessBatch(ctx, raws)

	if log.Len() != 3 {
		t.Fatalf("audit entries = %d, want 3", log.Len())
	}
	recs, _ := store.Recent(ctx, "u1", time.Time{})
	if len(recs) != 3 {
		t.Fatalf("history records = %d, want 3", len(recs))
	}
}

func TestResetClearsState(t *testing.T) {
	p, log, store, _ := testEngine(t, nil)
	ctx := context.Background()

	p.Process(ctx, rawEvent("e1", "u1", "message", "hello world message", base, nil))
	if err := p.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if log.Len() != 0 {
		t.Fatalf("audit not cleared, %d entries", log.Len())
	}
	recs, _ := store.Recent(ctx, "u1", time.Time{})
	if len(recs) != 0 {
		t.Fatalf("history not cleared, %d records", len(recs))
	}

	// A former duplicate is novel again after reset.
	res := p.Process(ctx, rawEvent("e2", "u1", "message", "hello world message", base.Add(time.Minute), nil))
	if res.Code == decision.CodeDuplicateTextSimilar {
		t.Fatal("history survived reset")
	}
}

func TestConcurrentUsersProcessIndependently(t *testing.T) {
	p, log, store, _ := testEngine(t, nil)
	ctx := context.Background()

	const users = 4
	const perUser = 20

	var wg sync.WaitGroup
	for u := 0; u < users; u++ {
		wg.Add(1)
		go func(u int) {
			defer wg.Done()
			userID := fmt.Sprintf("u%d", u)
			for i := 0; i < perUser; i++ {
				p.Process(ctx, rawEvent(
					fmt.Sprintf("%s-e%d", userID, i), userID, "message",
					"recurring status ping", base.Add(time.Duration(i)*time.Second), nil))
			}
		}(u)
	}
	wg.Wait()

	if log.Len() != users*perUser {
		t.Fatalf("audit entries = %d, want %d", log.Len(), users*perUser)
	}
	for u := 0; u < users; u++ {
		recs, err := store.Recent(ctx, fmt.Sprintf("u%d", u), time.Time{})
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) != perUser {
			t.Fatalf("user u%d history = %d, want %d", u, len(recs), perUser)
		}
	}
}
