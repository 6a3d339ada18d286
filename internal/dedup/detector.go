// Package dedup suppresses exact and near-duplicate notification events.
//
// Two-layer check, cheapest first:
//
//	Layer 1: exact dedupe_key match against the user's recent history
//	Layer 2: normalized-text edit-distance similarity, guarded by an O(1)
//	         length-difference reject before the full DP matrix
package dedup

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/ignite/notify-triage/internal/decision"
	"github.com/ignite/notify-triage/internal/event"
	"github.com/ignite/notify-triage/internal/history"
)

// Result describes a duplicate check outcome.
type Result struct {
	IsDuplicate    bool
	Code           decision.Code // CodeDuplicateDedupeKey or CodeDuplicateTextSimilar
	MatchedEventID string
}

// Detector finds duplicates in a user's recent history.
type Detector struct {
	store     history.Store
	window    time.Duration
	threshold float64
}

// New creates a detector over the given history store.
func New(store history.Store, window time.Duration, threshold float64) *Detector {
	if window <= 0 {
		window = 10 * time.Minute
	}
	if threshold <= 0 || threshold > 1 {
		threshold = 0.90
	}
	return &Detector{store: store, window: window, threshold: threshold}
}

// Check reports whether e duplicates a recent event for the same user.
// The window is anchored on the candidate's own timestamp, so replayed
// batches behave the same as live traffic.
func (d *Detector) Check(ctx context.Context, e event.Event) (Result, error) {
	recent, err := d.store.Recent(ctx, e.UserID, e.Timestamp.Add(-d.window))
	if err != nil {
		return Result{}, err
	}

	// Layer 1: exact dedupe_key
	if e.DedupeKey != "" {
		for i := len(recent) - 1; i >= 0; i-- {
			if recent[i].DedupeKey == e.DedupeKey {
				return Result{
					IsDuplicate:    true,
					Code:           decision.CodeDuplicateDedupeKey,
					MatchedEventID: recent[i].EventID,
				}, nil
			}
		}
	}

	// Layer 2: near-duplicate text
	text := NormalizeText(e.Text())
	if text == "" {
		return Result{}, nil
	}
	for _, rec := range recent {
		if rec.NormalizedText == "" {
			continue
		}
		if !CanReachThreshold(text, rec.NormalizedText, d.threshold) {
			continue
		}
		if SimilarityRatio(text, rec.NormalizedText) >= d.threshold {
			return Result{
				IsDuplicate:    true,
				Code:           decision.CodeDuplicateTextSimilar,
				MatchedEventID: rec.EventID,
			}, nil
		}
	}

	return Result{}, nil
}

// Threshold returns the configured similarity threshold.
func (d *Detector) Threshold() float64 { return d.threshold }

// NormalizeText lowercases, strips punctuation, and collapses whitespace.
func NormalizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	lastSpace := true
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
		// Punctuation and symbols are dropped entirely
	}
	return strings.TrimRight(b.String(), " ")
}

// CanReachThreshold is the O(1) pre-check: edit distance is bounded below by
// the length difference, so a pair whose lengths alone cap similarity under
// the threshold can never match and the DP matrix is skipped.
func CanReachThreshold(a, b string, threshold float64) bool {
	la, lb := len([]rune(a)), len([]rune(b))
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	if maxLen == 0 {
		return false
	}
	diff := la - lb
	if diff < 0 {
		diff = -diff
	}
	return float64(diff)/float64(maxLen) <= 1.0-threshold
}

// SimilarityRatio computes 1 - levenshtein(a,b)/max(len(a),len(b)) over runes.
func SimilarityRatio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	return 1.0 - float64(levenshtein(ra, rb))/float64(maxLen)
}

// levenshtein computes edit distance with a single rolling row.
func levenshtein(a, b []rune) int {
	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}

	for i := 1; i <= len(a); i++ {
		prev := row[0]
		row[0] = i
		for j := 1; j <= len(b); j++ {
			tmp := row[j]
			if a[i-1] == b[j-1] {
				row[j] = prev
			} else {
				row[j] = 1 + min3(prev, row[j], row[j-1])
			}
			prev = tmp
		}
	}
	return row[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
