// Package fatigue applies the two post-rule suppression layers: the
// per-user frequency window and the per-type/per-source noise resolver.
package fatigue

import (
	"fmt"
	"time"

	"github.com/ignite/notify-triage/internal/decision"
	"github.com/ignite/notify-triage/internal/event"
	"github.com/ignite/notify-triage/internal/history"
)

// Config carries the suppression thresholds. Zero values are replaced by
// the defaults below.
type Config struct {
	FrequencyWindow  time.Duration // trailing window for the frequency count
	FrequencyLimit   int           // count at which NOW downgrades to LATER
	SuppressionLimit int           // count at which LATER downgrades to NEVER
	NoiseWindow      time.Duration // trailing window for the noise count
	NoiseMaxUrgent   int           // prior NOWs at which another NOW defers
}

const (
	defaultFrequencyWindow  = 10 * time.Minute
	defaultFrequencyLimit   = 5
	defaultSuppressionLimit = 7
	defaultNoiseWindow      = 15 * time.Minute
	defaultNoiseMaxUrgent   = 2
)

// Controller evaluates fatigue against a user's recent history.
type Controller struct {
	cfg Config
}

// New returns a controller, filling unset thresholds with defaults.
func New(cfg Config) *Controller {
	if cfg.FrequencyWindow <= 0 {
		cfg.FrequencyWindow = defaultFrequencyWindow
	}
	if cfg.FrequencyLimit <= 0 {
		cfg.FrequencyLimit = defaultFrequencyLimit
	}
	if cfg.SuppressionLimit <= 0 {
		cfg.SuppressionLimit = defaultSuppressionLimit
	}
	if cfg.NoiseWindow <= 0 {
		cfg.NoiseWindow = defaultNoiseWindow
	}
	if cfg.NoiseMaxUrgent <= 0 {
		cfg.NoiseMaxUrgent = defaultNoiseMaxUrgent
	}
	return &Controller{cfg: cfg}
}

// Adjustment is the fatigue verdict. FrequencyCount is always populated;
// the scheduler uses it to stretch the deferral backoff.
type Adjustment struct {
	Applied        bool
	Outcome        decision.Outcome
	Code           decision.Code
	Reason         string
	FrequencyCount int
}

// Apply runs both layers in order against the user's prior records. recs
// must be the user's history, oldest first, not including the current
// event; now anchors the trailing windows.
//
// The frequency layer counts decisions of any kind. At FrequencyLimit a
// NOW becomes LATER; at SuppressionLimit a LATER (including one just
// downgraded) becomes NEVER. The noise layer then defers a still-NOW
// candidate when too many NOWs of the same type or source landed recently.
// NEVER passes through untouched.
func (c *Controller) Apply(e event.Event, current decision.Outcome, recs []history.Record, now time.Time) Adjustment {
	adj := Adjustment{
		Outcome:        current,
		FrequencyCount: countSince(recs, now.Add(-c.cfg.FrequencyWindow)),
	}

	if adj.FrequencyCount >= c.cfg.FrequencyLimit && adj.Outcome == decision.Now {
		adj.Applied = true
		adj.Outcome = decision.Later
		adj.Code = decision.CodeFrequencyLimit
		adj.Reason = fmt.Sprintf(
			"Downgraded NOW -> LATER: user %s received %d notifications in last %d min",
			e.UserID, adj.FrequencyCount, int(c.cfg.FrequencyWindow.Minutes()))
	}
	if adj.FrequencyCount >= c.cfg.SuppressionLimit && adj.Outcome == decision.Later {
		adj.Applied = true
		adj.Outcome = decision.Never
		adj.Code = decision.CodeFrequencySuppression
		adj.Reason = fmt.Sprintf(
			"Suppressed: user %s received %d notifications (fatigue threshold)",
			e.UserID, adj.FrequencyCount)
	}

	if adj.Outcome == decision.Now {
		urgent := countNoise(recs, e, now.Add(-c.cfg.NoiseWindow))
		if urgent >= c.cfg.NoiseMaxUrgent {
			adj.Applied = true
			adj.Outcome = decision.Later
			adj.Code = decision.CodeConflictNoiseLimit
			adj.Reason = fmt.Sprintf(
				"Noise limit: %d urgent %s events from %s in last %d min (limit=%d)",
				urgent, e.Type, e.Source, int(c.cfg.NoiseWindow.Minutes()), c.cfg.NoiseMaxUrgent)
		}
	}

	return adj
}

func countSince(recs []history.Record, since time.Time) int {
	n := 0
	for i := range recs {
		if !recs[i].Timestamp.Before(since) {
			n++
		}
	}
	return n
}

func countNoise(recs []history.Record, e event.Event, since time.Time) int {
	n := 0
	for i := range recs {
		r := &recs[i]
		if r.Timestamp.Before(since) || r.Decision != decision.Now {
			continue
		}
		if r.EventType == e.Type || (e.Source != "" && r.Source == e.Source) {
			n++
		}
	}
	return n
}
