// Package schedule stamps the delivery instant for deferred decisions. It
// never delivers anything; downstream systems act on the computed time.
package schedule

import (
	"time"

	"github.com/ignite/notify-triage/internal/decision"
	"github.com/ignite/notify-triage/internal/event"
)

// Config carries the deferral offsets and the quiet-hour window. Hours are
// in the event's local time. Zero values take the defaults below.
type Config struct {
	QuietHourStart  int           // start of the no-delivery window
	QuietHourEnd    int           // end of the no-delivery window
	QuietResumeHour int           // deliveries pushed into quiet hours land here
	BaseBackoff     time.Duration // unit of the frequency-limit backoff
	DefaultDelay    time.Duration // the plain "soon" deferral
	WorkingHour     int           // reminders land at the next occurrence of this hour
}

const (
	defaultQuietStart  = 22
	defaultQuietEnd    = 6
	defaultResumeHour  = 8
	defaultBaseBackoff = 5 * time.Minute
	defaultDelay       = 15 * time.Minute
	defaultWorkingHour = 9
)

// Scheduler computes scheduled_time for LATER decisions.
type Scheduler struct {
	cfg Config
}

// New returns a scheduler, filling unset config with defaults. The quiet
// window may legitimately start at hour 0, so only a fully zero window is
// replaced.
func New(cfg Config) *Scheduler {
	if cfg.QuietHourStart == 0 && cfg.QuietHourEnd == 0 {
		cfg.QuietHourStart = defaultQuietStart
		cfg.QuietHourEnd = defaultQuietEnd
	}
	if cfg.QuietResumeHour == 0 {
		cfg.QuietResumeHour = defaultResumeHour
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}
	if cfg.DefaultDelay <= 0 {
		cfg.DefaultDelay = defaultDelay
	}
	if cfg.WorkingHour == 0 {
		cfg.WorkingHour = defaultWorkingHour
	}
	return &Scheduler{cfg: cfg}
}

// Result is the scheduling verdict for a LATER decision. Expired means the
// event cannot be delivered before its expires_at and must finalize NEVER.
type Result struct {
	Expired bool
	At      time.Time
}

// Schedule computes when a deferred event should be delivered:
//
//   - frequency-limited events back off proportionally to how busy the
//     user's window already is,
//   - reminders land at the next working hour,
//   - everything else is deferred by the short default delay.
//
// Any computed time falling inside quiet hours is pushed to the resume
// hour of the same or next local day, whichever is forward-looking. An
// event whose expires_at has already passed, or whose computed time would
// overshoot it, comes back Expired.
func (s *Scheduler) Schedule(e event.Event, code decision.Code, frequencyCount int, now time.Time) Result {
	if e.ExpiresAt != nil && e.ExpiresAt.Before(now) {
		return Result{Expired: true}
	}

	ts := e.Timestamp
	var at time.Time
	switch {
	case code == decision.CodeFrequencyLimit:
		mult := frequencyCount - 3
		if mult < 1 {
			mult = 1
		}
		at = ts.Add(time.Duration(mult) * s.cfg.BaseBackoff)
	case e.Type == event.TypeReminder:
		at = nextHour(ts, s.cfg.WorkingHour)
	default:
		at = ts.Add(s.cfg.DefaultDelay)
	}

	if s.isQuietHour(at.Hour()) {
		at = s.resumeAfterQuiet(at)
	}

	if e.ExpiresAt != nil && at.After(*e.ExpiresAt) {
		return Result{Expired: true}
	}
	return Result{At: at}
}

func (s *Scheduler) isQuietHour(hour int) bool {
	if s.cfg.QuietHourStart > s.cfg.QuietHourEnd {
		return hour >= s.cfg.QuietHourStart || hour < s.cfg.QuietHourEnd
	}
	return hour >= s.cfg.QuietHourStart && hour < s.cfg.QuietHourEnd
}

// resumeAfterQuiet moves t to the resume hour: the same local day when the
// resume hour is still ahead, otherwise the next day.
func (s *Scheduler) resumeAfterQuiet(t time.Time) time.Time {
	day := t
	if t.Hour() >= s.cfg.QuietResumeHour {
		day = t.AddDate(0, 0, 1)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), s.cfg.QuietResumeHour, 0, 0, 0, t.Location())
}

// nextHour returns the next occurrence of hour after t in t's location.
func nextHour(t time.Time, hour int) time.Time {
	day := t
	if t.Hour() >= hour {
		day = t.AddDate(0, 0, 1)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, t.Location())
}
