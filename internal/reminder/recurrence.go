package reminder

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// RuleKind discriminates the recurrence rule union.
type RuleKind string

const (
	RuleWeekly     RuleKind = "weekly"
	RuleEveryNDays RuleKind = "every_n_days"
)

// Weekdays is a set of time.Weekday values packed into a bitmask
// (bit 0 = Sunday, matching time.Weekday numbering).
type Weekdays uint8

func (w Weekdays) Has(d time.Weekday) bool { return w&(1<<uint(d)) != 0 }
func (w Weekdays) With(d time.Weekday) Weekdays {
	return w | 1<<uint(d)
}
func (w Weekdays) Empty() bool { return w == 0 }

func (w Weekdays) String() string {
	if w.Empty() {
		return "none"
	}
	var parts []string
	for d := time.Sunday; d <= time.Saturday; d++ {
		if w.Has(d) {
			parts = append(parts, d.String()[:3])
		}
	}
	return strings.Join(parts, ",")
}

// Rule is a recurrence rule owned by the business task.
// Exactly one variant is active, selected by Kind; the unused variant's
// fields are zero. Keep matching on Kind exhaustive.
type Rule struct {
	Kind RuleKind

	// Weekly
	Days Weekdays

	// EveryNDays
	IntervalDays int

	// Shared wall-clock time-of-day (UTC).
	Hour   int
	Minute int
}

var ErrInvalidRule = errors.New("invalid recurrence rule")

func (r Rule) Validate() error {
	if r.Hour < 0 || r.Hour > 23 {
		return fmt.Errorf("%w: hour %d out of range", ErrInvalidRule, r.Hour)
	}
	if r.Minute < 0 || r.Minute > 59 {
		return fmt.Errorf("%w: minute %d out of range", ErrInvalidRule, r.Minute)
	}
	switch r.Kind {
	case RuleWeekly:
		if r.Days.Empty() {
			return fmt.Errorf("%w: weekly rule needs at least one weekday", ErrInvalidRule)
		}
	case RuleEveryNDays:
		if r.IntervalDays < 1 {
			return fmt.Errorf("%w: interval %d days, want >= 1", ErrInvalidRule, r.IntervalDays)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRule, r.Kind)
	}
	return nil
}

// NextOccurrence computes the next firing instant for a rule. All arithmetic
// is in UTC; callers convert user-local wall clock to UTC before building the
// rule.
//
// Weekly: the earliest instant strictly after reference whose weekday is in
// the rule's set and whose time-of-day equals Hour:Minute:00. When today's
// Hour:Minute has already passed relative to reference the search starts
// tomorrow, so a task never re-fires for a time already behind us even if
// today's weekday matches. The search is bounded to the next 7 days; a
// validated non-empty day set always finds a match.
//
// EveryNDays: lastScheduled + IntervalDays with time-of-day forced to
// Hour:Minute:00. A zero lastScheduled means the required input is absent
// and no occurrence is produced.
func NextOccurrence(r Rule, reference, lastScheduled time.Time) (time.Time, bool) {
	switch r.Kind {
	case RuleWeekly:
		ref := reference.UTC()
		for off := 0; off <= 7; off++ {
			day := ref.AddDate(0, 0, off)
			candidate := time.Date(day.Year(), day.Month(), day.Day(), r.Hour, r.Minute, 0, 0, time.UTC)
			if candidate.After(ref) && r.Days.Has(candidate.Weekday()) {
				return candidate, true
			}
		}
		// Unreachable with a validated rule: within 8 calendar days every
		// weekday produces at least one strictly-future candidate.
		return time.Time{}, false
	case RuleEveryNDays:
		if lastScheduled.IsZero() {
			return time.Time{}, false
		}
		last := lastScheduled.UTC().AddDate(0, 0, r.IntervalDays)
		return time.Date(last.Year(), last.Month(), last.Day(), r.Hour, r.Minute, 0, 0, time.UTC), true
	default:
		return time.Time{}, false
	}
}
