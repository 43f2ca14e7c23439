// Package recurrence computes occurrence dates for recurring obligations and
// materializes missed occurrences into the obligation store.
package recurrence

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/mmynk/splitledger/internal/models"
)

// NextDate returns the occurrence that follows anchor for the given cadence.
//
//	DAILY:   anchor + 1 calendar day
//	WEEKLY:  anchor + 7 calendar days
//	MONTHLY: same day-of-month in the following month; when that day does not
//	         exist the day is decremented until it does (Jan 31 -> Feb 29 in a
//	         leap year). The shortened day is carried forward, so a chain
//	         anchored on the 31st drifts: Feb 29 -> Mar 29 -> Apr 29 ...
//
// NextDate is pure: no clock, no I/O. Time of day and location are preserved.
func NextDate(cadence models.Cadence, anchor time.Time) (time.Time, error) {
	if anchor.IsZero() {
		return time.Time{}, fmt.Errorf("anchor date is required")
	}

	switch cadence {
	case models.CadenceDaily:
		return step(rrule.DAILY, anchor)
	case models.CadenceWeekly:
		return step(rrule.WEEKLY, anchor)
	case models.CadenceMonthly:
		return nextMonthly(anchor), nil
	case models.CadenceNone:
		return time.Time{}, fmt.Errorf("cadence is none")
	default:
		return time.Time{}, fmt.Errorf("unknown cadence %q", cadence)
	}
}

// step returns the first occurrence strictly after anchor of a rule that starts at anchor.
func step(freq rrule.Frequency, anchor time.Time) (time.Time, error) {
	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:     freq,
		Interval: 1,
		Dtstart:  anchor,
		Count:    2,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to build %v rule: %w", freq, err)
	}
	next := rule.After(anchor, false)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("no occurrence after %s", anchor.Format(time.DateOnly))
	}
	return next, nil
}

func nextMonthly(anchor time.Time) time.Time {
	year, month, day := anchor.Date()
	month++
	if month > time.December {
		month = time.January
		year++
	}
	for !IsValidDate(year, month, day) {
		day--
	}
	hour, minute, sec := anchor.Clock()
	return time.Date(year, month, day, hour, minute, sec, anchor.Nanosecond(), anchor.Location())
}

// IsValidDate reports whether (year, month, day) names a real calendar date,
// i.e. time.Date does not silently roll an out-of-range day into the next month.
func IsValidDate(year int, month time.Month, day int) bool {
	if day < 1 {
		return false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return t.Year() == year && t.Month() == month && t.Day() == day
}
