// Package week computes Monday-aligned work weeks.
package week

import (
	"time"

	"github.com/teambition/rrule-go"

	appLog "consultboard/internal/log"
)

// NavigationStep is the number of days one previous/next move covers.
const NavigationStep = 7

// DayNames labels the work-week columns, Monday first.
var DayNames = [5]string{"Mon", "Tue", "Wed", "Thu", "Fri"}

// StartOfWeek returns midnight on the Monday of the week containing ref, in
// ref's location. Sunday belongs to the week that started six days earlier.
func StartOfWeek(ref time.Time) time.Time {
	wd := int(ref.Weekday())
	offset := wd - 1
	if wd == 0 {
		offset = 6
	}
	return time.Date(ref.Year(), ref.Month(), ref.Day()-offset, 0, 0, 0, 0, ref.Location())
}

// Shift moves weekStart by deltaDays calendar days. Wall-clock time is kept
// across DST changes, so a Monday midnight stays a Monday midnight.
func Shift(weekStart time.Time, deltaDays int) time.Time {
	return weekStart.AddDate(0, 0, deltaDays)
}

// Weekdays lists the Monday..Friday dates of the week starting at weekStart.
func Weekdays(weekStart time.Time) [5]time.Time {
	var out [5]time.Time

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.DAILY,
		Dtstart:   weekStart,
		Count:     len(out),
		Byweekday: []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR},
	})
	if err == nil {
		if days := r.All(); len(days) == len(out) {
			copy(out[:], days)
			return out
		}
	} else {
		appLog.Error("week: rrule construction failed; using day arithmetic", err, "week_start", weekStart.Format(time.DateOnly))
	}

	for i := range out {
		out[i] = Shift(weekStart, i)
	}
	return out
}

// SameDate reports whether a and b fall on the same calendar day. b's
// location is used for both.
func SameDate(a, b time.Time) bool {
	a = a.In(b.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
