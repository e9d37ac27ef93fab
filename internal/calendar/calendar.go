// Package calendar partitions appointments into the Monday..Friday columns of
// a board week.
package calendar

import (
	"time"

	"consultboard/internal/model"
	"consultboard/internal/week"
)

const (
	// DateKeyLayout is the ISO calendar-date form used as a bucket key.
	DateKeyLayout = time.DateOnly
	// FormattedDateLayout renders a column header such as "Jun 12".
	FormattedDateLayout = "Jan 2"
)

// Build returns the board for the week starting at weekStart. It returns nil
// when there are no appointments or weekStart is the zero time. Day columns
// keep the order of appts; an appointment without a callback time, or one that
// falls on a weekend, is in no column.
func Build(weekStart time.Time, appts []model.Appointment) *model.CalendarView {
	if len(appts) == 0 || weekStart.IsZero() {
		return nil
	}

	view := &model.CalendarView{}
	for i, day := range week.Weekdays(weekStart) {
		bucket := model.DayBucket{
			DayName:       week.DayNames[i],
			DateKey:       day.Format(DateKeyLayout),
			FormattedDate: day.Format(FormattedDateLayout),
			Appointments:  []model.Appointment{},
		}
		for _, a := range appts {
			if a.CallbackTime == nil || !week.SameDate(*a.CallbackTime, day) {
				continue
			}
			bucket.Appointments = append(bucket.Appointments, a)
		}
		view.Days[i] = bucket
	}
	return view
}

// Count returns how many appointments are placed on the board.
func Count(v *model.CalendarView) int {
	if v == nil {
		return 0
	}
	n := 0
	for _, d := range v.Days {
		n += len(d.Appointments)
	}
	return n
}
