package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "consultboard/internal/log"
	"consultboard/internal/model"
)

// DefaultCallbackDuration is the slot length given to each exported callback.
// Records carry only a start time.
const DefaultCallbackDuration = 30 * time.Minute

// ExportOptions controls feed generation.
type ExportOptions struct {
	// CalendarName is shown by subscribing clients.
	CalendarName string
	// Duration overrides DefaultCallbackDuration when positive.
	Duration time.Duration
	// RecordURL, if set, returns the record page link for an appointment id.
	RecordURL func(id string) string
	// Now stamps DTSTAMP; defaults to time.Now.
	Now func() time.Time
}

// Export renders every bucketed appointment of view as a VEVENT. A nil view
// yields an empty calendar. Unplaced appointments are not exported.
func Export(view *model.CalendarView, opts ExportOptions) string {
	if opts.Duration <= 0 {
		opts.Duration = DefaultCallbackDuration
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CalendarName == "" {
		opts.CalendarName = "Phone Consults"
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//consultboard//phone consults//EN")
	cal.SetXWRCalName(opts.CalendarName)

	stamp := opts.Now().UTC()
	count := 0
	if view != nil {
		for _, day := range view.Days {
			for _, a := range day.Appointments {
				if a.CallbackTime == nil {
					continue
				}
				addEvent(cal, a, stamp, opts)
				count++
			}
		}
	}

	appLog.Debug("ics export completed", "event_count", count)
	return cal.Serialize()
}

func addEvent(cal *ical.Calendar, a model.Appointment, stamp time.Time, opts ExportOptions) {
	ev := cal.AddEvent(UID(a.ID))
	ev.SetDtStampTime(stamp)
	ev.SetStartAt(*a.CallbackTime)
	ev.SetEndAt(a.CallbackTime.Add(opts.Duration))
	ev.SetSummary(Summary(a))
	ev.SetDescription(Description(a))
	if a.CreatedDate != nil {
		ev.SetCreatedTime(*a.CreatedDate)
	}
	if opts.RecordURL != nil {
		if u := opts.RecordURL(a.ID); u != "" {
			ev.SetURL(u)
		}
	}
}

// UID is the stable event identifier for an appointment.
func UID(id string) string {
	return id + "@consultboard"
}

// Summary is the event title, e.g. "CR-000123 (Psychiatrist)".
func Summary(a model.Appointment) string {
	return a.Name + " (" + a.Specialty + ")"
}

// Description lists the callback details one per line.
func Description(a model.Appointment) string {
	var b strings.Builder
	b.WriteString("Callback number: " + a.CallbackNumber + "\n")
	b.WriteString("Modality: " + a.Modality + "\n")
	b.WriteString("Consultant: " + a.Consultant + "\n")
	b.WriteString("PCP: " + a.PCPName)
	return b.String()
}
