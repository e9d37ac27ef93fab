package record

import (
	"cmp"
	"slices"
	"strings"
	"time"

	appLog "consultboard/internal/log"
	"consultboard/internal/model"
)

// Display defaults for missing fields.
const (
	DefaultName        = "No Name"
	DefaultUnspecified = "Not Specified"
	DefaultNotProvided = "Not Provided"
)

// psychiatristLong is the store's verbose label for psychiatry callbacks.
const psychiatristLong = "Psychiatrist (30 minutes or less)"

// FormattedTimeLayout renders callback times as "Jun 12, 02:30 PM".
const FormattedTimeLayout = "Jan 2, 03:04 PM"

// Extract resolves a field wrapper to its display value, falling back to the
// raw value. Empty strings count as absent. ok is false when neither is set.
func Extract(f *FieldValue) (s string, ok bool) {
	if f == nil {
		return "", false
	}
	if f.DisplayValue != nil && *f.DisplayValue != "" {
		return *f.DisplayValue, true
	}
	if f.Value != nil && *f.Value != "" {
		return *f.Value, true
	}
	return "", false
}

// Normalizer maps raw records into appointments. Dates without an explicit
// offset are read in Location; zoned dates are converted into it.
type Normalizer struct {
	Location *time.Location
}

// NewNormalizer returns a Normalizer for loc, or time.Local when loc is nil.
func NewNormalizer(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	return &Normalizer{Location: loc}
}

func (n *Normalizer) location() *time.Location {
	if n == nil || n.Location == nil {
		return time.Local
	}
	return n.Location
}

// Normalize builds one Appointment. It never fails: every field has a default
// and malformed dates become nil.
func (n *Normalizer) Normalize(r RawRecord) model.Appointment {
	a := model.Appointment{
		ID:             r.ID,
		Name:           stringOr(r.Field(FieldRecordName), DefaultName),
		Specialty:      canonicalSpecialty(stringOr(r.Field(FieldCallbackPref), DefaultUnspecified)),
		Modality:       stringOr(r.Field(FieldModality), DefaultUnspecified),
		Consultant:     stringOr(r.Field(FieldConsultant), DefaultUnspecified),
		PCPName:        stringOr(r.Field(FieldPCPFullName), DefaultNotProvided),
		CallbackNumber: stringOr(r.Field(FieldCallbackNumber), DefaultNotProvided),
		CallbackTime:   n.timeField(r, FieldCallbackTime),
		CreatedDate:    n.timeField(r, FieldCreatedDate),
	}
	if a.CallbackTime != nil {
		a.FormattedTime = a.CallbackTime.Format(FormattedTimeLayout)
	}
	return a
}

// NormalizeAll normalizes a batch and orders it by CreatedDate ascending.
// Records without a CreatedDate come first; ties keep their input order.
// Records with an empty id are dropped, and for repeated ids the first one wins.
func (n *Normalizer) NormalizeAll(raw []RawRecord) []model.Appointment {
	out := make([]model.Appointment, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		if r.ID == "" {
			appLog.Debug("record skipped: missing id")
			continue
		}
		if _, dup := seen[r.ID]; dup {
			appLog.Debug("record skipped: duplicate id", "id", r.ID)
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, n.Normalize(r))
	}
	slices.SortStableFunc(out, compareCreated)
	return out
}

func compareCreated(a, b model.Appointment) int {
	switch {
	case a.CreatedDate == nil && b.CreatedDate == nil:
		return 0
	case a.CreatedDate == nil:
		return -1
	case b.CreatedDate == nil:
		return 1
	}
	return cmp.Compare(a.CreatedDate.UnixNano(), b.CreatedDate.UnixNano())
}

func (n *Normalizer) timeField(r RawRecord, name FieldName) *time.Time {
	s, ok := Extract(r.Field(name))
	if !ok {
		return nil
	}
	t, ok := ParseTime(s, n.location())
	if !ok {
		appLog.Debug("record date unparseable", "id", r.ID, "field", string(name), "value", s)
		return nil
	}
	return &t
}

func stringOr(f *FieldValue, def string) string {
	if s, ok := Extract(f); ok {
		return s
	}
	return def
}

func canonicalSpecialty(s string) string {
	if s == psychiatristLong {
		return "Psychiatrist"
	}
	return s
}

var zonedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
}

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"1/2/2006, 3:04 PM",
	"1/2/2006 3:04 PM",
	"1/2/2006",
}

// ParseTime reads the date formats the store emits, either as raw ISO values
// or as en-US display values. The result is expressed in loc.
func ParseTime(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(loc), true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
