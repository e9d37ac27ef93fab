package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consultboard/internal/model"
)

func at(y int, m time.Month, d, hh, mm int) *time.Time {
	t := time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
	return &t
}

func appt(id string, callback *time.Time) model.Appointment {
	return model.Appointment{ID: id, Name: id, CallbackTime: callback}
}

var weekOfJune10 = time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC)

func TestBuild_NilWhenNothingToShow(t *testing.T) {
	assert.Nil(t, Build(weekOfJune10, nil))
	assert.Nil(t, Build(weekOfJune10, []model.Appointment{}))
	assert.Nil(t, Build(time.Time{}, []model.Appointment{appt("a", at(2024, time.June, 12, 9, 0))}))
}

func TestBuild_FiveWeekdayBuckets(t *testing.T) {
	v := Build(weekOfJune10, []model.Appointment{appt("a", nil)})
	require.NotNil(t, v)

	names := make([]string, 0, len(v.Days))
	keys := make([]string, 0, len(v.Days))
	for _, d := range v.Days {
		names = append(names, d.DayName)
		keys = append(keys, d.DateKey)
		assert.NotNil(t, d.Appointments)
		assert.Empty(t, d.Appointments)
	}
	assert.Equal(t, []string{"Mon", "Tue", "Wed", "Thu", "Fri"}, names)
	assert.Equal(t, []string{"2024-06-10", "2024-06-11", "2024-06-12", "2024-06-13", "2024-06-14"}, keys)
	assert.Equal(t, "Jun 10", v.Days[0].FormattedDate)
	assert.Equal(t, "Jun 14", v.Days[4].FormattedDate)
}

func TestBuild_WednesdayCallback(t *testing.T) {
	v := Build(weekOfJune10, []model.Appointment{appt("wed", at(2024, time.June, 12, 14, 30))})
	require.NotNil(t, v)

	wed := v.Days[2]
	assert.Equal(t, "Wed", wed.DayName)
	assert.Equal(t, "2024-06-12", wed.DateKey)
	require.Len(t, wed.Appointments, 1)
	assert.Equal(t, "wed", wed.Appointments[0].ID)
	assert.Equal(t, 1, Count(v))
}

func TestBuild_WeekendAndOtherWeeksExcluded(t *testing.T) {
	v := Build(weekOfJune10, []model.Appointment{
		appt("sat", at(2024, time.June, 15, 10, 0)),
		appt("sun", at(2024, time.June, 16, 10, 0)),
		appt("prev-fri", at(2024, time.June, 7, 10, 0)),
		appt("next-mon", at(2024, time.June, 17, 10, 0)),
		appt("none", nil),
	})
	require.NotNil(t, v)
	assert.Equal(t, 0, Count(v))
}

func TestBuild_KeepsSourceOrderAndIgnoresTimeOfDay(t *testing.T) {
	v := Build(weekOfJune10, []model.Appointment{
		appt("late", at(2024, time.June, 11, 23, 59)),
		appt("early", at(2024, time.June, 11, 0, 0)),
		appt("mid", at(2024, time.June, 11, 12, 0)),
	})
	require.NotNil(t, v)

	ids := []string{}
	for _, a := range v.Days[1].Appointments {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"late", "early", "mid"}, ids)
}

func TestBuild_UsesWeekStartLocation(t *testing.T) {
	east := time.FixedZone("UTC+9", 9*3600)
	start := time.Date(2024, time.June, 10, 0, 0, 0, 0, east)
	// Monday 2024-06-10 08:00 in UTC+9 is still Sunday in UTC.
	v := Build(start, []model.Appointment{appt("a", at(2024, time.June, 9, 23, 0))})
	require.NotNil(t, v)
	require.Len(t, v.Days[0].Appointments, 1)
	assert.Equal(t, "2024-06-10", v.Days[0].DateKey)
}

func TestCount_Nil(t *testing.T) {
	assert.Equal(t, 0, Count(nil))
}
