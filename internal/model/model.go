package model

import "time"

// Appointment is the display-ready form of one phone-consult request.
// Values are built once by the record normalizer and never mutated.
type Appointment struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Specialty      string `json:"specialty"`
	Modality       string `json:"modality"`
	Consultant     string `json:"consultant"`
	PCPName        string `json:"pcp_name"`
	CallbackNumber string `json:"callback_number"`

	// CallbackTime is nil when the source record has no callback time.
	CallbackTime  *time.Time `json:"callback_time"`
	FormattedTime string     `json:"formatted_time"`

	// CreatedDate is only used for ordering.
	CreatedDate *time.Time `json:"created_date"`
}

// DayBucket is one weekday column of the board.
type DayBucket struct {
	DayName       string        `json:"day_name"`
	DateKey       string        `json:"date_key"`
	FormattedDate string        `json:"formatted_date"`
	Appointments  []Appointment `json:"appointments"`
}

// WorkWeekDays is the number of columns on the board.
const WorkWeekDays = 5

// CalendarView is the Monday..Friday board. A nil *CalendarView means there is
// nothing to show.
type CalendarView struct {
	Days [WorkWeekDays]DayBucket `json:"days"`
}
