// Package board holds the weekly consult board state: the two loaded record
// sets, the displayed week and the calendar built from them.
package board

import (
	"context"
	"errors"
	"sync"
	"time"

	"consultboard/internal/calendar"
	"consultboard/internal/listui"
	appLog "consultboard/internal/log"
	"consultboard/internal/model"
	"consultboard/internal/navigate"
	"consultboard/internal/record"
	"consultboard/internal/week"
)

// SetKind selects one of the two record sets.
type SetKind int

const (
	ThisWeek SetKind = iota
	All
)

func (k SetKind) String() string {
	switch k {
	case ThisWeek:
		return "this_week"
	case All:
		return "all"
	default:
		return "unknown"
	}
}

// ErrUnknownAppointment is returned by Open for ids that are not loaded.
var ErrUnknownAppointment = errors.New("board: unknown appointment")

// RecordSet is one independently loaded, CreatedDate-sorted batch.
type RecordSet struct {
	Kind     SetKind
	Records  []model.Appointment
	LoadedAt time.Time
}

// State is a point-in-time copy of the board for presentation.
type State struct {
	Active    SetKind
	WeekStart time.Time
	View      *model.CalendarView
	Error     string
	Counts    map[SetKind]int
}

// Options configures a Controller. Zero values fall back to time.Local,
// time.Now and a nil navigator (Open then fails).
type Options struct {
	Location      *time.Location
	Now           func() time.Time
	Navigator     navigate.Navigator
	ObjectAPIName string
}

// Controller owns all board state. Loads arrive from fetch goroutines and
// navigation from HTTP handlers; every transition runs under mu.
type Controller struct {
	mu sync.Mutex

	loc        *time.Location
	now        func() time.Time
	nav        navigate.Navigator
	object     string
	normalizer *record.Normalizer

	sets      [2]RecordSet
	errs      [2]string
	active    SetKind
	weekStart time.Time
	view      *model.CalendarView
}

// New returns a Controller showing the this-week set with nothing loaded.
func New(opts Options) *Controller {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		loc:        opts.Location,
		now:        opts.Now,
		nav:        opts.Navigator,
		object:     opts.ObjectAPIName,
		normalizer: record.NewNormalizer(opts.Location),
		sets:       [2]RecordSet{{Kind: ThisWeek}, {Kind: All}},
		active:     ThisWeek,
	}
}

// Deliver routes a fetch outcome for kind to the matching transition.
func (c *Controller) Deliver(kind SetKind, page listui.Page, err error) {
	if err != nil {
		c.LoadFailed(kind, err)
		return
	}
	switch kind {
	case ThisWeek:
		c.LoadThisWeek(page.Records)
	case All:
		c.LoadAll(page.Records)
	}
}

// LoadThisWeek replaces the this-week set. While the board shows that set it
// also returns to the current week and rebuilds; a late response therefore
// never pulls the board away from a week the user navigated to.
func (c *Controller) LoadThisWeek(raw []record.RawRecord) {
	appts := c.normalizer.NormalizeAll(raw)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.replace(ThisWeek, appts)
	if c.active != ThisWeek {
		appLog.Debug("board: this-week set refreshed while browsing", "week_start", c.weekStart.Format(time.DateOnly))
		return
	}
	c.weekStart = c.currentWeekStart()
	c.rebuild()
}

// LoadAll replaces the all set. The calendar is left alone until the next
// navigation.
func (c *Controller) LoadAll(raw []record.RawRecord) {
	appts := c.normalizer.NormalizeAll(raw)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.replace(All, appts)
}

// LoadFailed records the user-visible message for a failed fetch. Loaded sets
// and the current calendar are kept.
func (c *Controller) LoadFailed(kind SetKind, err error) {
	msg := listui.MessageOf(err)
	appLog.Error("board: record load failed", err, "set", kind.String())

	c.mu.Lock()
	defer c.mu.Unlock()

	c.errs[kind] = msg
}

// PrevWeek moves one week back and switches to the all set.
func (c *Controller) PrevWeek() { c.navigate(-week.NavigationStep) }

// NextWeek moves one week forward and switches to the all set.
func (c *Controller) NextWeek() { c.navigate(week.NavigationStep) }

func (c *Controller) navigate(delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.weekStart.IsZero() {
		c.weekStart = c.currentWeekStart()
	}
	c.weekStart = week.Shift(c.weekStart, delta)
	c.active = All
	c.rebuild()
}

// CurrentWeek returns to today's week and the this-week set.
func (c *Controller) CurrentWeek() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.active = ThisWeek
	c.weekStart = c.currentWeekStart()
	c.rebuild()
}

// Open navigates to the record page of a loaded appointment.
func (c *Controller) Open(ctx context.Context, id string) error {
	if id == "" || !c.has(id) {
		return ErrUnknownAppointment
	}
	if c.nav == nil {
		return errors.New("board: no navigator configured")
	}
	return c.nav.Navigate(ctx, navigate.Target{
		RecordID:      id,
		ObjectAPIName: c.object,
		Action:        navigate.ActionView,
	})
}

// View returns the current calendar, or nil when there is nothing to show.
func (c *Controller) View() *model.CalendarView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Err returns the latest load failure message, or "".
func (c *Controller) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errLocked()
}

// Snapshot returns a consistent copy of the board state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return State{
		Active:    c.active,
		WeekStart: c.weekStart,
		View:      c.view,
		Error:     c.errLocked(),
		Counts: map[SetKind]int{
			ThisWeek: len(c.sets[ThisWeek].Records),
			All:      len(c.sets[All].Records),
		},
	}
}

func (c *Controller) has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.sets {
		for _, a := range s.Records {
			if a.ID == id {
				return true
			}
		}
	}
	return false
}

func (c *Controller) errLocked() string {
	if c.errs[ThisWeek] != "" {
		return c.errs[ThisWeek]
	}
	return c.errs[All]
}

func (c *Controller) replace(kind SetKind, appts []model.Appointment) {
	c.sets[kind] = RecordSet{Kind: kind, Records: appts, LoadedAt: c.now()}
	c.errs[kind] = ""
	appLog.Info("board: record set loaded", "set", kind.String(), "count", len(appts))
}

func (c *Controller) currentWeekStart() time.Time {
	return week.StartOfWeek(c.now().In(c.loc))
}

// rebuild recomputes the calendar from the active set. Callers hold mu.
func (c *Controller) rebuild() {
	c.view = calendar.Build(c.weekStart, c.sets[c.active].Records)
	appLog.Debug("board: calendar rebuilt",
		"set", c.active.String(),
		"week_start", c.weekStart.Format(time.DateOnly),
		"placed", calendar.Count(c.view),
	)
}
