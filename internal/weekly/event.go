package weekly

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Weekday is a day of the week with Monday=0 .. Sunday=6.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

const daysPerWeek = 7

func (d Weekday) Valid() bool { return d >= Monday && d <= Sunday }

// Std converts to the Sunday-based time.Weekday.
func (d Weekday) Std() time.Weekday { return time.Weekday((int(d) + 1) % daysPerWeek) }

func (d Weekday) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Weekday(%d)", int(d))
	}
	return d.Std().String()
}

// WeekdayOf returns the Monday-based weekday of t in t's own location.
func WeekdayOf(t time.Time) Weekday {
	return Weekday((int(t.Weekday()) + daysPerWeek - 1) % daysPerWeek)
}

// DaysKind tags which variant a Days value holds.
type DaysKind int

const (
	DaysSingle DaysKind = iota + 1
	DaysMultiple
)

// Days is either a single weekday or a set of weekdays.
// Construct it with Single or Multiple; the zero value holds no days.
type Days struct {
	kind   DaysKind
	single Weekday
	set    []Weekday // sorted ascending, no duplicates
}

func Single(d Weekday) Days { return Days{kind: DaysSingle, single: d} }

// Multiple returns a set variant. Duplicates are dropped and the set is kept
// in ascending calendar order.
func Multiple(ds ...Weekday) Days {
	set := slices.Clone(ds)
	slices.Sort(set)
	return Days{kind: DaysMultiple, set: slices.Compact(set)}
}

func (d Days) Kind() DaysKind { return d.kind }

// Weekdays returns a copy of the days in ascending order.
func (d Days) Weekdays() []Weekday {
	switch d.kind {
	case DaysSingle:
		return []Weekday{d.single}
	case DaysMultiple:
		return slices.Clone(d.set)
	default:
		return nil
	}
}

func (d Days) String() string {
	ws := d.Weekdays()
	names := make([]string, 0, len(ws))
	for _, w := range ws {
		names = append(names, w.String()[:3])
	}
	return strings.Join(names, ",")
}

func (d Days) validate() error {
	switch d.kind {
	case DaysSingle:
		if !d.single.Valid() {
			return invalid("days", int(d.single), "weekday must be 0..6 (Monday=0)")
		}
	case DaysMultiple:
		if len(d.set) == 0 {
			return invalid("days", nil, "at least one weekday is required")
		}
		for _, w := range d.set {
			if !w.Valid() {
				return invalid("days", int(w), "weekday must be 0..6 (Monday=0)")
			}
		}
	default:
		return invalid("days", nil, "at least one weekday is required")
	}
	return nil
}

// Event is an immutable weekly recurrence rule.
type Event struct {
	days   Days
	hour   int
	minute int
	loc    *time.Location
}

// NewEvent validates and builds an Event. Errors wrap ErrInvalidConfig.
func NewEvent(days Days, hour, minute int, loc *time.Location) (Event, error) {
	ev := Event{days: days, hour: hour, minute: minute, loc: loc}
	if err := ev.validate(); err != nil {
		return Event{}, err
	}
	// Detach from the caller's backing array.
	ev.days.set = slices.Clone(days.set)
	return ev, nil
}

// ParseEvent builds an Event from plain configuration values. A single-entry
// list yields the Single variant.
func ParseEvent(days []int, hour, minute int, tz string) (Event, error) {
	if len(days) == 0 {
		return Event{}, invalid("days", nil, "at least one weekday is required")
	}
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return Event{}, invalid("timezone", nil, "timezone is required")
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Event{}, invalid("timezone", tz, err.Error())
	}

	ws := make([]Weekday, 0, len(days))
	for _, d := range days {
		ws = append(ws, Weekday(d))
	}
	var dd Days
	if len(ws) == 1 {
		dd = Single(ws[0])
	} else {
		dd = Multiple(ws...)
	}
	return NewEvent(dd, hour, minute, loc)
}

func (e Event) validate() error {
	if err := e.days.validate(); err != nil {
		return err
	}
	if e.hour < 0 || e.hour > 23 {
		return invalid("hour", e.hour, "must be 0..23")
	}
	if e.minute < 0 || e.minute > 59 {
		return invalid("minute", e.minute, "must be 0..59")
	}
	if e.loc == nil {
		return invalid("timezone", nil, "location is required")
	}
	return nil
}

func (e Event) Days() Days               { return Days{kind: e.days.kind, single: e.days.single, set: slices.Clone(e.days.set)} }
func (e Event) Hour() int                { return e.hour }
func (e Event) Minute() int              { return e.minute }
func (e Event) Location() *time.Location { return e.loc }

// Now returns the current time in the event's location.
func (e Event) Now() time.Time {
	if e.loc == nil {
		return time.Now()
	}
	return time.Now().In(e.loc)
}

func (e Event) String() string {
	tz := "<nil>"
	if e.loc != nil {
		tz = e.loc.String()
	}
	return fmt.Sprintf("%s %02d:%02d %s", e.days, e.hour, e.minute, tz)
}
