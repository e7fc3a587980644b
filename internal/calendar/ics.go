// Package calendar exports weekly events as an iCalendar feed so they can be
// subscribed to from a calendar app.
package calendar

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"weeklybot/internal/weekly"
)

const (
	productID   = "-//weeklybot//weekly reminders//EN"
	localLayout = "20060102T150405"
)

// Entry is one event to export.
type Entry struct {
	Name        string
	Description string
	Event       weekly.Event
}

// RRule returns the weekly recurrence rule of ev, e.g. "FREQ=WEEKLY;BYDAY=MO,WE".
func RRule(ev weekly.Event) string {
	days := ev.Days().Weekdays()
	codes := make([]string, 0, len(days))
	for _, d := range days {
		codes = append(codes, strings.ToUpper(d.String()[:2]))
	}
	return "FREQ=WEEKLY;BYDAY=" + strings.Join(codes, ",")
}

// Export renders entries as a VCALENDAR. Each series starts at the first
// occurrence after from and lasts duration per occurrence. Every TZID used
// is defined by a VTIMEZONE component.
func Export(entries []Entry, from time.Time, duration time.Duration) (string, error) {
	if duration <= 0 {
		return "", fmt.Errorf("duration must be > 0")
	}
	starts := make([]time.Time, len(entries))
	for i, e := range entries {
		start, err := weekly.Next(e.Event, from)
		if err != nil {
			return "", fmt.Errorf("event %s: %w", e.Name, err)
		}
		starts[i] = start
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	seen := map[string]bool{}
	for i, e := range entries {
		loc := e.Event.Location()
		if seen[loc.String()] {
			continue
		}
		seen[loc.String()] = true
		// Rules start the year before so they cover the first DTSTART.
		addTimezone(cal, loc, starts[i].Year()-1)
	}

	for i, e := range entries {
		start := starts[i]
		tz := &ical.KeyValues{Key: "TZID", Value: []string{e.Event.Location().String()}}

		ve := cal.AddEvent(uid(e.Name))
		ve.SetDtStampTime(from.UTC())
		ve.SetSummary(e.Name)
		if e.Description != "" {
			ve.SetDescription(e.Description)
		}
		ve.SetProperty(ical.ComponentPropertyDtStart, start.Format(localLayout), tz)
		ve.SetProperty(ical.ComponentPropertyDtEnd, start.Add(duration).Format(localLayout), tz)
		ve.AddProperty(ical.ComponentPropertyRrule, RRule(e.Event))
	}
	return cal.Serialize(), nil
}

func uid(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-") + "@weeklybot"
}
