package calendar

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

// transition is a UTC offset change of a location.
type transition struct {
	at       time.Time // instant of the change
	from, to int       // offsets in seconds east of UTC
	name     string    // abbreviation in effect after the change
	dst      bool
}

// transitions lists the offset changes of loc during year, in order.
func transitions(loc *time.Location, year int) []transition {
	var out []transition
	end := time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	for t := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC); t.Before(end); t = t.Add(24 * time.Hour) {
		next := t.Add(24 * time.Hour)
		_, a := t.In(loc).Zone()
		_, b := next.In(loc).Zone()
		if a == b {
			continue
		}
		lo, hi := t, next
		for hi.Sub(lo) > time.Second {
			mid := lo.Add(hi.Sub(lo) / 2)
			if _, o := mid.In(loc).Zone(); o == a {
				lo = mid
			} else {
				hi = mid
			}
		}
		at := hi.In(loc)
		name, _ := at.Zone()
		out = append(out, transition{at: hi, from: a, to: b, name: name, dst: at.IsDST()})
	}
	return out
}

// addTimezone appends a VTIMEZONE for loc, with one yearly STANDARD or
// DAYLIGHT rule per offset change seen in year. Zones without changes get a
// single STANDARD block.
func addTimezone(cal *ical.Calendar, loc *time.Location, year int) {
	vtz := cal.AddTimezone(loc.String())
	ts := transitions(loc, year)
	if len(ts) == 0 {
		ref := time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
		name, off := ref.Zone()
		std := vtz.AddStandard()
		std.SetProperty(ical.ComponentPropertyDtStart, "19700101T000000")
		std.SetProperty(ical.ComponentProperty(ical.PropertyTzoffsetfrom), formatOffset(off))
		std.SetProperty(ical.ComponentProperty(ical.PropertyTzoffsetto), formatOffset(off))
		std.SetProperty(ical.ComponentProperty(ical.PropertyTzname), name)
		return
	}
	for _, tr := range ts {
		var c *ical.ComponentBase
		if tr.dst {
			d := &ical.Daylight{}
			vtz.Components = append(vtz.Components, d)
			c = &d.ComponentBase
		} else {
			c = &vtz.AddStandard().ComponentBase
		}
		// Onset is written as wall time in the offset before the change.
		onset := tr.at.Add(time.Duration(tr.from) * time.Second).UTC()
		c.SetProperty(ical.ComponentPropertyDtStart, onset.Format(localLayout))
		c.SetProperty(ical.ComponentProperty(ical.PropertyTzoffsetfrom), formatOffset(tr.from))
		c.SetProperty(ical.ComponentProperty(ical.PropertyTzoffsetto), formatOffset(tr.to))
		c.SetProperty(ical.ComponentProperty(ical.PropertyTzname), tr.name)
		c.SetProperty(ical.ComponentPropertyRrule, yearlyRule(onset))
	}
}

// yearlyRule expresses the day of onset as "nth weekday of the month", using
// -1 for the last one, e.g. FREQ=YEARLY;BYMONTH=3;BYDAY=2SU.
func yearlyRule(onset time.Time) string {
	nth := (onset.Day()-1)/7 + 1
	if onset.AddDate(0, 0, 7).Month() != onset.Month() {
		nth = -1
	}
	day := strings.ToUpper(onset.Weekday().String()[:2])
	return fmt.Sprintf("FREQ=YEARLY;BYMONTH=%d;BYDAY=%d%s", int(onset.Month()), nth, day)
}

// formatOffset renders seconds east of UTC as ±HHMM.
func formatOffset(sec int) string {
	sign := '+'
	if sec < 0 {
		sign, sec = '-', -sec
	}
	return fmt.Sprintf("%c%02d%02d", sign, sec/3600, sec%3600/60)
}
