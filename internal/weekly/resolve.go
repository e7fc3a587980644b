package weekly

import (
	"fmt"
	"slices"
	"time"
)

// Next returns the first occurrence of ev strictly after now. The result is
// expressed in the event's location.
func Next(ev Event, now time.Time) (time.Time, error) {
	if err := ev.validate(); err != nil {
		return time.Time{}, err
	}
	now = now.In(ev.loc)
	today := WeekdayOf(now)

	day := selectDay(ev.days, today)
	at := ev.on(now, circularDistance(today, day))
	if at.After(now) {
		return at, nil
	}

	// The candidate is today and its time has already passed.
	at = ev.on(now, recoveryOffset(ev.days, today, day))
	if !at.After(now) {
		return time.Time{}, fmt.Errorf("%w: event %s, now %s, got %s",
			ErrResolverInvariant, ev, now.Format(time.RFC3339), at.Format(time.RFC3339))
	}
	return at, nil
}

// Upcoming returns the next n occurrences after from, each resolved from the
// previous one.
func Upcoming(ev Event, from time.Time, n int) ([]time.Time, error) {
	out := make([]time.Time, 0, max(n, 0))
	cur := from
	for i := 0; i < n; i++ {
		at, err := Next(ev, cur)
		if err != nil {
			return nil, err
		}
		out = append(out, at)
		cur = at
	}
	return out, nil
}

// on returns the date of now shifted by offset days at the event's time of day.
func (e Event) on(now time.Time, offset int) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+offset, e.hour, e.minute, 0, 0, e.loc)
}

// selectDay picks the candidate weekday for today.
//
// For a set, today is merged into the sorted days and the entry following it
// is taken (wrapping), so today itself is only chosen when it is the only day.
func selectDay(days Days, today Weekday) Weekday {
	switch days.kind {
	case DaysSingle:
		return days.single
	default:
		return after(withDay(days.set, today), today)
	}
}

// recoveryOffset is the day offset to use once the candidate has passed.
func recoveryOffset(days Days, today, candidate Weekday) int {
	switch days.kind {
	case DaysSingle:
		return daysPerWeek
	default:
		next := after(withDay(days.set, today), candidate)
		if off := circularDistance(today, next); off > 0 {
			return off
		}
		return daysPerWeek
	}
}

// withDay returns a sorted copy of set that also contains d.
func withDay(set []Weekday, d Weekday) []Weekday {
	union := slices.Clone(set)
	if _, found := slices.BinarySearch(union, d); !found {
		union = append(union, d)
		slices.Sort(union)
	}
	return union
}

// after returns the entry following d in sorted, wrapping to the first.
// d must be present.
func after(sorted []Weekday, d Weekday) Weekday {
	i, _ := slices.BinarySearch(sorted, d)
	return sorted[(i+1)%len(sorted)]
}

// circularDistance counts forward steps from one weekday to another,
// wrapping Sunday to Monday. The result is in 0..6.
func circularDistance(from, to Weekday) int {
	n := 0
	for d := from; d != to; d = (d + 1) % daysPerWeek {
		n++
	}
	return n
}
