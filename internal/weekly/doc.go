// Package weekly resolves and drives recurring weekly events.
//
// An Event is an immutable rule (one or more weekdays, an hour, a minute and a
// location). Next computes the next qualifying instant strictly after a given
// moment; Scheduler waits for that instant, invokes an action and optionally
// loops until its context is cancelled.
//
// Weekdays are numbered Monday=0 .. Sunday=6.
package weekly
