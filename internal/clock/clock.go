// Package clock supplies the current instant and the rolling weekly windows
// used by eligibility and metrics.
package clock

import "time"

// Week is the length of one reward and reporting cycle.
const Week = 7 * 24 * time.Hour

// Clock yields the current instant.
type Clock interface {
	Now() time.Time
}

// System is the wall clock.
type System struct{}

// Now returns time.Now in UTC.
func (System) Now() time.Time { return time.Now().UTC() }

// Fixed always returns the same instant.
type Fixed time.Time

// Now returns the fixed instant.
func (f Fixed) Now() time.Time { return time.Time(f) }

// Window is the half-open interval [Start, End). A zero End leaves the window open.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if t.Before(w.Start) {
		return false
	}
	return w.End.IsZero() || t.Before(w.End)
}

// CurrentWeek is the trailing seven days: everything at or after now-7d.
func CurrentWeek(now time.Time) Window {
	return Window{Start: now.Add(-Week)}
}

// PriorWeek is [now-14d, now-7d).
func PriorWeek(now time.Time) Window {
	return Window{Start: now.Add(-2 * Week), End: now.Add(-Week)}
}
