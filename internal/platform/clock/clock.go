// Package clock contains time related helpers used across the engine:
// pointer conveniences, civil time-of-day resolution, and a small seam for
// swapping "now" in tests.
package clock

import "time"

// Ptr returns a pointer to t or nil if t is zero
func Ptr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Source abstracts wall-clock and monotonic reads so schedulers and
// calibrators can be driven by a fake in tests (see testkit.Swap)
type Source struct {
	Now   func() time.Time
	Sleep func(time.Duration)
}

// Real returns a Source backed by the standard library
func Real() Source {
	return Source{Now: time.Now, Sleep: time.Sleep}
}

// NextOccurrence resolves a civil time-of-day (hh:mm:ss) in loc to the next
// instant >= now. If the time-of-day for "today" (in loc) has already
// passed, it rolls forward to tomorrow (B3: a target time in the past
// resolves to the next day).
func NextOccurrence(loc *time.Location, hh, mm, ss int, now time.Time) time.Time {
	local := now.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), hh, mm, ss, 0, loc)
	if candidate.Before(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}
