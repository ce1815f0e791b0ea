package leveling

import "time"

// startOfDay returns local midnight of t's calendar day in loc.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// civilDate maps t's calendar day in loc onto a UTC midnight, so day arithmetic
// is unaffected by DST transitions.
func civilDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// sameDay reports whether a and b fall on the same calendar day in loc.
func sameDay(a, b time.Time, loc *time.Location) bool {
	return civilDate(a, loc).Equal(civilDate(b, loc))
}

// daysBetween returns the number of calendar days from a to b in loc.
func daysBetween(a, b time.Time, loc *time.Location) int {
	return int(civilDate(b, loc).Sub(civilDate(a, loc)).Hours() / 24)
}
