package model

import "time"

// DateLayout is the wire format for calendar dates
const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC of its UTC calendar day
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AddDays shifts a date by whole days
func AddDays(t time.Time, days int) time.Time {
	return Day(t).AddDate(0, 0, days)
}

// EndDateFor returns the last day of a span starting at start lasting duration days
func EndDateFor(start time.Time, duration int) time.Time {
	return AddDays(start, duration-1)
}

// SameDay compares two optional dates by calendar day
func SameDay(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return Day(*a).Equal(Day(*b))
}
