package interfaces

import "time"

// -----------------------------------------------------------------------------
// ITradingCalendar answers business-day questions for the compliance window.
// -----------------------------------------------------------------------------

type ITradingCalendar interface {

	// IsBusinessDay reports whether the market trades on the given date.
	IsBusinessDay(date time.Time) bool

	// -----------------------------------------------------------------------------

	// Location is the calendar's exchange timezone; calendar-day matching for
	// day trades happens in this location.
	Location() *time.Location

	// -----------------------------------------------------------------------------

	// PreviousBusinessDays walks backward from "from" (inclusive) collecting
	// the most recent n business days, newest first.
	PreviousBusinessDays(from time.Time, n int) []time.Time
}
