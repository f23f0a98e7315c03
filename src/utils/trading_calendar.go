package utils

import (
	"log"
	"time"

	"github.com/scmhub/calendar"
)

// TradingCalendar answers business-day questions using scmhub/calendar.
type TradingCalendar struct {
	Calendar *calendar.Calendar
	Fallback bool
	Timezone *time.Location
}

// -----------------------------------------------------------------------------

// GetCalendar loads the exchange calendar for a MIC code (ISO 10383).
// See scmhub/calendar for supported MICs.
func GetCalendar(mic string) *TradingCalendar {
	cal := calendar.GetCalendar(mic)
	if cal == nil {
		// Fallback to xnys if not found
		cal = calendar.GetCalendar("xnys")
	}

	if cal == nil {
		log.Printf("WARNING: Failed to load calendar for MIC '%s' and fallback 'xnys'. Using simple fallback (Mon-Fri).", mic)
		// Try load NY location for fallback
		nyLoc, _ := time.LoadLocation("America/New_York")
		if nyLoc == nil {
			nyLoc = time.UTC // Worst case
		}
		return &TradingCalendar{Fallback: true, Timezone: nyLoc}
	}

	return &TradingCalendar{Calendar: cal, Fallback: false, Timezone: cal.Loc}
}

// -----------------------------------------------------------------------------

// IsBusinessDay reports whether the market trades on the given date
// (weekends and published holidays excluded).
func (tc *TradingCalendar) IsBusinessDay(date time.Time) bool {
	// Normalize to timezone if available
	if tc.Timezone != nil {
		date = date.In(tc.Timezone)
	}

	if tc.Fallback {
		// Simple fallback: Mon-Fri
		weekday := date.Weekday()
		return weekday != time.Saturday && weekday != time.Sunday
	}
	// Library handles IsHoliday / IsBusinessDay
	return tc.Calendar.IsBusinessDay(date)
}

// -----------------------------------------------------------------------------

// Location is the exchange timezone used for calendar-day matching.
func (tc *TradingCalendar) Location() *time.Location {
	if tc.Timezone != nil {
		return tc.Timezone
	}
	return time.UTC
}

// -----------------------------------------------------------------------------

// PreviousBusinessDays walks backward from "from" (inclusive) collecting the
// most recent n business days, newest first.
func (tc *TradingCalendar) PreviousBusinessDays(from time.Time, n int) []time.Time {
	days := make([]time.Time, 0, n)
	d := from.In(tc.Location())
	d = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, tc.Location())

	// Hard bound: a 5-day window never spans more than a few weeks of
	// holidays; 10x is plenty.
	for guard := 0; len(days) < n && guard < n*10+30; guard++ {
		if tc.IsBusinessDay(d) {
			days = append(days, d)
		}
		d = d.AddDate(0, 0, -1)
	}
	return days
}
