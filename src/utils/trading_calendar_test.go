package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalendarWeekend(t *testing.T) {
	cal := GetCalendar("xnys")
	loc := cal.Location()

	saturday := time.Date(2025, 6, 7, 12, 0, 0, 0, loc)
	sunday := time.Date(2025, 6, 8, 12, 0, 0, 0, loc)
	monday := time.Date(2025, 6, 9, 12, 0, 0, 0, loc)

	assert.False(t, cal.IsBusinessDay(saturday))
	assert.False(t, cal.IsBusinessDay(sunday))
	assert.True(t, cal.IsBusinessDay(monday))
}

func TestCalendarUnknownMICFallsBack(t *testing.T) {
	cal := GetCalendar("nope")
	require.NotNil(t, cal)

	// Whatever it fell back to must still answer business-day questions.
	wednesday := time.Date(2025, 6, 11, 12, 0, 0, 0, cal.Location())
	assert.True(t, cal.IsBusinessDay(wednesday))
}

func TestPreviousBusinessDaysSpansWeekend(t *testing.T) {
	cal := GetCalendar("xnys")
	loc := cal.Location()

	// Monday 2025-06-09: the previous 3 business days are Mon, Fri, Thu.
	monday := time.Date(2025, 6, 9, 15, 0, 0, 0, loc)
	days := cal.PreviousBusinessDays(monday, 3)

	require.Len(t, days, 3)
	assert.Equal(t, "2025-06-09", days[0].Format("2006-01-02"))
	assert.Equal(t, "2025-06-06", days[1].Format("2006-01-02"))
	assert.Equal(t, "2025-06-05", days[2].Format("2006-01-02"))
}

func TestPreviousBusinessDaysNewestFirst(t *testing.T) {
	cal := GetCalendar("xnys")
	days := cal.PreviousBusinessDays(time.Date(2025, 6, 13, 9, 0, 0, 0, cal.Location()), 5)

	require.Len(t, days, 5)
	for i := 1; i < len(days); i++ {
		assert.True(t, days[i].Before(days[i-1]), "days must be newest first")
	}
}
