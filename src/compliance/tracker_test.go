package compliance

import (
	"fmt"
	"testing"
	"time"

	"trading-core/src/logger"
	"trading-core/src/models"
	"trading-core/src/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// fixedClock pins "now" for deterministic window computation.
type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time                         { return c.now }
func (c fixedClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Mon-Fri calendar in UTC keeps the expectations hand-checkable.
func testCalendar() *utils.TradingCalendar {
	return &utils.TradingCalendar{Fallback: true, Timezone: time.UTC}
}

func newTestTracker(accountType string, now time.Time) *Tracker {
	cfg := models.MComplianceConfig{
		CalendarMIC:   "test",
		AccountType:   accountType,
		WindowDays:    5,
		FlagThreshold: 4,
	}
	return NewTracker(cfg, testCalendar(), fixedClock{now: now}, logger.NewLogger("ERROR", "compliance-test"))
}

var fillSeq int

func fill(symbol, side string, at time.Time) models.MFill {
	fillSeq++
	return models.MFill{
		FillID:        fmt.Sprintf("fill-%d", fillSeq),
		BrokerOrderID: fmt.Sprintf("ord-%d", fillSeq),
		Symbol:        symbol,
		Side:          side,
		Quantity:      10,
		Price:         100,
		Timestamp:     at.Unix(),
	}
}

// roundTrip records an open and a close for the symbol at the given times.
func roundTrip(tr *Tracker, symbol string, openAt, closeAt time.Time) {
	tr.Record(fill(symbol, models.SideBuyToOpen, openAt))
	tr.Record(fill(symbol, models.SideSellToClose, closeAt))
}

// Tuesday 2025-06-10: the 5-day window reaches back to Wednesday 2025-06-04.
var (
	tuesday = time.Date(2025, 6, 10, 16, 0, 0, 0, time.UTC)
	monday  = time.Date(2025, 6, 9, 10, 0, 0, 0, time.UTC)
	friday  = time.Date(2025, 6, 6, 10, 0, 0, 0, time.UTC)
)

// -----------------------------------------------------------------------------
// Tests
// -----------------------------------------------------------------------------

func TestDayTradeFIFOMatching(t *testing.T) {
	tr := newTestTracker("margin", tuesday)

	// Two opens then two closes, all same symbol same day: FIFO pairs them
	// into exactly two day trades.
	tr.Record(fill("AAPL", models.SideBuyToOpen, monday))
	tr.Record(fill("AAPL", models.SideBuyToOpen, monday.Add(30*time.Minute)))
	tr.Record(fill("AAPL", models.SideSellToClose, monday.Add(time.Hour)))
	tr.Record(fill("AAPL", models.SideSellToClose, monday.Add(90*time.Minute)))

	status := tr.Status()
	assert.Equal(t, 2, status.DayTradeCount)
	assert.Equal(t, 4, status.TotalTrades)
	assert.Equal(t, 2, status.TradesRemaining)
}

func TestOvernightPositionIsNotADayTrade(t *testing.T) {
	tr := newTestTracker("margin", tuesday)

	// Opened Friday, closed Monday: different calendar days.
	roundTrip(tr, "AAPL", friday, monday)

	status := tr.Status()
	assert.Equal(t, 0, status.DayTradeCount)
	assert.Equal(t, 2, status.TotalTrades)
}

func TestCloseWithoutSameDayOpenIgnored(t *testing.T) {
	tr := newTestTracker("margin", tuesday)

	tr.Record(fill("AAPL", models.SideSellToClose, monday))

	status := tr.Status()
	assert.Equal(t, 0, status.DayTradeCount)
}

func TestWindowBoundary(t *testing.T) {
	tr := newTestTracker("margin", tuesday)

	// Window is [2025-06-04, 2025-06-10]. A day trade on 06-03 is outside;
	// one on 06-04 is the oldest still counted.
	outside := time.Date(2025, 6, 3, 14, 0, 0, 0, time.UTC)
	boundary := time.Date(2025, 6, 4, 14, 0, 0, 0, time.UTC)
	roundTrip(tr, "AAPL", outside, outside.Add(time.Hour))
	roundTrip(tr, "MSFT", boundary, boundary.Add(time.Hour))

	status := tr.Status()
	assert.Equal(t, "2025-06-04", status.WindowStart)
	assert.Equal(t, "2025-06-10", status.WindowEnd)
	assert.Equal(t, 1, status.DayTradeCount)
	assert.Equal(t, 2, status.TotalTrades)
}

func TestFlagThreshold(t *testing.T) {
	tr := newTestTracker("margin", tuesday)

	// Three day trades: under the threshold of four.
	for i := 0; i < 3; i++ {
		open := monday.Add(time.Duration(i) * time.Hour)
		roundTrip(tr, "AAPL", open, open.Add(30*time.Minute))
	}
	status := tr.Status()
	assert.False(t, status.Flagged)
	assert.Equal(t, 1, status.TradesRemaining)

	// The fourth trips the flag (4 of 8 executions is far past the ratio).
	roundTrip(tr, "AAPL", monday.Add(4*time.Hour), monday.Add(5*time.Hour))
	status = tr.Status()
	assert.True(t, status.Flagged)
	assert.Equal(t, 4, status.DayTradeCount)
	assert.Equal(t, 0, status.TradesRemaining)
}

func TestFlagRequiresRatio(t *testing.T) {
	tr := newTestTracker("margin", tuesday)

	// Four day trades buried in heavy non-day-trade volume: 4/100 executions
	// is below the activity ratio, so no flag.
	for i := 0; i < 4; i++ {
		open := monday.Add(time.Duration(i) * time.Hour)
		roundTrip(tr, "AAPL", open, open.Add(30*time.Minute))
	}
	for i := 0; i < 92; i++ {
		tr.Record(fill("MSFT", models.SideBuyToOpen, friday.Add(time.Duration(i)*time.Minute)))
	}

	status := tr.Status()
	assert.Equal(t, 4, status.DayTradeCount)
	assert.Equal(t, 100, status.TotalTrades)
	assert.False(t, status.Flagged)
}

func TestCashAccountExempt(t *testing.T) {
	tr := newTestTracker("cash", tuesday)

	for i := 0; i < 6; i++ {
		open := monday.Add(time.Duration(i) * time.Hour)
		roundTrip(tr, "AAPL", open, open.Add(30*time.Minute))
	}

	status := tr.Status()
	assert.True(t, status.Exempt)
	assert.False(t, status.Flagged, "cash accounts bypass the flag entirely")
	assert.Equal(t, 6, status.DayTradeCount, "the count is still reported")
	assert.Greater(t, status.UnsettledFunds, 0.0, "recent closing proceeds are unsettled")
}

func TestAtomicCompositeCountsOnce(t *testing.T) {
	tr := newTestTracker("margin", tuesday)

	// A two-leg order opened and closed atomically: all open legs share one
	// brokerage order id, all close legs another.
	openLegA := fill("AAPL", models.SideBuyToOpen, monday)
	openLegB := fill("MSFT", models.SideBuyToOpen, monday)
	openLegA.BrokerOrderID, openLegB.BrokerOrderID = "open-1", "open-1"
	openLegA.Atomic, openLegB.Atomic = true, true

	closeLegA := fill("AAPL", models.SideSellToClose, monday.Add(time.Hour))
	closeLegB := fill("MSFT", models.SideSellToClose, monday.Add(time.Hour))
	closeLegA.BrokerOrderID, closeLegB.BrokerOrderID = "close-1", "close-1"
	closeLegA.Atomic, closeLegB.Atomic = true, true

	for _, f := range []models.MFill{openLegA, openLegB, closeLegA, closeLegB} {
		tr.Record(f)
	}

	status := tr.Status()
	assert.Equal(t, 1, status.DayTradeCount, "one atomic round trip is one day trade")
}

func TestSeparateClosesCountIndependently(t *testing.T) {
	tr := newTestTracker("margin", tuesday)

	// Same symbol, same day, but two independent transactions: two day trades.
	roundTrip(tr, "AAPL", monday, monday.Add(30*time.Minute))
	roundTrip(tr, "AAPL", monday.Add(time.Hour), monday.Add(90*time.Minute))

	status := tr.Status()
	assert.Equal(t, 2, status.DayTradeCount)
}

func TestBootstrapLoadsPersistedFills(t *testing.T) {
	tr := newTestTracker("margin", tuesday)

	store := &stubFillStore{fills: []models.MFill{
		fill("AAPL", models.SideBuyToOpen, monday),
		fill("AAPL", models.SideSellToClose, monday.Add(time.Hour)),
	}}
	require.NoError(t, tr.Bootstrap(store))

	status := tr.Status()
	assert.Equal(t, 1, status.DayTradeCount)
}

// stubFillStore satisfies just enough of IOrderStore for Bootstrap.
type stubFillStore struct{ fills []models.MFill }

func (s *stubFillStore) Initialize() error                                              { return nil }
func (s *stubFillStore) Close() error                                                   { return nil }
func (s *stubFillStore) SaveResult(result models.MOrderResult, ttl time.Duration) error { return nil }
func (s *stubFillStore) GetResult(key string) (models.MOrderResult, bool, error) {
	return models.MOrderResult{}, false, nil
}
func (s *stubFillStore) AppendFill(fill models.MFill) error { return nil }
func (s *stubFillStore) FillsSince(since int64) ([]models.MFill, error) {
	return s.fills, nil
}
func (s *stubFillStore) PurgeExpired(now time.Time) (int, error) { return 0, nil }
