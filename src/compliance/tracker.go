package compliance

import (
	"sort"
	"sync"
	"time"

	"trading-core/src/interfaces"
	"trading-core/src/logger"
	"trading-core/src/models"
	"trading-core/src/utils"
)

// -----------------------------------------------------------------------------
// Tracker answers "how many day trades has this account made in the last N
// business days, and is it at risk of being flagged?"
//
// Read-only advisory: it never blocks an order. Queries compute a snapshot
// over the fills recorded so far; the window boundary is recomputed on every
// query since it shifts daily.
// -----------------------------------------------------------------------------

const flagRatio = 0.06

type Tracker struct {
	Config   models.MComplianceConfig
	Calendar interfaces.ITradingCalendar
	Clock    utils.Clock
	Logger   *logger.Logger

	mu    sync.RWMutex
	fills []models.MFill
}

// -----------------------------------------------------------------------------

func NewTracker(cfg models.MComplianceConfig, cal interfaces.ITradingCalendar, clock utils.Clock, log *logger.Logger) *Tracker {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &Tracker{
		Config:   cfg,
		Calendar: cal,
		Clock:    clock,
		Logger:   log,
	}
}

// -----------------------------------------------------------------------------

// Bootstrap loads the persisted fill log so restarts keep the window intact.
func (t *Tracker) Bootstrap(store interfaces.IOrderStore) error {
	// Read back far enough to cover any plausible window of business days.
	since := t.Clock.Now().AddDate(0, 0, -t.Config.WindowDays*4).Unix()
	fills, err := store.FillsSince(since)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.fills = fills
	t.mu.Unlock()

	t.Logger.Info("Compliance tracker bootstrapped with %d fills", len(fills))
	return nil
}

// -----------------------------------------------------------------------------

// Record appends one executed fill. Implements execution.FillSink.
func (t *Tracker) Record(fill models.MFill) {
	t.mu.Lock()
	t.fills = append(t.fills, fill)
	t.mu.Unlock()
}

// -----------------------------------------------------------------------------

// Status computes the rolling-window compliance snapshot as of "now".
func (t *Tracker) Status() models.MComplianceStatus {
	now := t.Clock.Now()
	days := t.Calendar.PreviousBusinessDays(now, t.Config.WindowDays)

	status := models.MComplianceStatus{
		TradesRemaining: t.Config.FlagThreshold,
		Exempt:          t.Config.AccountType == "cash",
	}
	if len(days) == 0 {
		return status
	}

	// days is newest-first; the window spans [oldest, now].
	windowStart := days[len(days)-1]
	status.WindowStart = windowStart.Format("2006-01-02")
	status.WindowEnd = days[0].Format("2006-01-02")

	inWindow := t.fillsInWindow(windowStart, now)
	status.TotalTrades = len(inWindow)

	records := matchDayTrades(inWindow, t.Calendar.Location())
	status.DayTradeCount = len(records)

	remaining := t.Config.FlagThreshold - status.DayTradeCount
	if remaining < 0 {
		remaining = 0
	}
	status.TradesRemaining = remaining

	// Cash accounts are exempt from the flag entirely (bypassed, not merely
	// satisfied) but still carry the settlement-funds constraint.
	if status.Exempt {
		status.UnsettledFunds = t.unsettledFunds(inWindow, now)
		return status
	}

	if status.DayTradeCount >= t.Config.FlagThreshold && status.TotalTrades > 0 {
		ratio := float64(status.DayTradeCount) / float64(status.TotalTrades)
		status.Flagged = ratio > flagRatio
	}

	return status
}

// -----------------------------------------------------------------------------

func (t *Tracker) fillsInWindow(start time.Time, now time.Time) []models.MFill {
	t.mu.RLock()
	defer t.mu.RUnlock()

	startUnix := start.Unix()
	nowUnix := now.Unix()

	var out []models.MFill
	for _, f := range t.fills {
		if f.Timestamp >= startUnix && f.Timestamp <= nowUnix {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// -----------------------------------------------------------------------------

// unsettledFunds sums closing-side proceeds that have not had a full business
// day to settle yet. A hook for outer policy layers; not a blocking check.
func (t *Tracker) unsettledFunds(fills []models.MFill, now time.Time) float64 {
	settled := t.Calendar.PreviousBusinessDays(now, 2)
	if len(settled) == 0 {
		return 0
	}
	cutoff := settled[len(settled)-1].Unix()

	var sum float64
	for _, f := range fills {
		if f.IsClosing() && f.Timestamp >= cutoff {
			sum += f.Price * f.Quantity
		}
	}
	return sum
}

// -----------------------------------------------------------------------------
// Day-trade matching
// -----------------------------------------------------------------------------

// matchDayTrades pairs opening fills with the next closing fill for the same
// symbol on the same calendar day (FIFO). Legs of a composite order opened
// and closed atomically collapse into one day trade; legs closed via
// separate transactions on the same day each count independently.
func matchDayTrades(fills []models.MFill, loc *time.Location) []models.MDayTradeRecord {
	type bucket struct {
		opens []models.MFill
	}

	buckets := make(map[string]*bucket)
	var records []models.MDayTradeRecord
	atomicPairs := make(map[string]struct{})

	for _, f := range fills {
		day := time.Unix(f.Timestamp, 0).In(loc).Format("2006-01-02")
		key := f.Symbol + "|" + day

		b := buckets[key]
		if b == nil {
			b = &bucket{}
			buckets[key] = b
		}

		switch {
		case f.IsOpening():
			b.opens = append(b.opens, f)

		case f.IsClosing():
			if len(b.opens) == 0 {
				continue // closes a position opened outside this day: not a day trade
			}
			open := b.opens[0]
			b.opens = b.opens[1:]

			// Atomic composite: all legs share one opening and one closing
			// order, so the pair of order ids counts once.
			if open.Atomic && f.Atomic {
				pairKey := open.BrokerOrderID + "|" + f.BrokerOrderID + "|" + day
				if _, dup := atomicPairs[pairKey]; dup {
					continue
				}
				atomicPairs[pairKey] = struct{}{}
			}

			records = append(records, models.MDayTradeRecord{
				Symbol:    f.Symbol,
				Day:       day,
				OpenFill:  open.FillID,
				CloseFill: f.FillID,
			})
		}
	}

	return records
}
