package execution

import (
	"context"
	"sync"
	"testing"
	"time"

	"trading-core/src/logger"
	"trading-core/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fillBroker serves a scripted fill log.
type fillBroker struct {
	fakeBroker
	mu    sync.Mutex
	fills []models.MFill
}

func (b *fillBroker) GetFills(ctx context.Context, since int64) ([]models.MFill, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.MFill
	for _, f := range b.fills {
		if f.Timestamp >= since {
			out = append(out, f)
		}
	}
	return out, nil
}

// recordingSink collects fills routed to compliance.
type recordingSink struct {
	mu    sync.Mutex
	fills []models.MFill
}

func (s *recordingSink) Record(fill models.MFill) {
	s.mu.Lock()
	s.fills = append(s.fills, fill)
	s.mu.Unlock()
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fills)
}

// -----------------------------------------------------------------------------

func TestFillPumpRoutesFills(t *testing.T) {
	broker := &fillBroker{fills: []models.MFill{
		{FillID: "fill-1", Symbol: "AAPL", Side: models.SideBuyToOpen, Quantity: 1, Price: 100, Timestamp: 1000},
		{FillID: "fill-2", Symbol: "MSFT", Side: models.SideSellToOpen, Quantity: 2, Price: 200, Timestamp: 1001},
	}}
	store := newMemStore()
	sink := &recordingSink{}
	pump := NewFillPump(broker, store, sink, nil, nil, time.Second, logger.NewLogger("ERROR", "pump-test"))

	require.NoError(t, pump.Poll(context.Background()))

	assert.Equal(t, 2, sink.count())
	persisted, err := store.FillsSince(0)
	require.NoError(t, err)
	assert.Len(t, persisted, 2)
}

func TestFillPumpDeduplicatesAcrossPolls(t *testing.T) {
	broker := &fillBroker{fills: []models.MFill{
		{FillID: "fill-1", Symbol: "AAPL", Side: models.SideBuyToOpen, Quantity: 1, Price: 100, Timestamp: 1000},
	}}
	store := newMemStore()
	sink := &recordingSink{}
	pump := NewFillPump(broker, store, sink, nil, nil, time.Second, logger.NewLogger("ERROR", "pump-test"))

	require.NoError(t, pump.Poll(context.Background()))
	// The since-cursor is inclusive: the same fill comes back on the next
	// poll and must be dropped by id.
	require.NoError(t, pump.Poll(context.Background()))

	assert.Equal(t, 1, sink.count())

	// A genuinely new fill still gets through.
	broker.mu.Lock()
	broker.fills = append(broker.fills, models.MFill{
		FillID: "fill-2", Symbol: "AAPL", Side: models.SideSellToClose, Quantity: 1, Price: 101, Timestamp: 1002,
	})
	broker.mu.Unlock()

	require.NoError(t, pump.Poll(context.Background()))
	assert.Equal(t, 2, sink.count())
}
