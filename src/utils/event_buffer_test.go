package utils

import (
	"testing"

	"trading-core/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendN(eb *EventBuffer, from, to uint64) {
	for seq := from; seq <= to; seq++ {
		eb.Append(models.MMarketEvent{Sequence: seq, Symbol: "AAPL", Kind: models.EventKindQuote})
	}
}

func TestEventBufferSince(t *testing.T) {
	eb := NewEventBuffer(10)
	appendN(eb, 1, 5)

	events, err := eb.Since(2)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, uint64(3), events[0].Sequence)
	assert.Equal(t, uint64(5), events[2].Sequence)
}

func TestEventBufferSinceAtLatest(t *testing.T) {
	eb := NewEventBuffer(10)
	appendN(eb, 1, 5)

	events, err := eb.Since(5)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEventBufferWrapAround(t *testing.T) {
	eb := NewEventBuffer(3)
	appendN(eb, 1, 7)

	assert.Equal(t, 3, eb.Size())
	assert.Equal(t, uint64(7), eb.Latest())

	// 5, 6, 7 retained; resuming from 4 replays all three in order.
	events, err := eb.Since(4)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, uint64(5), events[0].Sequence)
	assert.Equal(t, uint64(7), events[2].Sequence)
}

func TestEventBufferStaleCursorRequiresResync(t *testing.T) {
	eb := NewEventBuffer(3)
	appendN(eb, 1, 7)

	// Events 2..4 are gone; a cursor of 1 cannot be honored.
	_, err := eb.Since(1)
	assert.ErrorIs(t, err, models.ErrResyncRequired)

	// Cursor 4 is the exact boundary: everything after it is retained.
	events, err := eb.Since(4)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestEventBufferEmpty(t *testing.T) {
	eb := NewEventBuffer(4)

	events, err := eb.Since(0)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, uint64(0), eb.Latest())
}
