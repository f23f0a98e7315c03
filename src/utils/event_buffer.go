package utils

import (
	"trading-core/src/models"
)

// -----------------------------------------------------------------------------
// EventBuffer is a fixed-size circular replay buffer for market events.
// True ring buffer - no resizing allowed! Sequence ids must be appended in
// increasing order; the buffer retains the most recent `capacity` events so
// reconnecting subscribers can resume from a cursor.
//
// Not safe for concurrent use: the hub loop is the only writer/reader.
// -----------------------------------------------------------------------------

type EventBuffer struct {
	data     []models.MMarketEvent
	capacity int
	index    int // Next write position
	size     int // Current number of elements
}

// -----------------------------------------------------------------------------

// NewEventBuffer creates a new buffer with fixed capacity
func NewEventBuffer(capacity int) *EventBuffer {
	if capacity <= 0 {
		capacity = 1024 // Default reasonable size
	}

	return &EventBuffer{
		data:     make([]models.MMarketEvent, capacity),
		capacity: capacity,
	}
}

// -----------------------------------------------------------------------------

// Append adds an event, overwriting the oldest once full.
func (eb *EventBuffer) Append(ev models.MMarketEvent) {
	eb.data[eb.index] = ev
	eb.index = (eb.index + 1) % eb.capacity

	// Update size (never exceeds capacity)
	if eb.size < eb.capacity {
		eb.size++
	}
}

// -----------------------------------------------------------------------------

// Since returns every retained event with sequence id greater than cursor,
// oldest first. If events past the cursor have already been evicted the
// caller must resync out-of-band: models.ErrResyncRequired is returned.
func (eb *EventBuffer) Since(cursor uint64) ([]models.MMarketEvent, error) {
	if eb.size == 0 {
		return nil, nil
	}

	oldest := eb.oldest()
	latest := eb.Latest()

	if cursor >= latest {
		return nil, nil
	}

	// A cursor below oldest-1 means the buffer no longer retains every
	// event the subscriber missed.
	if cursor+1 < oldest.Sequence {
		return nil, models.ErrResyncRequired
	}

	var result []models.MMarketEvent
	startIdx := eb.startIndex()
	for i := 0; i < eb.size; i++ {
		idx := (startIdx + i) % eb.capacity
		if eb.data[idx].Sequence > cursor {
			result = append(result, eb.data[idx])
		}
	}
	return result, nil
}

// -----------------------------------------------------------------------------

// Latest returns the highest retained sequence id (0 when empty).
func (eb *EventBuffer) Latest() uint64 {
	if eb.size == 0 {
		return 0
	}
	lastIdx := (eb.index - 1 + eb.capacity) % eb.capacity
	return eb.data[lastIdx].Sequence
}

// -----------------------------------------------------------------------------

// Size returns current number of elements
func (eb *EventBuffer) Size() int {
	return eb.size
}

// -----------------------------------------------------------------------------

// Capacity returns buffer capacity (fixed)
func (eb *EventBuffer) Capacity() int {
	return eb.capacity
}

// -----------------------------------------------------------------------------

func (eb *EventBuffer) oldest() models.MMarketEvent {
	return eb.data[eb.startIndex()]
}

// -----------------------------------------------------------------------------

func (eb *EventBuffer) startIndex() int {
	if eb.size == eb.capacity {
		// Buffer is full, oldest is at current index (wrap-around)
		return eb.index
	}
	return 0
}
