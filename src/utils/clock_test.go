package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVirtualClockAdvanceFiresWaiters(t *testing.T) {
	clock := NewVirtualClock(time.Unix(0, 0))

	ch := clock.After(10 * time.Second)
	require.Equal(t, 1, clock.WaiterCount())

	clock.Advance(5 * time.Second)
	select {
	case <-ch:
		t.Fatal("waiter fired before its deadline")
	default:
	}

	clock.Advance(5 * time.Second)
	select {
	case now := <-ch:
		assert.Equal(t, time.Unix(10, 0), now)
	case <-time.After(time.Second):
		t.Fatal("waiter did not fire at its deadline")
	}
	assert.Equal(t, 0, clock.WaiterCount())
}

func TestVirtualClockZeroDurationFiresImmediately(t *testing.T) {
	clock := NewVirtualClock(time.Unix(0, 0))

	select {
	case <-clock.After(0):
	case <-time.After(time.Second):
		t.Fatal("zero-duration After did not fire")
	}
	assert.Equal(t, 0, clock.WaiterCount())
}

func TestVirtualClockOrderedWaiters(t *testing.T) {
	clock := NewVirtualClock(time.Unix(0, 0))

	early := clock.After(time.Second)
	late := clock.After(time.Minute)

	clock.Advance(time.Second)
	select {
	case <-early:
	case <-time.After(time.Second):
		t.Fatal("early waiter did not fire")
	}
	select {
	case <-late:
		t.Fatal("late waiter fired too soon")
	default:
	}
	assert.Equal(t, 1, clock.WaiterCount())
}
