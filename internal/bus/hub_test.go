package bus_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"carousel/internal/bus"
)

func TestPublishAssignsSequenceAndDelivers(t *testing.T) {
	hub := bus.NewHub(8)
	defer hub.Close()

	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Publish(bus.Event{Step: bus.StepCapture, Message: "capture started"})
	hub.Publish(bus.Event{Step: bus.StepProcessing})

	first := <-ch
	second := <-ch
	require.Equal(t, bus.StepCapture, first.Step)
	require.Equal(t, uint64(1), first.Sequence)
	require.Equal(t, uint64(2), second.Sequence)
	require.False(t, first.Timestamp.IsZero())
}

func TestTailReturnsMostRecent(t *testing.T) {
	hub := bus.NewHub(4)
	defer hub.Close()

	for i := 0; i < 10; i++ {
		hub.Publish(bus.Event{Step: bus.StepProcessing})
	}

	tail := hub.Tail(2)
	require.Len(t, tail, 2)
	require.Equal(t, uint64(9), tail[0].Sequence)
	require.Equal(t, uint64(10), tail[1].Sequence)

	// Ring capacity bounds the full tail.
	require.Len(t, hub.Tail(0), 4)
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	hub := bus.NewHub(512)
	defer hub.Close()

	ch, cancel := hub.Subscribe()
	defer cancel()

	// Overflow the subscription buffer without reading.
	for i := 0; i < 200; i++ {
		hub.Publish(bus.Event{Step: bus.StepProcessing})
	}

	// The newest event must still be deliverable.
	var last bus.Event
	for {
		select {
		case evt := <-ch:
			last = evt
			continue
		default:
		}
		break
	}
	require.Equal(t, uint64(200), last.Sequence)
}

func TestCancelAndCloseAreIdempotent(t *testing.T) {
	hub := bus.NewHub(4)
	ch, cancel := hub.Subscribe()
	cancel()
	cancel()
	_, open := <-ch
	require.False(t, open)

	hub.Close()
	hub.Close()

	// Publishing after close is a no-op.
	hub.Publish(bus.Event{Step: bus.StepError})
	require.Empty(t, hub.Tail(0))
}
