package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventHub_PublishSubscribe(t *testing.T) {
	h := NewEventHub()
	a := h.Subscribe()
	b := h.Subscribe()
	assert.Equal(t, 2, h.Subscribers())

	h.Publish(ChannelPut, ChannelPutEvent{Channel: "SampleX", Value: 1.5, Ts: 42})

	for _, ch := range []chan Event{a, b} {
		ev := <-ch
		assert.Equal(t, ChannelPut, ev.Name)
		p, err := DecodeAs[ChannelPutEvent](ev)
		require.NoError(t, err)
		assert.Equal(t, "SampleX", p.Channel)
		assert.Equal(t, 1.5, p.Value)
		assert.EqualValues(t, 42, p.Ts)
	}

	h.Unsubscribe(a)
	_, open := <-a
	assert.False(t, open)
	assert.Equal(t, 1, h.Subscribers())

	// unsubscribing twice is harmless
	h.Unsubscribe(a)
}

func TestEventHub_SlowSubscriberDropped(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	for i := 0; i < 100; i++ {
		h.Publish(DriftCheck, DriftCheckEvent{Row: float64(i)})
	}
	assert.Len(t, ch, cap(ch))
}

func TestEventHub_Nil(t *testing.T) {
	var h *EventHub
	h.Publish(DriftCheck, DriftCheckEvent{})
}

func TestDecodeAs_Empty(t *testing.T) {
	p, err := DecodeAs[DriftCheckEvent](Event{Name: DriftCheck})
	require.NoError(t, err)
	assert.Zero(t, p)
}
