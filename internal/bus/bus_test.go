package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribeFIFO(t *testing.T) {
	b := NewInProcessBus()
	defer b.Close()

	sub := b.Subscribe("risk.output")
	b.Publish("risk.output", []byte("first"))
	b.Publish("risk.output", []byte("second"))

	select {
	case msg := <-sub.C():
		assert.Equal(t, "first", string(msg))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first message")
	}
	select {
	case msg := <-sub.C():
		assert.Equal(t, "second", string(msg))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for second message")
	}
}

func TestPublishNoSubscribersIsNoop(t *testing.T) {
	b := NewInProcessBus()
	defer b.Close()
	assert.NotPanics(t, func() { b.Publish("nobody.listens", []byte("x")) })
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	b := NewInProcessBus()
	b.queueSize = 2
	defer b.Close()

	sub := b.Subscribe("camera.frames")
	b.Publish("camera.frames", []byte("1"))
	b.Publish("camera.frames", []byte("2"))
	b.Publish("camera.frames", []byte("3")) // should evict "1"

	first := <-sub.C()
	second := <-sub.C()
	assert.Equal(t, "2", string(first))
	assert.Equal(t, "3", string(second))
	assert.Equal(t, int64(1), b.DropCount("camera.frames"))
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewInProcessBus()
	defer b.Close()

	sub := b.Subscribe("iot.telemetry")
	b.Unsubscribe(sub)

	_, ok := <-sub.C()
	assert.False(t, ok)
}

func TestMultipleSubscribersPerTopic(t *testing.T) {
	b := NewInProcessBus()
	defer b.Close()

	a := b.Subscribe("decision.output")
	c := b.Subscribe("decision.output")
	b.Publish("decision.output", []byte("fired"))

	require.Equal(t, "fired", string(<-a.C()))
	require.Equal(t, "fired", string(<-c.C()))
}

func TestCloseStopsDelivery(t *testing.T) {
	b := NewInProcessBus()
	sub := b.Subscribe("explain.output")
	b.Close()
	b.Publish("explain.output", []byte("too late"))

	_, ok := <-sub.C()
	assert.False(t, ok)
}
