package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baechamap/internal/dashboard"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("t1")
	other := b.Subscribe("t2")

	b.Publish("t1", SSEEvent{Type: "test.event", Data: json.RawMessage(`{"x":1}`)})

	select {
	case got := <-ch:
		assert.Equal(t, "test.event", got.Type)
		assert.JSONEq(t, `{"x":1}`, string(got.Data))
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
	assert.Empty(t, other)

	b.Unsubscribe("t1", ch)
	b.Unsubscribe("t1", ch)
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
	b.Publish("t1", SSEEvent{Type: "after"})
}

func TestBrokerPublishDoesNotBlock(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("t")
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish("t", SSEEvent{Type: "e"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Len(t, ch, cap(ch))
}

func TestFrameRelay(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe(TopicFrames)
	FrameRelay{Broker: b}.PublishFrame(&dashboard.Frame{Seq: 7})

	got := <-ch
	assert.Equal(t, "frame", got.Type)
	var f dashboard.Frame
	require.NoError(t, json.Unmarshal(got.Data, &f))
	assert.EqualValues(t, 7, f.Seq)
}

func TestRedisBrokerBadURL(t *testing.T) {
	_, err := NewRedisBroker("not-a-url")
	assert.Error(t, err)

	b, err := NewRedisBroker("redis://localhost:6379/0")
	require.NoError(t, err)
	assert.Equal(t, "baechamap:frames", b.chanName(TopicFrames))
	require.NoError(t, b.Close())
}

func TestRedisBrokerPublishDoesNotWaitOnRedis(t *testing.T) {
	// Nothing listens here, so every publish on the wire fails or stalls.
	b, err := NewRedisBroker("redis://10.255.255.1:6379/0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10*redisPublishQueue; i++ {
			FrameRelay{Broker: b}.PublishFrame(&dashboard.Frame{Seq: uint64(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish waited on an unreachable redis")
	}

	require.NoError(t, b.Close())
	b.Publish(TopicFrames, SSEEvent{Type: "after-close"})
}
