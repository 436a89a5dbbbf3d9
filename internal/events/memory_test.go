// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryEventBus_Publish(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	event := Event{
		Type:    "session.message",
		Payload: map[string]interface{}{"session_id": "s1"},
	}

	err := bus.Publish(context.Background(), event)
	assert.NoError(t, err)
}

func TestMemoryEventBus_Publish_AssignsID(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	var receivedEvent Event
	_, err := bus.Subscribe("*", "", func(ctx context.Context, e Event) error {
		receivedEvent = e
		return nil
	})
	require.NoError(t, err)

	err = bus.Publish(context.Background(), Event{Type: "session.message"})
	require.NoError(t, err)

	assert.NotEmpty(t, receivedEvent.ID)
	assert.Equal(t, "1.0", receivedEvent.Version)
	assert.False(t, receivedEvent.Timestamp.IsZero())
}

func TestMemoryEventBus_Subscribe(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	received := make(chan Event, 1)

	_, err := bus.Subscribe("session.message", "", func(ctx context.Context, e Event) error {
		received <- e
		return nil
	})
	require.NoError(t, err)

	event := Event{Type: "session.message", SessionID: "s1", Payload: map[string]interface{}{"foo": "bar"}}
	err = bus.Publish(context.Background(), event)
	require.NoError(t, err)

	select {
	case e := <-received:
		assert.Equal(t, "session.message", e.Type)
		assert.Equal(t, "bar", e.Payload["foo"])
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestMemoryEventBus_Subscribe_PatternMatching(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	var count int32

	_, err := bus.Subscribe("session.*", "", func(ctx context.Context, e Event) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	require.NoError(t, err)

	events := []Event{
		{Type: "session.message"},
		{Type: "session.result"},
		{Type: "session.closed"},
		{Type: "stream.event"}, // Should not match
	}

	for _, e := range events {
		bus.Publish(context.Background(), e)
	}

	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, int32(3), atomic.LoadInt32(&count))
}

func TestMemoryEventBus_Subscribe_SessionFilter(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	var countA, countAll int32

	_, err := bus.Subscribe("*", "session-a", func(ctx context.Context, e Event) error {
		atomic.AddInt32(&countA, 1)
		return nil
	})
	require.NoError(t, err)

	_, err = bus.Subscribe("*", "", func(ctx context.Context, e Event) error {
		atomic.AddInt32(&countAll, 1)
		return nil
	})
	require.NoError(t, err)

	bus.Publish(context.Background(), Event{Type: "session.message", SessionID: "session-a"})
	bus.Publish(context.Background(), Event{Type: "session.message", SessionID: "session-b"})

	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, int32(1), atomic.LoadInt32(&countA))
	assert.Equal(t, int32(2), atomic.LoadInt32(&countAll))
}

func TestMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	var count int32

	subID, err := bus.Subscribe("session.*", "", func(ctx context.Context, e Event) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	require.NoError(t, err)

	bus.Publish(context.Background(), Event{Type: "session.message"})
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&count))

	err = bus.Unsubscribe(subID)
	require.NoError(t, err)

	bus.Publish(context.Background(), Event{Type: "session.result"})
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&count))
}

func TestMemoryEventBus_Unsubscribe_InvalidID(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	err := bus.Unsubscribe("invalid-id")
	assert.Error(t, err)
}

func TestMemoryEventBus_SubscribeAsync(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	received := make(chan Event, 10)

	_, err := bus.SubscribeAsync("session.*", "", func(ctx context.Context, e Event) error {
		received <- e
		return nil
	}, 10)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		bus.Publish(context.Background(), Event{Type: "session.message"})
	}

	for i := 0; i < 5; i++ {
		select {
		case <-received:
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for event")
		}
	}
}

func TestMemoryEventBus_SubscribeAsync_BufferFull(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	var received int32
	blockChan := make(chan struct{})

	_, err := bus.SubscribeAsync("session.*", "", func(ctx context.Context, e Event) error {
		atomic.AddInt32(&received, 1)
		<-blockChan
		return nil
	}, 2)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		bus.Publish(context.Background(), Event{Type: "session.message"})
	}

	close(blockChan)

	time.Sleep(100 * time.Millisecond)

	count := atomic.LoadInt32(&received)
	assert.Greater(t, count, int32(0))
}

func TestMemoryEventBus_History(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{
		HistoryMaxEvents: 100,
		HistoryMaxAge:    time.Hour,
	})
	defer bus.Close()

	events := []Event{
		{Type: "session.message", SessionID: "s1"},
		{Type: "session.result", SessionID: "s1"},
		{Type: "stream.event", SessionID: "s2"},
	}

	for _, e := range events {
		bus.Publish(context.Background(), e)
	}

	history, err := bus.History(EventFilter{})
	require.NoError(t, err)
	assert.Len(t, history, 3)

	history, err = bus.History(EventFilter{Types: []string{"session.*"}})
	require.NoError(t, err)
	assert.Len(t, history, 2)

	history, err = bus.History(EventFilter{SessionID: "s1"})
	require.NoError(t, err)
	assert.Len(t, history, 2)

	history, err = bus.History(EventFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestMemoryEventBus_History_TimeFilter(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{
		HistoryMaxEvents: 100,
		HistoryMaxAge:    time.Hour,
	})
	defer bus.Close()

	bus.Publish(context.Background(), Event{Type: "session.message"})

	now := time.Now()

	history, err := bus.History(EventFilter{Since: now.Add(time.Second)})
	require.NoError(t, err)
	assert.Len(t, history, 0)

	history, err = bus.History(EventFilter{Until: now.Add(-24 * time.Hour)})
	require.NoError(t, err)
	assert.Len(t, history, 0)

	history, err = bus.History(EventFilter{
		Since: now.Add(-time.Hour),
		Until: now.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestMemoryEventBus_Close(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})

	_, err := bus.Subscribe("*", "", func(ctx context.Context, e Event) error {
		return nil
	})
	require.NoError(t, err)

	err = bus.Close()
	require.NoError(t, err)

	err = bus.Publish(context.Background(), Event{Type: "test"})
	assert.Error(t, err)

	_, err = bus.Subscribe("*", "", func(ctx context.Context, e Event) error {
		return nil
	})
	assert.Error(t, err)

	err = bus.Close()
	assert.NoError(t, err)
}

func TestMemoryEventBus_Concurrency(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{
		HistoryMaxEvents: 1000,
	})
	defer bus.Close()

	var count int64
	var wg sync.WaitGroup

	_, err := bus.Subscribe("*", "", func(ctx context.Context, e Event) error {
		atomic.AddInt64(&count, 1)
		return nil
	})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Publish(context.Background(), Event{Type: "session.message"})
			}
		}()
	}

	wg.Wait()
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int64(1000), atomic.LoadInt64(&count))
}

func TestMemoryEventBus_HandlerError(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	var count int32

	_, err := bus.Subscribe("session.*", "", func(ctx context.Context, e Event) error {
		atomic.AddInt32(&count, 1)
		return assert.AnError
	})
	require.NoError(t, err)

	_, err = bus.Subscribe("session.*", "", func(ctx context.Context, e Event) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	require.NoError(t, err)

	err = bus.Publish(context.Background(), Event{Type: "session.message"})
	assert.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, int32(2), atomic.LoadInt32(&count))
}

func TestMemoryEventBus_SubscriberCount(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	assert.Equal(t, 0, bus.SubscriberCount())

	id, err := bus.Subscribe("*", "", func(ctx context.Context, e Event) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, bus.SubscriberCount())

	bus.Unsubscribe(id)
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestMemoryEventBus_Clear(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	_, err := bus.Subscribe("*", "", func(ctx context.Context, e Event) error { return nil })
	require.NoError(t, err)
	_, err = bus.Subscribe("*", "", func(ctx context.Context, e Event) error { return nil })
	require.NoError(t, err)

	assert.Equal(t, 2, bus.SubscriberCount())
	bus.Clear()
	assert.Equal(t, 0, bus.SubscriberCount())
}
