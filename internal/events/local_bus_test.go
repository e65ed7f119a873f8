package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBus_DeliversToStreamSubscribers(t *testing.T) {
	bus := NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []Event
	require.NoError(t, bus.Subscribe(ctx, DealStream, func(e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	}))
	require.NoError(t, bus.Subscribe(ctx, "other", func(Event) { t.Error("wrong stream") }))

	require.NoError(t, bus.Publish(ctx, DealStream, Event{Type: EventDealStatusChanged, DealID: "d1"}))
	require.NoError(t, bus.Publish(ctx, DealStream, Event{Type: EventDealMessagePosted, DealID: "d1"}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, EventDealStatusChanged, got[0].Type, "publish order is kept")
	assert.Equal(t, EventDealMessagePosted, got[1].Type)
}

func TestLocalBus_PublishDoesNotWaitForSlowSubscriber(t *testing.T) {
	bus := NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	defer close(release)
	require.NoError(t, bus.Subscribe(ctx, DealStream, func(Event) { <-release }))

	var fastMu sync.Mutex
	fast := 0
	require.NoError(t, bus.Subscribe(ctx, DealStream, func(Event) {
		fastMu.Lock()
		fast++
		fastMu.Unlock()
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range subscriberBuffer + 2 {
			_ = bus.Publish(ctx, DealStream, Event{Type: EventDealStatusChanged, DealID: "d1"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a stalled subscriber")
	}

	assert.Positive(t, bus.Dropped(), "stalled subscriber's overflow is dropped")
	assert.Eventually(t, func() bool {
		fastMu.Lock()
		defer fastMu.Unlock()
		return fast > 0
	}, time.Second, 5*time.Millisecond, "other subscribers are still served")
}

func TestLocalBus_UnsubscribesOnCancel(t *testing.T) {
	bus := NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	calls := 0
	require.NoError(t, bus.Subscribe(ctx, DealStream, func(Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	}))
	cancel()

	assert.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		return len(bus.subs[DealStream]) == 0
	}, time.Second, 10*time.Millisecond)

	_ = bus.Publish(context.Background(), DealStream, Event{Type: EventDealStatusChanged})
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, calls)
}
