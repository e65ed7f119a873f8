package events

import (
	"context"
	"sync"
	"sync/atomic"
)

// subscriberBuffer bounds how far a subscriber may fall behind before events
// to it are dropped.
const subscriberBuffer = 64

type localSub struct {
	queue   chan Event
	handler func(Event)
}

// LocalBus delivers events in-process. It stands in for Redis when the API runs
// as a single instance. Each subscriber drains its own queue on its own
// goroutine, so Publish never waits on a handler.
type LocalBus struct {
	mu      sync.RWMutex
	subs    map[string]map[int]*localSub
	next    int
	dropped atomic.Int64
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string]map[int]*localSub)}
}

func (b *LocalBus) Publish(_ context.Context, stream string, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs[stream] {
		select {
		case s.queue <- event:
		default:
			b.dropped.Add(1)
		}
	}
	return nil
}

// Dropped counts events discarded because a subscriber's queue was full.
func (b *LocalBus) Dropped() int64 {
	return b.dropped.Load()
}

// Subscribe registers handler until ctx is cancelled. Events reach a handler in
// publish order.
func (b *LocalBus) Subscribe(ctx context.Context, stream string, handler func(Event)) error {
	s := &localSub{queue: make(chan Event, subscriberBuffer), handler: handler}

	b.mu.Lock()
	id := b.next
	b.next++
	if b.subs[stream] == nil {
		b.subs[stream] = make(map[int]*localSub)
	}
	b.subs[stream][id] = s
	b.mu.Unlock()

	go func() {
		for {
			select {
			case ev := <-s.queue:
				s.handler(ev)
			case <-ctx.Done():
				b.mu.Lock()
				delete(b.subs[stream], id)
				b.mu.Unlock()
				return
			}
		}
	}()
	return nil
}
