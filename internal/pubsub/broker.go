package pubsub

import (
	"context"
	"sync"
	"sync/atomic"
)

const defaultBufferSize = 64

// subscriber is one registered subscription. dropped counts events lost
// to a full channel, surfaced through Dropped for tests and diagnostics.
type subscriber[T any] struct {
	ch      chan Event[T]
	dropped atomic.Int64
}

// Broker fans published events out to every subscriber. Publishing never
// blocks: a subscriber that cannot keep up loses events rather than
// stalling the daemon's event loop.
type Broker[T any] struct {
	mu         sync.RWMutex
	subs       map[*subscriber[T]]struct{}
	closed     bool
	bufferSize int
}

// NewBroker creates a broker with the default per-subscriber buffer.
func NewBroker[T any]() *Broker[T] {
	return NewBrokerWithBuffer[T](defaultBufferSize)
}

// NewBrokerWithBuffer creates a broker with a custom per-subscriber
// buffer size.
func NewBrokerWithBuffer[T any](size int) *Broker[T] {
	return &Broker[T]{
		subs:       make(map[*subscriber[T]]struct{}),
		bufferSize: size,
	}
}

// Subscribe registers a new subscription. The returned channel closes
// when ctx is canceled or the broker shuts down; on an already-closed
// broker it comes back closed immediately.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event[T])
		close(ch)
		return ch
	}

	sub := &subscriber[T]{ch: make(chan Event[T], b.bufferSize)}
	b.subs[sub] = struct{}{}

	go func() {
		<-ctx.Done()
		b.remove(sub)
	}()

	return sub.ch
}

func (b *Broker[T]) remove(sub *subscriber[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

// Publish delivers an event to every current subscriber, dropping it for
// any whose buffer is full. Publishing on a closed broker is a no-op.
func (b *Broker[T]) Publish(eventType EventType, payload T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	event := newEvent(eventType, payload)
	for sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			sub.dropped.Add(1)
		}
	}
}

// Close shuts the broker down and closes every subscription channel.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
}

// SubscriberCount returns the number of live subscriptions.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns the total number of events lost to full subscriber
// buffers across the current subscriptions.
func (b *Broker[T]) Dropped() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var total int64
	for sub := range b.subs {
		total += sub.dropped.Load()
	}
	return total
}
