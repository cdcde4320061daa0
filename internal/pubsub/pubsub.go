// Package pubsub provides a generic publish/subscribe event system.
package pubsub

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType names the kind of event being published. The packages that
// publish through a broker declare their own EventType constants.
type EventType string

// Event represents a published event with a typed payload.
type Event[T any] struct {
	// ID uniquely identifies this event instance.
	ID        string
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}

func newEvent[T any](eventType EventType, payload T) Event[T] {
	return Event[T]{
		ID:        uuid.NewString(),
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}
