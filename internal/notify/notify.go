// Package notify defines the structured telemetry events the daemon emits:
// links created and destroyed, rules activating and deactivating, connection
// state changes, and config reloads. The daemon publishes these through a
// pubsub broker; subscribers decide how (and whether) to render them.
package notify

import "github.com/mkranta/relink/internal/pubsub"

// EventType aliases the broker's event type so callers need only this
// package for publishing.
type EventType = pubsub.EventType

const (
	LinkCreated     pubsub.EventType = "link.created"
	LinkDestroyed   pubsub.EventType = "link.destroyed"
	LinkLingered    pubsub.EventType = "link.lingered"
	LinkRejected    pubsub.EventType = "link.rejected"
	RuleActivated   pubsub.EventType = "rule.activated"
	RuleDeactivated pubsub.EventType = "rule.deactivated"
	Connected       pubsub.EventType = "server.connected"
	Disconnected    pubsub.EventType = "server.disconnected"
	Reconnecting    pubsub.EventType = "server.reconnecting"
	ConfigReloaded  pubsub.EventType = "config.reloaded"
	ConfigRejected  pubsub.EventType = "config.rejected"
)

// Notice is the payload carried by every telemetry event. Fields are set
// where they make sense for the event type and left zero otherwise.
type Notice struct {
	// Rule is the owning rule name for link and rule events.
	Rule string

	// Source and Sink are port aliases ("node:port") for link events.
	Source string
	Sink   string

	// Attempt is the reconnection attempt counter for Reconnecting events.
	Attempt int

	// Err carries the failure description for rejection events.
	Err string
}

// Broker is the concrete broker type the daemon publishes notices on.
type Broker = pubsub.Broker[Notice]

// Event is a published telemetry event.
type Event = pubsub.Event[Notice]

// NewBroker creates a telemetry broker.
func NewBroker() *Broker {
	return pubsub.NewBroker[Notice]()
}

// Emitter is the subset of the broker the core components need to report
// telemetry. A nil *Sink is a valid no-op emitter.
type Emitter interface {
	Publish(eventType pubsub.EventType, notice Notice)
}

// Sink adapts a Broker to the Emitter interface while tolerating nil.
type Sink struct {
	Broker *Broker
}

// Publish forwards to the broker when one is present.
func (s *Sink) Publish(eventType pubsub.EventType, notice Notice) {
	if s == nil || s.Broker == nil {
		return
	}
	s.Broker.Publish(eventType, notice)
}
