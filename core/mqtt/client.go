package mqtt

import "time"

// Publisher sends JSON-encodable payloads. Delivery is best effort: QoS 0,
// not retained, never retried.
type Publisher interface {
	SendMessage(topic string, payload any) error
}

// State is the connection state of the bridge's own MQTT client.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Subscribing
	Subscribed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Subscribing:
		return "subscribing"
	case Subscribed:
		return "subscribed"
	default:
		return "disconnected"
	}
}

// Live reports whether the broker session is up.
func (s State) Live() bool { return s >= Connected }

// StateChange is published on every transition of the connection state.
type StateChange struct {
	From State
	To   State
	// Generation identifies the client handle the transition belongs to.
	Generation uint64
	// Err carries the cause of a transition to Disconnected, if any.
	Err  error
	Time time.Time
}
