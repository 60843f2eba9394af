package network

import "github.com/nimbusim/nimbus-node/pkg/protocol"

// EventKind tags a connection event variant
type EventKind int

const (
	// EventConnected fires after every successful (re)connect
	EventConnected EventKind = iota

	// EventDisconnected fires when the link drops; Err carries the cause.
	// Reconnection is already scheduled when this is observed.
	EventDisconnected

	// EventFrame carries one decoded inbound frame
	EventFrame

	// EventMaxReconnect fires when the reconnect budget is exhausted.
	// The manager stays disconnected until Connect is called again.
	EventMaxReconnect
)

// String returns the event kind name
func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventFrame:
		return "frame"
	case EventMaxReconnect:
		return "max-reconnect"
	default:
		return "invalid"
	}
}

// Event is one tagged notification from the connection manager. All events
// flow through a single channel so consumers observe them in order.
type Event struct {
	Kind       EventKind
	Generation uint64
	Frame      *protocol.Frame // set for EventFrame
	Err        error           // set for EventDisconnected and EventMaxReconnect
}
