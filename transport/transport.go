// Package transport provides the realtime connection interface a room
// session talks through, with WebSocket and MQTT implementations in
// subpackages.
package transport

import "context"

// Transport is a single realtime connection to one room. Implementations
// deliver inbound frames in receipt order and report lifecycle changes
// through the state handler.
type Transport interface {
	// Connect opens the underlying connection. The context bounds
	// connection establishment only, not the connection's lifetime.
	Connect(ctx context.Context) error
	// Close shuts the connection down with a close code and reason.
	// Closing an already-closed transport is not an error.
	Close(code int, reason string) error
	// Send transmits one raw frame.
	Send(data []byte) error
	// IsConnected reports whether the transport is currently open.
	IsConnected() bool
	// SetFrameHandler sets the callback for inbound raw frames. A nil
	// handler drops frames.
	SetFrameHandler(fn FrameHandler)
	// SetStateHandler sets the callback for connection state changes.
	SetStateHandler(fn StateHandler)
}

// FrameHandler is called for each inbound raw frame.
type FrameHandler func(raw []byte)

// StateHandler is called when the connection state changes. err is non-nil
// only for EventError.
type StateHandler func(event Event, err error)

// Event represents connection state change events.
type Event int

const (
	// EventOpen is fired once the connection is established.
	EventOpen Event = iota
	// EventClosed is fired when the connection closes, locally or remotely.
	EventClosed
	// EventError is fired when the connection fails.
	EventError
)

func (e Event) String() string {
	switch e {
	case EventOpen:
		return "open"
	case EventClosed:
		return "closed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// CloseNormal is the RFC 6455 normal-closure code, also used as the
// graceful close indication for non-WebSocket transports.
const CloseNormal = 1000
