// Package room owns the client side of a single room visit: the realtime
// connection lifecycle, inbound frame handling, history pagination, and
// the reconciled timeline exposed to the rendering layer.
//
// A Session is created when the room screen appears and closed when it
// goes away. Everything in this package is defensive about that boundary:
// callbacks registered with the transport can fire after teardown has
// begun, so every entry point re-checks liveness before touching state.
package room

import (
	"errors"
	"time"
)

// Status is the connection state of a room session.
type Status int

const (
	// StatusDisconnected is the initial and terminal state.
	StatusDisconnected Status = iota
	// StatusConnecting is set while a connect is in flight.
	StatusConnecting
	// StatusConnected is set once the transport reports open.
	StatusConnected
	// StatusErrored is set when the transport fails; the screen offers a
	// retry, which runs Connect again.
	StatusErrored
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// ErrAlreadyConnecting is returned by Connect when a connect is already
// in flight.
var ErrAlreadyConnecting = errors.New("room: connect already in flight")

const (
	// DefaultGracePeriod is the delay between the best-effort leaving
	// notification and the socket close, giving the notification time to
	// flush. Bounded by MaxGracePeriod.
	DefaultGracePeriod = 100 * time.Millisecond

	// MaxGracePeriod caps the configurable grace delay so a disconnect
	// can never stall the teardown path noticeably.
	MaxGracePeriod = 150 * time.Millisecond

	// DefaultConnectTimeout bounds connection establishment.
	DefaultConnectTimeout = 10 * time.Second
)
