// Package websocket provides the primary realtime transport. Frames are
// JSON envelopes exchanged over a WebSocket; the room is addressed by a
// "room" query parameter on the endpoint URL.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/wahajnintyeight/sync-board-mobile/transport"
)

// Compile-time interface check.
var _ transport.Transport = (*Transport)(nil)

// DefaultHandshakeTimeout bounds the WebSocket dial.
const DefaultHandshakeTimeout = 10 * time.Second

// ErrNotConnected is returned by Send when the socket is not open.
var ErrNotConnected = errors.New("websocket: not connected")

// Config holds the configuration for a WebSocket transport.
type Config struct {
	// URL is the base WebSocket endpoint (e.g. "wss://realtime.example.com").
	URL string
	// RoomID is appended as the "room" query parameter.
	RoomID string
	// HandshakeTimeout bounds the dial. Default: DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration
	// Logger for transport events. Falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// Transport implements transport.Transport over a WebSocket.
type Transport struct {
	cfg Config
	log *slog.Logger

	mu           sync.Mutex
	conn         *gws.Conn
	connected    bool
	localClose   bool
	frameHandler transport.FrameHandler
	stateHandler transport.StateHandler
}

// New creates a new WebSocket transport with the given configuration.
func New(cfg Config) *Transport {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Transport{
		cfg: cfg,
		log: cfg.Logger.WithGroup("websocket"),
	}
}

// Connect dials the endpoint and starts the read loop. Frames are
// delivered to the frame handler in receipt order from a single goroutine.
func (t *Transport) Connect(ctx context.Context) error {
	if t.cfg.URL == "" {
		return errors.New("websocket URL is required")
	}
	if t.cfg.RoomID == "" {
		return errors.New("room ID is required")
	}

	addr, err := t.roomURL()
	if err != nil {
		return fmt.Errorf("websocket: bad endpoint: %w", err)
	}

	dialer := gws.Dialer{HandshakeTimeout: t.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, addr, nil)
	if err != nil {
		return fmt.Errorf("websocket: dialing %s: %w", addr, err)
	}

	t.mu.Lock()
	t.conn = conn
	t.connected = true
	t.localClose = false
	handler := t.stateHandler
	t.mu.Unlock()

	t.log.Debug("socket connected", "url", addr)

	go t.readLoop(conn)

	if handler != nil {
		handler(transport.EventOpen, nil)
	}
	return nil
}

// Close shuts the socket down. A best-effort close control frame is
// written first so the server sees a clean closure.
func (t *Transport) Close(code int, reason string) error {
	t.mu.Lock()
	conn := t.conn
	wasConnected := t.connected
	t.conn = nil
	t.connected = false
	t.localClose = true
	t.mu.Unlock()

	if conn == nil || !wasConnected {
		return nil
	}

	msg := gws.FormatCloseMessage(code, reason)
	deadline := time.Now().Add(time.Second)
	if err := conn.WriteControl(gws.CloseMessage, msg, deadline); err != nil {
		t.log.Debug("close frame not delivered", "error", err)
	}
	return conn.Close()
}

// Send transmits one text frame.
func (t *Transport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected || t.conn == nil {
		return ErrNotConnected
	}
	return t.conn.WriteMessage(gws.TextMessage, data)
}

// IsConnected reports whether the socket is currently open.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// SetFrameHandler sets the callback for inbound raw frames.
func (t *Transport) SetFrameHandler(fn transport.FrameHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frameHandler = fn
}

// SetStateHandler sets the callback for connection state changes.
func (t *Transport) SetStateHandler(fn transport.StateHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stateHandler = fn
}

func (t *Transport) roomURL() (string, error) {
	u, err := url.Parse(t.cfg.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("room", t.cfg.RoomID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// readLoop pumps inbound frames until the connection dies. Exactly one
// terminal event is fired: EventClosed for local or clean remote closes,
// EventError for everything else.
func (t *Transport) readLoop(conn *gws.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			local := t.localClose
			t.connected = false
			if t.conn == conn {
				t.conn = nil
			}
			stateFn := t.stateHandler
			t.mu.Unlock()

			if stateFn == nil {
				return
			}
			if local || gws.IsCloseError(err, gws.CloseNormalClosure, gws.CloseGoingAway) {
				t.log.Debug("socket closed")
				stateFn(transport.EventClosed, nil)
			} else {
				t.log.Debug("socket read failed", "error", err)
				stateFn(transport.EventError, err)
			}
			return
		}

		t.mu.Lock()
		frameFn := t.frameHandler
		t.mu.Unlock()
		if frameFn != nil {
			frameFn(data)
		}
	}
}
