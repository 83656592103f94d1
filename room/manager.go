package room

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/wahajnintyeight/sync-board-mobile/core/clock"
	"github.com/wahajnintyeight/sync-board-mobile/core/message"
	"github.com/wahajnintyeight/sync-board-mobile/transport"
	"github.com/wahajnintyeight/sync-board-mobile/wire"
)

// Dialer builds a transport addressed at the given room. Injected so the
// session can run over WebSocket, MQTT, or a test fake.
type Dialer func(roomID string) transport.Transport

// ManagerConfig configures a connection Manager.
type ManagerConfig struct {
	// Dial builds the transport for a room. Required.
	Dial Dialer

	// DeviceInfo is the local device fingerprint, used for the join
	// handshake and for suppressing the server's echo of this device's
	// own anonymous messages.
	DeviceInfo string

	// GracePeriod is the delay between the leaving notification and the
	// socket close. Defaults to DefaultGracePeriod, capped at
	// MaxGracePeriod.
	GracePeriod time.Duration

	// ConnectTimeout bounds connection establishment.
	// Default: DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// Clock for outbound message timestamps. Defaults to the system clock.
	Clock *clock.Clock

	// OnMessage is called for each live message that survives ingress
	// filtering. May be nil.
	OnMessage func(message.Message)

	// OnStatusChange is called when the connection status changes.
	// May be nil.
	OnStatusChange func(Status)

	// Logger for connection events. Falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// Manager owns a single realtime connection per room session: connect,
// disconnect, send, and cleanup. At most one underlying connection is
// open at a time; Connect tears down any prior one first.
//
// Once Dispose is called every public method becomes a guarded no-op
// returning a neutral value. The owning scope may be torn down between
// a callback's registration and its firing, so ingress re-checks this on
// every entry.
type Manager struct {
	cfg ManagerConfig
	log *slog.Logger

	mu         sync.Mutex
	status     Status
	roomID     string
	roomCode   string
	userID     string
	errMsg     string
	tr         transport.Transport
	connecting bool
	cleaned    bool
	disposed   bool
	members    map[string]wire.Member
	live       []message.Message
}

// NewManager creates a connection manager with the given configuration.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.GracePeriod > MaxGracePeriod {
		cfg.GracePeriod = MaxGracePeriod
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:     cfg,
		log:     logger.WithGroup("room"),
		members: make(map[string]wire.Member),
	}
}

// Connect opens a new connection for roomID, tearing down any previous
// one first. Returns ErrAlreadyConnecting when a connect is in flight.
// Transport failures are surfaced both as the returned error and as the
// Errored state. Reconnection is caller-driven: the screen invokes
// Connect again. The context bounds establishment only, alongside
// ConnectTimeout.
func (m *Manager) Connect(ctx context.Context, roomID, userID, roomCode string) error {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		m.log.Warn("manager disposed, ignoring connect")
		return nil
	}
	if m.connecting {
		m.mu.Unlock()
		return ErrAlreadyConnecting
	}
	m.connecting = true
	m.mu.Unlock()

	// A fresh connection always starts from a settled state.
	m.Cleanup()

	m.mu.Lock()
	m.cleaned = false
	m.roomID = roomID
	m.userID = userID
	m.roomCode = roomCode
	m.errMsg = ""
	m.status = StatusConnecting
	tr := m.cfg.Dial(roomID)
	m.tr = tr
	m.mu.Unlock()

	m.notifyStatus(StatusConnecting)
	m.log.Debug("connecting", "room", roomID)

	tr.SetFrameHandler(m.handleFrame)
	tr.SetStateHandler(m.handleTransportEvent)

	ctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()
	err := tr.Connect(ctx)

	m.mu.Lock()
	m.connecting = false
	// Teardown may have run while the dial was in flight. The one-shot
	// cleanup flag is already spent at this point, so the late completion
	// has to close the socket it just opened itself.
	if m.disposed || m.cleaned {
		m.mu.Unlock()
		m.log.Debug("connect resolved after teardown, discarding", "room", roomID)
		if err == nil {
			if cerr := tr.Close(transport.CloseNormal, "teardown"); cerr != nil {
				m.log.Debug("error closing socket", "error", cerr)
			}
		}
		return nil
	}
	if err != nil {
		m.errMsg = err.Error()
		m.status = StatusErrored
		m.mu.Unlock()
		m.notifyStatus(StatusErrored)
		return fmt.Errorf("room: connecting to %s: %w", roomID, err)
	}
	m.mu.Unlock()
	return nil
}

// Disconnect leaves the room. When connected it first sends a best-effort
// leaving notification, waits out the grace period so the notification
// can flush, and closes the socket with a normal-closure code. The state
// reset to Disconnected runs unconditionally, even when the notification
// or the close fails.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		m.log.Warn("manager disposed, ignoring disconnect")
		return
	}
	tr := m.tr
	connected := m.status == StatusConnected
	roomCode := m.roomCode
	m.mu.Unlock()

	defer m.reset()

	if tr == nil {
		return
	}
	if !connected {
		// A dial may still be in flight; force-close so it cannot
		// complete into a live socket nobody references.
		if err := tr.Close(transport.CloseNormal, "teardown"); err != nil {
			m.log.Debug("error closing socket", "error", err)
		}
		return
	}

	if data, err := wire.Encode(wire.ActionDisconnect, wire.DisconnectData{RoomID: "room-" + roomCode}); err == nil {
		if err := tr.Send(data); err != nil {
			m.log.Debug("leaving notification not delivered", "error", err)
		}
	}

	time.Sleep(m.cfg.GracePeriod)

	if err := tr.Close(transport.CloseNormal, "Normal closure"); err != nil {
		m.log.Debug("error closing socket", "error", err)
	}
	m.log.Debug("disconnected", "room", roomCode)
}

// Send serializes {action, data} and transmits it. Returns false without
// error when the connection is not currently open; the caller decides
// whether that matters (sends rely on the optimistic entry already shown).
func (m *Manager) Send(action string, payload any) bool {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		m.log.Warn("manager disposed, ignoring send", "action", action)
		return false
	}
	tr := m.tr
	open := m.status == StatusConnected
	m.mu.Unlock()

	if tr == nil || !open {
		m.log.Debug("send skipped, not connected", "action", action)
		return false
	}

	data, err := wire.Encode(action, payload)
	if err != nil {
		m.log.Warn("failed to encode frame", "action", action, "error", err)
		return false
	}
	if err := tr.Send(data); err != nil {
		m.log.Warn("failed to send frame", "action", action, "error", err)
		return false
	}
	return true
}

// SendMessage sends a chat message on the live socket. The caller is
// expected to have recorded the optimistic entry already.
func (m *Manager) SendMessage(text string) bool {
	m.mu.Lock()
	roomID, roomCode, userID := m.roomID, m.roomCode, m.userID
	m.mu.Unlock()

	return m.Send(wire.ActionRoomMessage, wire.RoomMessageData{
		RoomID:      roomID,
		Code:        roomCode,
		Message:     text,
		TimeStamp:   m.cfg.Clock.Now().UTC().Format(time.RFC3339),
		UserID:      userID,
		IsAnonymous: userID == "",
		DeviceInfo:  m.cfg.DeviceInfo,
	})
}

// Cleanup unregisters the transport handlers and force-closes any live
// socket. It is idempotent: repeat calls after the first are no-ops,
// tracked by a one-shot flag. It never panics, even when invoked during
// teardown of the owning scope.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	if m.cleaned {
		m.mu.Unlock()
		m.log.Debug("already cleaned up, skipping")
		return
	}
	m.cleaned = true
	tr := m.tr
	m.tr = nil
	m.mu.Unlock()

	if tr == nil {
		return
	}
	tr.SetFrameHandler(nil)
	tr.SetStateHandler(nil)
	if err := tr.Close(transport.CloseNormal, "cleanup"); err != nil {
		m.log.Debug("error closing socket during cleanup", "error", err)
	}
	m.log.Debug("cleanup complete")
}

// Dispose marks the manager as torn down and runs Cleanup. After Dispose
// every public method is a guarded no-op. Dispose itself is idempotent.
func (m *Manager) Dispose() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	m.mu.Unlock()

	m.Cleanup()
}

// reset returns all transient state to the initial Disconnected shape.
func (m *Manager) reset() {
	m.mu.Lock()
	changed := m.status != StatusDisconnected
	m.status = StatusDisconnected
	m.roomID = ""
	m.roomCode = ""
	m.userID = ""
	m.errMsg = ""
	m.live = nil
	m.members = make(map[string]wire.Member)
	m.tr = nil
	m.mu.Unlock()

	if changed {
		m.notifyStatus(StatusDisconnected)
	}
}

func (m *Manager) notifyStatus(s Status) {
	if m.cfg.OnStatusChange != nil {
		m.cfg.OnStatusChange(s)
	}
}

// Status returns the current connection status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Err returns the last connection error message, empty when none.
func (m *Manager) Err() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errMsg
}

// RoomID returns the connected room id, empty when disconnected.
func (m *Manager) RoomID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roomID
}

// RoomCode returns the connected room code, empty when disconnected.
func (m *Manager) RoomCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roomCode
}

// Live returns a copy of the live message buffer in receipt order.
func (m *Manager) Live() []message.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]message.Message, len(m.live))
	copy(out, m.live)
	return out
}

// Members returns the current member list, ordered by id.
func (m *Manager) Members() []wire.Member {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]wire.Member, 0, len(m.members))
	for _, mem := range m.members {
		out = append(out, mem)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
