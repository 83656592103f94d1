package room

import (
	"github.com/wahajnintyeight/sync-board-mobile/core/message"
	"github.com/wahajnintyeight/sync-board-mobile/transport"
	"github.com/wahajnintyeight/sync-board-mobile/wire"
)

// handleFrame is the inbound frame entry point, registered with the
// transport. Frames are processed in receipt order; malformed or unknown
// frames are logged and dropped, never propagated as faults.
func (m *Manager) handleFrame(raw []byte) {
	if !m.aliveFor("frame") {
		return
	}

	env, err := wire.Decode(raw)
	if err != nil {
		m.log.Debug("dropping malformed frame", "error", err)
		return
	}

	switch env.Action {
	case wire.ActionRoomMessage:
		m.handleRoomMessage(env)
	case wire.ActionMemberJoined:
		m.handleMemberJoined(env)
	case wire.ActionMemberLeft:
		m.handleMemberLeft(env)
	default:
		m.log.Debug("unhandled action", "action", env.Action)
	}
}

// handleRoomMessage normalizes an inbound room message and appends it to
// the live buffer.
//
// An anonymous frame carrying this device's own fingerprint is the
// server's broadcast of a message this device just sent; the optimistic
// pending entry already represents it, so the frame is dropped. Echoes of
// authenticated senders pass through unchanged.
func (m *Manager) handleRoomMessage(env *wire.Envelope) {
	d, err := wire.DecodeRoomMessage(env)
	if err != nil {
		m.log.Debug("dropping unreadable room message", "error", err)
		return
	}

	if d.IsAnonymous && d.DeviceInfo == m.cfg.DeviceInfo {
		m.log.Debug("skipping own anonymous message")
		return
	}

	msg := message.FromWire(d)

	m.mu.Lock()
	m.live = append(m.live, msg)
	onMessage := m.cfg.OnMessage
	m.mu.Unlock()

	if onMessage != nil {
		onMessage(msg)
	}
}

func (m *Manager) handleMemberJoined(env *wire.Envelope) {
	mem, err := wire.DecodeMember(env)
	if err != nil {
		m.log.Debug("dropping unreadable member frame", "error", err)
		return
	}

	m.mu.Lock()
	m.members[mem.ID] = *mem
	count := len(m.members)
	m.mu.Unlock()

	m.log.Debug("member joined", "member", mem.ID, "total", count)
}

func (m *Manager) handleMemberLeft(env *wire.Envelope) {
	mem, err := wire.DecodeMember(env)
	if err != nil {
		m.log.Debug("dropping unreadable member frame", "error", err)
		return
	}

	m.mu.Lock()
	delete(m.members, mem.ID)
	count := len(m.members)
	m.mu.Unlock()

	m.log.Debug("member left", "member", mem.ID, "remaining", count)
}

// handleTransportEvent reacts to connection state changes from the
// transport. The manager never retries on its own; the consuming screen
// re-invokes Connect.
func (m *Manager) handleTransportEvent(ev transport.Event, terr error) {
	if !m.aliveFor(ev.String()) {
		return
	}

	switch ev {
	case transport.EventOpen:
		m.mu.Lock()
		m.status = StatusConnected
		roomCode, userID := m.roomCode, m.userID
		m.mu.Unlock()
		m.notifyStatus(StatusConnected)
		m.log.Debug("socket open", "room_code", roomCode)

		if roomCode != "" {
			m.Send(wire.ActionJoinRoom, wire.JoinRoomData{
				Code:        roomCode,
				IsAnonymous: userID == "",
				UserID:      userID,
				DeviceInfo:  m.cfg.DeviceInfo,
			})
		}

	case transport.EventClosed:
		m.mu.Lock()
		changed := m.status != StatusDisconnected
		if changed {
			m.status = StatusDisconnected
			m.errMsg = "socket connection closed"
		}
		m.mu.Unlock()
		if changed {
			m.notifyStatus(StatusDisconnected)
		}

	case transport.EventError:
		m.mu.Lock()
		m.status = StatusErrored
		if terr != nil {
			m.errMsg = terr.Error()
		}
		m.mu.Unlock()
		m.notifyStatus(StatusErrored)
		m.log.Warn("socket error", "error", terr)
	}
}

// aliveFor re-checks the liveness guard at a callback boundary. The owning
// scope may have been torn down between the callback's registration and
// its firing.
func (m *Manager) aliveFor(op string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		m.log.Warn("manager disposed, dropping callback", "op", op)
		return false
	}
	if m.cleaned {
		m.log.Debug("manager cleaned up, dropping callback", "op", op)
		return false
	}
	return true
}
