// Package wire defines the JSON envelope exchanged with the realtime
// server and the typed payloads for each known action.
//
// Every frame, in both directions, is an object of the form
// {"action": "...", "data": {...}}. Member notifications from the server
// carry their body under "payload" instead of "data"; Envelope.Body hides
// that difference from callers.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Known actions.
const (
	ActionJoinRoom     = "joinClipRoom"
	ActionRoomMessage  = "sendRoomMessage"
	ActionDisconnect   = "disconnect"
	ActionMemberJoined = "memberJoined"
	ActionMemberLeft   = "memberLeft"
)

// ErrMissingAction is returned by Decode for frames without an action field.
var ErrMissingAction = errors.New("frame has no action")

// Envelope is the outer frame shape.
type Envelope struct {
	Action  string          `json:"action"`
	Data    json.RawMessage `json:"data,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Body returns the frame body regardless of which field carried it.
func (e *Envelope) Body() json.RawMessage {
	if len(e.Data) > 0 {
		return e.Data
	}
	return e.Payload
}

// Encode serializes an outbound frame.
func Encode(action string, data any) ([]byte, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("wire.Encode %s: %w", action, err)
	}
	return json.Marshal(Envelope{Action: action, Data: body})
}

// Decode parses an inbound frame. Malformed JSON or a missing action field
// is an error; callers are expected to log and drop such frames.
func Decode(raw []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("wire.Decode: %w", err)
	}
	if e.Action == "" {
		return nil, ErrMissingAction
	}
	return &e, nil
}

// JoinRoomData is sent immediately after the socket opens when a room code
// is known.
type JoinRoomData struct {
	Code        string `json:"code"`
	IsAnonymous bool   `json:"isAnonymous"`
	UserID      string `json:"userId"`
	DeviceInfo  string `json:"deviceInfo"`
}

// RoomMessageData is the body of a sendRoomMessage frame in both
// directions. The server may populate either TimeStamp or CreatedAt; text
// likewise arrives as Message from the socket and Content from older
// history records. Normalization happens in core/message, not here.
type RoomMessageData struct {
	RoomID         string `json:"roomId,omitempty"`
	Code           string `json:"code,omitempty"`
	Message        string `json:"message,omitempty"`
	Content        string `json:"content,omitempty"`
	TimeStamp      string `json:"timeStamp,omitempty"`
	CreatedAt      string `json:"createdAt,omitempty"`
	Sender         string `json:"sender,omitempty"`
	UserID         string `json:"userId,omitempty"`
	IsAttachment   bool   `json:"isAttachment,omitempty"`
	AttachmentType string `json:"attachmentType,omitempty"`
	AttachmentURL  string `json:"attachmentURL,omitempty"`
	IsAnonymous    bool   `json:"isAnonymous,omitempty"`
	DeviceInfo     string `json:"deviceInfo,omitempty"`
}

// Text returns the message text regardless of which field carried it.
func (d *RoomMessageData) Text() string {
	if d.Message != "" {
		return d.Message
	}
	return d.Content
}

// DisconnectData is the best-effort leaving notification sent before a
// normal close.
type DisconnectData struct {
	RoomID string `json:"roomId"`
}

// Member is the body of memberJoined/memberLeft frames.
type Member struct {
	ID         string `json:"id"`
	DeviceInfo string `json:"deviceInfo,omitempty"`
}

// DecodeRoomMessage extracts the room-message body from an envelope.
func DecodeRoomMessage(e *Envelope) (*RoomMessageData, error) {
	var d RoomMessageData
	if err := json.Unmarshal(e.Body(), &d); err != nil {
		return nil, fmt.Errorf("wire.DecodeRoomMessage: %w", err)
	}
	return &d, nil
}

// DecodeMember extracts the member body from an envelope.
func DecodeMember(e *Envelope) (*Member, error) {
	var m Member
	if err := json.Unmarshal(e.Body(), &m); err != nil {
		return nil, fmt.Errorf("wire.DecodeMember: %w", err)
	}
	if m.ID == "" {
		return nil, errors.New("wire.DecodeMember: member has no id")
	}
	return &m, nil
}
