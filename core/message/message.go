// Package message defines the normalized chat message record shared by the
// history, live, and optimistic sources, and the adapter that produces it
// from raw wire shapes.
//
// Raw input is duck-typed: the timestamp may arrive as "timeStamp" or
// "createdAt", the text as "message" or "content". Everything past the
// ingress boundary sees only the normalized Message.
package message

import (
	"time"

	"github.com/wahajnintyeight/sync-board-mobile/wire"
)

// Attachment describes an optional file attached to a message.
type Attachment struct {
	Type string
	URL  string
}

// Message is one normalized chat entry.
type Message struct {
	// ID is a local identifier: set for optimistic entries, may be empty
	// for entries received from the server.
	ID string

	Text   string
	Sender string // pseudonymous sender id, empty when anonymous

	// Timestamp is the normalized ordering and dedup key. HasTimestamp is
	// false when the raw record carried no parseable timestamp; such
	// entries sort last rather than failing.
	Timestamp    time.Time
	HasTimestamp bool

	IsAnonymous bool
	DeviceInfo  string // origin-device fingerprint

	// Pending marks a locally sent entry not yet confirmed by the server.
	Pending bool

	Attachment *Attachment
}

// ParseTimestamp normalizes the two candidate wire fields, preferring
// timeStamp over createdAt. Returns false when neither parses.
func ParseTimestamp(timeStamp, createdAt string) (time.Time, bool) {
	for _, raw := range []string{timeStamp, createdAt} {
		if raw == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FromWire builds a normalized Message from a room-message body. The same
// body shape arrives via the live socket and via paginated history.
func FromWire(d *wire.RoomMessageData) Message {
	ts, ok := ParseTimestamp(d.TimeStamp, d.CreatedAt)

	m := Message{
		Text:         d.Text(),
		Sender:       d.UserID,
		Timestamp:    ts,
		HasTimestamp: ok,
		IsAnonymous:  d.UserID == "",
		DeviceInfo:   d.DeviceInfo,
	}
	if d.IsAttachment {
		m.Attachment = &Attachment{Type: d.AttachmentType, URL: d.AttachmentURL}
	}
	return m
}

// SameLogical reports whether a and b are the same logical message: equal
// text with normalized timestamps within tol of each other. A tol of zero
// requires equal timestamps. Entries without a timestamp never match, so a
// raw record missing both fields can only ever appear once per source.
func SameLogical(a, b Message, tol time.Duration) bool {
	if a.Text != b.Text {
		return false
	}
	if !a.HasTimestamp || !b.HasTimestamp {
		return false
	}
	d := a.Timestamp.Sub(b.Timestamp)
	if d < 0 {
		d = -d
	}
	return d <= tol
}
