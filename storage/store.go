// Package storage provides the persisted key-value store backing session
// identifiers, the last room id/code, and the cached device fingerprint.
//
// The store is synchronous and typed per value kind. Missing keys are
// reported with a false second return rather than an error, so callers can
// treat "never written" and "deleted" identically.
package storage

// Well-known keys shared between the API client, the device info provider,
// and the room flow.
const (
	KeySessionID     = "sessionId"
	KeySessionExpiry = "sessionExpiry"
	KeyDeviceInfo    = "deviceInfo"
	KeyRoomID        = "roomId"
	KeyRoomCode      = "roomCode"
)

// Store is a small synchronous key-value store. Both Memory and SQLite
// implement this interface.
type Store interface {
	// GetString returns the value for key, or ("", false) if absent.
	GetString(key string) (string, bool)
	// SetString writes a string value.
	SetString(key, value string) error
	// GetInt64 returns the numeric value for key, or (0, false) if the key
	// is absent or its value is not a number.
	GetInt64(key string) (int64, bool)
	// SetInt64 writes a numeric value.
	SetInt64(key string, value int64) error
	// Delete removes a key. Deleting an absent key is not an error.
	Delete(key string) error
}
