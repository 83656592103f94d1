// Package deviceinfo derives and caches the pseudonymous device
// fingerprint used as the sender identity for anonymous messages.
//
// The fingerprint is the slugified device name joined to the device's
// outbound IP address. It is computed once and cached in persisted
// storage, so the same device keeps the same identity across sessions.
package deviceinfo

import (
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/wahajnintyeight/sync-board-mobile/storage"
)

// Info describes the local device.
type Info struct {
	SlugifiedDeviceName string `json:"slugifiedDeviceName"`
	DeviceName          string `json:"deviceName"`
	IPAddress           string `json:"ipAddress"`
}

// Provider derives device info, consulting the storage cache first.
type Provider struct {
	store storage.Store
	log   *slog.Logger

	// hostnameFn and ipFn allow overriding host discovery for testing.
	hostnameFn func() (string, error)
	ipFn       func() string
}

// NewProvider creates a Provider caching into the given store.
func NewProvider(store storage.Store, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		store:      store,
		log:        logger.WithGroup("deviceinfo"),
		hostnameFn: os.Hostname,
		ipFn:       outboundIP,
	}
}

// Get returns the device info, deriving and caching it on first use.
// It never fails outright: when the host yields nothing usable a random
// fallback identity is generated and cached instead.
func (p *Provider) Get() Info {
	if raw, ok := p.store.GetString(storage.KeyDeviceInfo); ok {
		var cached Info
		if err := json.Unmarshal([]byte(raw), &cached); err == nil && cached.SlugifiedDeviceName != "" {
			return cached
		}
		p.log.Warn("discarding unparseable cached device info")
	}

	name, err := p.hostnameFn()
	if err != nil || name == "" {
		p.log.Warn("device name unavailable, using fallback", "error", err)
		name = "unknown_device_" + uuid.NewString()[:8]
	}
	ip := p.ipFn()

	info := Info{
		SlugifiedDeviceName: Slugify(name) + "-" + ip,
		DeviceName:          name,
		IPAddress:           ip,
	}

	if raw, err := json.Marshal(info); err == nil {
		p.store.SetString(storage.KeyDeviceInfo, string(raw))
	}
	return info
}

// Slugify lowercases a device name and replaces every non-alphanumeric
// run with underscores, matching the fingerprint format the backend sees
// from all clients.
func Slugify(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// outboundIP finds the preferred local address by opening a UDP "route"
// to a public host. No packets are sent.
func outboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
