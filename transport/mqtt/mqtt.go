// Package mqtt provides an alternate realtime transport over an MQTT
// broker, for deployments where the WebSocket endpoint is unreachable.
//
// Frames are the same JSON envelopes the WebSocket transport carries,
// published on "{prefix}/{roomID}" topics. Every participant in a room
// subscribes to the room's topic and publishes to the same topic.
package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/wahajnintyeight/sync-board-mobile/transport"
)

// Compile-time interface check.
var _ transport.Transport = (*Transport)(nil)

const (
	// DefaultTopicPrefix is the default MQTT topic prefix for room frames.
	DefaultTopicPrefix = "syncboard"

	connectTimeout = 30 * time.Second
	publishTimeout = 10 * time.Second
)

// ErrNotConnected is returned by Send when the broker link is down.
var ErrNotConnected = errors.New("mqtt: not connected")

// Config holds the configuration for an MQTT transport.
type Config struct {
	// Broker is the MQTT broker URL (e.g., "tcp://broker.example.com:1883").
	Broker string
	// Username for MQTT authentication. Leave empty if not required.
	Username string
	// Password for MQTT authentication. Leave empty if not required.
	Password string
	// UseTLS enables TLS for the MQTT connection.
	UseTLS bool
	// ClientID is the MQTT client identifier. If empty, a random one is generated.
	ClientID string
	// TopicPrefix is the MQTT topic prefix (default: "syncboard").
	TopicPrefix string
	// RoomID identifies the room. The transport subscribes to
	// "{TopicPrefix}/{RoomID}" and publishes to the same topic.
	RoomID string
	// Logger is the logger to use. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Transport implements transport.Transport over MQTT.
type Transport struct {
	cfg    Config
	client paho.Client
	log    *slog.Logger

	mu           sync.RWMutex
	connected    bool
	frameHandler transport.FrameHandler
	stateHandler transport.StateHandler
}

// New creates a new MQTT transport with the given configuration.
func New(cfg Config) *Transport {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Transport{
		cfg: cfg,
		log: cfg.Logger.WithGroup("mqtt"),
	}
}

// Connect connects to the broker and subscribes to the room topic.
func (t *Transport) Connect(ctx context.Context) error {
	if t.cfg.Broker == "" {
		return errors.New("broker URL is required")
	}
	if t.cfg.RoomID == "" {
		return errors.New("room ID is required")
	}

	clientID := t.cfg.ClientID
	if clientID == "" {
		clientID = "syncboard-" + randomString(16)
	}

	opts := paho.NewClientOptions().
		AddBroker(t.cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(2 * time.Minute).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetCleanSession(true).
		SetOrderMatters(true). // frames must reach the handler in receipt order
		SetOnConnectHandler(t.onConnected).
		SetConnectionLostHandler(t.onConnectionLost)

	if t.cfg.Username != "" {
		opts.SetUsername(t.cfg.Username)
	}
	if t.cfg.Password != "" {
		opts.SetPassword(t.cfg.Password)
	}
	if t.cfg.UseTLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
		})
	}

	t.client = paho.NewClient(opts)

	timeout := connectTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}

	token := t.client.Connect()
	if !token.WaitTimeout(timeout) {
		return errors.New("connection timeout")
	}
	if token.Error() != nil {
		return fmt.Errorf("connecting to broker: %w", token.Error())
	}

	return nil
}

// Close gracefully disconnects from the broker. The code and reason exist
// to satisfy the transport interface; MQTT has no close handshake fields.
func (t *Transport) Close(_ int, _ string) error {
	t.mu.Lock()
	client := t.client
	wasConnected := t.connected
	t.connected = false
	handler := t.stateHandler
	t.mu.Unlock()

	if client != nil {
		client.Disconnect(250)
	}
	if wasConnected && handler != nil {
		handler(transport.EventClosed, nil)
	}
	return nil
}

// Send publishes one frame to the room topic.
func (t *Transport) Send(data []byte) error {
	if !t.IsConnected() {
		return ErrNotConnected
	}

	token := t.client.Publish(t.topic(), 0, false, data)
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("timeout publishing to MQTT")
	}
	return token.Error()
}

// IsConnected returns true if the transport is connected to the broker.
func (t *Transport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected && t.client != nil && t.client.IsConnected()
}

// SetFrameHandler sets the callback for inbound frames.
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

func (t *Transport) topic() string {
	return t.cfg.TopicPrefix + "/" + t.cfg.RoomID
}

func (t *Transport) subscribe() {
	topic := t.topic()
	t.client.Subscribe(topic, 0, t.handleMessage)
	t.log.Debug("subscribed to room topic", "topic", topic)
}

func (t *Transport) handleMessage(_ paho.Client, message paho.Message) {
	t.mu.RLock()
	handler := t.frameHandler
	t.mu.RUnlock()

	if handler == nil {
		return
	}
	handler(message.Payload())
}

func (t *Transport) onConnected(_ paho.Client) {
	t.mu.Lock()
	t.connected = true
	handler := t.stateHandler
	t.mu.Unlock()

	t.subscribe()
	t.log.Info("connected to MQTT broker", "broker", t.cfg.Broker)

	if handler != nil {
		handler(transport.EventOpen, nil)
	}
}

func (t *Transport) onConnectionLost(_ paho.Client, err error) {
	t.mu.Lock()
	t.connected = false
	handler := t.stateHandler
	t.mu.Unlock()

	t.log.Error("MQTT connection lost", "error", err)

	if handler != nil {
		handler(transport.EventError, err)
	}
}

func randomString(n int) string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(b)
}
