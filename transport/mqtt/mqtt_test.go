package mqtt

import (
	"context"
	"errors"
	"testing"
)

func TestNew_Defaults(t *testing.T) {
	tr := New(Config{
		Broker: "tcp://localhost:1883",
		RoomID: "room-1",
	})

	if tr.cfg.TopicPrefix != DefaultTopicPrefix {
		t.Errorf("expected default topic prefix %q, got %q", DefaultTopicPrefix, tr.cfg.TopicPrefix)
	}
	if tr.log == nil {
		t.Error("expected logger to be set")
	}
}

func TestNew_CustomConfig(t *testing.T) {
	tr := New(Config{
		Broker:      "tcp://broker.example.com:1883",
		Username:    "user",
		Password:    "pass",
		TopicPrefix: "custom",
		RoomID:      "room-9",
	})

	if tr.cfg.TopicPrefix != "custom" {
		t.Errorf("expected topic prefix %q, got %q", "custom", tr.cfg.TopicPrefix)
	}
	if got := tr.topic(); got != "custom/room-9" {
		t.Errorf("topic = %q, want custom/room-9", got)
	}
}

func TestConnect_MissingBroker(t *testing.T) {
	tr := New(Config{RoomID: "room-1"})
	if err := tr.Connect(context.Background()); err == nil {
		t.Fatal("expected error with empty broker")
	}
}

func TestConnect_MissingRoomID(t *testing.T) {
	tr := New(Config{Broker: "tcp://localhost:1883"})
	if err := tr.Connect(context.Background()); err == nil {
		t.Fatal("expected error with empty room ID")
	}
}

func TestSend_NotConnected(t *testing.T) {
	tr := New(Config{
		Broker: "tcp://localhost:1883",
		RoomID: "room-1",
	})

	err := tr.Send([]byte(`{"action":"sendRoomMessage"}`))
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Send = %v, want ErrNotConnected", err)
	}
}

func TestIsConnected_Default(t *testing.T) {
	tr := New(Config{
		Broker: "tcp://localhost:1883",
		RoomID: "room-1",
	})

	if tr.IsConnected() {
		t.Error("expected not connected initially")
	}
}

func TestClose_NeverConnected(t *testing.T) {
	tr := New(Config{
		Broker: "tcp://localhost:1883",
		RoomID: "room-1",
	})

	if err := tr.Close(1000, "bye"); err != nil {
		t.Errorf("Close on unconnected transport = %v, want nil", err)
	}
}
