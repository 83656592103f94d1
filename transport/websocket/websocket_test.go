package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/wahajnintyeight/sync-board-mobile/transport"
)

var upgrader = gws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// echoServer upgrades connections, records the room query parameter, and
// echoes every frame back.
func echoServer(t *testing.T, gotRoom *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*gotRoom = r.URL.Query().Get("room")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestTransport_Connect_RoomAddressing(t *testing.T) {
	var gotRoom string
	srv := echoServer(t, &gotRoom)

	tr := New(Config{URL: wsURL(srv), RoomID: "room-42"})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Close(transport.CloseNormal, "test done")

	if !tr.IsConnected() {
		t.Error("transport should report connected")
	}
	if gotRoom != "room-42" {
		t.Errorf("server saw room=%q, want room-42", gotRoom)
	}
}

func TestTransport_SendAndReceive(t *testing.T) {
	var room string
	srv := echoServer(t, &room)

	tr := New(Config{URL: wsURL(srv), RoomID: "r1"})

	frames := make(chan []byte, 1)
	tr.SetFrameHandler(func(raw []byte) { frames <- raw })

	events := make(chan transport.Event, 4)
	tr.SetStateHandler(func(ev transport.Event, _ error) { events <- ev })

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Close(transport.CloseNormal, "test done")

	select {
	case ev := <-events:
		if ev != transport.EventOpen {
			t.Fatalf("first event = %v, want open", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no open event")
	}

	if err := tr.Send([]byte(`{"action":"ping"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case raw := <-frames:
		if string(raw) != `{"action":"ping"}` {
			t.Errorf("frame = %s", raw)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("echo frame never arrived")
	}
}

func TestTransport_Close_FiresClosedNotError(t *testing.T) {
	var room string
	srv := echoServer(t, &room)

	tr := New(Config{URL: wsURL(srv), RoomID: "r1"})

	events := make(chan transport.Event, 4)
	tr.SetStateHandler(func(ev transport.Event, _ error) { events <- ev })

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	<-events // open

	if err := tr.Close(transport.CloseNormal, "bye"); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case ev := <-events:
		if ev != transport.EventClosed {
			t.Errorf("event after local close = %v, want closed", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no closed event")
	}
	if tr.IsConnected() {
		t.Error("transport should not report connected after Close")
	}
}

func TestTransport_Close_Idempotent(t *testing.T) {
	var room string
	srv := echoServer(t, &room)

	tr := New(Config{URL: wsURL(srv), RoomID: "r1"})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := tr.Close(transport.CloseNormal, "bye"); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := tr.Close(transport.CloseNormal, "bye again"); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}

func TestTransport_Send_NotConnected(t *testing.T) {
	tr := New(Config{URL: "ws://127.0.0.1:1", RoomID: "r1"})
	if err := tr.Send([]byte("x")); err != ErrNotConnected {
		t.Errorf("Send before connect = %v, want ErrNotConnected", err)
	}
}

func TestTransport_Connect_Validation(t *testing.T) {
	if err := New(Config{RoomID: "r1"}).Connect(context.Background()); err == nil {
		t.Error("missing URL should error")
	}
	if err := New(Config{URL: "ws://x"}).Connect(context.Background()); err == nil {
		t.Error("missing room ID should error")
	}
}

func TestTransport_Connect_DialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	tr := New(Config{URL: "ws://127.0.0.1:1", RoomID: "r1"})
	if err := tr.Connect(ctx); err == nil {
		t.Error("dial to a dead port should error")
	}
	if tr.IsConnected() {
		t.Error("failed connect should leave the transport disconnected")
	}
}
