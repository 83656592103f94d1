package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wahajnintyeight/sync-board-mobile/storage"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *storage.Memory) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := storage.NewMemory()
	return New(Config{BaseURL: srv.URL, Store: store}), store
}

func TestClient_CreateSession_StoresID(t *testing.T) {
	c, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/createSession" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"message": "ok", "result": "sess-123"})
	}))

	id, err := c.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if id != "sess-123" {
		t.Errorf("session id = %q", id)
	}
	if got, _ := store.GetString(storage.KeySessionID); got != "sess-123" {
		t.Errorf("stored session id = %q", got)
	}
}

func TestClient_SessionHeaderAttached(t *testing.T) {
	var gotHeader string
	c, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("sessionId")
		json.NewEncoder(w).Encode(map[string]any{"messages": []any{}})
	}))
	store.SetString(storage.KeySessionID, "sess-777")

	if _, err := c.Messages(context.Background(), "ABC123", 1, 10); err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if gotHeader != "sess-777" {
		t.Errorf("sessionId header = %q, want sess-777", gotHeader)
	}
}

func TestClient_CreateRoom_RemembersRoom(t *testing.T) {
	c, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/room/create" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["deviceInfo"] != "pixel_7-10.0.0.2" {
			t.Errorf("deviceInfo = %q", body["deviceInfo"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{"_id": "room-oid-1", "code": "XYZ789"},
		})
	}))

	room, err := c.CreateRoom(context.Background(), "pixel_7-10.0.0.2")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if room.ID != "room-oid-1" || room.Code != "XYZ789" {
		t.Errorf("room = %+v", room)
	}
	if got, _ := store.GetString(storage.KeyRoomID); got != "room-oid-1" {
		t.Errorf("stored room id = %q", got)
	}
	if got, _ := store.GetString(storage.KeyRoomCode); got != "XYZ789" {
		t.Errorf("stored room code = %q", got)
	}
}

func TestClient_CreateRoom_NoResult(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"message": "room limit reached"})
	}))

	if _, err := c.CreateRoom(context.Background(), "dev"); err == nil {
		t.Error("missing result should error")
	}
}

func TestClient_JoinRoom(t *testing.T) {
	c, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/room/join" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"room": map[string]any{"_id": "room-oid-2", "code": "JOINME"},
		})
	}))

	room, err := c.JoinRoom(context.Background(), "JOINME", "dev")
	if err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	if room.Code != "JOINME" {
		t.Errorf("room = %+v", room)
	}
	if got, _ := store.GetString(storage.KeyRoomCode); got != "JOINME" {
		t.Errorf("stored room code = %q", got)
	}
}

func TestClient_UpdateRoomName(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/room/update" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["code"] != "ABC123" || body["roomName"] != "standup notes" {
			t.Errorf("body = %v", body)
		}
		json.NewEncoder(w).Encode(map[string]any{"message": "updated"})
	}))

	if err := c.UpdateRoomName(context.Background(), "ABC123", "standup notes"); err != nil {
		t.Fatalf("UpdateRoomName: %v", err)
	}
}

func TestClient_DeleteRoom_ClearsStoredRoom(t *testing.T) {
	c, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/room/delete" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["id"] != "room-oid-1" {
			t.Errorf("body = %v", body)
		}
		json.NewEncoder(w).Encode(map[string]any{"message": "deleted"})
	}))
	store.SetString(storage.KeyRoomID, "room-oid-1")
	store.SetString(storage.KeyRoomCode, "ABC123")

	if err := c.DeleteRoom(context.Background(), "room-oid-1"); err != nil {
		t.Fatalf("DeleteRoom: %v", err)
	}
	if _, ok := store.GetString(storage.KeyRoomID); ok {
		t.Error("stored room id should be cleared")
	}
	if _, ok := store.GetString(storage.KeyRoomCode); ok {
		t.Error("stored room code should be cleared")
	}
}

func TestClient_DeleteRoom_FailureKeepsStoredRoom(t *testing.T) {
	c, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]any{"message": "not the owner"})
	}))
	store.SetString(storage.KeyRoomID, "room-oid-1")

	if err := c.DeleteRoom(context.Background(), "room-oid-1"); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := store.GetString(storage.KeyRoomID); !ok {
		t.Error("stored room id should survive a failed delete")
	}
}

func TestClient_RoomInfo(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/room/room-oid-2" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"room": map[string]any{"_id": "room-oid-2", "code": "XYZ789", "roomName": "scratchpad"},
		})
	}))

	room, err := c.RoomInfo(context.Background(), "room-oid-2")
	if err != nil {
		t.Fatalf("RoomInfo: %v", err)
	}
	if room.ID != "room-oid-2" || room.Name != "scratchpad" {
		t.Errorf("room = %+v", room)
	}
}

func TestClient_SendMessage(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/room/ABC123/message" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Data map[string]string `json:"data"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.Data["content"] != "hello" || body.Data["sender"] != "pixel_7-10.0.0.2" {
			t.Errorf("data = %v", body.Data)
		}
		if body.Data["timestamp"] != "2026-02-03T10:00:00Z" {
			t.Errorf("timestamp = %q", body.Data["timestamp"])
		}
		json.NewEncoder(w).Encode(map[string]any{"message": "sent"})
	}))
	c.nowFn = func() time.Time { return time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC) }

	if err := c.SendMessage(context.Background(), "ABC123", "hello", "pixel_7-10.0.0.2"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
}

func TestClient_Messages_Normalizes(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("page"); got != "2" {
			t.Errorf("page = %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "10" {
			t.Errorf("limit = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]any{
				{"message": "hi", "timeStamp": "2025-06-01T12:00:00Z"},
				{"content": "older", "createdAt": "2025-06-01T11:00:00Z"},
			},
			"hasMore":       true,
			"totalMessages": 25,
		})
	}))

	page, err := c.Messages(context.Background(), "ABC123", 2, 10)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(page.Messages) != 2 || !page.HasMore || page.TotalMessages != 25 {
		t.Fatalf("page = %+v", page)
	}
	if page.Messages[0].Text != "hi" || !page.Messages[0].HasTimestamp {
		t.Errorf("first = %+v", page.Messages[0])
	}
	// The older record used content/createdAt and still normalizes.
	if page.Messages[1].Text != "older" || !page.Messages[1].HasTimestamp {
		t.Errorf("second = %+v", page.Messages[1])
	}
}

func TestClient_SessionExpiry_RecreatesAndRetries(t *testing.T) {
	var calls []string
	c, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		switch r.URL.Path {
		case "/room/ABC123/messages":
			// First attempt reports an expired session; after the session
			// is recreated the retry succeeds.
			if len(calls) == 1 {
				json.NewEncoder(w).Encode(map[string]any{"code": 1006})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"messages":      []map[string]any{{"message": "back"}},
				"totalMessages": 1,
			})
		case "/createSession":
			json.NewEncoder(w).Encode(map[string]any{"result": "sess-new"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	store.SetString(storage.KeySessionID, "sess-stale")
	store.SetInt64(storage.KeySessionExpiry, 1)

	page, err := c.Messages(context.Background(), "ABC123", 1, 10)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(page.Messages) != 1 || page.Messages[0].Text != "back" {
		t.Fatalf("page = %+v", page)
	}

	want := []string{
		"GET /room/ABC123/messages",
		"PUT /createSession",
		"GET /room/ABC123/messages",
	}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}
	if got, _ := store.GetString(storage.KeySessionID); got != "sess-new" {
		t.Errorf("session id after recovery = %q", got)
	}
	if _, ok := store.GetInt64(storage.KeySessionExpiry); ok {
		t.Error("stale expiry should have been deleted")
	}
}

func TestClient_HTTPError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{"message": "boom"})
	}))

	_, err := c.Messages(context.Background(), "ABC123", 1, 10)
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsStatus(err, http.StatusInternalServerError) {
		t.Errorf("IsStatus(500) = false for %v", err)
	}
	if IsStatus(err, http.StatusNotFound) {
		t.Error("IsStatus(404) should be false")
	}
}
