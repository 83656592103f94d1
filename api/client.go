// Package api is the REST client for session and room operations: session
// creation, room create/join, and paginated message history.
//
// Every request carries the current session identifier from persisted
// storage. When the backend reports an expired session (code 1006 in the
// response body), the client drops the stored session, creates a fresh
// one, and retries the original request once.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/wahajnintyeight/sync-board-mobile/core/message"
	"github.com/wahajnintyeight/sync-board-mobile/storage"
	"github.com/wahajnintyeight/sync-board-mobile/wire"
)

const (
	// DefaultTimeout is the per-request HTTP timeout.
	DefaultTimeout = 10 * time.Second

	// sessionHeader carries the session identifier on every request.
	sessionHeader = "sessionId"

	// sessionExpiredCode is the body-level code the backend uses to signal
	// an expired session.
	sessionExpiredCode = 1006
)

// Config holds the configuration for an API client.
type Config struct {
	// BaseURL is the API root (e.g. "https://api.example.com/v2/api").
	BaseURL string
	// Store holds the session id and the last room id/code.
	Store storage.Store
	// HTTPClient overrides the default client (DefaultTimeout) when set.
	HTTPClient *http.Client
	// Logger for request events. Falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// Client manages all requests to the backend API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger

	// nowFn allows overriding timestamp generation for testing.
	nowFn func() time.Time
}

// Room is a room record as returned by create/join.
type Room struct {
	ID            string `json:"_id"`
	Code          string `json:"code"`
	Name          string `json:"roomName,omitempty"`
	TotalMessages int    `json:"totalMessages,omitempty"`
}

// MessagesPage is one page of room history.
type MessagesPage struct {
	Messages      []message.Message
	HasMore       bool
	TotalMessages int
}

// envelope is the generic response body shape shared by all endpoints.
type envelope struct {
	Code          int                    `json:"code,omitempty"`
	Message       string                 `json:"message,omitempty"`
	Error         string                 `json:"error,omitempty"`
	Result        json.RawMessage        `json:"result,omitempty"`
	Room          *Room                  `json:"room,omitempty"`
	Messages      []wire.RoomMessageData `json:"messages,omitempty"`
	HasMore       bool                   `json:"hasMore,omitempty"`
	TotalMessages int                    `json:"totalMessages,omitempty"`
}

// New creates a new API client.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		log:        logger.WithGroup("api"),
		nowFn:      time.Now,
	}
}

// CreateSession creates a new backend session and persists its id.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	var env envelope
	if err := c.do(ctx, http.MethodPut, "/createSession", struct{}{}, &env); err != nil {
		return "", fmt.Errorf("api.CreateSession: %w", err)
	}

	var sessionID string
	if len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, &sessionID); err != nil {
			return "", fmt.Errorf("api.CreateSession: decoding session id: %w", err)
		}
	}
	if sessionID != "" {
		c.cfg.Store.SetString(storage.KeySessionID, sessionID)
	}
	return sessionID, nil
}

// CreateRoom creates a new room owned by this device and persists its
// id and code.
func (c *Client) CreateRoom(ctx context.Context, deviceFingerprint string) (*Room, error) {
	body := map[string]string{"deviceInfo": deviceFingerprint}

	var env envelope
	if err := c.doWithSessionRetry(ctx, http.MethodPost, "/room/create", body, &env); err != nil {
		return nil, fmt.Errorf("api.CreateRoom: %w", err)
	}
	if len(env.Result) == 0 {
		return nil, fmt.Errorf("api.CreateRoom: %s", orUnknown(env.Message))
	}

	var room Room
	if err := json.Unmarshal(env.Result, &room); err != nil {
		return nil, fmt.Errorf("api.CreateRoom: decoding room: %w", err)
	}
	c.rememberRoom(&room)
	return &room, nil
}

// JoinRoom joins an existing room by code and persists its id and code.
func (c *Client) JoinRoom(ctx context.Context, code, deviceFingerprint string) (*Room, error) {
	body := map[string]string{"code": code, "deviceInfo": deviceFingerprint}

	var env envelope
	if err := c.doWithSessionRetry(ctx, http.MethodPost, "/room/join", body, &env); err != nil {
		return nil, fmt.Errorf("api.JoinRoom: %w", err)
	}
	if env.Room == nil {
		return nil, fmt.Errorf("api.JoinRoom: %s", orUnknown(env.Message))
	}
	c.rememberRoom(env.Room)
	return env.Room, nil
}

// UpdateRoomName renames the room identified by code.
func (c *Client) UpdateRoomName(ctx context.Context, code, roomName string) error {
	body := map[string]string{"code": code, "roomName": roomName}

	var env envelope
	if err := c.doWithSessionRetry(ctx, http.MethodPut, "/room/update", body, &env); err != nil {
		return fmt.Errorf("api.UpdateRoomName: %w", err)
	}
	if env.Error != "" {
		return fmt.Errorf("api.UpdateRoomName: %s", env.Error)
	}
	return nil
}

// DeleteRoom deletes a room by id and drops the stored room id and code.
func (c *Client) DeleteRoom(ctx context.Context, roomID string) error {
	body := map[string]string{"id": roomID}

	var env envelope
	if err := c.doWithSessionRetry(ctx, http.MethodDelete, "/room/delete", body, &env); err != nil {
		return fmt.Errorf("api.DeleteRoom: %w", err)
	}
	if env.Error != "" {
		return fmt.Errorf("api.DeleteRoom: %s", env.Error)
	}

	c.cfg.Store.Delete(storage.KeyRoomID)
	c.cfg.Store.Delete(storage.KeyRoomCode)
	return nil
}

// RoomInfo fetches a room record by id.
func (c *Client) RoomInfo(ctx context.Context, roomID string) (*Room, error) {
	var env envelope
	if err := c.doWithSessionRetry(ctx, http.MethodGet, "/room/"+url.PathEscape(roomID), nil, &env); err != nil {
		return nil, fmt.Errorf("api.RoomInfo: %w", err)
	}
	if env.Room == nil {
		return nil, fmt.Errorf("api.RoomInfo: %s", orUnknown(env.Message))
	}
	return env.Room, nil
}

// SendMessage posts a chat message over REST, the fallback delivery path
// when no socket is open. The timestamp is assigned client-side, matching
// the socket send.
func (c *Client) SendMessage(ctx context.Context, roomCode, text, sender string) error {
	body := map[string]any{
		"data": map[string]string{
			"content":   text,
			"sender":    sender,
			"timestamp": c.nowFn().UTC().Format(time.RFC3339),
		},
	}

	var env envelope
	path := "/room/" + url.PathEscape(roomCode) + "/message"
	if err := c.doWithSessionRetry(ctx, http.MethodPost, path, body, &env); err != nil {
		return fmt.Errorf("api.SendMessage: %w", err)
	}
	if env.Error != "" {
		return fmt.Errorf("api.SendMessage: %s", env.Error)
	}
	return nil
}

// Messages fetches one page of room history, oldest pages at the highest
// page numbers. Raw records are normalized before being returned.
func (c *Client) Messages(ctx context.Context, roomCode string, page, limit int) (*MessagesPage, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(limit))
	path := "/room/" + url.PathEscape(roomCode) + "/messages?" + params.Encode()

	var env envelope
	if err := c.doWithSessionRetry(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, fmt.Errorf("api.Messages: %w", err)
	}

	out := &MessagesPage{
		HasMore:       env.HasMore,
		TotalMessages: env.TotalMessages,
	}
	for i := range env.Messages {
		out.Messages = append(out.Messages, message.FromWire(&env.Messages[i]))
	}
	return out, nil
}

func (c *Client) rememberRoom(room *Room) {
	if room.ID != "" {
		c.cfg.Store.SetString(storage.KeyRoomID, room.ID)
	}
	if room.Code != "" {
		c.cfg.Store.SetString(storage.KeyRoomCode, room.Code)
	}
}

// doWithSessionRetry performs a request and, when the backend reports an
// expired session, re-establishes the session and retries once.
func (c *Client) doWithSessionRetry(ctx context.Context, method, path string, body any, out *envelope) error {
	if err := c.do(ctx, method, path, body, out); err != nil {
		return err
	}
	if out.Code != sessionExpiredCode {
		return nil
	}

	c.log.Info("session expired, recreating")
	c.cfg.Store.Delete(storage.KeySessionID)
	c.cfg.Store.Delete(storage.KeySessionExpiry)
	if _, err := c.CreateSession(ctx); err != nil {
		return fmt.Errorf("recreating session: %w", err)
	}

	*out = envelope{}
	return c.do(ctx, method, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out *envelope) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sessionID, ok := c.cfg.Store.GetString(storage.KeySessionID); ok {
		req.Header.Set(sessionHeader, sessionID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := http.StatusText(resp.StatusCode)
		var failure envelope
		if json.Unmarshal(data, &failure) == nil && failure.Message != "" {
			msg = failure.Message
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: msg}
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func orUnknown(msg string) string {
	if msg == "" {
		return "unknown error"
	}
	return msg
}
