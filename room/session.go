package room

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wahajnintyeight/sync-board-mobile/core/clock"
	"github.com/wahajnintyeight/sync-board-mobile/core/message"
	"github.com/wahajnintyeight/sync-board-mobile/core/timeline"
)

// SessionConfig configures a room Session.
type SessionConfig struct {
	// Dial builds the realtime transport for a room. Required.
	Dial Dialer

	// Fetcher loads history pages. Required.
	Fetcher Fetcher

	// DeviceInfo is the local device fingerprint.
	DeviceInfo string

	// UserID is the authenticated user id, empty for anonymous use.
	UserID string

	// PageSize is the history page size. Default: DefaultPageSize.
	PageSize int

	// GracePeriod overrides the disconnect grace delay when positive.
	GracePeriod time.Duration

	// Clock for timestamps. Defaults to the system clock.
	Clock *clock.Clock

	// OnMessage is called for each live message that survives ingress
	// filtering. May be nil.
	OnMessage func(message.Message)

	// OnStatusChange is called when the connection status changes.
	// May be nil.
	OnStatusChange func(Status)

	// Logger for session events. Falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// Session is one visit to a room: it owns the connection manager, the
// history pagination, and the timeline reconciler for the duration of the
// room screen being on display. Create it when the screen appears, Close
// it when the screen goes away.
type Session struct {
	cfg SessionConfig
	log *slog.Logger

	manager *Manager
	recon   *timeline.Reconciler
	pages   *Pagination

	mu       sync.Mutex
	mounted  bool
	roomCode string
}

// NewSession creates a Session. It performs no I/O; Open starts the
// connection.
func NewSession(cfg SessionConfig) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		cfg: cfg,
		log: logger.WithGroup("session"),
	}
	s.manager = NewManager(ManagerConfig{
		Dial:           cfg.Dial,
		DeviceInfo:     cfg.DeviceInfo,
		GracePeriod:    cfg.GracePeriod,
		Clock:          cfg.Clock,
		OnMessage:      cfg.OnMessage,
		OnStatusChange: cfg.OnStatusChange,
		Logger:         logger,
	})
	s.recon = timeline.New(timeline.Config{
		Clock:  cfg.Clock,
		Logger: logger,
	})
	s.pages = NewPagination(PaginationConfig{
		Fetcher:  cfg.Fetcher,
		PageSize: cfg.PageSize,
		Logger:   logger,
	})
	return s
}

// Open connects to the room. A connect that completes after Close has run
// is immediately torn down again rather than leaking a live socket past
// the session's lifetime.
func (s *Session) Open(ctx context.Context, roomID, roomCode string) error {
	s.mu.Lock()
	s.mounted = true
	s.roomCode = roomCode
	s.mu.Unlock()

	err := s.manager.Connect(ctx, roomID, s.cfg.UserID, roomCode)

	s.mu.Lock()
	mounted := s.mounted
	s.mu.Unlock()
	if !mounted {
		s.log.Debug("connect completed after close, tearing down")
		s.manager.Cleanup()
		return err
	}
	return err
}

// LoadHistory fetches the first page of history, replacing any already
// loaded.
func (s *Session) LoadHistory(ctx context.Context) error {
	s.mu.Lock()
	roomCode := s.roomCode
	s.mu.Unlock()
	return s.pages.FetchPage(ctx, roomCode, 1)
}

// LoadOlder fetches the next older page when one exists. Returns whether
// a fetch happened.
func (s *Session) LoadOlder(ctx context.Context) bool {
	s.mu.Lock()
	roomCode := s.roomCode
	s.mu.Unlock()
	return s.pages.LoadMore(ctx, roomCode)
}

// SendMessage records an optimistic entry and transmits the message. The
// optimistic entry stays in the timeline even when the send fails; the
// reconciler's TTL retires it if no confirmation ever arrives.
func (s *Session) SendMessage(text string) message.Message {
	m := s.recon.RecordOptimisticSend(text, s.cfg.UserID, s.cfg.DeviceInfo)
	if !s.manager.SendMessage(text) {
		s.log.Debug("message not transmitted, keeping optimistic entry", "id", m.ID)
	}
	return m
}

// Timeline returns the merged conversation: history, live stream, and
// pending optimistic entries, ordered and deduplicated.
func (s *Session) Timeline() []message.Message {
	return s.recon.Merge(s.pages.History(), s.manager.Live())
}

// Manager exposes the connection manager for status and member queries.
func (s *Session) Manager() *Manager { return s.manager }

// Pages exposes the pagination controller for cursor and loading queries.
func (s *Session) Pages() *Pagination { return s.pages }

// Close ends the visit: disconnects with the leaving notification and
// permanently disposes the manager. Safe to call regardless of connection
// state, and idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	s.mounted = false
	s.mu.Unlock()

	s.manager.Disconnect()
	s.manager.Dispose()
}
